// Package zmq publishes streamed frames on a ZeroMQ PUB socket.
package zmq

import (
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"
	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/camserver/internal/output"
)

// Publisher is an output.Output sending one CBOR message per frame
type Publisher struct {
	endpoint    string
	cameraIndex int
	log         zerolog.Logger

	mu      sync.Mutex
	socket  *zmq4.Socket
	sent    uint64
	dropped uint64
}

// NewPublisher creates a publisher that binds endpoint on Start
func NewPublisher(endpoint string, cameraIndex int, log zerolog.Logger) *Publisher {
	return &Publisher{
		endpoint:    endpoint,
		cameraIndex: cameraIndex,
		log:         log,
	}
}

// Start binds the PUB socket
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.socket != nil {
		return fmt.Errorf("publisher already running")
	}

	socket, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return fmt.Errorf("failed to create PUB socket: %w", err)
	}
	// slow subscribers lose frames rather than queueing them
	if err := socket.SetSndhwm(2); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to set send high water mark: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to set linger: %w", err)
	}
	if err := socket.Bind(p.endpoint); err != nil {
		_ = socket.Close()
		return fmt.Errorf("failed to bind %s: %w", p.endpoint, err)
	}

	p.socket = socket
	p.log.Info().Str("endpoint", p.endpoint).Msg("Frame publisher started")
	return nil
}

// Stop closes the socket
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.socket == nil {
		return nil
	}
	err := p.socket.Close()
	p.socket = nil
	p.log.Info().
		Uint64("sent", p.sent).
		Uint64("dropped", p.dropped).
		Msg("Frame publisher stopped")
	return err
}

// WriteFrame publishes frame without blocking
func (p *Publisher) WriteFrame(frame output.Frame) error {
	msg, err := output.EncodeFrameMessage(p.cameraIndex, frame)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.socket == nil {
		return fmt.Errorf("publisher not running")
	}

	if _, err := p.socket.SendBytes(msg, zmq4.DONTWAIT); err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			p.dropped++
			return nil
		}
		return fmt.Errorf("failed to publish frame %d: %w", frame.Seq, err)
	}
	p.sent++
	return nil
}

// Name returns the output type name
func (p *Publisher) Name() string {
	return "zmq"
}

// IsRunning reports whether the socket is bound
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.socket != nil
}

// Counters returns sent and dropped message counts
func (p *Publisher) Counters() (sent, dropped uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.dropped
}

// lingerTimeout bounds Close when the context is terminated at exit
const lingerTimeout = 100 * time.Millisecond

// Shutdown terminates the default ZeroMQ context after every socket closed
func Shutdown() error {
	done := make(chan error, 1)
	go func() { done <- zmq4.Term() }()
	select {
	case err := <-done:
		return err
	case <-time.After(lingerTimeout):
		return fmt.Errorf("zmq context did not terminate within %s", lingerTimeout)
	}
}
