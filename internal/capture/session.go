package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// DefaultDecodeTick is the pause between decode iterations
const DefaultDecodeTick = time.Millisecond

// BrokenEvent is sent once when a session's decode loop dies
type BrokenEvent struct {
	SessionID string
	Err       error
	At        time.Time
}

// SessionOptions configures a Session
type SessionOptions struct {
	Sentinels Sentinels
	Tick      time.Duration
	// Broken receives at most one event. Sends never block; the receiver
	// should be buffered.
	Broken chan<- BrokenEvent
	Logger zerolog.Logger
}

// SessionStats are counters kept by the decode loop
type SessionStats struct {
	ID          string    `json:"id"`
	State       string    `json:"state"`
	Started     time.Time `json:"started"`
	Decoded     uint64    `json:"decoded"`
	Published   uint64    `json:"published"`
	Invalid     uint64    `json:"invalid"`
	Transient   uint64    `json:"transient"`
	Reconverted uint64    `json:"reconverted"`
}

// Session runs one decode goroutine for one connected source and publishes
// valid frames into a FrameBuffer.
type Session struct {
	id      string
	decoder *Decoder
	buffer  *FrameBuffer
	opts    SessionOptions
	log     zerolog.Logger

	state  atomic.Int32
	active atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	stopped bool

	decoded     atomic.Uint64
	published   atomic.Uint64
	invalid     atomic.Uint64
	transient   atomic.Uint64
	reconverted atomic.Uint64
}

// NewSession creates an idle session over decoder and buffer
func NewSession(decoder *Decoder, buffer *FrameBuffer, opts SessionOptions) *Session {
	if opts.Tick <= 0 {
		opts.Tick = DefaultDecodeTick
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		decoder: decoder,
		buffer:  buffer,
		opts:    opts,
		log:     opts.Logger.With().Str("session", id).Logger(),
	}
}

// ID returns the session's unique identifier
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state
func (s *Session) State() State { return State(s.state.Load()) }

// Active reports whether the decode loop is running
func (s *Session) Active() bool { return s.active.Load() }

// Decoder returns the decoder the session reads from
func (s *Session) Decoder() *Decoder { return s.decoder }

// Open connects the decoder. The session stays Opening until Start produces
// its first frame; on failure it returns to Idle and no goroutine exists.
func (s *Session) Open(ctx context.Context, sourceName string, isLocalDevice bool) error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateOpening)) {
		return fmt.Errorf("session %s cannot open from state %s", s.id, s.State())
	}
	if err := s.decoder.Connect(ctx, sourceName, isLocalDevice); err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}
	return nil
}

// Start launches the decode goroutine. The decoder must be connected.
func (s *Session) Start(ctx context.Context) error {
	if s.State() != StateOpening || !s.decoder.IsConnected() {
		return fmt.Errorf("session %s: %w", s.id, ErrNotConnected)
	}

	native := s.decoder.FrameSize()
	conv, err := NewConverter(native, s.decoder.PixelFormat(), s.decoder.Resolution())
	if err != nil {
		return fmt.Errorf("failed to create converter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("session %s already stopped", s.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = time.Now()
	s.active.Store(true)

	s.logContextInfo()

	go s.run(runCtx, conv, s.done)
	return nil
}

func (s *Session) logContextInfo() {
	info := s.decoder.ContextInfo()
	for _, k := range SortedKeys(info) {
		s.log.Info().Str("key", k).Str("value", info[k]).Msg("Decoder context")
	}
}

// Done is closed when the decode goroutine exits. Nil before Start.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Stop signals the decode loop, waits for it to exit, then disconnects the
// decoder. Safe to call more than once and on a session that never started.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	// signal
	s.active.Store(false)
	if cancel != nil {
		cancel()
	}
	// join
	if done != nil {
		<-done
	}
	// disconnect
	s.decoder.Disconnect()

	if s.State() != StateBroken {
		s.state.Store(int32(StateIdle))
	}
	s.log.Debug().Msg("Session stopped")
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return SessionStats{
		ID:          s.id,
		State:       s.State().String(),
		Started:     started,
		Decoded:     s.decoded.Load(),
		Published:   s.published.Load(),
		Invalid:     s.invalid.Load(),
		Transient:   s.transient.Load(),
		Reconverted: s.reconverted.Load(),
	}
}

func (s *Session) run(ctx context.Context, conv *Converter, done chan struct{}) {
	defer close(done)

	classifier := NewClassifier(s.opts.Sentinels)
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for s.active.Load() {
		frame, err := s.decoder.TryDecodeNextFrame(ctx)
		if err != nil {
			if !s.active.Load() || errors.Is(err, context.Canceled) {
				return
			}
			s.fail(err)
			return
		}
		s.decoded.Add(1)

		verdict := classifier.Classify(frame)
		s.log.Debug().
			Uint32("decode_error_flags", frame.DecodeErrorFlags).
			Uint32("flags", frame.Flags).
			Str("verdict", verdict.String()).
			Msg("Frame classified")

		switch verdict {
		case VerdictInvalid:
			s.invalid.Add(1)
		case VerdictTransient:
			s.transient.Add(1)
		}

		if verdict.Publish() {
			if err := s.publish(frame, &conv); err != nil {
				s.fail(err)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) publish(frame Frame, conv **Converter) error {
	img, err := (*conv).Convert(frame)
	if errors.Is(err, ErrFormatChanged) {
		s.log.Info().
			Str("from", (*conv).SourceSize().String()).
			Str("to", frame.Size().String()).
			Msg("Source format changed, rebuilding converter")
		rebuilt, cerr := NewConverter(frame.Size(), frame.Format, (*conv).TargetSize())
		if cerr != nil {
			return fmt.Errorf("failed to rebuild converter: %w", cerr)
		}
		*conv = rebuilt
		s.reconverted.Add(1)
		img, err = rebuilt.Convert(frame)
	}
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}

	s.buffer.Publish((*conv).ToOutputImage(img), frame.Timestamp)
	s.published.Add(1)
	if s.state.CompareAndSwap(int32(StateOpening), int32(StateStreaming)) {
		s.log.Info().Msg("First frame published")
	}
	return nil
}

// fail marks the session broken and fires the notification without blocking
func (s *Session) fail(err error) {
	s.active.Store(false)
	s.state.Store(int32(StateBroken))
	s.log.Error().Err(err).Msg("Decode loop terminated")

	if s.opts.Broken == nil {
		return
	}
	select {
	case s.opts.Broken <- BrokenEvent{SessionID: s.id, Err: err, At: time.Now()}:
	default:
		s.log.Warn().Msg("Broken notification dropped, receiver busy")
	}
}
