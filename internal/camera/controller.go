// Package camera drives one configured camera: it opens the source with
// retries, recovers from broken streams and serves transformed frames.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

// ErrConfigMissing is returned by Start when the camera has no configured
// source name
var ErrConfigMissing = errors.New("camera: no camera configured for this index")

// Default controller timings
const (
	DefaultOpenRetry      = 5 * time.Second
	DefaultRecoveryRetry  = time.Second
	DefaultFirstFramePoll = 10 * time.Millisecond
)

// Options configures a Controller
type Options struct {
	Platform platform.Platform
	Backend  capture.BackendFactory
	HWAccel  string

	Sentinels      capture.Sentinels
	DecodeTick     time.Duration
	OpenRetry      time.Duration
	RecoveryRetry  time.Duration
	FirstFramePoll time.Duration

	Logger zerolog.Logger
}

// Info describes the controller for diagnostics
type Info struct {
	Identity    config.CameraIdentity `json:"identity"`
	Active      bool                  `json:"active"`
	Recoveries  uint64                `json:"recoveries"`
	ContextInfo map[string]string     `json:"context,omitempty"`
	Session     *capture.SessionStats `json:"session,omitempty"`
}

// Controller owns at most one capture session for one camera
type Controller struct {
	identity config.CameraIdentity
	opts     Options
	buffer   *capture.FrameBuffer
	broken   chan capture.BrokenEvent
	log      zerolog.Logger

	active     atomic.Bool
	recoveries atomic.Uint64

	mu      sync.Mutex
	session *capture.Session
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// NewController creates a stopped controller for identity
func NewController(identity config.CameraIdentity, opts Options) *Controller {
	if opts.OpenRetry <= 0 {
		opts.OpenRetry = DefaultOpenRetry
	}
	if opts.RecoveryRetry <= 0 {
		opts.RecoveryRetry = DefaultRecoveryRetry
	}
	if opts.FirstFramePoll <= 0 {
		opts.FirstFramePoll = DefaultFirstFramePoll
	}
	return &Controller{
		identity: identity,
		opts:     opts,
		buffer:   capture.NewFrameBuffer(),
		broken:   make(chan capture.BrokenEvent, 1),
		log: opts.Logger.With().
			Int("camera_index", identity.Index).
			Str("camera_name", identity.Name).
			Logger(),
	}
}

// Identity returns the camera this controller serves
func (c *Controller) Identity() config.CameraIdentity {
	return c.identity
}

// Start opens the camera, retrying until it succeeds or ctx is done, and
// waits for the first frame. Recovery from broken streams then runs in the
// background until Stop or until ctx is cancelled.
func (c *Controller) Start(ctx context.Context) error {
	if c.identity.Name == "" {
		return ErrConfigMissing
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("camera %d already started", c.identity.Index)
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	if err := c.openLoop(runCtx, c.opts.OpenRetry); err != nil {
		c.Stop()
		return err
	}

	c.wg.Add(1)
	go c.watch(runCtx)
	return nil
}

// openLoop opens a fresh session until one publishes its first frame
func (c *Controller) openLoop(ctx context.Context, interval time.Duration) error {
	failures := 0
	for {
		err := c.open(ctx)
		if err == nil {
			if failures > 0 {
				c.log.Info().Int("attempts", failures+1).Msg("Camera opened after retries")
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if failures == 0 {
			c.log.Warn().Err(err).Dur("retry_in", interval).Msg("Failed to open camera, retrying")
		} else {
			c.log.Debug().Err(err).Int("attempt", failures+1).Msg("Camera still unavailable")
		}
		failures++

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Controller) open(ctx context.Context) error {
	decoder := capture.NewDecoder(c.opts.Backend(), capture.DecoderOptions{
		Platform: c.opts.Platform,
		HWAccel:  c.opts.HWAccel,
		Logger:   c.log,
	})
	decoder.SetResolution(c.identity.Width, c.identity.Height)

	sess := capture.NewSession(decoder, c.buffer, capture.SessionOptions{
		Sentinels: c.opts.Sentinels,
		Tick:      c.opts.DecodeTick,
		Broken:    c.broken,
		Logger:    c.log,
	})

	name := c.opts.Platform.NormalizeDeviceName(c.identity.Name)
	local := !platform.IsNetworkSource(name)
	if err := sess.Open(ctx, name, local); err != nil {
		return err
	}
	if err := sess.Start(ctx); err != nil {
		sess.Stop()
		return err
	}

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	if err := c.awaitFirstFrame(ctx, sess); err != nil {
		c.stopSession()
		// a session that broke while we waited has already queued its event
		c.drainBroken(sess.ID())
		return err
	}

	c.active.Store(true)
	c.log.Info().Str("session", sess.ID()).Msg("Camera active")
	return nil
}

func (c *Controller) awaitFirstFrame(ctx context.Context, sess *capture.Session) error {
	ticker := time.NewTicker(c.opts.FirstFramePoll)
	defer ticker.Stop()
	for {
		switch sess.State() {
		case capture.StateStreaming:
			return nil
		case capture.StateBroken:
			return fmt.Errorf("session %s broke before its first frame", sess.ID())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Controller) drainBroken(id string) {
	for {
		select {
		case ev := <-c.broken:
			if ev.SessionID != id {
				c.log.Debug().Str("session", ev.SessionID).Msg("Dropped stale broken event")
			}
		default:
			return
		}
	}
}

// watch recovers from broken sessions until ctx is done
func (c *Controller) watch(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.broken:
			if !c.isCurrent(ev.SessionID) {
				continue
			}
			c.log.Error().
				Err(ev.Err).
				Str("session", ev.SessionID).
				Msg("Camera stream broken, reconnecting")

			c.active.Store(false)
			c.stopSession()
			c.buffer.Clear()
			c.recoveries.Add(1)

			if err := c.openLoop(ctx, c.opts.RecoveryRetry); err != nil {
				return
			}
		}
	}
}

func (c *Controller) isCurrent(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.ID() == id
}

func (c *Controller) stopSession() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

// Stop ends recovery and the current session. Safe to call more than once.
func (c *Controller) Stop() {
	c.active.Store(false)

	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.wg.Wait()
	c.stopSession()
	c.buffer.Clear()

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
}

// IsActive reports whether a session is streaming
func (c *Controller) IsActive() bool {
	return c.active.Load()
}

// Buffer exposes the frame buffer sessions publish into
func (c *Controller) Buffer() *capture.FrameBuffer {
	return c.buffer
}

// Seq returns the sequence number of the latest published frame
func (c *Controller) Seq() uint64 {
	return c.buffer.Seq()
}

// GetImage returns the latest frame after flip, the camera's rotation and
// rotate are applied. It never waits on the decode goroutine.
func (c *Controller) GetImage(rotate int) (*image.RGBA, bool) {
	snap, ok := c.buffer.Read()
	if !ok {
		return nil, false
	}
	return Apply(snap.Image, c.identity.Flip, c.identity.Rotate, NormalizeRotation(rotate)), true
}

// Info returns identity, decoder context and session counters
func (c *Controller) Info() Info {
	info := Info{
		Identity:   c.identity,
		Active:     c.IsActive(),
		Recoveries: c.recoveries.Load(),
	}
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess != nil {
		info.ContextInfo = sess.Decoder().ContextInfo()
		stats := sess.Stats()
		info.Session = &stats
	}
	return info
}
