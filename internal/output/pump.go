package output

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/camserver/internal/overlay"
)

// Source supplies the frames the pump streams
type Source interface {
	GetImage(rotate int) (*image.RGBA, bool)
	// Seq changes whenever a new frame is published
	Seq() uint64
}

// DefaultFPS is used when Config.FPS is not positive
const DefaultFPS = 15

// Pump polls a Source at a fixed rate, draws the overlay and writes the
// result to every running output
type Pump struct {
	source  Source
	overlay *overlay.Manager
	outputs []Output
	config  Config
	log     zerolog.Logger

	seq     atomic.Uint64
	lastSrc uint64
}

// NewPump creates a pump. overlay may be nil.
func NewPump(source Source, ov *overlay.Manager, config Config, log zerolog.Logger, outputs ...Output) *Pump {
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	return &Pump{
		source:  source,
		overlay: ov,
		outputs: outputs,
		config:  config,
		log:     log,
	}
}

// Run starts the outputs and streams until ctx is done, then stops them
func (p *Pump) Run(ctx context.Context) {
	for _, out := range p.outputs {
		if err := out.Start(); err != nil {
			p.log.Error().Err(err).Str("output", out.Name()).Msg("Failed to start output")
		}
	}
	defer func() {
		for _, out := range p.outputs {
			if err := out.Stop(); err != nil {
				p.log.Warn().Err(err).Str("output", out.Name()).Msg("Failed to stop output")
			}
		}
	}()

	interval := time.Second / time.Duration(p.config.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info().
		Int("fps", p.config.FPS).
		Dur("interval", interval).
		Int("outputs", len(p.outputs)).
		Msg("Output pump started")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			p.Tick(now)
		}
	}
}

// Tick streams one frame if there is something new to show. It reports
// whether a frame was written.
func (p *Pump) Tick(now time.Time) bool {
	srcSeq := p.source.Seq()
	animated := p.overlay != nil && p.overlay.IsEnabled() && len(p.overlay.Widgets()) > 0
	if srcSeq == p.lastSrc && !animated {
		return false
	}

	img, ok := p.source.GetImage(0)
	if !ok {
		return false
	}
	p.lastSrc = srcSeq

	if p.overlay != nil {
		p.overlay.Render(img, now)
	}

	data, err := EncodeJPEG(img, p.config.quality())
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to encode frame")
		return false
	}
	frame := Frame{
		Image:     img,
		JPEG:      data,
		Seq:       p.seq.Add(1),
		Timestamp: now,
	}

	for _, out := range p.outputs {
		if !out.IsRunning() {
			continue
		}
		if err := out.WriteFrame(frame); err != nil {
			p.log.Debug().Err(err).Str("output", out.Name()).Msg("Failed to write frame")
		}
	}
	return true
}

// Seq returns the number of frames streamed so far
func (p *Pump) Seq() uint64 {
	return p.seq.Load()
}
