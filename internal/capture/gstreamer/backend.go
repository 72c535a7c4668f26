// Package gstreamer decodes capture sources in-process with a GStreamer
// pipeline ending in an appsink.
package gstreamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

// I420 rows and planes are 4-byte aligned in GStreamer's default layout
const i420Align = 4

const (
	defaultOpenTimeout = 10 * time.Second
	openPoll           = 50 * time.Millisecond
	readPoll           = 10 * time.Millisecond
)

var initOnce sync.Once

// Options configures a Backend
type Options struct {
	Platform    platform.Platform
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// Backend implements capture.Backend on a go-gst pipeline. Samples are
// pulled by polling the appsink so no cgo callbacks run on Go threads.
type Backend struct {
	opts Options
	log  zerolog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	bus      *gst.Bus
	info     capture.StreamInfo
	pending  *gst.Sample
	buf      []byte
	started  time.Time
}

// New creates an unopened backend
func New(opts Options) *Backend {
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	return &Backend{
		opts: opts,
		log:  opts.Logger,
	}
}

// Factory returns a capture.BackendFactory producing GStreamer backends
func Factory(opts Options) capture.BackendFactory {
	return func() capture.Backend { return New(opts) }
}

func (b *Backend) Name() string { return "gstreamer" }

// Open builds and starts the pipeline, then waits for the first sample to
// learn the negotiated video caps
func (b *Backend) Open(ctx context.Context, src capture.Source) (capture.StreamInfo, error) {
	initOnce.Do(func() { gst.Init(nil) })

	desc, err := BuildPipeline(src, b.opts.Platform)
	if err != nil {
		return capture.StreamInfo{}, err
	}
	b.log.Debug().Str("pipeline", desc).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return capture.StreamInfo{}, fmt.Errorf("failed to create pipeline: %w", err)
	}

	sinkElement, err := pipeline.GetElementByName(sinkName)
	if err != nil {
		destroy(pipeline)
		return capture.StreamInfo{}, fmt.Errorf("failed to get appsink: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		destroy(pipeline)
		return capture.StreamInfo{}, fmt.Errorf("failed to start pipeline: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
	b.pipeline = pipeline
	b.sink = app.SinkFromElement(sinkElement)
	b.bus = pipeline.GetPipelineBus()
	b.started = time.Now()

	sample, err := b.waitFirstSample(ctx)
	if err != nil {
		b.teardownLocked()
		return capture.StreamInfo{}, err
	}

	info, err := streamInfo(sample)
	if err != nil {
		b.teardownLocked()
		return capture.StreamInfo{}, err
	}
	info.Metadata["pipeline"] = desc
	b.info = info
	b.pending = sample

	b.log.Info().
		Str("caps", info.Metadata["caps"]).
		Str("size", info.Native.String()).
		Msg("GStreamer pipeline started")
	return info, nil
}

func (b *Backend) waitFirstSample(ctx context.Context) (*gst.Sample, error) {
	deadline := time.Now().Add(b.opts.OpenTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("no video within %s", b.opts.OpenTimeout)
		}
		if err := b.drainBus(); err != nil {
			return nil, err
		}
		if sample := b.sink.TryPullSample(openPoll); sample != nil {
			return sample, nil
		}
		if b.sink.IsEOS() {
			return nil, capture.ErrStreamEnded
		}
	}
}

func streamInfo(sample *gst.Sample) (capture.StreamInfo, error) {
	caps := sample.GetCaps()
	if caps == nil {
		return capture.StreamInfo{}, capture.ErrNoVideoStream
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return capture.StreamInfo{}, capture.ErrNoVideoStream
	}

	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	format, _ := structure.GetValue("format")

	w, _ := width.(int)
	h, _ := height.(int)
	f, _ := format.(string)

	return capture.StreamInfo{
		Native: capture.Size{Width: w, Height: h},
		Format: capture.ParsePixelFormat(f),
		Codec:  structure.Name(),
		Metadata: map[string]string{
			"caps": caps.String(),
		},
	}, nil
}

// drainBus surfaces pipeline errors and end of stream. Other messages are
// dropped.
func (b *Backend) drainBus() error {
	for {
		msg := b.bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return capture.ErrStreamEnded
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("pipeline error: %s: %s", gerr.Error(), gerr.DebugString())
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			b.log.Warn().Str("debug", gerr.DebugString()).Msg(gerr.Error())
		}
	}
}

// ReadFrame returns the next sample as an I420 frame. The planes alias a
// buffer owned by the backend and are overwritten by the next call.
func (b *Backend) ReadFrame(ctx context.Context) (capture.Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pipeline == nil {
		return capture.Frame{}, capture.ErrNotConnected
	}

	sample := b.pending
	b.pending = nil
	if sample == nil {
		if err := b.drainBus(); err != nil {
			return capture.Frame{}, err
		}
		sample = b.sink.TryPullSample(readPoll)
		if sample == nil {
			if b.sink.IsEOS() {
				return capture.Frame{}, capture.ErrStreamEnded
			}
			return capture.Frame{}, capture.ErrAgain
		}
	}

	return b.frameFromSample(sample)
}

func (b *Backend) frameFromSample(sample *gst.Sample) (capture.Frame, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return capture.Frame{}, capture.ErrAgain
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return capture.Frame{}, capture.ErrAgain
	}
	data := mapInfo.Bytes()
	if cap(b.buf) < len(data) {
		b.buf = make([]byte, len(data))
	}
	b.buf = b.buf[:len(data)]
	copy(b.buf, data)
	buffer.Unmap()

	w, h := b.info.Native.Width, b.info.Native.Height
	planes, strides, err := capture.SplitI420(b.buf, w, h, i420Align)
	if err != nil {
		return capture.Frame{}, err
	}

	flags := buffer.GetFlags()
	decodeErr, frameFlags := MapBufferFlags(
		flags&gst.BufferFlagDeltaUnit != 0,
		flags&gst.BufferFlagCorrupted != 0,
		flags&gst.BufferFlagDiscont != 0,
	)

	return capture.Frame{
		Width:            w,
		Height:           h,
		Format:           capture.PixelFormatI420,
		Planes:           planes,
		Strides:          strides,
		Timestamp:        time.Since(b.started),
		DecodeErrorFlags: decodeErr,
		Flags:            frameFlags,
	}, nil
}

// Probe opens src on a throwaway pipeline and closes it again
func (b *Backend) Probe(ctx context.Context, src capture.Source) error {
	probe := New(b.opts)
	defer probe.Close()

	ctx, cancel := context.WithTimeout(ctx, b.opts.OpenTimeout)
	defer cancel()

	_, err := probe.Open(ctx, src)
	return err
}

// Close stops and releases the pipeline
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
	return nil
}

func (b *Backend) teardownLocked() {
	if b.pipeline == nil {
		return
	}
	destroy(b.pipeline)
	b.pipeline = nil
	b.sink = nil
	b.bus = nil
	b.pending = nil
	b.log.Debug().Msg("GStreamer pipeline stopped")
}

func destroy(pipeline *gst.Pipeline) {
	pipeline.SetState(gst.StateNull)
	pipeline.Unref()
}
