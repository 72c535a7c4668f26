// Package capturetest provides a scriptable capture.Backend for tests.
package capturetest

import (
	"context"
	"errors"
	"sync"

	"github.com/bryanchriswhite/camserver/internal/capture"
)

// Step is one scripted ReadFrame result
type Step struct {
	Frame capture.Frame
	Err   error
}

// Backend is a capture.Backend driven by a script. Once the script is
// exhausted ReadFrame repeats the last frame, or blocks until Close when the
// script ends with Hold.
type Backend struct {
	mu sync.Mutex

	// OpenErr fails every Open while set
	OpenErr error
	// ProbeErr is returned from Probe
	ProbeErr error
	// Info is returned from a successful Open
	Info capture.StreamInfo

	script []Step
	pos    int
	hold   bool

	opens    int
	closes   int
	probes   []capture.Source
	lastOpen capture.Source
	closed   chan struct{}
	wake     chan struct{}
	isOpen   bool
}

// NewBackend returns a backend that opens as size in I420
func NewBackend(width, height int) *Backend {
	return &Backend{
		Info: capture.StreamInfo{
			Native:   capture.Size{Width: width, Height: height},
			Format:   capture.PixelFormatI420,
			Codec:    "fake",
			Metadata: map[string]string{"driver": "fake"},
		},
		closed: make(chan struct{}),
	}
}

// Script replaces the scripted ReadFrame results and rewinds. A ReadFrame
// blocked on Hold picks up the new script.
func (b *Backend) Script(steps ...Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.script = steps
	b.pos = 0
	b.hold = false
	if b.wake != nil {
		close(b.wake)
		b.wake = nil
	}
}

// Hold makes ReadFrame block after the script is exhausted
func (b *Backend) Hold() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = true
}

// SetOpenErr changes the Open failure while tests run concurrently
func (b *Backend) SetOpenErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.OpenErr = err
}

// Opens returns the number of successful and failed Open calls
func (b *Backend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Closes returns the number of Close calls
func (b *Backend) Closes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

// LastOpen returns the source passed to the latest Open
func (b *Backend) LastOpen() capture.Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOpen
}

// Probes returns the sources passed to Probe
func (b *Backend) Probes() []capture.Source {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capture.Source(nil), b.probes...)
}

func (b *Backend) Name() string { return "fake" }

func (b *Backend) Open(ctx context.Context, src capture.Source) (capture.StreamInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opens++
	b.lastOpen = src
	if b.OpenErr != nil {
		return capture.StreamInfo{}, b.OpenErr
	}
	b.isOpen = true
	b.closed = make(chan struct{})
	return b.Info, nil
}

func (b *Backend) ReadFrame(ctx context.Context) (capture.Frame, error) {
	b.mu.Lock()
	if !b.isOpen {
		b.mu.Unlock()
		return capture.Frame{}, capture.ErrNotConnected
	}
	if b.pos < len(b.script) {
		step := b.script[b.pos]
		b.pos++
		b.mu.Unlock()
		return step.Frame, step.Err
	}
	if !b.hold && len(b.script) > 0 {
		step := b.script[len(b.script)-1]
		b.mu.Unlock()
		return step.Frame, step.Err
	}
	if b.wake == nil {
		b.wake = make(chan struct{})
	}
	closed, wake := b.closed, b.wake
	b.mu.Unlock()

	select {
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	case <-closed:
		return capture.Frame{}, capture.ErrStreamEnded
	case <-wake:
		return b.ReadFrame(ctx)
	}
}

func (b *Backend) Probe(ctx context.Context, src capture.Source) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probes = append(b.probes, src)
	return b.ProbeErr
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	if b.isOpen {
		b.isOpen = false
		close(b.closed)
	}
	return nil
}

// ErrBroken is a convenient terminal read error
var ErrBroken = errors.New("capturetest: stream broken")

// I420Frame returns a uniform I420 frame of the given luma/chroma values
func I420Frame(width, height int, y, cb, cr byte, decodeErr, flags uint32) capture.Frame {
	planes, strides, _ := capture.SplitI420(solidI420(width, height, y, cb, cr), width, height, 1)
	return capture.Frame{
		Width:            width,
		Height:           height,
		Format:           capture.PixelFormatI420,
		Planes:           planes,
		Strides:          strides,
		DecodeErrorFlags: decodeErr,
		Flags:            flags,
	}
}

// KeyFrame is a clean key frame
func KeyFrame(width, height int, luma byte) capture.Frame {
	return I420Frame(width, height, luma, 128, 128, 0, capture.FrameFlagKey)
}

func solidI420(width, height int, y, cb, cr byte) []byte {
	_, offsets, size := capture.I420Layout(width, height, 1)
	data := make([]byte, size)
	for i := 0; i < offsets[1]; i++ {
		data[i] = y
	}
	for i := offsets[1]; i < offsets[2]; i++ {
		data[i] = cb
	}
	for i := offsets[2]; i < size; i++ {
		data[i] = cr
	}
	return data
}
