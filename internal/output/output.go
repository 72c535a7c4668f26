// Package output fans processed camera frames out to stream consumers.
package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"
)

// Output is one destination for streamed frames:
// - MJPEG over HTTP
// - ZeroMQ publisher
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends one frame. The frame must not be modified afterwards.
	WriteFrame(frame Frame) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Frame is one processed image handed to every output. JPEG is filled in
// once by the pump so outputs do not encode the same image twice.
type Frame struct {
	Image     *image.RGBA
	JPEG      []byte
	Seq       uint64
	Timestamp time.Time
}

// Config holds common configuration for all output types
type Config struct {
	CameraIndex int
	FPS         int
	Quality     int
}

// DefaultQuality is used when Config.Quality is out of range
const DefaultQuality = 80

func (c Config) quality() int {
	if c.Quality < 1 || c.Quality > 100 {
		return DefaultQuality
	}
	return c.Quality
}

// EncodeJPEG encodes img at quality into a fresh buffer
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}
