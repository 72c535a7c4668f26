package capture

import (
	"context"
)

// Option is one demuxer/transport option applied when opening a source
type Option struct {
	Key   string
	Value string
}

// NetworkOptions is the low-latency option set applied to every network
// source. Values use ffmpeg units: microseconds for time, bytes for sizes.
var NetworkOptions = []Option{
	{Key: "rtsp_transport", Value: "tcp"},
	{Key: "fflags", Value: "nobuffer"},
	{Key: "flags", Value: "low_delay"},
	{Key: "flush_packets", Value: "1"},
	{Key: "analyzeduration", Value: "250000"},
	{Key: "max_delay", Value: "5000000"},
	{Key: "timeout", Value: "5000000"},
	{Key: "buffer_size", Value: "400000000"},
	{Key: "probesize", Value: "4096"},
	{Key: "max_probe_packets", Value: "64"},
}

// Source describes what a Backend should open
type Source struct {
	// Name is the device or URL, already normalized and prefixed
	Name string

	// Local is true for attached devices, false for network streams
	Local bool

	// InputFormat is the platform capture format for local devices
	InputFormat string

	// Options holds NetworkOptions for network sources
	Options []Option

	// HWAccel names the single hardware decode device to use, empty for none
	HWAccel string
}

// Option returns the value of a named option
func (s Source) Option(key string) (string, bool) {
	for _, o := range s.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// StreamInfo is what a Backend learned about the selected video stream
type StreamInfo struct {
	Native   Size
	Format   PixelFormat
	Codec    string
	Metadata map[string]string
}

// Backend is the seam to the library that demuxes and decodes a source.
// A Backend instance serves one source at a time and is not safe for
// concurrent use; Close may be called from another goroutine to unblock a
// pending ReadFrame.
type Backend interface {
	// Name identifies the implementation in logs
	Name() string

	// Open connects to the source and selects its best video stream
	Open(ctx context.Context, src Source) (StreamInfo, error)

	// ReadFrame returns the next decoded video frame. ErrAgain means no
	// frame is ready yet; any other error is terminal for the stream.
	ReadFrame(ctx context.Context) (Frame, error)

	// Probe opens and immediately closes src to check it yields video
	Probe(ctx context.Context, src Source) error

	// Close releases everything Open acquired. Safe to call repeatedly.
	Close() error
}

// BackendFactory creates a fresh Backend for each decoder
type BackendFactory func() Backend
