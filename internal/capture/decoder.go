package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/bryanchriswhite/camserver/internal/platform"
	"github.com/rs/zerolog"
)

// Decoder opens one capture source through a Backend and hands out decoded
// frames. It tracks the native stream geometry and the target resolution the
// session converts to.
type Decoder struct {
	backend  Backend
	platform platform.Platform
	hwAccel  string
	log      zerolog.Logger

	mu         sync.RWMutex
	connected  bool
	source     Source
	info       StreamInfo
	resolution Size
}

// DecoderOptions configures a Decoder
type DecoderOptions struct {
	Platform platform.Platform
	HWAccel  string
	Logger   zerolog.Logger
}

// NewDecoder creates a decoder around backend
func NewDecoder(backend Backend, opts DecoderOptions) *Decoder {
	return &Decoder{
		backend:  backend,
		platform: opts.Platform,
		hwAccel:  opts.HWAccel,
		log:      opts.Logger.With().Str("backend", backend.Name()).Logger(),
	}
}

// SetResolution sets the output size frames are converted to. A zero size
// means the native size is used once the source is opened.
func (d *Decoder) SetResolution(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resolution = Size{Width: width, Height: height}
}

// Connect opens sourceName. Local devices get the platform prefix token and
// capture format; network sources get NetworkOptions.
func (d *Decoder) Connect(ctx context.Context, sourceName string, isLocalDevice bool) error {
	d.Disconnect()

	src := d.buildSource(sourceName, isLocalDevice)
	d.log.Debug().
		Str("source", src.Name).
		Bool("local", src.Local).
		Str("input_format", src.InputFormat).
		Msg("Connecting decoder")

	info, err := d.backend.Open(ctx, src)
	if err != nil {
		_ = d.backend.Close()
		return fmt.Errorf("failed to open %s: %w", sourceName, err)
	}
	if info.Native.IsZero() || info.Format == PixelFormatUnknown {
		_ = d.backend.Close()
		return fmt.Errorf("failed to open %s: %w", sourceName, ErrNoVideoStream)
	}

	d.mu.Lock()
	d.connected = true
	d.source = src
	d.info = info
	if d.resolution.IsZero() {
		d.resolution = info.Native
	}
	d.mu.Unlock()

	return nil
}

func (d *Decoder) buildSource(name string, local bool) Source {
	src := Source{Local: local, HWAccel: d.hwAccel}
	if local {
		src.Name = d.platform.LocalSourceName(name)
		src.InputFormat = d.platform.InputFormatID
		return src
	}
	src.Name = name
	src.Options = append([]Option(nil), NetworkOptions...)
	return src
}

// TryDecodeNextFrame returns the next decoded video frame. "Need more input"
// conditions are retried here; every other backend error is returned and
// means the stream cannot continue.
func (d *Decoder) TryDecodeNextFrame(ctx context.Context) (Frame, error) {
	d.mu.RLock()
	connected := d.connected
	d.mu.RUnlock()
	if !connected {
		return Frame{}, ErrNotConnected
	}

	for {
		frame, err := d.backend.ReadFrame(ctx)
		if err == nil {
			return frame, nil
		}
		if !errors.Is(err, ErrAgain) {
			return Frame{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Frame{}, ctxErr
		}
	}
}

// Disconnect releases the backend. Safe to call on an unopened decoder and
// safe to call more than once.
func (d *Decoder) Disconnect() {
	d.mu.Lock()
	wasConnected := d.connected
	d.connected = false
	d.mu.Unlock()

	if !wasConnected {
		return
	}
	if err := d.backend.Close(); err != nil {
		d.log.Warn().Err(err).Msg("Failed to close decoder backend")
	}
}

// Probe checks that sourceName can be opened as video without keeping it
func (d *Decoder) Probe(ctx context.Context, sourceName string, isLocalDevice bool) error {
	return d.backend.Probe(ctx, d.buildSource(sourceName, isLocalDevice))
}

// IsConnected reports whether Connect succeeded and Disconnect was not called
func (d *Decoder) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// FrameSize returns the native size of the selected stream
func (d *Decoder) FrameSize() Size {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.Native
}

// PixelFormat returns the pixel format frames are decoded to
func (d *Decoder) PixelFormat() PixelFormat {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info.Format
}

// Resolution returns the target output size
func (d *Decoder) Resolution() Size {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.resolution
}

// ContextInfo returns stream metadata merged with the decoder's own view of
// the source, for diagnostics
func (d *Decoder) ContextInfo() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	info := make(map[string]string, len(d.info.Metadata)+6)
	for k, v := range d.info.Metadata {
		info[k] = v
	}
	info["backend"] = d.backend.Name()
	info["source"] = d.source.Name
	info["local"] = strconv.FormatBool(d.source.Local)
	info["native_size"] = d.info.Native.String()
	info["pixel_format"] = d.info.Format.String()
	info["target_size"] = d.resolution.String()
	if d.info.Codec != "" {
		info["codec"] = d.info.Codec
	}
	if d.source.HWAccel != "" {
		info["hw_accel"] = d.source.HWAccel
	}
	return info
}

// SortedKeys returns the keys of m in lexical order
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
