package capture

import (
	"fmt"
	"strings"
	"time"
)

// PixelFormat identifies the memory layout of a decoded frame
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420
	PixelFormatNV12
	PixelFormatRGB24
	PixelFormatBGR24
	PixelFormatRGBA
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGB24:
		return "RGB24"
	case PixelFormatBGR24:
		return "BGR24"
	case PixelFormatRGBA:
		return "RGBA"
	default:
		return "unknown"
	}
}

// ParsePixelFormat accepts both GStreamer caps names and ffmpeg pix_fmt names
func ParsePixelFormat(s string) PixelFormat {
	switch strings.ToLower(s) {
	case "i420", "yuv420p", "yuvj420p":
		return PixelFormatI420
	case "nv12":
		return PixelFormatNV12
	case "rgb", "rgb24":
		return PixelFormatRGB24
	case "bgr", "bgr24":
		return PixelFormatBGR24
	case "rgba":
		return PixelFormatRGBA
	default:
		return PixelFormatUnknown
	}
}

// Size is a frame resolution in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports whether either dimension is unset
func (s Size) IsZero() bool {
	return s.Width <= 0 || s.Height <= 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Decode error bits carried in Frame.DecodeErrorFlags. The values follow
// libavcodec's FF_DECODE_ERROR_* so backends built on other libraries map
// their corruption signals onto the same vocabulary.
const (
	DecodeErrorInvalidBitstream  uint32 = 1
	DecodeErrorMissingReference  uint32 = 2
	DecodeErrorConcealmentActive uint32 = 4
	DecodeErrorDecodeSlices      uint32 = 8
)

// Frame bits carried in Frame.Flags, following AV_FRAME_FLAG_*
const (
	FrameFlagCorrupt uint32 = 1
	FrameFlagKey     uint32 = 2
	FrameFlagDiscard uint32 = 4
)

// Frame is one decoded picture as handed over by a Backend. Planes may alias
// backend memory and are only valid until the next ReadFrame call.
type Frame struct {
	Width            int
	Height           int
	Format           PixelFormat
	Planes           [][]byte
	Strides          []int
	Timestamp        time.Duration
	DecodeErrorFlags uint32
	Flags            uint32
}

// Size returns the frame resolution
func (f Frame) Size() Size {
	return Size{Width: f.Width, Height: f.Height}
}

// Validate checks that the planes are large enough for the declared layout
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}

	type plane struct{ rowBytes, rows int }
	var want []plane
	cw, ch := (f.Width+1)/2, (f.Height+1)/2

	switch f.Format {
	case PixelFormatI420:
		want = []plane{{f.Width, f.Height}, {cw, ch}, {cw, ch}}
	case PixelFormatNV12:
		want = []plane{{f.Width, f.Height}, {cw * 2, ch}}
	case PixelFormatRGB24, PixelFormatBGR24:
		want = []plane{{f.Width * 3, f.Height}}
	case PixelFormatRGBA:
		want = []plane{{f.Width * 4, f.Height}}
	default:
		return fmt.Errorf("unsupported pixel format %s", f.Format)
	}

	if len(f.Planes) < len(want) || len(f.Strides) < len(want) {
		return fmt.Errorf("%s frame needs %d planes, got %d", f.Format, len(want), len(f.Planes))
	}
	for i, p := range want {
		if f.Strides[i] < p.rowBytes {
			return fmt.Errorf("plane %d stride %d shorter than row %d", i, f.Strides[i], p.rowBytes)
		}
		need := f.Strides[i]*(p.rows-1) + p.rowBytes
		if len(f.Planes[i]) < need {
			return fmt.Errorf("plane %d holds %d bytes, need %d", i, len(f.Planes[i]), need)
		}
	}
	return nil
}

// I420Layout returns plane strides, plane offsets and total size of an I420
// picture stored in one contiguous buffer. align rounds every stride up to a
// multiple of align. align 1 is the packed ffmpeg rawvideo layout; larger
// alignments follow GStreamer, which also pads the luma plane to an even row
// count.
func I420Layout(width, height, align int) (strides [3]int, offsets [3]int, size int) {
	if align < 1 {
		align = 1
	}
	roundUp := func(v int) int { return (v + align - 1) / align * align }

	cw, ch := (width+1)/2, (height+1)/2
	strides[0] = roundUp(width)
	strides[1] = roundUp(cw)
	strides[2] = strides[1]

	lumaRows := height
	if align > 1 {
		lumaRows = (height + 1) &^ 1
	}

	offsets[0] = 0
	offsets[1] = strides[0] * lumaRows
	offsets[2] = offsets[1] + strides[1]*ch
	size = offsets[2] + strides[2]*ch
	return strides, offsets, size
}

// SplitI420 slices a contiguous I420 buffer into its three planes
func SplitI420(data []byte, width, height, align int) ([][]byte, []int, error) {
	strides, offsets, size := I420Layout(width, height, align)
	if len(data) < size {
		return nil, nil, fmt.Errorf("I420 buffer holds %d bytes, need %d", len(data), size)
	}
	planes := [][]byte{
		data[offsets[0]:offsets[1]],
		data[offsets[1]:offsets[2]],
		data[offsets[2]:size],
	}
	return planes, strides[:], nil
}
