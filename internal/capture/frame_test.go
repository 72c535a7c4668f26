package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePixelFormat(t *testing.T) {
	tests := map[string]PixelFormat{
		"I420":    PixelFormatI420,
		"yuv420p": PixelFormatI420,
		"NV12":    PixelFormatNV12,
		"rgb24":   PixelFormatRGB24,
		"BGR":     PixelFormatBGR24,
		"RGBA":    PixelFormatRGBA,
		"YUY2":    PixelFormatUnknown,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParsePixelFormat(in))
		})
	}
}

func TestI420Layout(t *testing.T) {
	t.Run("packed", func(t *testing.T) {
		strides, offsets, size := I420Layout(5, 3, 1)
		assert.Equal(t, [3]int{5, 3, 3}, strides)
		assert.Equal(t, [3]int{0, 15, 21}, offsets)
		assert.Equal(t, 27, size)
	})

	t.Run("aligned", func(t *testing.T) {
		strides, offsets, size := I420Layout(5, 3, 4)
		assert.Equal(t, [3]int{8, 4, 4}, strides)
		// luma padded to 4 rows
		assert.Equal(t, [3]int{0, 32, 40}, offsets)
		assert.Equal(t, 48, size)
	})

	t.Run("even sizes need no padding", func(t *testing.T) {
		_, _, size := I420Layout(640, 480, 4)
		assert.Equal(t, 640*480*3/2, size)
	})
}

func TestSplitI420(t *testing.T) {
	planes, strides, err := SplitI420(make([]byte, 6), 2, 2, 1)
	require.NoError(t, err)
	require.Len(t, planes, 3)
	assert.Equal(t, []int{2, 1, 1}, strides)
	assert.Len(t, planes[0], 4)
	assert.Len(t, planes[1], 1)
	assert.Len(t, planes[2], 1)

	_, _, err = SplitI420(make([]byte, 5), 2, 2, 1)
	assert.Error(t, err)
}

func TestFrameValidate(t *testing.T) {
	planes, strides, err := SplitI420(make([]byte, 6), 2, 2, 1)
	require.NoError(t, err)

	f := Frame{Width: 2, Height: 2, Format: PixelFormatI420, Planes: planes, Strides: strides}
	assert.NoError(t, f.Validate())

	short := f
	short.Planes = [][]byte{planes[0], planes[1], nil}
	assert.Error(t, short.Validate())

	missing := f
	missing.Planes = planes[:2]
	assert.Error(t, missing.Validate())

	rgba := Frame{Width: 2, Height: 2, Format: PixelFormatRGBA, Planes: [][]byte{make([]byte, 16)}, Strides: []int{8}}
	assert.NoError(t, rgba.Validate())

	rgba.Strides = []int{4}
	assert.Error(t, rgba.Validate())

	assert.Error(t, Frame{Width: 0, Height: 2, Format: PixelFormatRGBA}.Validate())
	assert.Error(t, Frame{Width: 2, Height: 2}.Validate())
}
