package api

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargestFace(t *testing.T) {
	_, ok := LargestFace(nil)
	assert.False(t, ok)

	face, ok := LargestFace([]image.Rectangle{
		image.Rect(0, 0, 50, 50),
		image.Rect(100, 100, 180, 180),
		image.Rect(300, 0, 380, 60),
	})
	require.True(t, ok)
	assert.Equal(t, image.Rect(300, 0, 380, 60), face)
}

func TestPortraitRect(t *testing.T) {
	opts := DefaultPhotoOptions()
	frame := image.Rect(0, 0, 1920, 1080)

	tests := []struct {
		name  string
		frame image.Rectangle
		face  image.Rectangle
		want  image.Rectangle
	}{
		{
			// 400x400 grows to 600x600, then 3:4 makes it 450x600
			name:  "centred",
			frame: frame,
			face:  image.Rect(760, 340, 1160, 740),
			want:  image.Rect(735, 240, 1185, 840),
		},
		{
			name:  "shifted inside top left",
			frame: frame,
			face:  image.Rect(0, 0, 100, 100),
			want:  image.Rect(0, 0, 225, 300),
		},
		{
			// 70x80 grows to 270x280, then 210x280
			name:  "shifted inside bottom right",
			frame: frame,
			face:  image.Rect(1850, 1000, 1920, 1080),
			want:  image.Rect(1710, 800, 1920, 1080),
		},
		{
			name:  "capped at output width",
			frame: frame,
			face:  image.Rect(500, 100, 1200, 800),
			want:  image.Rect(513, 0, 1188, 900),
		},
		{
			// 375x500 does not fit a 480 high frame
			name:  "capped by frame height",
			frame: image.Rect(0, 0, 640, 480),
			face:  image.Rect(170, 90, 470, 390),
			want:  image.Rect(140, 0, 500, 480),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PortraitRect(tt.face, tt.frame, opts)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.In(tt.frame))
		})
	}
}

func TestPortraitResizesFace(t *testing.T) {
	img := gray(640, 480)
	photo, err := Portrait(img, &fakeDetector{faces: []image.Rectangle{image.Rect(200, 100, 300, 200)}}, DefaultPhotoOptions())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 720, 960), photo.Bounds())
	assert.InDelta(t, 128, int(photo.RGBAAt(360, 480).R), 1)
}
