package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func black(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
	return img
}

func changed(img *image.RGBA) int {
	n := 0
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0 || img.Pix[i+1] != 0 || img.Pix[i+2] != 0 {
			n++
		}
	}
	return n
}

func TestBlendImage(t *testing.T) {
	dst := black(4, 4)
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	draw.Draw(src, src.Bounds(), image.NewUniform(color.RGBA{R: 255, A: 255}), image.Point{}, draw.Src)

	BlendImage(dst, src, 1, 1, 0.5)
	assert.InDelta(t, 127, int(dst.RGBAAt(1, 1).R), 1)
	assert.Equal(t, uint8(255), dst.RGBAAt(1, 1).A)
	assert.Equal(t, uint8(0), dst.RGBAAt(0, 0).R)

	// clipped at the edge without panicking
	BlendImage(dst, src, 3, 3, 1)
	assert.Equal(t, uint8(255), dst.RGBAAt(3, 3).R)

	BlendImage(dst, src, 10, 10, 1)
	BlendImage(dst, src, -1, -1, 1)
	assert.Equal(t, uint8(255), dst.RGBAAt(0, 0).R)
}

func TestTextWidget(t *testing.T) {
	_, err := NewTextWidget("empty", map[string]interface{}{})
	assert.Error(t, err)

	w, err := NewTextWidget("label", map[string]interface{}{
		"text":       "CAM 1",
		"x":          2,
		"y":          float64(3),
		"opacity":    1.5,
		"background": map[string]interface{}{"r": 0, "g": 0, "b": 128},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, w.Opacity())
	x, y := w.Position()
	assert.Equal(t, 2, x)
	assert.Equal(t, 3, y)

	img := black(80, 30)
	require.NoError(t, w.Render(img, time.Now()))
	assert.Greater(t, changed(img), 0)
	assert.Equal(t, uint8(0), img.RGBAAt(0, 0).B)

	cfg := w.Config()
	assert.Equal(t, "text", cfg["type"])
	assert.Equal(t, "CAM 1", cfg["text"])
	assert.NotNil(t, cfg["background"])
}

func TestClockWidget(t *testing.T) {
	w, err := NewClockWidget("clock", map[string]interface{}{
		"time_format": "15:04",
		"timezone":    "UTC",
	})
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 13, 7, 0, 0, time.UTC)
	assert.Equal(t, "13:07", w.Text(at))

	_, err = NewClockWidget("bad", map[string]interface{}{"timezone": "Nowhere/Else"})
	assert.Error(t, err)

	d, err := NewClockWidget("default", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeFormat, d.Config()["time_format"])
}

func TestManagerLoadAndRender(t *testing.T) {
	m := NewManager(zerolog.Nop())
	n := m.LoadFromConfig([]map[string]interface{}{
		{"type": "text", "id": "title", "text": "front door"},
		{"type": "clock", "y": 20},
		{"type": "github-actions", "id": "ci"},
		{"type": "text", "id": "title", "text": "duplicate"},
	})
	assert.Equal(t, 2, n)

	widgets := m.Widgets()
	require.Len(t, widgets, 2)
	assert.Equal(t, "title", widgets[0].ID())
	assert.Equal(t, "clock-1", widgets[1].ID())
	assert.Len(t, m.ExportConfig(), 2)

	img := black(200, 50)
	m.Render(img, time.Now())
	assert.Greater(t, changed(img), 0)

	m.SetEnabled(false)
	img = black(200, 50)
	m.Render(img, time.Now())
	assert.Zero(t, changed(img))

	require.NoError(t, m.RemoveWidget("title"))
	assert.Error(t, m.RemoveWidget("title"))
	m.Clear()
	assert.Empty(t, m.Widgets())
}

func TestDisabledWidgetSkipped(t *testing.T) {
	m := NewManager(zerolog.Nop())
	w, err := NewTextWidget("off", map[string]interface{}{"text": "hidden", "enabled": false})
	require.NoError(t, err)
	require.NoError(t, m.AddWidget(w))

	img := black(80, 30)
	m.Render(img, time.Now())
	assert.Zero(t, changed(img))
}
