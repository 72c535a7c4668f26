// Package overlay draws configured widgets onto streamed frames.
package overlay

import (
	"image"
	"image/color"
	"time"
)

// Widget is one overlay element
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name used in configuration
	Type() string

	// Render draws the widget onto img. now is the frame time.
	Render(img *image.RGBA, now time.Time) error

	// Config returns the widget's configuration as a map
	Config() map[string]interface{}

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool
}

// BaseWidget holds the settings every widget shares
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64
}

func newBaseWidget(id string) BaseWidget {
	return BaseWidget{id: id, enabled: true, opacity: 1.0}
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// Position returns the widget's top-left corner
func (w *BaseWidget) Position() (int, int) {
	return w.x, w.y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	return w.opacity
}

func (w *BaseWidget) apply(cfg map[string]interface{}) {
	if v, ok := cfg["x"]; ok {
		w.x = toInt(v)
	}
	if v, ok := cfg["y"]; ok {
		w.y = toInt(v)
	}
	if v, ok := cfg["opacity"]; ok {
		w.opacity = clamp01(toFloat(v))
	}
	if v, ok := cfg["enabled"].(bool); ok {
		w.enabled = v
	}
}

func (w *BaseWidget) config(kind string) map[string]interface{} {
	return map[string]interface{}{
		"id":      w.id,
		"type":    kind,
		"enabled": w.enabled,
		"x":       w.x,
		"y":       w.y,
		"opacity": w.opacity,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// toInt accepts the numeric types YAML and JSON decoding produce
func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// toColor reads {r,g,b,a}; a missing alpha means opaque
func toColor(v interface{}, fallback color.RGBA) color.RGBA {
	m, ok := v.(map[string]interface{})
	if !ok {
		return fallback
	}
	c := color.RGBA{
		R: uint8(toInt(m["r"])),
		G: uint8(toInt(m["g"])),
		B: uint8(toInt(m["b"])),
		A: 255,
	}
	if a, ok := m["a"]; ok {
		c.A = uint8(toInt(a))
	}
	return c
}

func colorConfig(c color.RGBA) map[string]interface{} {
	return map[string]interface{}{"r": c.R, "g": c.G, "b": c.B, "a": c.A}
}

// BlendImage composites src onto dst with its top-left corner at (x, y),
// scaling the source alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	sb := src.Bounds()
	target := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if target.Empty() || opacity <= 0 {
		return
	}
	op := uint32(clamp01(opacity) * 255)

	for dy := target.Min.Y; dy < target.Max.Y; dy++ {
		for dx := target.Min.X; dx < target.Max.X; dx++ {
			si := src.PixOffset(sb.Min.X+dx-x, sb.Min.Y+dy-y)
			sa := uint32(src.Pix[si+3]) * op / 255
			if sa == 0 {
				continue
			}
			di := dst.PixOffset(dx, dy)
			inv := 255 - sa
			// src is premultiplied, so scale every channel by op
			for c := 0; c < 3; c++ {
				s := uint32(src.Pix[si+c]) * op / 255
				dst.Pix[di+c] = uint8(s + uint32(dst.Pix[di+c])*inv/255)
			}
			dst.Pix[di+3] = uint8(sa + uint32(dst.Pix[di+3])*inv/255)
		}
	}
}
