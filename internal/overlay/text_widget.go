package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// label is a padded line of text with an optional background
type label struct {
	BaseWidget
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

func newLabel(id string) label {
	return label{
		BaseWidget: newBaseWidget(id),
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}
}

func (l *label) apply(cfg map[string]interface{}) {
	l.BaseWidget.apply(cfg)
	if v, ok := cfg["padding"]; ok {
		l.padding = toInt(v)
	}
	if v, ok := cfg["color"]; ok {
		l.textColor = toColor(v, l.textColor)
	}
	if v, ok := cfg["background"]; ok {
		bg := toColor(v, color.RGBA{0, 0, 0, 160})
		l.bgColor = &bg
	}
}

func (l *label) config(kind string) map[string]interface{} {
	cfg := l.BaseWidget.config(kind)
	cfg["padding"] = l.padding
	cfg["color"] = colorConfig(l.textColor)
	if l.bgColor != nil {
		cfg["background"] = colorConfig(*l.bgColor)
	}
	return cfg
}

// draw renders text into a scratch image and blends it onto img
func (l *label) draw(img *image.RGBA, text string) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	lineHeight := metrics.Height.Ceil()

	width := font.MeasureString(face, text).Ceil() + l.padding*2
	height := lineHeight + l.padding*2

	tile := image.NewRGBA(image.Rect(0, 0, width, height))
	if l.bgColor != nil {
		draw.Draw(tile, tile.Bounds(), image.NewUniform(*l.bgColor), image.Point{}, draw.Src)
	}
	d := &font.Drawer{
		Dst:  tile,
		Src:  image.NewUniform(l.textColor),
		Face: face,
		Dot:  fixed.P(l.padding, l.padding+ascent),
	}
	d.DrawString(text)

	BlendImage(img, tile, l.x, l.y, l.opacity)
}

// TextWidget displays a fixed string
type TextWidget struct {
	label
	text string
}

// NewTextWidget creates a text widget from its configuration
func NewTextWidget(id string, cfg map[string]interface{}) (*TextWidget, error) {
	w := &TextWidget{label: newLabel(id)}
	w.label.apply(cfg)
	if text, ok := cfg["text"].(string); ok {
		w.text = text
	}
	if w.text == "" {
		return nil, fmt.Errorf("text widget requires non-empty text")
	}
	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string { return "text" }

// Text returns the displayed string
func (w *TextWidget) Text() string { return w.text }

// Render draws the text
func (w *TextWidget) Render(img *image.RGBA, now time.Time) error {
	w.draw(img, w.text)
	return nil
}

// Config returns the widget configuration
func (w *TextWidget) Config() map[string]interface{} {
	cfg := w.label.config(w.Type())
	cfg["text"] = w.text
	return cfg
}

// DefaultTimeFormat is used by clock widgets without a time_format
const DefaultTimeFormat = "2006-01-02 15:04:05"

// ClockWidget displays the frame time
type ClockWidget struct {
	label
	format string
	loc    *time.Location
}

// NewClockWidget creates a clock widget. time_format is a Go layout and
// timezone an IANA name; both are optional.
func NewClockWidget(id string, cfg map[string]interface{}) (*ClockWidget, error) {
	w := &ClockWidget{label: newLabel(id), format: DefaultTimeFormat, loc: time.Local}
	w.label.apply(cfg)
	if f, ok := cfg["time_format"].(string); ok && f != "" {
		w.format = f
	}
	if tz, ok := cfg["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		w.loc = loc
	}
	return w, nil
}

// Type returns the widget type
func (w *ClockWidget) Type() string { return "clock" }

// Text returns what the widget shows at t
func (w *ClockWidget) Text(t time.Time) string {
	return t.In(w.loc).Format(w.format)
}

// Render draws the formatted time
func (w *ClockWidget) Render(img *image.RGBA, now time.Time) error {
	w.draw(img, w.Text(now))
	return nil
}

// Config returns the widget configuration
func (w *ClockWidget) Config() map[string]interface{} {
	cfg := w.label.config(w.Type())
	cfg["time_format"] = w.format
	cfg["timezone"] = w.loc.String()
	return cfg
}
