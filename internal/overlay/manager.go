package overlay

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Manager holds the configured widgets in drawing order
type Manager struct {
	widgets []Widget
	enabled bool
	log     zerolog.Logger
	mu      sync.RWMutex
}

// NewManager creates an empty, enabled overlay
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		enabled: true,
		log:     log,
	}
}

// AddWidget appends a widget; later widgets draw on top
func (m *Manager) AddWidget(widget Widget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}

	m.widgets = append(m.widgets, widget)
	m.log.Info().
		Str("widget", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added overlay widget")
	return nil
}

// RemoveWidget removes a widget by ID
func (m *Manager) RemoveWidget(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, w := range m.widgets {
		if w.ID() == id {
			m.widgets = append(m.widgets[:i], m.widgets[i+1:]...)
			m.log.Info().Str("widget", id).Msg("Removed overlay widget")
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// Widgets returns the widgets in drawing order
func (m *Manager) Widgets() []Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Widget(nil), m.widgets...)
}

// SetEnabled enables or disables the entire overlay
func (m *Manager) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// IsEnabled returns whether the overlay is enabled
func (m *Manager) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Render draws every enabled widget onto img. Widget errors are logged and
// do not stop the others.
func (m *Manager) Render(img *image.RGBA, now time.Time) {
	if !m.IsEnabled() {
		return
	}
	for _, widget := range m.Widgets() {
		if !widget.IsEnabled() {
			continue
		}
		if err := widget.Render(img, now); err != nil {
			m.log.Warn().Err(err).Str("widget", widget.ID()).Msg("Failed to render widget")
		}
	}
}

// CreateWidget creates a widget instance from configuration
func CreateWidget(widgetType, id string, cfg map[string]interface{}) (Widget, error) {
	var (
		widget Widget
		err    error
	)
	switch widgetType {
	case "text":
		widget, err = NewTextWidget(id, cfg)
	case "clock":
		widget, err = NewClockWidget(id, cfg)
	default:
		return nil, fmt.Errorf("unknown widget type: %s", widgetType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s widget: %w", widgetType, err)
	}
	return widget, nil
}

// LoadFromConfig creates widgets from configuration entries. Broken entries
// are skipped with a warning; the count of loaded widgets is returned.
func (m *Manager) LoadFromConfig(configs []map[string]interface{}) int {
	loaded := 0
	for i, cfg := range configs {
		widgetType, _ := cfg["type"].(string)
		id, _ := cfg["id"].(string)
		if id == "" {
			id = fmt.Sprintf("%s-%d", widgetType, i)
		}

		widget, err := CreateWidget(widgetType, id, cfg)
		if err != nil {
			m.log.Warn().Err(err).Str("widget", id).Msg("Skipping overlay widget")
			continue
		}
		if err := m.AddWidget(widget); err != nil {
			m.log.Warn().Err(err).Str("widget", id).Msg("Skipping overlay widget")
			continue
		}
		loaded++
	}
	return loaded
}

// ExportConfig returns every widget's configuration in drawing order
func (m *Manager) ExportConfig() []map[string]interface{} {
	widgets := m.Widgets()
	configs := make([]map[string]interface{}, 0, len(widgets))
	for _, w := range widgets {
		configs = append(configs, w.Config())
	}
	return configs
}

// Clear removes all widgets
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets = nil
}
