package output

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/mattn/go-mjpeg"
	"github.com/rs/zerolog"
)

// MJPEGOutput serves frames as a multipart Motion JPEG stream
type MJPEGOutput struct {
	config Config
	stream *mjpeg.Stream
	log    zerolog.Logger

	mu         sync.RWMutex
	running    bool
	frameCount uint64
	startTime  time.Time
	lastUpdate time.Time
	lastSeq    uint64
}

// NewMJPEGOutput creates a new MJPEG stream output
func NewMJPEGOutput(config Config, log zerolog.Logger) *MJPEGOutput {
	return &MJPEGOutput{
		config: config,
		stream: mjpeg.NewStream(),
		log:    log,
	}
}

// Start marks the output running. The HTTP handler is mounted separately.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output already running")
	}
	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	m.log.Info().
		Int("fps", m.config.FPS).
		Int("quality", m.config.quality()).
		Msg("MJPEG output started")
	return nil
}

// Stop marks the output stopped; connected clients keep the last frame
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.log.Info().Uint64("frames", m.frameCount).Msg("MJPEG output stopped")
	return nil
}

// WriteFrame pushes the frame's JPEG to every connected client
func (m *MJPEGOutput) WriteFrame(frame Frame) error {
	if !m.IsRunning() {
		return fmt.Errorf("MJPEG output not running")
	}

	data := frame.JPEG
	if data == nil {
		var err error
		if data, err = EncodeJPEG(frame.Image, m.config.quality()); err != nil {
			return err
		}
	}
	m.stream.Update(data)

	m.mu.Lock()
	m.frameCount++
	m.lastUpdate = time.Now()
	m.lastSeq = frame.Seq
	m.mu.Unlock()
	return nil
}

// Name returns the output type name
func (m *MJPEGOutput) Name() string {
	return "mjpeg"
}

// IsRunning returns true if the output is active
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Current returns the latest JPEG, or nil before the first frame
func (m *MJPEGOutput) Current() []byte {
	return m.stream.Current()
}

// StreamHandler serves the multipart stream
func (m *MJPEGOutput) StreamHandler() http.Handler {
	return m.stream
}

// SnapshotHandler serves the latest streamed frame as a single JPEG
func (m *MJPEGOutput) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := m.Current()
		if len(data) == 0 {
			http.Error(w, "no frame available", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Write(data)
	}
}

// Stats is a snapshot of stream counters
type Stats struct {
	Running    bool      `json:"running"`
	TargetFPS  int       `json:"target_fps"`
	ActualFPS  float64   `json:"actual_fps"`
	Frames     uint64    `json:"frames"`
	LastSeq    uint64    `json:"last_seq"`
	LastUpdate time.Time `json:"last_update"`
	Uptime     string    `json:"uptime"`
}

// Stats returns the current counters
func (m *MJPEGOutput) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Running:    m.running,
		TargetFPS:  m.config.FPS,
		Frames:     m.frameCount,
		LastSeq:    m.lastSeq,
		LastUpdate: m.lastUpdate,
	}
	if m.running && !m.startTime.IsZero() {
		elapsed := time.Since(m.startTime)
		if secs := elapsed.Seconds(); secs > 0 {
			s.ActualFPS = float64(m.frameCount) / secs
		}
		s.Uptime = elapsed.Round(time.Second).String()
	}
	return s
}

// StatsHandler serves Stats as JSON
func (m *MJPEGOutput) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.Stats())
	}
}
