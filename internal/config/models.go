package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/camserver/internal/capture"
)

// Config is the service settings file
type Config struct {
	ServerHost string `json:"server_host" yaml:"server_host"`
	BasePort   int    `json:"base_port" yaml:"base_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	Log      LogConfig         `json:"log" yaml:"log"`
	Cameras  CamerasConfig     `json:"cameras" yaml:"cameras"`
	Capture  CaptureConfig     `json:"capture" yaml:"capture"`
	Classify capture.Sentinels `json:"classify" yaml:"classify"`
	Stream   StreamConfig      `json:"stream" yaml:"stream"`
	Overlay  OverlayConfig     `json:"overlay" yaml:"overlay"`
	Publish  PublishConfig     `json:"publish" yaml:"publish"`
	Photo    PhotoConfig       `json:"photo" yaml:"photo"`
	Generate GenerateConfig    `json:"generate" yaml:"generate"`
}

// LogConfig controls the rolling log file
type LogConfig struct {
	File       bool   `json:"file" yaml:"file"`
	Dir        string `json:"dir" yaml:"dir"`
	Pretty     bool   `json:"pretty" yaml:"pretty"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

// CamerasConfig locates the camera document and selects how an index is
// resolved against it
type CamerasConfig struct {
	Path   string     `json:"path" yaml:"path"`
	Lookup LookupMode `json:"lookup" yaml:"lookup"`
}

// CaptureConfig selects the decode backend and the controller timings
type CaptureConfig struct {
	Backend        string        `json:"backend" yaml:"backend"`
	HWAccel        string        `json:"hw_accel" yaml:"hw_accel"`
	OpenRetry      time.Duration `json:"open_retry" yaml:"open_retry"`
	RecoveryRetry  time.Duration `json:"recovery_retry" yaml:"recovery_retry"`
	FirstFramePoll time.Duration `json:"first_frame_poll" yaml:"first_frame_poll"`
	DecodeTick     time.Duration `json:"decode_tick" yaml:"decode_tick"`
	FFmpegPath     string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
}

// StreamConfig controls the MJPEG live stream
type StreamConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	FPS     int  `json:"fps" yaml:"fps"`
	Quality int  `json:"quality" yaml:"quality"`
}

// OverlayConfig represents overlay configuration
type OverlayConfig struct {
	Enabled bool                     `json:"enabled" yaml:"enabled"`
	Widgets []map[string]interface{} `json:"widgets" yaml:"widgets"`
}

// PublishConfig controls the ZeroMQ frame publisher
type PublishConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// PhotoConfig controls the face-cropped portrait served by /takephoto
type PhotoConfig struct {
	Cascade string `json:"cascade" yaml:"cascade"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	Margin  int    `json:"margin" yaml:"margin"`
}

// GenerateConfig drives `camserver make`
type GenerateConfig struct {
	Width     int        `json:"width" yaml:"width"`
	Height    int        `json:"height" yaml:"height"`
	Rules     []NameRule `json:"rules" yaml:"rules"`
	NextIndex int        `json:"next_index" yaml:"next_index"`
}

// ServicePort returns the HTTP port for a camera index
func (c *Config) ServicePort(index int) int {
	return c.BasePort + index
}

// Manager handles configuration
type Manager struct {
	configPath string
	config     *Config
	log        zerolog.Logger
	mu         sync.RWMutex
}

// DefaultPath returns ~/.config/camserver/config.yaml
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "camserver", "config.yaml"), nil
}

// NewManager loads configFile, or the default path when empty, creating it
// with defaults if it does not exist
func NewManager(configFile string, log zerolog.Logger) (*Manager, error) {
	actualConfigPath := configFile
	if actualConfigPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		actualConfigPath = p
	}

	m := &Manager{
		configPath: actualConfigPath,
		log:        log,
	}

	if err := m.load(); err != nil {
		if os.IsNotExist(err) {
			m.log.Info().
				Str("path", m.configPath).
				Msg("Config file not found, creating new config")
			m.config = getDefaults()
			if err := m.Save(); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	m.log.Debug().
		Str("path", m.configPath).
		Msg("Config loaded")

	return m, nil
}

// getDefaults returns default configuration
func getDefaults() *Config {
	return &Config{
		ServerHost: "127.0.0.1",
		BasePort:   9000,
		LogLevel:   "info",
		Log: LogConfig{
			File:       true,
			Dir:        "log",
			Pretty:     true,
			MaxAgeDays: 14,
		},
		Cameras: CamerasConfig{
			Path:   filepath.Join("Config", "CameraInfo.json"),
			Lookup: LookupByIndex,
		},
		Capture: CaptureConfig{
			Backend:        "gstreamer",
			OpenRetry:      5 * time.Second,
			RecoveryRetry:  time.Second,
			FirstFramePoll: 10 * time.Millisecond,
			DecodeTick:     capture.DefaultDecodeTick,
			FFmpegPath:     "ffmpeg",
		},
		Classify: capture.DefaultSentinels(),
		Stream: StreamConfig{
			Enabled: true,
			FPS:     15,
			Quality: 80,
		},
		Overlay: OverlayConfig{
			Enabled: false,
			Widgets: []map[string]interface{}{},
		},
		Publish: PublishConfig{
			Enabled:  false,
			Endpoint: "tcp://*:5555",
		},
		Photo: PhotoConfig{
			Width:  720,
			Height: 960,
			Margin: 200,
		},
		Generate: GenerateConfig{
			Width:     1280,
			Height:    720,
			Rules:     DefaultNameRules(),
			NextIndex: 2,
		},
	}
}

// Defaults returns a fresh copy of the built-in settings
func Defaults() *Config {
	return getDefaults()
}

// load reads the configuration from disk. Keys missing from the file keep
// their default values.
func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	cfg := getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Overlay.Widgets == nil {
		cfg.Overlay.Widgets = []map[string]interface{}{}
	}
	if cfg.Cameras.Lookup == "" {
		cfg.Cameras.Lookup = LookupByIndex
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config == nil {
		return getDefaults()
	}

	cfg := *m.config
	cfg.Generate.Rules = append([]NameRule(nil), m.config.Generate.Rules...)
	cfg.Overlay.Widgets = append([]map[string]interface{}(nil), m.config.Overlay.Widgets...)
	return &cfg
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := m.config
	m.mu.RUnlock()

	if cfg == nil {
		cfg = getDefaults()
	}

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		m.log.Error().
			Err(err).
			Str("config_dir", configDir).
			Msg("Failed to create config directory")
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		m.log.Error().
			Err(err).
			Str("path", m.configPath).
			Msg("Failed to write config")
		return err
	}

	m.log.Debug().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}

// Update replaces the entire configuration
func (m *Manager) Update(cfg *Config) error {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return m.Save()
}

// viper returns the current configuration loaded into a fresh viper
// instance so dotted keys can be read and written
func (m *Manager) viper() (*viper.Viper, error) {
	data, err := yaml.Marshal(m.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return v, nil
}

// GetValue returns the value at a dotted key such as capture.backend
func (m *Manager) GetValue(key string) (interface{}, error) {
	v, err := m.viper()
	if err != nil {
		return nil, err
	}
	if !v.IsSet(key) {
		return nil, fmt.Errorf("configuration key not found: %s", key)
	}
	return v.Get(key), nil
}

// SetValue parses raw as a YAML scalar, stores it at key and saves
func (m *Manager) SetValue(key, raw string) error {
	v, err := m.viper()
	if err != nil {
		return err
	}
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	var value interface{}
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("invalid value %q: %w", raw, err)
	}
	v.Set(key, value)

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	cfg := getDefaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return m.Update(cfg)
}

// ApplyOverrides copies flag and environment overrides bound in v over the
// loaded settings without saving them
func (m *Manager) ApplyOverrides(v *viper.Viper) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.config == nil {
		m.config = getDefaults()
	}

	if v.IsSet("base_port") {
		if port := v.GetInt("base_port"); port > 0 {
			m.config.BasePort = port
		}
	}
	if v.IsSet("log_level") {
		if level := v.GetString("log_level"); level != "" {
			m.config.LogLevel = level
		}
	}
	if v.IsSet("server_host") {
		if host := v.GetString("server_host"); host != "" {
			m.config.ServerHost = host
		}
	}
	if v.IsSet("cameras.path") {
		if path := v.GetString("cameras.path"); path != "" {
			m.config.Cameras.Path = path
		}
	}
	if v.IsSet("cameras.lookup") {
		if mode := v.GetString("cameras.lookup"); mode != "" {
			m.config.Cameras.Lookup = LookupMode(mode)
		}
	}
	if v.IsSet("capture.backend") {
		if backend := v.GetString("capture.backend"); backend != "" {
			m.config.Capture.Backend = backend
		}
	}
	if v.IsSet("capture.hw_accel") {
		m.config.Capture.HWAccel = v.GetString("capture.hw_accel")
	}
}

// Validate checks values that would otherwise fail later at startup
func (c *Config) Validate() error {
	switch c.Cameras.Lookup {
	case LookupByIndex, LookupByPosition:
	default:
		return fmt.Errorf("invalid cameras.lookup %q (use index or position)", c.Cameras.Lookup)
	}
	switch strings.ToLower(c.Capture.Backend) {
	case "gstreamer", "ffmpeg":
	default:
		return fmt.Errorf("invalid capture.backend %q (use gstreamer or ffmpeg)", c.Capture.Backend)
	}
	if c.BasePort <= 0 || c.BasePort > 65535 {
		return fmt.Errorf("invalid base_port %d", c.BasePort)
	}
	return nil
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// GetConfigDir returns the config directory path
func (m *Manager) GetConfigDir() string {
	return filepath.Dir(m.configPath)
}
