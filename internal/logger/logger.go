package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Options configures the logger built by New
type Options struct {
	Level  string
	Pretty bool

	// Dir enables the rolling file sink when non-empty
	Dir        string
	FilePrefix string
	MaxAgeDays int

	// Console defaults to os.Stdout
	Console io.Writer
}

// Sink owns the rolling log file and its daily rotation timer
type Sink struct {
	file *lumberjack.Logger
	stop chan struct{}
	once sync.Once
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New builds a logger writing to the console and, when opts.Dir is set, to a
// file rotated daily. The returned Sink is nil when no file sink was requested.
func New(opts Options) (zerolog.Logger, *Sink, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	var output io.Writer = console
	if opts.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        console,
			TimeFormat: time.RFC3339,
			NoColor:    false,
		}
	}

	var sink *Sink
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		prefix := opts.FilePrefix
		if prefix == "" {
			prefix = "camserver"
		}
		maxAge := opts.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 14
		}

		sink = &Sink{
			file: &lumberjack.Logger{
				Filename:  filepath.Join(opts.Dir, prefix+".log"),
				MaxAge:    maxAge,
				LocalTime: true,
			},
			stop: make(chan struct{}),
		}
		go sink.rotateDaily()

		output = zerolog.MultiLevelWriter(output, sink.file)
	}

	l := zerolog.New(output).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Logger()

	return l, sink, nil
}

// WithComponent returns a child logger with a component field set
func WithComponent(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}

// Close stops the rotation timer and closes the log file
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.file.Close()
	})
	return err
}

func (s *Sink) rotateDaily() {
	for {
		timer := time.NewTimer(untilMidnight(time.Now()))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
			_ = s.file.Rotate()
		}
	}
}

func untilMidnight(now time.Time) time.Duration {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
