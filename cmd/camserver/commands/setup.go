package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/capture/ffmpeg"
	"github.com/bryanchriswhite/camserver/internal/capture/gstreamer"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/device"
	"github.com/bryanchriswhite/camserver/internal/logger"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

// bootstrapLogger logs to stderr until the configured logger exists
func bootstrapLogger() zerolog.Logger {
	l, _, _ := logger.New(logger.Options{
		Level:   viper.GetString("log_level"),
		Pretty:  true,
		Console: os.Stderr,
	})
	return l
}

// loadConfig loads the settings file and applies flag and env overrides
func loadConfig(log zerolog.Logger) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	configMgr.ApplyOverrides(viper.GetViper())

	if err := configMgr.Get().Validate(); err != nil {
		return nil, err
	}
	return configMgr, nil
}

// newLogger builds the configured logger. filePrefix names the log file.
func newLogger(cfg *config.Config, filePrefix string) (zerolog.Logger, *logger.Sink, error) {
	opts := logger.Options{
		Level:      cfg.LogLevel,
		Pretty:     cfg.Log.Pretty,
		FilePrefix: filePrefix,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	}
	if cfg.Log.File {
		opts.Dir = cfg.Log.Dir
	}
	return logger.New(opts)
}

// backendFactory selects the decode backend named by capture.backend
func backendFactory(cfg *config.Config, p platform.Platform, log zerolog.Logger) (capture.BackendFactory, error) {
	switch strings.ToLower(cfg.Capture.Backend) {
	case "gstreamer":
		return gstreamer.Factory(gstreamer.Options{
			Platform: p,
			Logger:   logger.WithComponent(log, "gstreamer"),
		}), nil
	case "ffmpeg":
		return ffmpeg.Factory(ffmpeg.Options{
			Path:   cfg.Capture.FFmpegPath,
			Logger: logger.WithComponent(log, "ffmpeg"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown capture backend: %s", cfg.Capture.Backend)
	}
}

// listDevices enumerates attached video devices. Devices whose lister could
// not tell their media type are probed with the configured backend.
func listDevices(ctx context.Context, cfg *config.Config, p platform.Platform, log zerolog.Logger) ([]device.Entry, error) {
	factory, err := backendFactory(cfg, p, log)
	if err != nil {
		return nil, err
	}
	prober := capture.NewDecoder(factory(), capture.DecoderOptions{
		Platform: p,
		HWAccel:  cfg.Capture.HWAccel,
		Logger:   logger.WithComponent(log, "probe"),
	})

	enumerator := device.NewEnumerator(
		p.InputFormatID,
		device.DefaultListers(cfg.Capture.FFmpegPath),
		prober,
		logger.WithComponent(log, "device"),
	)
	return enumerator.List(ctx)
}

// generateCameras writes a fresh camera document from the attached devices
func generateCameras(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*config.CameraDocument, error) {
	p := platform.Current()
	entries, err := listDevices(ctx, cfg, p, log)
	if err != nil {
		return nil, err
	}

	doc := config.GenerateCameras(entries, cfg.Generate, cfg.Cameras.Lookup, p)
	if err := config.SaveCameras(cfg.Cameras.Path, doc); err != nil {
		return nil, fmt.Errorf("failed to save camera config: %w", err)
	}
	log.Info().
		Str("path", cfg.Cameras.Path).
		Int("cameras", len(doc.Cameras)).
		Msg("Camera config written")
	return doc, nil
}
