package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/camserver/internal/api"
	"github.com/bryanchriswhite/camserver/internal/camera"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/facedetect"
	"github.com/bryanchriswhite/camserver/internal/logger"
	"github.com/bryanchriswhite/camserver/internal/output"
	"github.com/bryanchriswhite/camserver/internal/output/zmq"
	"github.com/bryanchriswhite/camserver/internal/overlay"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

var serveCmd = &cobra.Command{
	Use:   "serve INDEX",
	Short: "Serve one camera",
	Long: `Serve the camera configured under INDEX in the camera document.

The service listens on server_host:base_port+INDEX. It answers /status,
/camera and /takephoto straight away and starts serving frames once the
camera delivers its first one. A broken stream is reopened in the
background.`,
	Example: `  # Serve camera 0 on the default port (9000)
  camserver serve 0

  # Serve camera 1 with a different base port (listens on 9101)
  camserver serve 1 --port 9100

  # Use the ffmpeg backend
  CAMSERVER_CAPTURE_BACKEND=ffmpeg camserver serve 0`,
	Args: cobra.ExactArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	index, err := strconv.Atoi(args[0])
	if err != nil || index < 0 {
		return fmt.Errorf("invalid camera index: %s", args[0])
	}

	configMgr, err := loadConfig(bootstrapLogger())
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	port := cfg.ServicePort(index)

	log, sink, err := newLogger(cfg, fmt.Sprintf("CameraServer_%d", port))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer sink.Close()

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("backend", cfg.Capture.Backend).
		Msg("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := config.NewCameraStore(cfg.Cameras.Path, cfg.Cameras.Lookup)
	identity, ok := store.LookupCameraByIndex(index)
	if !ok {
		if err := store.Err(); err != nil {
			log.Error().Err(err).Str("path", store.Path()).Msg("Failed to read camera config")
		}
		identity = config.CameraIdentity{Index: index}
	}

	p := platform.Current()
	factory, err := backendFactory(cfg, p, log)
	if err != nil {
		return err
	}

	ctrl := camera.NewController(identity, camera.Options{
		Platform:       p,
		Backend:        factory,
		HWAccel:        cfg.Capture.HWAccel,
		Sentinels:      cfg.Classify,
		DecodeTick:     cfg.Capture.DecodeTick,
		OpenRetry:      cfg.Capture.OpenRetry,
		RecoveryRetry:  cfg.Capture.RecoveryRetry,
		FirstFramePoll: cfg.Capture.FirstFramePoll,
		Logger:         logger.WithComponent(log, "camera"),
	})

	// the service answers while the camera is still opening
	opened := make(chan struct{})
	go func() {
		defer close(opened)
		if err := ctrl.Start(ctx); err != nil {
			switch {
			case errors.Is(err, camera.ErrConfigMissing):
				log.Error().
					Int("camera_index", index).
					Str("path", store.Path()).
					Msg("No camera configured for this index")
			case ctx.Err() == nil:
				log.Error().Err(err).Msg("Failed to start camera")
			}
		}
	}()

	opts := api.Options{
		Backend: cfg.Capture.Backend,
		Photo: api.PhotoOptions{
			Width:  cfg.Photo.Width,
			Height: cfg.Photo.Height,
			Margin: cfg.Photo.Margin,
		},
		Logger: logger.WithComponent(log, "api"),
	}

	if cfg.Photo.Cascade != "" {
		cascade, err := facedetect.NewCascade(cfg.Photo.Cascade)
		if err != nil {
			log.Warn().Err(err).Msg("Face detection disabled, photos use the whole frame")
		} else {
			defer cascade.Close()
			opts.Detector = cascade
		}
	}

	var outputs []output.Output
	outConfig := output.Config{
		CameraIndex: index,
		FPS:         cfg.Stream.FPS,
		Quality:     cfg.Stream.Quality,
	}
	if cfg.Stream.Enabled {
		opts.Stream = output.NewMJPEGOutput(outConfig, logger.WithComponent(log, "mjpeg"))
		outputs = append(outputs, opts.Stream)
	}
	if cfg.Publish.Enabled {
		outputs = append(outputs, zmq.NewPublisher(cfg.Publish.Endpoint, index, logger.WithComponent(log, "zmq")))
		defer func() {
			if err := zmq.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("ZeroMQ shutdown")
			}
		}()
	}

	pumpDone := make(chan struct{})
	if len(outputs) > 0 {
		ov := overlay.NewManager(logger.WithComponent(log, "overlay"))
		ov.SetEnabled(cfg.Overlay.Enabled)
		if cfg.Overlay.Enabled {
			n := ov.LoadFromConfig(cfg.Overlay.Widgets)
			log.Info().Int("widgets", n).Msg("Overlay loaded")
		}
		pump := output.NewPump(ctrl, ov, outConfig, logger.WithComponent(log, "pump"), outputs...)
		go func() {
			defer close(pumpDone)
			pump.Run(ctx)
		}()
	} else {
		close(pumpDone)
	}

	server := api.NewServer(ctrl, opts)
	addr := net.JoinHostPort(cfg.ServerHost, strconv.Itoa(port))
	log.Info().
		Int("camera_index", index).
		Str("camera_name", identity.Name).
		Str("url", "http://"+addr).
		Msg("camserver is running, press Ctrl+C to stop")

	serveErr := server.ListenAndServe(ctx, addr)

	log.Info().Msg("Shutting down gracefully...")
	stop()
	<-opened
	<-pumpDone
	ctrl.Stop()

	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}
