package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/camserver/internal/camera"
	"github.com/bryanchriswhite/camserver/internal/config"
	"github.com/bryanchriswhite/camserver/internal/logger"
	"github.com/bryanchriswhite/camserver/internal/output"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Save one frame from every configured camera",
	Long: `Open every camera in the camera document in turn, grab one frame and
save it as <dir>/<index>_sample.jpg. The camera document is generated first
when it does not exist.`,
	Example: `  # Write saved/0_sample.jpg, saved/1_sample.jpg, ...
  camserver sample

  # Give slow network cameras longer
  camserver sample --timeout 30s`,
	Args: cobra.NoArgs,
	RunE: runSample,
}

var (
	sampleDir     string
	sampleTimeout time.Duration
)

// sampleQuality matches the JPEG quality served by /camera
const sampleQuality = 95

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().StringVarP(&sampleDir, "dir", "d", "saved", "output directory")
	sampleCmd.Flags().DurationVarP(&sampleTimeout, "timeout", "t", 15*time.Second, "time allowed to open each camera")
}

func runSample(cmd *cobra.Command, args []string) error {
	log := bootstrapLogger()
	configMgr, err := loadConfig(log)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store := config.NewCameraStore(cfg.Cameras.Path, cfg.Cameras.Lookup)
	if !store.Exists() {
		log.Info().Str("path", store.Path()).Msg("No camera config, generating one")
		if _, err := generateCameras(ctx, cfg, log); err != nil {
			return err
		}
		store.Reload()
	}
	cameras, err := store.Cameras()
	if err != nil {
		return fmt.Errorf("failed to read camera config: %w", err)
	}

	if err := os.MkdirAll(sampleDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	p := platform.Current()
	factory, err := backendFactory(cfg, p, log)
	if err != nil {
		return err
	}

	saved := 0
	for _, identity := range cameras {
		ctrl := camera.NewController(identity, camera.Options{
			Platform:       p,
			Backend:        factory,
			HWAccel:        cfg.Capture.HWAccel,
			Sentinels:      cfg.Classify,
			DecodeTick:     cfg.Capture.DecodeTick,
			OpenRetry:      cfg.Capture.OpenRetry,
			FirstFramePoll: cfg.Capture.FirstFramePoll,
			Logger:         logger.WithComponent(log, "camera"),
		})

		path, err := saveSample(ctx, ctrl, identity.Index)
		if err != nil {
			log.Error().Err(err).Int("camera_index", identity.Index).Msg("Failed to sample camera")
			continue
		}
		saved++
		fmt.Printf("📷 %d %s -> %s\n", identity.Index, identity.Name, path)
	}

	fmt.Printf("\n✅ Saved %d of %d camera(s) to %s\n", saved, len(cameras), sampleDir)
	return nil
}

func saveSample(ctx context.Context, ctrl *camera.Controller, index int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	if err := ctrl.Start(ctx); err != nil {
		return "", err
	}
	defer ctrl.Stop()

	img, ok := ctrl.GetImage(0)
	if !ok {
		return "", fmt.Errorf("camera %d delivered no frame", index)
	}
	data, err := output.EncodeJPEG(img, sampleQuality)
	if err != nil {
		return "", fmt.Errorf("failed to encode sample: %w", err)
	}

	path := filepath.Join(sampleDir, fmt.Sprintf("%d_sample.jpg", index))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write sample: %w", err)
	}
	return path, nil
}
