package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "camserver [index]",
		Short: "camserver - serve one camera over HTTP",
		Long: `camserver opens a configured camera (local capture device or network
stream), keeps decoding it in the background and serves the latest frame.

Features:
  • GStreamer or ffmpeg decode backends
  • Automatic reconnect when a stream breaks
  • Base64 JPEG frames and face-cropped portraits
  • MJPEG live stream with text and clock overlays
  • Optional ZeroMQ frame publisher
  • Camera config generation from attached devices`,
		Example: `  # Serve camera 0 on base_port+0
  camserver 0

  # Same, spelled out
  camserver serve 0`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runServe(cmd, args)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/camserver/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "base port; camera N listens on port+N (default is 9000)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("cameras", "", "camera JSON document (default is Config/CameraInfo.json)")

	// Bind flags to viper
	viper.BindPFlag("base_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("cameras.path", rootCmd.PersistentFlags().Lookup("cameras"))
}

func initConfig() {
	// CAMSERVER_BASE_PORT, CAMSERVER_CAPTURE_BACKEND, ...
	viper.SetEnvPrefix("CAMSERVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range []string{"server_host", "cameras.lookup", "capture.backend", "capture.hw_accel"} {
		viper.BindEnv(key)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}
