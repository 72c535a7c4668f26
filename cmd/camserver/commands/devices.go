package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/camserver/internal/device"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List video capture devices",
	Long: `List the video capture devices attached to this machine, as they would
be written by "camserver make".`,
	Example: `  # List devices in table format (default)
  camserver devices

  # List devices in JSON format
  camserver devices --format json`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var devicesFormat string

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().StringVarP(&devicesFormat, "format", "f", "table", "output format (table or json)")
}

func runDevices(cmd *cobra.Command, args []string) error {
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
	entries, err := listDevices(ctx, cfg, platform.Current(), log)
	if err != nil {
		return err
	}

	switch devicesFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "table":
		printDevicesTable(entries)
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", devicesFormat)
	}
}

func printDevicesTable(entries []device.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "#\tDESCRIPTION\tNAME")
	fmt.Fprintln(w, "-\t-----------\t----")

	for i, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, e.Description, e.Name)
	}
}
