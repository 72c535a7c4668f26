package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/camserver/internal/config"
)

var makeCmd = &cobra.Command{
	Use:   "make",
	Short: "Generate the camera config from attached devices",
	Long: `Enumerate the attached video capture devices and write the camera
document (cameras.path) with one entry per device.

With cameras.lookup=index, devices whose description matches a rule in
generate.rules get the rule's index and the rest are numbered from
generate.next_index. With cameras.lookup=position devices are numbered in
the order they were listed.`,
	Example: `  # Write Config/CameraInfo.json
  camserver make

  # Write somewhere else
  camserver make --cameras /etc/camserver/cameras.json`,
	Args: cobra.NoArgs,
	RunE: runMake,
}

func init() {
	rootCmd.AddCommand(makeCmd)
}

func runMake(cmd *cobra.Command, args []string) error {
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
	doc, err := generateCameras(ctx, cfg, log)
	if err != nil {
		return err
	}

	printCameras(doc.Cameras)
	fmt.Printf("\n✅ Wrote %d camera(s) to %s\n", len(doc.Cameras), cfg.Cameras.Path)
	return nil
}

func printCameras(cameras []config.CameraIdentity) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INDEX\tNAME\tSIZE\tROTATE\tFLIP")
	fmt.Fprintln(w, "-----\t----\t----\t------\t----")

	for _, c := range cameras {
		fmt.Fprintf(w, "%d\t%s\t%dx%d\t%d\t%t\n", c.Index, c.Name, c.Width, c.Height, c.Rotate, c.Flip)
	}
}
