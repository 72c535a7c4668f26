package device

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// CLILister runs `ffmpeg -list_devices true` and parses its log output. This
// is the only lister for DirectShow and the fallback everywhere else.
type CLILister struct {
	Path string

	// run executes the command and returns combined output
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCLILister creates a lister using the ffmpeg binary at path
func NewCLILister(path string) *CLILister {
	if path == "" {
		path = "ffmpeg"
	}
	return &CLILister{Path: path, run: runCombined}
}

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (l *CLILister) Name() string { return "ffmpeg-cli" }

func (l *CLILister) EnumerateInputSources(ctx context.Context, inputFormatID string) ([]Source, error) {
	out, err := l.run(ctx, l.Path, "-hide_banner", "-list_devices", "true", "-f", inputFormatID, "-i", "dummy")
	// ffmpeg always fails on the dummy input; only the log matters
	sources := ParseDeviceList(string(out))
	if len(sources) == 0 {
		if err != nil {
			return nil, fmt.Errorf("ffmpeg -list_devices: %w", err)
		}
		return nil, fmt.Errorf("ffmpeg listed no %s devices", inputFormatID)
	}
	return sources, nil
}

var (
	quotedDeviceRe = regexp.MustCompile(`\]\s+"(.+)"(?:\s+\(([a-z, ]+)\))?\s*$`)
	altNameRe      = regexp.MustCompile(`\]\s+Alternative name\s+"(.+)"\s*$`)
	indexedRe      = regexp.MustCompile(`\]\s+\[(\d+)\]\s+(.+?)\s*$`)
)

// ParseDeviceList parses the device listing ffmpeg logs for dshow and
// avfoundation. DirectShow devices are named by their moniker when ffmpeg
// prints one; AVFoundation devices are named by index.
func ParseDeviceList(output string) []Source {
	var (
		sources []Source
		section []string
	)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		lower := strings.ToLower(line)

		switch {
		case strings.Contains(lower, "video devices"):
			section = []string{MediaVideo}
			continue
		case strings.Contains(lower, "audio devices"):
			section = []string{MediaAudio}
			continue
		}

		if m := altNameRe.FindStringSubmatch(line); m != nil {
			if n := len(sources); n > 0 {
				sources[n-1].Name = m[1]
			}
			continue
		}

		if m := quotedDeviceRe.FindStringSubmatch(line); m != nil {
			media := section
			if m[2] != "" {
				media = parseMediaMarker(m[2])
			}
			sources = append(sources, Source{Name: m[1], Description: m[1], MediaTypes: media})
			continue
		}

		if m := indexedRe.FindStringSubmatch(line); m != nil {
			sources = append(sources, Source{Name: m[1], Description: m[2], MediaTypes: section})
		}
	}
	return sources
}

func parseMediaMarker(marker string) []string {
	var media []string
	for _, part := range strings.Split(marker, ",") {
		switch strings.TrimSpace(part) {
		case "video":
			media = append(media, MediaVideo)
		case "audio":
			media = append(media, MediaAudio)
		}
	}
	// "(none)" carries no information
	return media
}
