package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SysfsLister reads video4linux device names from sysfs. It cannot tell
// capture nodes from metadata nodes, so every entry is ambiguous and left to
// the probe.
type SysfsLister struct {
	Root    string
	DevRoot string
}

// NewSysfsLister creates a lister over /sys/class/video4linux
func NewSysfsLister() *SysfsLister {
	return &SysfsLister{Root: "/sys/class/video4linux", DevRoot: "/dev"}
}

func (l *SysfsLister) Name() string { return "sysfs" }

func (l *SysfsLister) EnumerateInputSources(ctx context.Context, inputFormatID string) ([]Source, error) {
	if inputFormatID != "v4l2" && inputFormatID != "video4linux2" {
		return nil, ErrUnsupported
	}

	nodes, err := filepath.Glob(filepath.Join(l.Root, "video*"))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no video4linux devices under %s", l.Root)
	}
	sort.Slice(nodes, func(i, j int) bool { return videoIndex(nodes[i]) < videoIndex(nodes[j]) })

	sources := make([]Source, 0, len(nodes))
	for _, node := range nodes {
		base := filepath.Base(node)
		desc := base
		if b, err := os.ReadFile(filepath.Join(node, "name")); err == nil {
			desc = strings.TrimSpace(string(b))
		}
		sources = append(sources, Source{
			Name:        filepath.Join(l.DevRoot, base),
			Description: desc,
		})
	}
	return sources, nil
}

// videoIndex orders video2 before video10
func videoIndex(path string) int {
	var n int
	fmt.Sscanf(strings.TrimPrefix(filepath.Base(path), "video"), "%d", &n)
	return n
}
