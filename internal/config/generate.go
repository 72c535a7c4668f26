package config

import (
	"strings"

	"github.com/bryanchriswhite/camserver/internal/device"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

// NameRule pins devices whose description contains Pattern to Index
type NameRule struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Index   int    `json:"index" yaml:"index"`
}

// DefaultNameRules keeps the first two USB cameras on fixed indices
func DefaultNameRules() []NameRule {
	return []NameRule{
		{Pattern: "USB Camera0", Index: 0},
		{Pattern: "USB Camera1", Index: 1},
	}
}

// GenerateCameras builds a camera document from enumerated devices. With
// LookupByIndex the rules are applied in order and unmatched devices are
// numbered from gen.NextIndex; with LookupByPosition devices are numbered by
// position.
func GenerateCameras(entries []device.Entry, gen GenerateConfig, mode LookupMode, p platform.Platform) *CameraDocument {
	doc := &CameraDocument{Cameras: make([]CameraIdentity, 0, len(entries))}
	next := gen.NextIndex

	for i, entry := range entries {
		index := i
		if mode != LookupByPosition {
			matched := false
			for _, rule := range gen.Rules {
				if rule.Pattern != "" && strings.Contains(entry.Description, rule.Pattern) {
					index = rule.Index
					matched = true
					break
				}
			}
			if !matched {
				index = next
				next++
			}
		}

		doc.Cameras = append(doc.Cameras, CameraIdentity{
			Index:  index,
			Name:   p.DisplayName(entry.Name),
			Width:  gen.Width,
			Height: gen.Height,
			Rotate: 0,
			Flip:   false,
		})
	}
	return doc
}
