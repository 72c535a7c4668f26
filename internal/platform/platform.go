// Package platform holds the per-OS conventions for naming and opening local
// capture devices. Exactly one Platform is selected at build time by Current.
package platform

import (
	"strings"
)

const (
	windowsMonikerPrefix = `@device_pnp_\\?\`
	windowsMonikerSuffix = `\global`
)

// Platform describes how local capture devices are addressed on one OS
type Platform struct {
	// Name is the GOOS this strategy targets
	Name string

	// InputFormatID is the demuxer name used for device capture
	// (v4l2, dshow, avfoundation)
	InputFormatID string

	// DevicePrefix is prepended to local device names when opening them,
	// e.g. "video=" for DirectShow
	DevicePrefix string

	// GstSource and GstDeviceProperty select the GStreamer source element for
	// local devices and the property that receives the device name
	GstSource         string
	GstDeviceProperty string

	wrap   func(string) string
	unwrap func(string) string
}

// Linux returns the video4linux2 strategy
func Linux() Platform {
	return Platform{
		Name:              "linux",
		InputFormatID:     "v4l2",
		GstSource:         "v4l2src",
		GstDeviceProperty: "device",
	}
}

// Windows returns the DirectShow strategy. Device names are PnP monikers
// which are stored without the moniker wrapper in the camera config.
func Windows() Platform {
	return Platform{
		Name:              "windows",
		InputFormatID:     "dshow",
		DevicePrefix:      "video=",
		GstSource:         "dshowvideosrc",
		GstDeviceProperty: "device",
		wrap: func(name string) string {
			if strings.HasPrefix(name, windowsMonikerPrefix) {
				return name
			}
			return windowsMonikerPrefix + name + windowsMonikerSuffix
		},
		unwrap: func(name string) string {
			name = strings.TrimPrefix(name, windowsMonikerPrefix)
			return strings.TrimSuffix(name, windowsMonikerSuffix)
		},
	}
}

// Darwin returns the AVFoundation strategy
func Darwin() Platform {
	return Platform{
		Name:              "darwin",
		InputFormatID:     "avfoundation",
		GstSource:         "avfvideosrc",
		GstDeviceProperty: "device-index",
	}
}

// ByName returns the strategy for a GOOS value, falling back to Linux
func ByName(goos string) Platform {
	switch goos {
	case "windows":
		return Windows()
	case "darwin":
		return Darwin()
	default:
		return Linux()
	}
}

// NormalizeDeviceName turns a configured camera name into the name the
// platform opens. Network sources are returned unchanged.
func (p Platform) NormalizeDeviceName(name string) string {
	if IsNetworkSource(name) || p.wrap == nil {
		return name
	}
	return p.wrap(name)
}

// DisplayName is the inverse of NormalizeDeviceName and is what gets written
// to the camera config
func (p Platform) DisplayName(name string) string {
	if p.unwrap == nil {
		return name
	}
	return p.unwrap(name)
}

// LocalSourceName prefixes the device prefix token when it is missing
func (p Platform) LocalSourceName(name string) string {
	if p.DevicePrefix == "" || strings.HasPrefix(name, p.DevicePrefix) {
		return name
	}
	return p.DevicePrefix + name
}

// StripDevicePrefix removes the device prefix token if present
func (p Platform) StripDevicePrefix(name string) string {
	if p.DevicePrefix == "" {
		return name
	}
	return strings.TrimPrefix(name, p.DevicePrefix)
}

var networkSchemes = []string{"rtsp://", "rtsps://", "rtmp://", "http://", "https://", "udp://", "tcp://", "srt://"}

// IsNetworkSource reports whether name refers to a network stream rather
// than a locally attached device
func IsNetworkSource(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "rtsp") {
		return true
	}
	for _, scheme := range networkSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}
