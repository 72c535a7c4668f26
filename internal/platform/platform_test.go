package platform

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDeviceName(t *testing.T) {
	tests := []struct {
		name     string
		platform Platform
		in       string
		want     string
	}{
		{"linux passthrough", Linux(), "/dev/video0", "/dev/video0"},
		{"windows wraps moniker", Windows(), "usb#vid_32e4&pid_9101", `@device_pnp_\\?\usb#vid_32e4&pid_9101\global`},
		{"windows keeps wrapped", Windows(), `@device_pnp_\\?\abc\global`, `@device_pnp_\\?\abc\global`},
		{"windows network untouched", Windows(), "rtsp://10.0.0.2/stream", "rtsp://10.0.0.2/stream"},
		{"darwin passthrough", Darwin(), "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.platform.NormalizeDeviceName(tt.in))
		})
	}
}

func TestDisplayNameRoundTrip(t *testing.T) {
	w := Windows()
	raw := "usb#vid_046d&pid_0825"
	assert.Equal(t, raw, w.DisplayName(w.NormalizeDeviceName(raw)))
	assert.Equal(t, "/dev/video2", Linux().DisplayName("/dev/video2"))
}

func TestLocalSourceName(t *testing.T) {
	w := Windows()
	assert.Equal(t, "video=cam", w.LocalSourceName("cam"))
	assert.Equal(t, "video=cam", w.LocalSourceName("video=cam"))
	assert.Equal(t, "cam", w.StripDevicePrefix("video=cam"))
	assert.Equal(t, "/dev/video0", Linux().LocalSourceName("/dev/video0"))
}

func TestIsNetworkSource(t *testing.T) {
	assert.True(t, IsNetworkSource("rtsp://admin@192.168.0.10:554/h264"))
	assert.True(t, IsNetworkSource("RTSP://host/x"))
	assert.True(t, IsNetworkSource("http://host/mjpeg"))
	assert.True(t, IsNetworkSource("srt://host:9000"))
	assert.False(t, IsNetworkSource("/dev/video0"))
	assert.False(t, IsNetworkSource("USB Camera0"))
}

func TestCurrentMatchesGOOS(t *testing.T) {
	p := Current()
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		assert.Equal(t, runtime.GOOS, p.Name)
	default:
		assert.Equal(t, "linux", p.Name)
	}
	assert.Equal(t, ByName(p.Name).InputFormatID, p.InputFormatID)
}
