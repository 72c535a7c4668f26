package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/camserver/internal/capture"
)

func TestBuildArgsLocal(t *testing.T) {
	args := BuildArgs(capture.Source{Name: "video=USB Camera", Local: true, InputFormat: "dshow"})
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "info", "-nostdin",
		"-f", "dshow",
		"-i", "video=USB Camera", "-map", "0:v:0", "-an", "-sn",
		"-f", "rawvideo", "-pix_fmt", "yuv420p", "pipe:1",
	}, args)
}

func TestBuildArgsRTSP(t *testing.T) {
	args := BuildArgs(capture.Source{Name: "rtsp://cam/live", Options: capture.NetworkOptions, HWAccel: "nvdec"})
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-hwaccel cuda")
	assert.Contains(t, joined, "-rtsp_transport tcp")
	assert.Contains(t, joined, "-fflags nobuffer+discardcorrupt")
	assert.Contains(t, joined, "-flags low_delay")
	assert.Contains(t, joined, "-analyzeduration 250000")
	assert.Contains(t, joined, "-max_delay 5000000")
	assert.Contains(t, joined, "-timeout 5000000")
	assert.Contains(t, joined, "-buffer_size 400000000")
	assert.Contains(t, joined, "-probesize 4096")
	assert.Contains(t, joined, "-max_probe_packets 64")

	// input options precede -i, flush_packets follows it
	in := strings.Index(joined, "-i rtsp://cam/live")
	require.Positive(t, in)
	assert.Less(t, strings.Index(joined, "-probesize"), in)
	assert.Greater(t, strings.Index(joined, "-flush_packets 1"), in)
	assert.True(t, strings.HasSuffix(joined, "-f rawvideo -pix_fmt yuv420p pipe:1"))
}

func TestBuildArgsHTTPSkipsRTSPOptions(t *testing.T) {
	joined := strings.Join(BuildArgs(capture.Source{Name: "http://cam/mjpg", Options: capture.NetworkOptions}), " ")
	assert.NotContains(t, joined, "rtsp_transport")
	assert.NotContains(t, joined, "buffer_size")
	assert.Contains(t, joined, "-probesize 4096")
}

func TestProbeArgs(t *testing.T) {
	args := ProbeArgs(capture.Source{Name: "/dev/video0", Local: true, InputFormat: "v4l2"})
	joined := strings.Join(args, " ")
	assert.True(t, strings.HasSuffix(joined, "-i /dev/video0 -map 0:v:0 -an -sn -frames:v 1 -f null -"))
	assert.NotContains(t, joined, "rawvideo")
}

func TestParseStreamBanner(t *testing.T) {
	tests := []struct {
		line string
		want StreamBanner
		ok   bool
	}{
		{
			line: "  Stream #0:0: Video: h264 (High), yuv420p(progressive), 1920x1080 [SAR 1:1 DAR 16:9], 30 fps, 30 tbr",
			want: StreamBanner{Codec: "h264", PixelFormat: "yuv420p", Size: capture.Size{Width: 1920, Height: 1080}},
			ok:   true,
		},
		{
			line: "  Stream #0:0[0x1](und): Video: mjpeg (Baseline), yuvj422p(pc, bt470bg/unknown/unknown), 640x480, 30 fps",
			want: StreamBanner{Codec: "mjpeg", PixelFormat: "yuvj422p", Size: capture.Size{Width: 640, Height: 480}},
			ok:   true,
		},
		{
			line: "  Stream #0:0: Video: rawvideo (YUY2 / 0x32595559), yuyv422, 1280x720, 147456 kb/s, 10 fps",
			want: StreamBanner{Codec: "rawvideo", PixelFormat: "yuyv422", Size: capture.Size{Width: 1280, Height: 720}},
			ok:   true,
		},
		{line: "  Stream #0:1: Audio: aac (LC), 48000 Hz, stereo, fltp"},
		{line: "Input #0, rtsp, from 'rtsp://cam/live':"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseStreamBanner(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
