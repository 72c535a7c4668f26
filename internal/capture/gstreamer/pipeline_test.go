package gstreamer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

const tail = " ! videoconvert ! video/x-raw,format=I420 ! appsink name=sink emit-signals=false max-buffers=2 drop=true sync=false"

func TestBuildPipelineLocal(t *testing.T) {
	tests := []struct {
		name string
		p    platform.Platform
		src  string
		want string
	}{
		{
			name: "linux",
			p:    platform.Linux(),
			src:  "/dev/video0",
			want: `v4l2src device="/dev/video0" ! decodebin` + tail,
		},
		{
			name: "windows strips prefix and escapes moniker",
			p:    platform.Windows(),
			src:  `video=@device_pnp_\\?\usb#vid\global`,
			want: `dshowvideosrc device="@device_pnp_\\\\?\\usb#vid\\global" ! decodebin` + tail,
		},
		{
			name: "darwin opens by index",
			p:    platform.Darwin(),
			src:  "1",
			want: `avfvideosrc device-index=1 ! decodebin` + tail,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildPipeline(capture.Source{Name: tt.src, Local: true}, tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPipelineDarwinRejectsName(t *testing.T) {
	_, err := BuildPipeline(capture.Source{Name: "FaceTime HD Camera", Local: true}, platform.Darwin())
	assert.Error(t, err)
}

func TestBuildPipelineRTSP(t *testing.T) {
	src := capture.Source{Name: "rtsp://10.0.0.2/live", Options: capture.NetworkOptions}
	got, err := BuildPipeline(src, platform.Linux())
	require.NoError(t, err)
	assert.Equal(t,
		`rtspsrc location="rtsp://10.0.0.2/live" protocols=tcp latency=0 timeout=5000000 tcp-timeout=5000000 udp-buffer-size=400000000 drop-on-latency=true ! decodebin`+tail,
		got)
}

func TestBuildPipelineURI(t *testing.T) {
	src := capture.Source{Name: "http://cam/video.mjpg", Options: capture.NetworkOptions}
	got, err := BuildPipeline(src, platform.Linux())
	require.NoError(t, err)
	assert.Equal(t, `uridecodebin uri="http://cam/video.mjpg" buffer-size=400000000`+tail, got)

	src.HWAccel = "vaapi"
	got, err = BuildPipeline(src, platform.Linux())
	require.NoError(t, err)
	assert.Equal(t, `urisourcebin uri="http://cam/video.mjpg" buffer-size=400000000 ! parsebin ! vaapidecodebin`+tail, got)
}

func TestBuildPipelineHWAccel(t *testing.T) {
	for _, name := range HWAccelNames() {
		t.Run(name, func(t *testing.T) {
			got, err := BuildPipeline(capture.Source{Name: "/dev/video0", Local: true, HWAccel: name}, platform.Linux())
			require.NoError(t, err)
			assert.Contains(t, got, hwChains[name])
			assert.NotContains(t, got, "decodebin !")
		})
	}

	_, err := BuildPipeline(capture.Source{Name: "/dev/video0", Local: true, HWAccel: "quicksync"}, platform.Linux())
	assert.Error(t, err)
}

func TestMapBufferFlags(t *testing.T) {
	tests := []struct {
		name                      string
		delta, corrupted, discont bool
		wantErr, wantFlags        uint32
	}{
		{"clean key", false, false, false, 0, capture.FrameFlagKey},
		{"clean delta", true, false, false, 0, 0},
		{"corrupt key", false, true, false, capture.DecodeErrorInvalidBitstream, capture.FrameFlagKey},
		{"corrupt delta", true, true, false, 12, 0},
		{"discont delta", true, false, true, capture.DecodeErrorMissingReference, 0},
		{"discont key", false, false, true, 0, capture.FrameFlagKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotErr, gotFlags := MapBufferFlags(tt.delta, tt.corrupted, tt.discont)
			assert.Equal(t, tt.wantErr, gotErr)
			assert.Equal(t, tt.wantFlags, gotFlags)
		})
	}
}

func TestMapBufferFlagsFeedsClassifier(t *testing.T) {
	c := capture.NewClassifier(capture.DefaultSentinels())

	e, f := MapBufferFlags(true, true, false)
	assert.Equal(t, capture.VerdictTransient, c.Classify(capture.Frame{DecodeErrorFlags: e, Flags: f}))

	e, f = MapBufferFlags(false, true, false)
	assert.Equal(t, capture.VerdictInvalid, c.Classify(capture.Frame{DecodeErrorFlags: e, Flags: f}))
}
