package gstreamer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/camserver/internal/capture"
	"github.com/bryanchriswhite/camserver/internal/platform"
)

const sinkName = "sink"

// hwChains maps a hardware acceleration name to the parse and decode
// elements that replace decodebin, including the download back to system
// memory where the decoder outputs device memory.
var hwChains = map[string]string{
	"vaapi":        "parsebin ! vaapidecodebin",
	"nvdec":        "parsebin ! nvh264dec ! cudadownload",
	"d3d11":        "parsebin ! d3d11h264dec ! d3d11download",
	"videotoolbox": "parsebin ! vtdec",
}

// HWAccelNames lists the supported hardware acceleration names
func HWAccelNames() []string {
	return []string{"vaapi", "nvdec", "d3d11", "videotoolbox"}
}

// BuildPipeline returns the gst-launch description that decodes src into
// I420 buffers on an appsink named "sink"
func BuildPipeline(src capture.Source, p platform.Platform) (string, error) {
	decode := "decodebin"
	if src.HWAccel != "" {
		chain, ok := hwChains[src.HWAccel]
		if !ok {
			return "", fmt.Errorf("unsupported hardware acceleration %q", src.HWAccel)
		}
		decode = chain
	}

	var head string
	switch {
	case src.Local:
		elem, err := localSource(src, p)
		if err != nil {
			return "", err
		}
		head = elem + " ! " + decode

	case strings.HasPrefix(strings.ToLower(src.Name), "rtsp"):
		head = rtspSource(src) + " ! " + decode

	default:
		bufferSize := optionOr(src, "buffer_size", "400000000")
		if src.HWAccel == "" {
			head = fmt.Sprintf("uridecodebin uri=%s buffer-size=%s", quote(src.Name), bufferSize)
		} else {
			head = fmt.Sprintf("urisourcebin uri=%s buffer-size=%s ! %s", quote(src.Name), bufferSize, decode)
		}
	}

	return head + " ! videoconvert ! video/x-raw,format=I420 ! " +
		"appsink name=" + sinkName + " emit-signals=false max-buffers=2 drop=true sync=false", nil
}

func localSource(src capture.Source, p platform.Platform) (string, error) {
	if p.GstSource == "" {
		return "", fmt.Errorf("no GStreamer source element for platform %s", p.Name)
	}
	name := p.StripDevicePrefix(src.Name)

	if p.GstDeviceProperty == "device-index" {
		idx, err := strconv.Atoi(name)
		if err != nil {
			return "", fmt.Errorf("%s devices are opened by index, got %q", p.GstSource, name)
		}
		return fmt.Sprintf("%s device-index=%d", p.GstSource, idx), nil
	}
	return fmt.Sprintf("%s %s=%s", p.GstSource, p.GstDeviceProperty, quote(name)), nil
}

// rtspSource maps the network option set onto rtspsrc properties. rtspsrc
// takes the same microsecond timeouts ffmpeg does.
func rtspSource(src capture.Source) string {
	protocols := "tcp"
	if v, ok := src.Option("rtsp_transport"); ok && v != "" {
		protocols = v
	}
	timeout := optionOr(src, "timeout", "5000000")
	return fmt.Sprintf(
		"rtspsrc location=%s protocols=%s latency=0 timeout=%s tcp-timeout=%s udp-buffer-size=%s drop-on-latency=true",
		quote(src.Name), protocols, timeout, timeout, optionOr(src, "buffer_size", "400000000"),
	)
}

func optionOr(src capture.Source, key, def string) string {
	if v, ok := src.Option(key); ok && v != "" {
		return v
	}
	return def
}

// quote wraps a property value for gst_parse_launch
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// MapBufferFlags translates GStreamer buffer flags into the decoder's flag
// vocabulary. A buffer without DELTA_UNIT is a key frame. Corruption on a
// key frame reads as a broken bitstream; on an inter frame it reads as
// concealed slices, the transient glitch pattern. A discontinuity on an
// inter frame means its reference was lost.
func MapBufferFlags(delta, corrupted, discont bool) (decodeErrorFlags, flags uint32) {
	key := !delta
	if key {
		flags = capture.FrameFlagKey
	}

	switch {
	case corrupted && key:
		decodeErrorFlags = capture.DecodeErrorInvalidBitstream
	case corrupted:
		decodeErrorFlags = capture.DecodeErrorConcealmentActive | capture.DecodeErrorDecodeSlices
	case discont && !key:
		decodeErrorFlags = capture.DecodeErrorMissingReference
	}
	return decodeErrorFlags, flags
}
