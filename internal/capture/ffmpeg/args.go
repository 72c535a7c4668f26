package ffmpeg

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bryanchriswhite/camserver/internal/capture"
)

// ffmpeg names for the hardware acceleration choices shared with the
// GStreamer backend
var hwAccels = map[string]string{
	"vaapi":        "vaapi",
	"nvdec":        "cuda",
	"d3d11":        "d3d11va",
	"videotoolbox": "videotoolbox",
}

// options that only the RTSP demuxer understands
var rtspOnly = map[string]bool{
	"rtsp_transport": true,
	"buffer_size":    true,
}

// output-side options
var muxerOptions = map[string]bool{
	"flush_packets": true,
}

// BuildArgs returns the ffmpeg command line that decodes src to packed
// yuv420p on stdout
func BuildArgs(src capture.Source) []string {
	args := []string{"-hide_banner", "-loglevel", "info", "-nostdin"}

	if hw, ok := hwAccels[src.HWAccel]; ok {
		args = append(args, "-hwaccel", hw)
	}

	var out []string
	if src.Local {
		if src.InputFormat != "" {
			args = append(args, "-f", src.InputFormat)
		}
	} else {
		isRTSP := strings.HasPrefix(strings.ToLower(src.Name), "rtsp")
		for _, o := range src.Options {
			if rtspOnly[o.Key] && !isRTSP {
				continue
			}
			if muxerOptions[o.Key] {
				out = append(out, "-"+o.Key, o.Value)
				continue
			}
			value := o.Value
			if o.Key == "fflags" {
				value += "+discardcorrupt"
			}
			args = append(args, "-"+o.Key, value)
		}
	}

	args = append(args, "-i", src.Name, "-map", "0:v:0", "-an", "-sn")
	args = append(args, out...)
	return append(args, "-f", "rawvideo", "-pix_fmt", "yuv420p", "pipe:1")
}

// ProbeArgs returns a command line that decodes a single frame and discards it
func ProbeArgs(src capture.Source) []string {
	args := BuildArgs(src)
	// swap the rawvideo output for a one-frame null output
	i := len(args) - 5
	return append(args[:i:i], "-frames:v", "1", "-f", "null", "-")
}

// Stream #0:0: Video: h264 (High), yuv420p(progressive), 1920x1080 [SAR 1:1 DAR 16:9], 30 fps
// Stream #0:0[0x1](und): Video: mjpeg (Baseline), yuvj422p(pc, bt470bg/unknown/unknown), 640x480, 30 fps
var videoStreamRe = regexp.MustCompile(`Stream #\d+:\d+.*?: Video: ([0-9A-Za-z_]+)[^,]*,\s*([0-9A-Za-z_]+)[^,]*(?:\([^)]*\))?.*?,\s*(\d+)x(\d+)`)

// StreamBanner is what ffmpeg logs about the selected input video stream
type StreamBanner struct {
	Codec       string
	PixelFormat string
	Size        capture.Size
}

// ParseStreamBanner extracts codec, pixel format and size from one stderr line
func ParseStreamBanner(line string) (StreamBanner, bool) {
	m := videoStreamRe.FindStringSubmatch(line)
	if m == nil {
		return StreamBanner{}, false
	}
	w, err1 := strconv.Atoi(m[3])
	h, err2 := strconv.Atoi(m[4])
	if err1 != nil || err2 != nil || w == 0 || h == 0 {
		return StreamBanner{}, false
	}
	return StreamBanner{
		Codec:       m[1],
		PixelFormat: m[2],
		Size:        capture.Size{Width: w, Height: h},
	}, true
}
