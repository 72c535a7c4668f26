//go:build linux || darwin

package device

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// libavdevice/libavformat majors to try, newest first
var avMajors = []int{62, 61, 60, 59}

// AVMEDIA_TYPE_VIDEO / AVMEDIA_TYPE_AUDIO
const (
	avMediaTypeVideo = 0
	avMediaTypeAudio = 1
)

// mirrors AVDeviceInfoList
type avDeviceInfoList struct {
	devices       uintptr // AVDeviceInfo **
	nbDevices     int32
	defaultDevice int32
}

// mirrors AVDeviceInfo
type avDeviceInfo struct {
	deviceName        uintptr // char *
	deviceDescription uintptr // char *
	mediaTypes        uintptr // enum AVMediaType *
	nbMediaTypes      int32
}

var (
	avOnce    sync.Once
	avInitErr error

	avdeviceRegisterAll      func()
	avFindInputFormat        func(name string) uintptr
	avdeviceListInputSources func(format, deviceName, options, list uintptr) int32
	avdeviceFreeListDevices  func(list uintptr)
)

func libName(base string, major int) string {
	if runtime.GOOS == "darwin" {
		return fmt.Sprintf("lib%s.%d.dylib", base, major)
	}
	return fmt.Sprintf("lib%s.so.%d", base, major)
}

func dlopenAny(base string) (uintptr, error) {
	var lastErr error
	for _, major := range avMajors {
		handle, err := purego.Dlopen(libName(base, major), purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	return 0, fmt.Errorf("failed to load lib%s: %w", base, lastErr)
}

func initAVDevice() error {
	avOnce.Do(func() {
		format, err := dlopenAny("avformat")
		if err != nil {
			avInitErr = err
			return
		}
		dev, err := dlopenAny("avdevice")
		if err != nil {
			avInitErr = err
			return
		}

		purego.RegisterLibFunc(&avFindInputFormat, format, "av_find_input_format")
		purego.RegisterLibFunc(&avdeviceRegisterAll, dev, "avdevice_register_all")
		purego.RegisterLibFunc(&avdeviceListInputSources, dev, "avdevice_list_input_sources")
		purego.RegisterLibFunc(&avdeviceFreeListDevices, dev, "avdevice_free_list_devices")

		avdeviceRegisterAll()
	})
	return avInitErr
}

// AVDeviceLister asks libavdevice for the sources of an input format. The
// libraries are loaded at runtime so builds do not need FFmpeg headers.
type AVDeviceLister struct{}

// NewAVDeviceLister creates the libavdevice lister
func NewAVDeviceLister() *AVDeviceLister {
	return &AVDeviceLister{}
}

func (l *AVDeviceLister) Name() string { return "avdevice" }

func (l *AVDeviceLister) EnumerateInputSources(ctx context.Context, inputFormatID string) ([]Source, error) {
	if err := initAVDevice(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	format := avFindInputFormat(inputFormatID)
	if format == 0 {
		return nil, fmt.Errorf("input format %q not found", inputFormatID)
	}

	var list uintptr
	ret := avdeviceListInputSources(format, 0, 0, uintptr(unsafe.Pointer(&list)))
	if list != 0 {
		defer avdeviceFreeListDevices(uintptr(unsafe.Pointer(&list)))
	}
	if ret < 0 {
		return nil, fmt.Errorf("avdevice_list_input_sources(%s) returned %d", inputFormatID, ret)
	}
	if list == 0 {
		return nil, nil
	}

	info := (*avDeviceInfoList)(unsafe.Pointer(list))
	if info.nbDevices <= 0 || info.devices == 0 {
		return nil, nil
	}

	devices := unsafe.Slice((**avDeviceInfo)(unsafe.Pointer(info.devices)), int(info.nbDevices))
	sources := make([]Source, 0, len(devices))
	for _, d := range devices {
		if d == nil {
			continue
		}
		sources = append(sources, Source{
			Name:        goString(d.deviceName),
			Description: goString(d.deviceDescription),
			MediaTypes:  mediaTypes(d.mediaTypes, d.nbMediaTypes),
		})
	}
	return sources, nil
}

func mediaTypes(ptr uintptr, n int32) []string {
	if ptr == 0 || n <= 0 {
		return nil
	}
	var out []string
	for _, t := range unsafe.Slice((*int32)(unsafe.Pointer(ptr)), int(n)) {
		switch t {
		case avMediaTypeVideo:
			out = append(out, MediaVideo)
		case avMediaTypeAudio:
			out = append(out, MediaAudio)
		}
	}
	if out == nil {
		// other media only; not ambiguous, just not video
		out = []string{"other"}
	}
	return out
}

// goString copies a NUL-terminated C string
func goString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	p := unsafe.Pointer(ptr)
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
		if n > 4096 {
			break
		}
	}
	return string(unsafe.Slice((*byte)(p), n))
}
