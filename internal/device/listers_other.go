//go:build !linux && !darwin

package device

// DirectShow devices are only reachable through the ffmpeg command line
func platformListers() []SourceLister {
	return nil
}
