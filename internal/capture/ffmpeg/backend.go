// Package ffmpeg decodes capture sources with an ffmpeg subprocess writing
// raw frames to a pipe. It needs no cgo and works wherever the ffmpeg binary
// is installed.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanchriswhite/camserver/internal/capture"
)

const (
	defaultPath        = "ffmpeg"
	defaultOpenTimeout = 10 * time.Second

	// frames in flight between the pipe reader and the decoder
	poolSize = 3
)

// Options configures a Backend
type Options struct {
	// Path to the ffmpeg binary
	Path        string
	OpenTimeout time.Duration
	Logger      zerolog.Logger
}

// Backend implements capture.Backend by running ffmpeg as a subprocess.
// ffmpeg drops corrupt frames itself, so every frame is reported as a clean
// key frame.
type Backend struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	info    capture.StreamInfo
	frames  chan []byte
	free    chan []byte
	stop    chan struct{}
	exited  chan struct{}
	exitErr error
	last    []byte
	started time.Time
}

// New creates an unopened backend
func New(opts Options) *Backend {
	if opts.Path == "" {
		opts.Path = defaultPath
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = defaultOpenTimeout
	}
	return &Backend{opts: opts, log: opts.Logger}
}

// Factory returns a capture.BackendFactory producing ffmpeg backends
func Factory(opts Options) capture.BackendFactory {
	return func() capture.Backend { return New(opts) }
}

func (b *Backend) Name() string { return "ffmpeg" }

// Open starts ffmpeg and waits until it reports the input video stream
func (b *Backend) Open(ctx context.Context, src capture.Source) (capture.StreamInfo, error) {
	b.Close()

	args := BuildArgs(src)
	b.log.Debug().Strs("args", args).Msg("Starting ffmpeg subprocess")

	cmd := exec.Command(b.opts.Path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return capture.StreamInfo{}, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return capture.StreamInfo{}, fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return capture.StreamInfo{}, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	banners := make(chan StreamBanner, 1)
	tail := newLineTail(8)
	go b.logStderr(stderr, banners, tail)

	exited := make(chan struct{})
	var exitErr error
	go func() {
		exitErr = cmd.Wait()
		close(exited)
	}()

	var banner StreamBanner
	timer := time.NewTimer(b.opts.OpenTimeout)
	defer timer.Stop()
	select {
	case banner = <-banners:
	case <-exited:
		return capture.StreamInfo{}, fmt.Errorf("ffmpeg exited: %v: %s", exitErr, tail.String())
	case <-timer.C:
		kill(cmd, exited)
		return capture.StreamInfo{}, fmt.Errorf("no video stream within %s", b.opts.OpenTimeout)
	case <-ctx.Done():
		kill(cmd, exited)
		return capture.StreamInfo{}, ctx.Err()
	}

	_, _, size := capture.I420Layout(banner.Size.Width, banner.Size.Height, 1)
	free := make(chan []byte, poolSize)
	for i := 0; i < poolSize; i++ {
		free <- make([]byte, size)
	}

	info := capture.StreamInfo{
		Native: banner.Size,
		Format: capture.PixelFormatI420,
		Codec:  banner.Codec,
		Metadata: map[string]string{
			"input_pix_fmt": banner.PixelFormat,
			"ffmpeg":        b.opts.Path,
		},
	}

	b.mu.Lock()
	b.cmd = cmd
	b.info = info
	b.frames = make(chan []byte, poolSize)
	b.free = free
	b.stop = make(chan struct{})
	b.exited = exited
	b.started = time.Now()
	frames, stop := b.frames, b.stop
	b.mu.Unlock()

	go b.readFrames(stdout, size, free, frames, stop)

	b.log.Info().
		Int("pid", cmd.Process.Pid).
		Str("codec", banner.Codec).
		Str("size", banner.Size.String()).
		Msg("ffmpeg subprocess started")
	return info, nil
}

// readFrames reads fixed-size yuv420p frames from stdout into pooled buffers
func (b *Backend) readFrames(stdout io.Reader, size int, free <-chan []byte, frames chan<- []byte, stop <-chan struct{}) {
	defer close(frames)
	reader := bufio.NewReaderSize(stdout, size*2)

	for {
		var buf []byte
		select {
		case <-stop:
			return
		case buf = <-free:
		}

		if _, err := io.ReadFull(reader, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				b.log.Debug().Err(err).Msg("Frame reader stopped")
			}
			return
		}

		select {
		case frames <- buf:
		case <-stop:
			return
		}
	}
}

// logStderr forwards ffmpeg's log lines and reports the first input video
// stream banner
func (b *Backend) logStderr(stderr io.Reader, banners chan<- StreamBanner, tail *lineTail) {
	scanner := bufio.NewScanner(stderr)
	reported := false
	for scanner.Scan() {
		line := scanner.Text()
		tail.Add(line)

		if !reported {
			if banner, ok := ParseStreamBanner(line); ok {
				reported = true
				banners <- banner
			}
		}

		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "warning") {
			b.log.Warn().Str("ffmpeg", line).Msg("ffmpeg message")
		} else {
			b.log.Debug().Str("ffmpeg", line).Msg("ffmpeg output")
		}
	}
}

// ReadFrame returns the next frame. The planes stay valid until the next
// call.
func (b *Backend) ReadFrame(ctx context.Context) (capture.Frame, error) {
	b.mu.Lock()
	frames, free, exited := b.frames, b.free, b.exited
	info, started := b.info, b.started
	last := b.last
	b.last = nil
	b.mu.Unlock()

	if frames == nil {
		return capture.Frame{}, capture.ErrNotConnected
	}
	if last != nil {
		select {
		case free <- last:
		default:
		}
	}

	var buf []byte
	select {
	case <-ctx.Done():
		return capture.Frame{}, ctx.Err()
	case data, ok := <-frames:
		if !ok {
			<-exited
			return capture.Frame{}, fmt.Errorf("ffmpeg output closed: %w", capture.ErrStreamEnded)
		}
		buf = data
	}

	planes, strides, err := capture.SplitI420(buf, info.Native.Width, info.Native.Height, 1)
	if err != nil {
		return capture.Frame{}, err
	}

	b.mu.Lock()
	b.last = buf
	b.mu.Unlock()

	return capture.Frame{
		Width:     info.Native.Width,
		Height:    info.Native.Height,
		Format:    capture.PixelFormatI420,
		Planes:    planes,
		Strides:   strides,
		Timestamp: time.Since(started),
		Flags:     capture.FrameFlagKey,
	}, nil
}

// Probe runs ffmpeg against src long enough to decode one frame
func (b *Backend) Probe(ctx context.Context, src capture.Source) error {
	ctx, cancel := context.WithTimeout(ctx, b.opts.OpenTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, b.opts.Path, ProbeArgs(src)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("probe %s: %w: %s", src.Name, err, lastLines(string(out), 3))
	}
	for _, line := range strings.Split(string(out), "\n") {
		if _, ok := ParseStreamBanner(line); ok {
			return nil
		}
	}
	return fmt.Errorf("probe %s: %w", src.Name, capture.ErrNoVideoStream)
}

// Close kills the subprocess. Safe to call repeatedly.
func (b *Backend) Close() error {
	b.mu.Lock()
	cmd, stop, exited := b.cmd, b.stop, b.exited
	b.cmd = nil
	b.stop = nil
	b.frames = nil
	b.free = nil
	b.last = nil
	b.mu.Unlock()

	if cmd == nil {
		return nil
	}
	close(stop)
	kill(cmd, exited)
	b.log.Debug().Msg("ffmpeg subprocess stopped")
	return nil
}

func kill(cmd *exec.Cmd, exited <-chan struct{}) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-exited
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// lineTail keeps the last few stderr lines for error messages
type lineTail struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newLineTail(max int) *lineTail {
	return &lineTail{max: max}
}

func (t *lineTail) Add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *lineTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
