// Package device lists locally attached capture devices.
package device

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
)

// Media types reported by listers
const (
	MediaVideo = "video"
	MediaAudio = "audio"
)

// ErrUnsupported is returned by listers that cannot run on this platform or
// input format
var ErrUnsupported = errors.New("device: lister unsupported here")

// Source is one device as reported by a platform lister
type Source struct {
	Name        string
	Description string
	// MediaTypes is empty when the lister could not tell
	MediaTypes []string
}

// HasVideo reports whether the source declares a video stream
func (s Source) HasVideo() bool {
	for _, m := range s.MediaTypes {
		if m == MediaVideo {
			return true
		}
	}
	return false
}

// Ambiguous reports whether the lister gave no media type information
func (s Source) Ambiguous() bool {
	return len(s.MediaTypes) == 0
}

// SourceLister enumerates the devices behind one input format
type SourceLister interface {
	Name() string
	EnumerateInputSources(ctx context.Context, inputFormatID string) ([]Source, error)
}

// Prober opens and closes a device to confirm it yields video
type Prober interface {
	Probe(ctx context.Context, sourceName string, isLocalDevice bool) error
}

// Entry is one video capture device
type Entry struct {
	Description string `json:"description"`
	Name        string `json:"name"`
}

// Enumerator lists video capture devices using the first lister that works
type Enumerator struct {
	inputFormat string
	listers     []SourceLister
	prober      Prober
	log         zerolog.Logger
}

// NewEnumerator creates an enumerator for inputFormatID. listers are tried
// in order; prober may be nil, in which case ambiguous devices are kept.
func NewEnumerator(inputFormatID string, listers []SourceLister, prober Prober, log zerolog.Logger) *Enumerator {
	return &Enumerator{
		inputFormat: inputFormatID,
		listers:     listers,
		prober:      prober,
		log:         log,
	}
}

// List returns the video-capable devices. Descriptions that repeat get a
// "#N" suffix where N counts earlier occurrences.
func (e *Enumerator) List(ctx context.Context) ([]Entry, error) {
	var errs []error
	for _, lister := range e.listers {
		sources, err := lister.EnumerateInputSources(ctx, e.inputFormat)
		if err != nil {
			if !errors.Is(err, ErrUnsupported) {
				e.log.Debug().Err(err).Str("lister", lister.Name()).Msg("Device lister failed")
			}
			errs = append(errs, fmt.Errorf("%s: %w", lister.Name(), err))
			continue
		}
		e.log.Debug().Str("lister", lister.Name()).Int("count", len(sources)).Msg("Listed devices")
		return e.filter(ctx, sources), nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no device listers configured")
	}
	return nil, fmt.Errorf("failed to list devices: %w", errors.Join(errs...))
}

func (e *Enumerator) filter(ctx context.Context, sources []Source) []Entry {
	entries := make([]Entry, 0, len(sources))
	for _, src := range sources {
		switch {
		case src.HasVideo():
		case src.Ambiguous():
			if e.prober != nil {
				if err := e.prober.Probe(ctx, src.Name, true); err != nil {
					e.log.Debug().Err(err).Str("device", src.Name).Msg("Skipping device without video")
					continue
				}
			}
		default:
			continue
		}

		desc := src.Description
		if desc == "" {
			desc = src.Name
		}
		entries = append(entries, Entry{Description: desc, Name: src.Name})
	}
	return Dedupe(entries)
}

// Dedupe suffixes repeated descriptions with "#N", N being how many times
// the description already appeared
func Dedupe(entries []Entry) []Entry {
	seen := make(map[string]int, len(entries))
	out := make([]Entry, len(entries))
	for i, e := range entries {
		n := seen[e.Description]
		seen[e.Description] = n + 1
		if n > 0 {
			e.Description = e.Description + "#" + strconv.Itoa(n)
		}
		out[i] = e
	}
	return out
}

// DefaultListers returns the listers available on this platform, most
// precise first, ending with the ffmpeg command line lister
func DefaultListers(ffmpegPath string) []SourceLister {
	listers := platformListers()
	return append(listers, NewCLILister(ffmpegPath))
}
