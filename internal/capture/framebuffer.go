package capture

import (
	"image"
	"sync"
	"time"
)

// Snapshot is a published frame together with its bookkeeping
type Snapshot struct {
	Image     *image.RGBA
	Timestamp time.Duration
	Captured  time.Time
	Seq       uint64
}

// FrameBuffer is a single-slot holder for the latest published frame. A
// publish replaces the slot under the lock; reads copy the image out under
// the same lock so callers never share memory with the producer.
type FrameBuffer struct {
	mu      sync.Mutex
	current *Snapshot
	seq     uint64
}

// NewFrameBuffer creates an empty buffer
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Publish stores img as the latest frame and takes ownership of it
func (b *FrameBuffer) Publish(img *image.RGBA, ts time.Duration) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	b.current = &Snapshot{
		Image:     img,
		Timestamp: ts,
		Captured:  time.Now(),
		Seq:       b.seq,
	}
	return b.seq
}

// Read returns a copy of the latest frame, or false when none was published
func (b *FrameBuffer) Read() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return Snapshot{}, false
	}

	src := b.current.Image
	img := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(img.Pix, src.Pix)

	snap := *b.current
	snap.Image = img
	return snap, true
}

// HasFrame reports whether a frame is available
func (b *FrameBuffer) HasFrame() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current != nil
}

// Seq returns the sequence number of the latest publish, 0 if none
func (b *FrameBuffer) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return 0
	}
	return b.current.Seq
}

// Clear drops the current frame
func (b *FrameBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
}
