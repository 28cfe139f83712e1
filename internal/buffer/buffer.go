// Package buffer provides the bounded frame ring shared between the capture
// loop and its consumers. Push never blocks and never fails; when the ring is
// full the oldest frame is evicted and released. Latest returns a clone of
// the newest frame so no consumer can observe a partially written one.
package buffer

import (
	"sync"
)

// FrameBuffer is a fixed-capacity ring of the most recent frames.
type FrameBuffer struct {
	mu     sync.Mutex
	slots  []*Frame
	head   int // index of the newest frame, -1 before first push
	count  int
	seq    uint64
	closed bool
}

const minCapacity = 2

// New creates a FrameBuffer with the given capacity. Capacities below 2 are
// raised to 2.
func New(capacity int) *FrameBuffer {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &FrameBuffer{
		slots: make([]*Frame, capacity),
		head:  -1,
	}
}

// Capacity returns the fixed slot count.
func (b *FrameBuffer) Capacity() int {
	return len(b.slots)
}

// Len returns the number of frames currently retained.
func (b *FrameBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Push stores the frame as the newest entry, evicting and releasing the
// oldest one when the ring is full. The buffer takes ownership of the frame.
func (b *FrameBuffer) Push(f *Frame) {
	if f == nil {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		f.Close()
		return
	}
	b.seq++
	f.Seq = b.seq

	next := (b.head + 1) % len(b.slots)
	if old := b.slots[next]; old != nil {
		old.Close()
	} else {
		b.count++
	}
	b.slots[next] = f
	b.head = next
	b.mu.Unlock()
}

// Latest returns a clone of the most recently pushed frame. The caller owns
// the clone and must Close it. Before the first push it returns (nil, false).
func (b *FrameBuffer) Latest() (*Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.head < 0 || b.closed {
		return nil, false
	}
	return b.slots[b.head].Clone(), true
}

// Close releases every retained frame. Pushes after Close release the frame
// immediately and Latest reports empty.
func (b *FrameBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for i, f := range b.slots {
		if f != nil {
			f.Close()
			b.slots[i] = nil
		}
	}
	b.count = 0
	b.head = -1
	return nil
}
