package audio

import (
	"fmt"
	"sync/atomic"
)

// RingBuffer is a bounded single-producer single-consumer sample queue used
// to hand audio between a device callback and a network goroutine.
//
// Write and Read complete in bounded time regardless of the other side's
// progress and never allocate. On overflow the newest samples are dropped,
// preserving the timing of what is already queued; on underflow Read returns
// a short count. Both are counted rather than reported as errors.
type RingBuffer struct {
	buf  []int16
	size uint64

	// Monotonic sample counters; only the writer stores writePos and only
	// the reader stores readPos.
	writePos atomic.Uint64
	readPos  atomic.Uint64

	dropped    atomic.Uint64
	shortReads atomic.Uint64
}

// RingStats is a snapshot of ring buffer counters.
type RingStats struct {
	Capacity       int
	Buffered       int
	DroppedSamples uint64 // samples refused by Write because the ring was full
	MissingSamples uint64 // samples requested by Read that were not available
}

// NewRingBuffer creates a ring holding capacity samples.
func NewRingBuffer(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: ring capacity %d", ErrInvalidFrameSize, capacity)
	}
	return &RingBuffer{buf: make([]int16, capacity), size: uint64(capacity)}, nil
}

// Capacity returns the ring size in samples.
func (r *RingBuffer) Capacity() int { return int(r.size) }

// Available returns the number of samples ready to read.
func (r *RingBuffer) Available() int {
	return int(r.writePos.Load() - r.readPos.Load())
}

// Free returns the number of samples that can be written without dropping.
func (r *RingBuffer) Free() int {
	return int(r.size) - r.Available()
}

// Write queues as many samples as fit and returns that count. Samples that
// do not fit are dropped from the tail of the call.
func (r *RingBuffer) Write(samples []int16) int {
	w := r.writePos.Load()
	free := r.size - (w - r.readPos.Load())

	n := uint64(len(samples))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}
	if n == 0 {
		return 0
	}

	start := w % r.size
	first := copy(r.buf[start:], samples[:n])
	copy(r.buf, samples[first:n])

	r.writePos.Store(w + n)
	return int(n)
}

// Read fills dst with up to len(dst) queued samples and returns the count.
// The caller pads any shortfall.
func (r *RingBuffer) Read(dst []int16) int {
	rd := r.readPos.Load()
	avail := r.writePos.Load() - rd

	n := uint64(len(dst))
	if n > avail {
		r.shortReads.Add(n - avail)
		n = avail
	}
	if n == 0 {
		return 0
	}

	start := rd % r.size
	first := copy(dst[:n], r.buf[start:])
	copy(dst[first:n], r.buf)

	r.readPos.Store(rd + n)
	return int(n)
}

// Reset empties the ring. It must only be called while neither side is
// active, e.g. before a stream is opened.
func (r *RingBuffer) Reset() {
	r.readPos.Store(r.writePos.Load())
}

// Stats returns the current counters.
func (r *RingBuffer) Stats() RingStats {
	return RingStats{
		Capacity:       int(r.size),
		Buffered:       r.Available(),
		DroppedSamples: r.dropped.Load(),
		MissingSamples: r.shortReads.Load(),
	}
}
