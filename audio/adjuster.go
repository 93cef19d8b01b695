package audio

import (
	"fmt"
	"sync/atomic"
)

// SourceFrameSizeAdjuster serves arbitrary frame lengths from an origin that
// only produces fixed-size frames.
//
// It holds one pending origin frame and a read offset into it. A request is
// served from the pending frame first; further origin frames are pulled one
// at a time, and only while the request is still short, so the adjuster never
// adds more than one origin frame of latency.
//
// The adjuster is not safe for concurrent use; it lives on whichever
// goroutine drives the device callback.
type SourceFrameSizeAdjuster struct {
	origin  SampleSource
	pending []int16
	offset  int

	pulls     atomic.Uint64
	underruns atomic.Uint64
}

// NewSourceFrameSizeAdjuster wraps origin, which produces frames of
// originFrameSize samples.
func NewSourceFrameSizeAdjuster(origin SampleSource, originFrameSize int) (*SourceFrameSizeAdjuster, error) {
	if origin == nil {
		return nil, fmt.Errorf("source frame size adjuster: nil origin")
	}
	if originFrameSize <= 0 {
		return nil, fmt.Errorf("%w: origin frame size %d", ErrInvalidFrameSize, originFrameSize)
	}
	return &SourceFrameSizeAdjuster{
		origin:  origin,
		pending: make([]int16, originFrameSize),
		offset:  originFrameSize, // nothing pending yet
	}, nil
}

// OriginFrameSize returns the fixed frame length pulled from the origin.
func (a *SourceFrameSizeAdjuster) OriginFrameSize() int { return len(a.pending) }

// Pending returns the number of buffered samples not yet handed out.
func (a *SourceFrameSizeAdjuster) Pending() int { return len(a.pending) - a.offset }

// GetFrame fills buf with exactly len(buf) samples.
//
// If the origin fails before the request is satisfied, the balance is filled
// with silence and SourceUnderrun is returned. The number of origin pulls per
// call is bounded by the request length, so a silent or exhausted origin can
// never keep the caller looping.
func (a *SourceFrameSizeAdjuster) GetFrame(buf []int16) SourceStatus {
	status := SourceOK
	filled := 0
	maxPulls := len(buf)/len(a.pending) + 1

	for pulls := 0; filled < len(buf); {
		if a.offset == len(a.pending) {
			if pulls == maxPulls {
				return a.underrun(buf[filled:])
			}
			st := a.origin.GetFrame(a.pending)
			pulls++
			a.pulls.Add(1)
			if st == SourceError {
				return a.underrun(buf[filled:])
			}
			status = worse(status, st)
			a.offset = 0
		}

		n := copy(buf[filled:], a.pending[a.offset:])
		a.offset += n
		filled += n
	}
	return status
}

func (a *SourceFrameSizeAdjuster) underrun(rest []int16) SourceStatus {
	Silence(rest)
	a.offset = len(a.pending)
	a.underruns.Add(1)
	return SourceUnderrun
}

// Pulls returns the number of origin frames requested so far.
func (a *SourceFrameSizeAdjuster) Pulls() uint64 { return a.pulls.Load() }

// Underruns returns the number of requests that were padded with silence
// because the origin failed.
func (a *SourceFrameSizeAdjuster) Underruns() uint64 { return a.underruns.Load() }

// SinkFrameSizeAdjuster accumulates arbitrarily sized writes into fixed-size
// frames for an origin sink, the capture-side mirror of
// SourceFrameSizeAdjuster.
type SinkFrameSizeAdjuster struct {
	origin  SampleSink
	pending []int16
	fill    int

	frames    atomic.Uint64
	overflows atomic.Uint64
}

// NewSinkFrameSizeAdjuster wraps origin, which consumes frames of
// originFrameSize samples.
func NewSinkFrameSizeAdjuster(origin SampleSink, originFrameSize int) (*SinkFrameSizeAdjuster, error) {
	if origin == nil {
		return nil, fmt.Errorf("sink frame size adjuster: nil origin")
	}
	if originFrameSize <= 0 {
		return nil, fmt.Errorf("%w: origin frame size %d", ErrInvalidFrameSize, originFrameSize)
	}
	return &SinkFrameSizeAdjuster{origin: origin, pending: make([]int16, originFrameSize)}, nil
}

// PutFrame appends buf and forwards every completed origin frame. Samples
// that do not complete a frame stay pending for the next call.
func (a *SinkFrameSizeAdjuster) PutFrame(buf []int16) SinkStatus {
	status := SinkOK
	for len(buf) > 0 {
		n := copy(a.pending[a.fill:], buf)
		a.fill += n
		buf = buf[n:]

		if a.fill == len(a.pending) {
			if a.origin.PutFrame(a.pending) == SinkOverflow {
				status = SinkOverflow
				a.overflows.Add(1)
			}
			a.frames.Add(1)
			a.fill = 0
		}
	}
	return status
}

// Pending returns the number of samples waiting for a frame to complete.
func (a *SinkFrameSizeAdjuster) Pending() int { return a.fill }

// Frames returns the number of complete frames forwarded.
func (a *SinkFrameSizeAdjuster) Frames() uint64 { return a.frames.Load() }
