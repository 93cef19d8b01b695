package audio

import "errors"

const (
	// DefaultSampleRate is the pipeline sample rate agreed out-of-band.
	DefaultSampleRate = 48000

	// DefaultFrameSize is the codec frame length in samples per channel (20 ms at 48 kHz).
	DefaultFrameSize = 960
)

// ErrInvalidFrameSize indicates a non-positive frame or capacity size.
var ErrInvalidFrameSize = errors.New("invalid frame size")

// SourceStatus reports how a source filled a frame.
type SourceStatus int

const (
	// SourceOK means the frame holds real audio.
	SourceOK SourceStatus = iota
	// SourceSilenceInserted means part or all of the frame was padded with
	// silence because no audio was available.
	SourceSilenceInserted
	// SourceUnderrun means an adjuster's origin failed mid-request; the
	// unsupplied balance of the frame holds silence.
	SourceUnderrun
	// SourceError means the source could not produce a frame; the buffer
	// contents are unspecified.
	SourceError
)

// String returns the status name.
func (s SourceStatus) String() string {
	switch s {
	case SourceOK:
		return "ok"
	case SourceSilenceInserted:
		return "silence_inserted"
	case SourceUnderrun:
		return "underrun"
	case SourceError:
		return "error"
	default:
		return "unknown"
	}
}

// worse returns the more severe of two statuses.
func worse(a, b SourceStatus) SourceStatus {
	if b > a {
		return b
	}
	return a
}

// SinkStatus reports how a sink consumed a frame.
type SinkStatus int

const (
	// SinkOK means every sample was accepted.
	SinkOK SinkStatus = iota
	// SinkOverflow means the sink dropped some of the newest samples.
	SinkOverflow
)

// SampleSource produces audio. GetFrame fills the whole of buf, which is
// the requested frame length. Implementations called from a device callback
// must not block or allocate.
type SampleSource interface {
	GetFrame(buf []int16) SourceStatus
}

// SampleSink consumes audio. PutFrame must not retain buf.
type SampleSink interface {
	PutFrame(buf []int16) SinkStatus
}

// SourceFunc adapts a function to SampleSource.
type SourceFunc func(buf []int16) SourceStatus

// GetFrame calls f(buf).
func (f SourceFunc) GetFrame(buf []int16) SourceStatus { return f(buf) }

// SinkFunc adapts a function to SampleSink.
type SinkFunc func(buf []int16) SinkStatus

// PutFrame calls f(buf).
func (f SinkFunc) PutFrame(buf []int16) SinkStatus { return f(buf) }

// Silence zeroes buf.
func Silence(buf []int16) {
	for i := range buf {
		buf[i] = 0
	}
}
