package audio

import "sync/atomic"

// SampleStorage is an immutable block of samples, such as an effect or
// ambient sound asset. Any number of playback paths may read it at once.
type SampleStorage struct {
	samples []int16
}

// NewSampleStorage copies samples into a new immutable storage.
func NewSampleStorage(samples []int16) *SampleStorage {
	return &SampleStorage{samples: append([]int16(nil), samples...)}
}

// Len returns the number of stored samples.
func (s *SampleStorage) Len() int { return len(s.samples) }

// CopyAt copies samples starting at offset into dst and returns the count.
func (s *SampleStorage) CopyAt(dst []int16, offset int) int {
	if offset < 0 || offset >= len(s.samples) {
		return 0
	}
	return copy(dst, s.samples[offset:])
}

// RecordedSource plays a SampleStorage once or in a loop. Each source keeps
// its own position, so sources sharing one storage never interfere.
type RecordedSource struct {
	storage  *SampleStorage
	position int
	loop     bool
	done     atomic.Bool
}

// NewRecordedSource creates a source positioned at the start of storage.
func NewRecordedSource(storage *SampleStorage, loop bool) *RecordedSource {
	return &RecordedSource{storage: storage, loop: loop}
}

// GetFrame copies the next len(buf) samples. A non-looping source pads with
// silence after the end and reports SourceSilenceInserted from then on.
func (r *RecordedSource) GetFrame(buf []int16) SourceStatus {
	if r.storage.Len() == 0 {
		Silence(buf)
		r.done.Store(true)
		return SourceSilenceInserted
	}

	filled := 0
	for filled < len(buf) {
		if r.position >= r.storage.Len() {
			if !r.loop {
				Silence(buf[filled:])
				r.done.Store(true)
				return SourceSilenceInserted
			}
			r.position = 0
		}
		n := r.storage.CopyAt(buf[filled:], r.position)
		r.position += n
		filled += n
	}
	return SourceOK
}

// Done reports whether a non-looping source has played to the end.
func (r *RecordedSource) Done() bool { return r.done.Load() }

// Rewind restarts playback from the first sample.
func (r *RecordedSource) Rewind() {
	r.position = 0
	r.done.Store(false)
}
