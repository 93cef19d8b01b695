package audio

// RingSource reads frames out of a RingBuffer, padding any shortfall with
// silence so the caller always receives a full frame.
type RingSource struct {
	ring *RingBuffer
}

// NewRingSource wraps ring as a SampleSource.
func NewRingSource(ring *RingBuffer) *RingSource {
	return &RingSource{ring: ring}
}

// GetFrame fills buf from the ring and pads the balance with silence.
func (s *RingSource) GetFrame(buf []int16) SourceStatus {
	n := s.ring.Read(buf)
	if n < len(buf) {
		Silence(buf[n:])
		return SourceSilenceInserted
	}
	return SourceOK
}

// RingSink writes frames into a RingBuffer. When the ring is full the
// newest samples are dropped.
type RingSink struct {
	ring *RingBuffer
}

// NewRingSink wraps ring as a SampleSink.
func NewRingSink(ring *RingBuffer) *RingSink {
	return &RingSink{ring: ring}
}

// PutFrame queues buf, reporting SinkOverflow if any samples were dropped.
func (s *RingSink) PutFrame(buf []int16) SinkStatus {
	if s.ring.Write(buf) < len(buf) {
		return SinkOverflow
	}
	return SinkOK
}
