// Package audio holds the sample plumbing between audio devices and the
// network: a lock-free ring buffer, sources and sinks over it, frame size
// adjusters that reconcile device callback sizes with codec frame sizes, a
// streaming resampler and payload codecs.
//
// Samples are signed 16-bit PCM. Code reachable from a device callback
// (RingBuffer, RingSource, RingSink and both adjusters) never blocks and
// never allocates once constructed.
//
// Example:
//
//	ring, _ := audio.NewRingBuffer(audio.DefaultFrameSize * 10)
//	src, _ := audio.NewSourceFrameSizeAdjuster(audio.NewRingSource(ring), audio.DefaultFrameSize)
//	buf := make([]int16, 480)
//	status := src.GetFrame(buf)
package audio
