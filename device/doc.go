// Package device bridges hardware audio streams to audio.SampleSource and
// audio.SampleSink.
//
// A Bridge opens at most one input and one output stream through a Backend
// and runs the configured source and sink from the driver's real-time
// callbacks. Channel count differences between the hardware and the
// pipeline are resolved here by duplication or averaging.
//
// The Backend interface keeps driver bindings out of this package; the
// device/malgo subpackage provides one over miniaudio.
package device
