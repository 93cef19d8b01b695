// Package metrics exposes voice session counters to Prometheus.
//
// Drops, overflows and underruns are expected during normal operation and
// are never reported as errors; they are counted here instead.
package metrics
