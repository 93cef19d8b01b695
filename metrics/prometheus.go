package metrics

import (
	"errors"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/crypto"
	"github.com/opd-ai/afvoice/limits"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used as the "reason" label.
const (
	ReasonReplay      = "replay"
	ReasonAuthFailure = "auth_failure"
	ReasonMalformed   = "malformed"
	ReasonOversize    = "oversize"
	ReasonUnknownTag  = "unknown_tag"
	ReasonDecode      = "decode"
	ReasonOther       = "other"
)

// Ring directions used as the "direction" label.
const (
	DirectionCapture  = "capture"
	DirectionPlayback = "playback"
)

// Metrics contains all Prometheus metrics for a voice session
type Metrics struct {
	// Datagram metrics
	DatagramsSent     prometheus.Counter
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	SendErrors        prometheus.Counter
	DatagramSize      prometheus.Histogram

	// Audio plumbing metrics
	RingOverflowSamples  *prometheus.CounterVec
	RingUnderflowSamples *prometheus.CounterVec
	RingFill             *prometheus.GaugeVec
	AdjusterUnderruns    prometheus.Counter

	KeyRotations prometheus.Counter
}

// New creates all metrics and registers them on reg. A nil reg creates
// unregistered metrics, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "afv_datagrams_sent_total",
			Help: "Total number of voice datagrams sent",
		}),
		DatagramsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "afv_datagrams_received_total",
			Help: "Total number of voice datagrams decoded successfully",
		}),
		DatagramsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afv_datagrams_dropped_total",
			Help: "Total number of received datagrams dropped, by reason",
		}, []string{"reason"}),
		SendErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "afv_send_errors_total",
			Help: "Total number of datagrams that could not be encoded or sent",
		}),
		DatagramSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "afv_datagram_size_bytes",
			Help:    "Size of sent datagrams in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 11), // 64 B to 64 KiB
		}),

		RingOverflowSamples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afv_ring_overflow_samples_total",
			Help: "Samples dropped because a ring buffer was full",
		}, []string{"direction"}),
		RingUnderflowSamples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "afv_ring_underflow_samples_total",
			Help: "Samples requested from a ring buffer that were not available",
		}, []string{"direction"}),
		RingFill: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "afv_ring_fill_samples",
			Help: "Samples currently buffered in a ring buffer",
		}, []string{"direction"}),
		AdjusterUnderruns: f.NewCounter(prometheus.CounterOpts{
			Name: "afv_adjuster_underruns_total",
			Help: "Playback requests padded with silence because the codec source failed",
		}),

		KeyRotations: f.NewCounter(prometheus.CounterOpts{
			Name: "afv_key_rotations_total",
			Help: "Total number of channel key rotations",
		}),
	}
}

// RecordDrop counts a dropped datagram under the reason err maps to.
func (m *Metrics) RecordDrop(err error) {
	m.DatagramsDropped.WithLabelValues(DropReason(err)).Inc()
}

// RecordSent counts one sent datagram of size bytes.
func (m *Metrics) RecordSent(size int) {
	m.DatagramsSent.Inc()
	m.DatagramSize.Observe(float64(size))
}

// DropReason maps a decode error to its label value.
func DropReason(err error) string {
	switch {
	case errors.Is(err, crypto.ErrReplay):
		return ReasonReplay
	case errors.Is(err, crypto.ErrAuthFailure):
		return ReasonAuthFailure
	case errors.Is(err, limits.ErrMessageTooLarge):
		return ReasonOversize
	case errors.Is(err, crypto.ErrChannelTagMismatch):
		return ReasonUnknownTag
	case errors.Is(err, crypto.ErrMalformedHeader), errors.Is(err, crypto.ErrUnsupportedMode),
		errors.Is(err, limits.ErrMessageEmpty):
		return ReasonMalformed
	case errors.Is(err, audio.ErrEmptyPayload):
		return ReasonDecode
	default:
		return ReasonOther
	}
}

// RingObserver turns cumulative ring counters into counter increments.
type RingObserver struct {
	overflow  prometheus.Counter
	underflow prometheus.Counter
	fill      prometheus.Gauge
	last      audio.RingStats
}

// NewRingObserver returns an observer for the ring in direction.
func (m *Metrics) NewRingObserver(direction string) *RingObserver {
	return &RingObserver{
		overflow:  m.RingOverflowSamples.WithLabelValues(direction),
		underflow: m.RingUnderflowSamples.WithLabelValues(direction),
		fill:      m.RingFill.WithLabelValues(direction),
	}
}

// Observe publishes s, adding the growth since the previous call.
func (o *RingObserver) Observe(s audio.RingStats) {
	if s.DroppedSamples > o.last.DroppedSamples {
		o.overflow.Add(float64(s.DroppedSamples - o.last.DroppedSamples))
	}
	if s.MissingSamples > o.last.MissingSamples {
		o.underflow.Add(float64(s.MissingSamples - o.last.MissingSamples))
	}
	o.fill.Set(float64(s.Buffered))
	o.last = s
}
