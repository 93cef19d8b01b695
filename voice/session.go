package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/crypto"
	"github.com/opd-ai/afvoice/event"
	"github.com/opd-ai/afvoice/metrics"
	"github.com/opd-ai/afvoice/transport"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyStarted is returned by Start on a running session.
	ErrAlreadyStarted = errors.New("voice session already started")

	// ErrNoRemote is returned when sending before a peer address is known.
	ErrNoRemote = errors.New("no remote address")
)

// Config sizes one session's audio path.
type Config struct {
	SampleRate   int
	FrameSize    int // samples per channel per codec frame
	Channels     int
	RingCapacity int // samples per direction

	// Remote is the peer address. When nil the session answers the source
	// of the first authenticated datagram.
	Remote net.Addr

	// PollInterval is how often the transmit loop drains the capture ring.
	// Zero selects half a frame period.
	PollInterval time.Duration
}

// Session runs one voice channel over a transport: captured audio is
// encoded, sealed and sent, and received datagrams are opened, decoded and
// queued for playback.
//
// The device side touches only CaptureSink and PlaybackSource, both of which
// are lock-free. Network work happens on the transport's read goroutine and
// on the session's transmit goroutine.
type Session struct {
	cfg       Config
	transport transport.Transport
	channel   *crypto.Channel
	encoder   audio.Encoder
	decoder   audio.Decoder
	metrics   *metrics.Metrics

	txRing  *audio.RingBuffer
	rxRing  *audio.RingBuffer
	capture *audio.SinkFrameSizeAdjuster
	play    *audio.SourceFrameSizeAdjuster

	remote atomic.Pointer[net.Addr]

	// Receive-goroutine scratch.
	pcm []int16

	mu           sync.Mutex
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	authHandle   event.Handle
	txObserver   *metrics.RingObserver
	rxObserver   *metrics.RingObserver
	lastUnderrun uint64
}

// NewSession wires a session. The caller keeps ownership of tr and closes
// it after Stop.
func NewSession(cfg Config, tr transport.Transport, ch *crypto.Channel, enc audio.Encoder, dec audio.Decoder, m *metrics.Metrics) (*Session, error) {
	if tr == nil || ch == nil || enc == nil || dec == nil || m == nil {
		return nil, errors.New("voice session: nil collaborator")
	}
	if cfg.FrameSize <= 0 || cfg.Channels <= 0 || cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d samples x %d channels at %d Hz",
			audio.ErrInvalidFrameSize, cfg.FrameSize, cfg.Channels, cfg.SampleRate)
	}
	frame := cfg.FrameSize * cfg.Channels
	if cfg.RingCapacity < 2*frame {
		cfg.RingCapacity = 2 * frame
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Duration(cfg.FrameSize) * time.Second / time.Duration(cfg.SampleRate) / 2
	}

	txRing, err := audio.NewRingBuffer(cfg.RingCapacity)
	if err != nil {
		return nil, err
	}
	rxRing, err := audio.NewRingBuffer(cfg.RingCapacity)
	if err != nil {
		return nil, err
	}
	capture, err := audio.NewSinkFrameSizeAdjuster(audio.NewRingSink(txRing), frame)
	if err != nil {
		return nil, err
	}
	play, err := audio.NewSourceFrameSizeAdjuster(audio.NewRingSource(rxRing), frame)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:        cfg,
		transport:  tr,
		channel:    ch,
		encoder:    enc,
		decoder:    dec,
		metrics:    m,
		txRing:     txRing,
		rxRing:     rxRing,
		capture:    capture,
		play:       play,
		pcm:        make([]int16, 0, frame*6),
		txObserver: m.NewRingObserver(metrics.DirectionCapture),
		rxObserver: m.NewRingObserver(metrics.DirectionPlayback),
	}
	if cfg.Remote != nil {
		s.SetRemote(cfg.Remote)
	}
	return s, nil
}

// CaptureSink is handed to the capture device. Callback-sized writes are
// grouped into codec frames.
func (s *Session) CaptureSink() audio.SampleSink { return s.capture }

// PlaybackSource is handed to the playback device. Codec frames are split
// to whatever size the callback asks for.
func (s *Session) PlaybackSource() audio.SampleSource { return s.play }

// SetRemote sets the peer address.
func (s *Session) SetRemote(addr net.Addr) { s.remote.Store(&addr) }

// Remote returns the peer address, or nil if unknown.
func (s *Session) Remote() net.Addr {
	if p := s.remote.Load(); p != nil {
		return *p
	}
	return nil
}

// Start installs the receive handler and runs the transmit loop until ctx
// ends or Stop is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.authHandle = s.channel.OnAuthFailure.Add(func(e crypto.AuthFailureEvent) {
		logrus.WithFields(logrus.Fields{
			"function":    "Session.onAuthFailure",
			"channel_tag": e.ChannelTag,
			"sequence":    e.Sequence,
		}).Warn("Dropped unauthenticated voice datagram")
	})
	s.transport.SetHandler(s.handleDatagram)

	s.wg.Add(1)
	go s.transmitLoop(ctx)

	logrus.WithFields(logrus.Fields{
		"function":    "Session.Start",
		"channel_tag": s.channel.Tag(),
		"mode":        s.channel.Mode().String(),
		"local":       s.transport.LocalAddr().String(),
	}).Info("Voice session started")
	return nil
}

// Stop ends the transmit loop and detaches from the transport. It is safe
// to call more than once.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	s.wg.Wait()
	s.transport.SetHandler(nil)
	s.channel.OnAuthFailure.Remove(s.authHandle)

	logrus.WithFields(logrus.Fields{
		"function": "Session.Stop",
		"stats":    fmt.Sprintf("%+v", s.channel.Stats()),
	}).Info("Voice session stopped")
}

// RotateKeys installs new channel keys.
func (s *Session) RotateKeys(keys crypto.ChannelKeys) error {
	if err := s.channel.RotateKeys(keys); err != nil {
		return err
	}
	s.metrics.KeyRotations.Inc()
	return nil
}

func (s *Session) transmitLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	frame := make([]int16, s.cfg.FrameSize*s.cfg.Channels)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for s.txRing.Available() >= len(frame) {
				s.txRing.Read(frame)
				if err := s.sendFrame(frame); err != nil {
					s.metrics.SendErrors.Inc()
					logrus.WithFields(logrus.Fields{
						"function": "Session.transmitLoop",
						"error":    err.Error(),
					}).Debug("Failed to send voice frame")
				}
			}
			s.observe()
		}
	}
}

// sendFrame encodes, seals and sends one codec frame.
func (s *Session) sendFrame(pcm []int16) error {
	remote := s.Remote()
	if remote == nil {
		return ErrNoRemote
	}
	payload, err := s.encoder.Encode(pcm)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	datagram, err := s.channel.EncodeDatagram(payload)
	if err != nil {
		return err
	}
	if err := s.transport.Send(datagram, remote); err != nil {
		return fmt.Errorf("send datagram: %w", err)
	}
	s.metrics.RecordSent(len(datagram))
	return nil
}

// handleDatagram runs on the transport's read goroutine.
func (s *Session) handleDatagram(data []byte, from net.Addr) {
	d, err := s.channel.DecodeDatagram(data)
	if err != nil {
		s.metrics.RecordDrop(err)
		logrus.WithFields(logrus.Fields{
			"function": "Session.handleDatagram",
			"from":     from.String(),
			"reason":   metrics.DropReason(err),
		}).Debug("Dropped voice datagram")
		return
	}
	s.remote.CompareAndSwap(nil, &from)

	s.pcm, err = s.decoder.Decode(s.pcm[:0], d.Payload)
	if err != nil {
		s.metrics.RecordDrop(err)
		return
	}
	s.rxRing.Write(s.pcm)
	s.metrics.DatagramsReceived.Inc()
}

// observe publishes ring and adjuster counters.
func (s *Session) observe() {
	s.txObserver.Observe(s.txRing.Stats())
	s.rxObserver.Observe(s.rxRing.Stats())
	if u := s.play.Underruns(); u > s.lastUnderrun {
		s.metrics.AdjusterUnderruns.Add(float64(u - s.lastUnderrun))
		s.lastUnderrun = u
	}
}

// Stats returns the channel counters and ring snapshots.
func (s *Session) Stats() Stats {
	return Stats{
		Channel:  s.channel.Stats(),
		Capture:  s.txRing.Stats(),
		Playback: s.rxRing.Stats(),
	}
}

// Stats groups session counters.
type Stats struct {
	Channel  crypto.ChannelStats
	Capture  audio.RingStats
	Playback audio.RingStats
}
