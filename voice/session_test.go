package voice

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/opd-ai/afvoice/audio"
	"github.com/opd-ai/afvoice/crypto"
	"github.com/opd-ai/afvoice/metrics"
	"github.com/opd-ai/afvoice/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

// memTransport delivers datagrams synchronously to its peer's handler.
type memTransport struct {
	addr memAddr
	peer *memTransport

	mu      sync.Mutex
	handler transport.DatagramHandler
	sent    [][]byte
}

func memPair() (*memTransport, *memTransport) {
	a := &memTransport{addr: "a"}
	b := &memTransport{addr: "b"}
	a.peer, b.peer = b, a
	return a, b
}

func (m *memTransport) Send(data []byte, _ net.Addr) error {
	m.mu.Lock()
	m.sent = append(m.sent, append([]byte(nil), data...))
	m.mu.Unlock()
	m.peer.deliver(data, m.addr)
	return nil
}

func (m *memTransport) deliver(data []byte, from net.Addr) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(data, from)
	}
}

func (m *memTransport) Close() error        { return nil }
func (m *memTransport) LocalAddr() net.Addr { return m.addr }

func (m *memTransport) SetHandler(h transport.DatagramHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

func (m *memTransport) lastSent() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

const testFrame = 480

func testConfig() Config {
	return Config{
		SampleRate:   audio.DefaultSampleRate,
		FrameSize:    testFrame,
		Channels:     1,
		RingCapacity: testFrame * 8,
		PollInterval: time.Millisecond,
	}
}

func channelPair(t *testing.T) (*crypto.Channel, *crypto.Channel) {
	t.Helper()
	secret := make([]byte, crypto.KeySize)
	for i := range secret {
		secret[i] = byte(i)
	}
	ka, err := crypto.DeriveChannelKeys(secret, nil, "ABC", crypto.RoleInitiator)
	require.NoError(t, err)
	kb, err := crypto.DeriveChannelKeys(secret, nil, "ABC", crypto.RoleResponder)
	require.NoError(t, err)

	a, err := crypto.NewChannel(crypto.ChannelConfig{Tag: "ABC", Mode: crypto.ModeChaCha20Poly1305, Keys: ka})
	require.NoError(t, err)
	b, err := crypto.NewChannel(crypto.ChannelConfig{Tag: "ABC", Mode: crypto.ModeChaCha20Poly1305, Keys: kb})
	require.NoError(t, err)
	return a, b
}

type endpoint struct {
	session *Session
	tr      *memTransport
	metrics *metrics.Metrics
}

func sessionPair(t *testing.T) (endpoint, endpoint) {
	t.Helper()
	ta, tb := memPair()
	ca, cb := channelPair(t)

	ma, mb := metrics.New(nil), metrics.New(nil)

	cfgA := testConfig()
	cfgA.Remote = tb.addr
	a, err := NewSession(cfgA, ta, ca, audio.PCMEncoder{}, audio.PCMDecoder{}, ma)
	require.NoError(t, err)
	b, err := NewSession(testConfig(), tb, cb, audio.PCMEncoder{}, audio.PCMDecoder{}, mb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		a.Stop()
		b.Stop()
		cancel()
	})
	return endpoint{a, ta, ma}, endpoint{b, tb, mb}
}

func ramp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i * 3)
	}
	return out
}

func TestSessionCaptureToPlayback(t *testing.T) {
	a, b := sessionPair(t)

	// Two device callbacks of 240 samples make one codec frame.
	captured := ramp(testFrame)
	a.session.CaptureSink().PutFrame(captured[:240])
	a.session.CaptureSink().PutFrame(captured[240:])

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.metrics.DatagramsReceived) == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, testFrame, b.session.Stats().Playback.Buffered)

	// The playback device asks for 160 samples at a time.
	var played []int16
	buf := make([]int16, 160)
	for i := 0; i < 3; i++ {
		require.Equal(t, audio.SourceOK, b.session.PlaybackSource().GetFrame(buf))
		played = append(played, buf...)
	}
	assert.Equal(t, captured, played)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(a.metrics.DatagramsSent) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, a.tr.addr.String(), b.session.Remote().String(), "remote learned from first datagram")
}

func TestSessionPlaybackUnderrunIsSilence(t *testing.T) {
	_, b := sessionPair(t)

	buf := []int16{1, 2, 3}
	assert.Equal(t, audio.SourceSilenceInserted, b.session.PlaybackSource().GetFrame(buf))
	assert.Equal(t, []int16{0, 0, 0}, buf)
}

func TestSessionDropsReplayAndForgery(t *testing.T) {
	a, b := sessionPair(t)

	a.session.CaptureSink().PutFrame(ramp(testFrame))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.metrics.DatagramsReceived) == 1
	}, 2*time.Second, time.Millisecond)

	datagram := a.tr.lastSent()
	b.tr.deliver(datagram, a.tr.addr)

	// A tampered copy of a fresh datagram gets past the replay check and
	// fails authentication.
	next, err := a.session.channel.EncodeDatagram([]byte{0, 0})
	require.NoError(t, err)
	next[len(next)-1] ^= 0xff

	var authFailures int
	b.session.channel.OnAuthFailure.Add(func(crypto.AuthFailureEvent) { authFailures++ })
	b.tr.deliver(next, a.tr.addr)
	b.tr.deliver([]byte{0xc1}, a.tr.addr)

	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonReplay)))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonAuthFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.DatagramsDropped.WithLabelValues(metrics.ReasonMalformed)))
	assert.Equal(t, 1, authFailures)
	assert.Equal(t, 1.0, testutil.ToFloat64(b.metrics.DatagramsReceived))
}

func TestSessionWithoutRemoteCountsSendErrors(t *testing.T) {
	ta, _ := memPair()
	ca, _ := channelPair(t)
	m := metrics.New(nil)

	s, err := NewSession(testConfig(), ta, ca, audio.PCMEncoder{}, audio.PCMDecoder{}, m)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.CaptureSink().PutFrame(ramp(testFrame))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.SendErrors) == 1
	}, 2*time.Second, time.Millisecond)
	assert.ErrorIs(t, s.sendFrame(ramp(testFrame)), ErrNoRemote)
}

func TestSessionStartStop(t *testing.T) {
	ta, _ := memPair()
	ca, _ := channelPair(t)
	s, err := NewSession(testConfig(), ta, ca, audio.PCMEncoder{}, audio.PCMDecoder{}, metrics.New(nil))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	s.Stop()
	s.Stop()
	assert.Nil(t, ta.handler)

	require.NoError(t, s.Start(context.Background()), "a stopped session can restart")
	s.Stop()
}

func TestSessionRotateKeys(t *testing.T) {
	a, b := sessionPair(t)

	secret := make([]byte, crypto.KeySize)
	for i := range secret {
		secret[i] = byte(0xa0 + i)
	}
	ka, err := crypto.DeriveChannelKeys(secret, nil, "ABC", crypto.RoleInitiator)
	require.NoError(t, err)
	kb, err := crypto.DeriveChannelKeys(secret, nil, "ABC", crypto.RoleResponder)
	require.NoError(t, err)

	// The receiver rotates first; the sender's old key stays valid for the
	// grace period.
	require.NoError(t, b.session.RotateKeys(kb))
	a.session.CaptureSink().PutFrame(ramp(testFrame))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.metrics.DatagramsReceived) == 1
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, a.session.RotateKeys(ka))
	a.session.CaptureSink().PutFrame(ramp(testFrame))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(b.metrics.DatagramsReceived) == 2
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.metrics.KeyRotations))
	assert.Equal(t, crypto.KeyRotating, b.session.channel.ReceiveKeyState())
}

func TestNewSessionValidation(t *testing.T) {
	ta, _ := memPair()
	ca, _ := channelPair(t)

	_, err := NewSession(testConfig(), nil, ca, audio.PCMEncoder{}, audio.PCMDecoder{}, metrics.New(nil))
	assert.Error(t, err)

	cfg := testConfig()
	cfg.FrameSize = 0
	_, err = NewSession(cfg, ta, ca, audio.PCMEncoder{}, audio.PCMDecoder{}, metrics.New(nil))
	assert.ErrorIs(t, err, audio.ErrInvalidFrameSize)
}
