package crypto

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/afvoice/event"
	"github.com/opd-ai/afvoice/limits"
	"github.com/sirupsen/logrus"
)

// ChannelConfig describes one logical audio stream. Key material is supplied
// by the session collaborator; the channel never negotiates keys.
type ChannelConfig struct {
	Tag           string
	Mode          Mode
	Keys          ChannelKeys
	ReplayWindow  int           // 0 selects DefaultReplayWindow
	RotationGrace time.Duration // 0 selects DefaultRotationGrace; negative disables the grace window
	TimeProvider  TimeProvider  // nil selects DefaultTimeProvider
}

// Datagram is a verified, decrypted inbound datagram.
type Datagram struct {
	Header  Header
	Payload []byte
}

// AuthFailureEvent is raised when an inbound datagram fails tag verification.
// It may indicate an attack, a stale key, or corruption; they are not
// distinguished.
type AuthFailureEvent struct {
	ChannelTag string
	Sequence   uint64
}

// ChannelStats is a snapshot of per-channel counters.
type ChannelStats struct {
	Encoded      uint64
	Decoded      uint64
	Replays      uint64
	AuthFailures uint64
	Malformed    uint64
	ForeignTag   uint64
	LastSequence uint64
}

// Channel composes the envelope codec, AEAD engine and replay guard into a
// single encode/decode contract for one logical audio stream.
//
// Encoding and decoding touch disjoint state: the transmit counter is atomic
// and the replay guard is guarded by its own mutex, so one goroutine may
// encode while another decodes.
type Channel struct {
	tag  string
	mode Mode

	txSeq  atomic.Uint64 // last sequence handed out
	txKeys *KeyRing
	rxKeys *KeyRing

	rxMu  sync.Mutex
	guard *SequenceGuard

	roleConflict atomic.Bool

	// OnAuthFailure is raised synchronously on the decoding goroutine.
	OnAuthFailure event.Chain[AuthFailureEvent]

	encoded      atomic.Uint64
	decoded      atomic.Uint64
	replays      atomic.Uint64
	authFailures atomic.Uint64
	malformed    atomic.Uint64
	foreignTag   atomic.Uint64
}

// NewChannel validates the configuration and builds a channel. The copy of
// the key material held in cfg is wiped once the ciphers are prepared.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	if cfg.Tag == "" {
		return nil, errors.New("channel tag is required")
	}
	if len(cfg.Tag) > limits.MaxChannelTagLength {
		return nil, fmt.Errorf("channel tag length %d exceeds %d", len(cfg.Tag), limits.MaxChannelTagLength)
	}
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, cfg.Mode)
	}

	window := cfg.ReplayWindow
	if window == 0 {
		window = DefaultReplayWindow
	}
	guard, err := NewSequenceGuard(window)
	if err != nil {
		return nil, err
	}

	grace := cfg.RotationGrace
	switch {
	case grace == 0:
		grace = DefaultRotationGrace
	case grace < 0:
		grace = 0
	}

	ch := &Channel{tag: cfg.Tag, mode: cfg.Mode, guard: guard}
	if cfg.Mode == ModeChaCha20Poly1305 {
		if ch.txKeys, err = NewKeyRing(cfg.Keys.Transmit, grace, cfg.TimeProvider); err != nil {
			return nil, err
		}
		if ch.rxKeys, err = NewKeyRing(cfg.Keys.Receive, grace, cfg.TimeProvider); err != nil {
			return nil, err
		}
	}
	cfg.Keys.Wipe()

	logrus.WithFields(logrus.Fields{
		"function":      "NewChannel",
		"channel_tag":   ch.tag,
		"mode":          ch.mode.String(),
		"replay_window": window,
		"grace":         grace,
	}).Info("Crypto channel created")

	return ch, nil
}

// Tag returns the channel tag.
func (c *Channel) Tag() string { return c.tag }

// Mode returns the channel's crypto mode.
func (c *Channel) Mode() Mode { return c.mode }

// EncodeDatagram allocates the next transmit sequence, builds the header and
// returns header||ciphertext||tag (AEAD) or header||payload (None).
func (c *Channel) EncodeDatagram(payload []byte) ([]byte, error) {
	if c.roleConflict.Load() {
		return nil, ErrKeyRoleConflict
	}
	seq, err := c.nextSequence()
	if err != nil {
		return nil, err
	}

	hdr, err := EncodeHeader(Header{ChannelTag: c.tag, Sequence: seq, Mode: c.mode})
	if err != nil {
		return nil, err
	}

	if limit := limits.MaxPayloadSize(len(hdr), c.mode.Overhead()); len(payload) > limit {
		return nil, fmt.Errorf("%w: payload size %d exceeds limit %d", limits.ErrMessageTooLarge, len(payload), limit)
	}

	out := make([]byte, 0, len(hdr)+len(payload)+c.mode.Overhead())
	out = append(out, hdr...)
	if c.mode == ModeChaCha20Poly1305 {
		out = c.txKeys.Current().Seal(out, seq, hdr, payload)
	} else {
		out = append(out, payload...)
	}

	c.encoded.Add(1)
	return out, nil
}

// DecodeDatagram verifies and decrypts an inbound datagram.
//
// The replay check runs before any crypto work, and the sequence is marked
// accepted only after authentication succeeds, so a forged datagram cannot
// blacklist a sequence the genuine sender has yet to deliver.
func (c *Channel) DecodeDatagram(b []byte) (Datagram, error) {
	if err := limits.ValidateDatagram(b); err != nil {
		c.malformed.Add(1)
		return Datagram{}, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}

	h, n, err := DecodeHeader(b)
	if err != nil {
		c.malformed.Add(1)
		return Datagram{}, err
	}
	if h.Mode == ModeUndefined {
		c.malformed.Add(1)
		return Datagram{}, fmt.Errorf("%w: undefined mode", ErrMalformedHeader)
	}
	if h.ChannelTag != c.tag {
		c.foreignTag.Add(1)
		return Datagram{}, fmt.Errorf("%w: got %q, want %q", ErrChannelTagMismatch, h.ChannelTag, c.tag)
	}
	if h.Mode != c.mode {
		c.malformed.Add(1)
		return Datagram{}, fmt.Errorf("%w: datagram mode %s on %s channel", ErrUnsupportedMode, h.Mode, c.mode)
	}

	c.rxMu.Lock()
	defer c.rxMu.Unlock()

	if !c.guard.ShouldAccept(h.Sequence) {
		c.replays.Add(1)
		return Datagram{}, ErrReplay
	}

	hdr, body := b[:n], b[n:]
	var payload []byte
	if c.mode == ModeChaCha20Poly1305 {
		payload, err = c.rxKeys.Open(nil, h.Sequence, hdr, body)
		if err != nil {
			c.authFailures.Add(1)
			NewLogger("Channel.DecodeDatagram").
				WithError(err, "open").
				WithFields(logrus.Fields{"channel_tag": c.tag, "sequence": h.Sequence}).
				Warn("Datagram failed authentication")
			c.OnAuthFailure.Invoke(AuthFailureEvent{ChannelTag: c.tag, Sequence: h.Sequence})
			if c.sealedWithOwnKey(h.Sequence, hdr, body) {
				return Datagram{}, fmt.Errorf("%w: %w", ErrKeyRoleConflict, err)
			}
			return Datagram{}, err
		}
	} else {
		payload = append([]byte(nil), body...)
	}

	c.guard.MarkAccepted(h.Sequence)
	c.decoded.Add(1)
	return Datagram{Header: h, Payload: payload}, nil
}

// RotateKeys installs new directional keys. Datagrams sealed under the
// previous receive key stay decryptable for the grace period.
func (c *Channel) RotateKeys(keys ChannelKeys) error {
	defer keys.Wipe()
	if c.mode != ModeChaCha20Poly1305 {
		return fmt.Errorf("%w: key rotation on %s channel", ErrUnsupportedMode, c.mode)
	}
	if err := c.txKeys.Rotate(keys.Transmit); err != nil {
		return err
	}
	return c.rxKeys.Rotate(keys.Receive)
}

// ReceiveKeyState reports the receive key rotation phase.
func (c *Channel) ReceiveKeyState() KeyState {
	if c.rxKeys == nil {
		return KeyActive
	}
	return c.rxKeys.State()
}

// Stats returns a snapshot of the channel counters.
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{
		Encoded:      c.encoded.Load(),
		Decoded:      c.decoded.Load(),
		Replays:      c.replays.Load(),
		AuthFailures: c.authFailures.Load(),
		Malformed:    c.malformed.Load(),
		ForeignTag:   c.foreignTag.Load(),
		LastSequence: c.txSeq.Load(),
	}
}

// sealedWithOwnKey reports whether a datagram that failed under the receive
// keys opens under the transmit keys. Once seen, transmission stops: the
// peer would otherwise keep sealing the same sequences under the same key.
func (c *Channel) sealedWithOwnKey(seq uint64, hdr, body []byte) bool {
	if _, err := c.txKeys.Open(nil, seq, hdr, body); err != nil {
		return false
	}
	if !c.roleConflict.Swap(true) {
		NewLogger("Channel.DecodeDatagram").
			WithFields(logrus.Fields{"channel_tag": c.tag, "sequence": seq}).
			Error("Peer seals with this endpoint's transmit key; both ends hold the same key role, transmission stopped")
	}
	return true
}

func (c *Channel) nextSequence() (uint64, error) {
	for {
		cur := c.txSeq.Load()
		if cur == math.MaxUint64 {
			return 0, ErrSequenceExhausted
		}
		if c.txSeq.CompareAndSwap(cur, cur+1) {
			return cur + 1, nil
		}
	}
}
