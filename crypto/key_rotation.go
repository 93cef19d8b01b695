package crypto

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// KeyState names the phases of the key rotation state machine:
//
//	Active(key) --Rotate(new)--> Rotating(new, old, deadline) --deadline--> Active(new)
type KeyState int

const (
	// KeyActive means only the current key is accepted.
	KeyActive KeyState = iota
	// KeyRotating means the previous key is still accepted until the deadline.
	KeyRotating
)

// String returns the state name.
func (s KeyState) String() string {
	if s == KeyRotating {
		return "rotating"
	}
	return "active"
}

// DefaultRotationGrace is how long datagrams sealed under a rotated-out key
// remain decryptable.
const DefaultRotationGrace = 10 * time.Second

// keySnapshot is immutable once published.
type keySnapshot struct {
	current  *Cipher
	previous *Cipher // nil when Active
	deadline time.Time
	version  uint64
}

// KeyRing holds the current and, during rotation, previous AEAD key for one
// direction of a channel.
//
// Readers take a lock-free snapshot, so a decode racing a Rotate sees either
// the old or the new pair, never a mix. Rotation itself is serialized.
type KeyRing struct {
	snap         atomic.Pointer[keySnapshot]
	mu           sync.Mutex // serializes writers
	grace        time.Duration
	timeProvider TimeProvider
}

// NewKeyRing creates a ring in the Active state.
// Pass nil for timeProvider to use the default time provider.
func NewKeyRing(key Key, grace time.Duration, timeProvider TimeProvider) (*KeyRing, error) {
	if grace < 0 {
		return nil, errors.New("rotation grace period must not be negative")
	}
	if timeProvider == nil {
		timeProvider = DefaultTimeProvider{}
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, err
	}
	kr := &KeyRing{grace: grace, timeProvider: timeProvider}
	kr.snap.Store(&keySnapshot{current: c})
	return kr, nil
}

// Rotate installs newKey as current and keeps the old current key acceptable
// for the grace period. A rotation during an earlier grace window drops the
// oldest key immediately.
func (kr *KeyRing) Rotate(newKey Key) error {
	c, err := NewCipher(newKey)
	if err != nil {
		return err
	}

	kr.mu.Lock()
	defer kr.mu.Unlock()

	old := kr.snap.Load()
	next := &keySnapshot{
		current: c,
		version: old.version + 1,
	}
	if kr.grace > 0 {
		next.previous = old.current
		next.deadline = kr.timeProvider.Now().Add(kr.grace)
	}
	kr.snap.Store(next)

	logrus.WithFields(logrus.Fields{
		"function": "KeyRing.Rotate",
		"version":  next.version,
		"grace":    kr.grace,
	}).Info("Rotated channel key")
	return nil
}

// State reports the current phase of the rotation state machine.
func (kr *KeyRing) State() KeyState {
	s := kr.snap.Load()
	if s.previous != nil && kr.timeProvider.Now().Before(s.deadline) {
		return KeyRotating
	}
	return KeyActive
}

// Current returns the cipher used for sealing.
func (kr *KeyRing) Current() *Cipher {
	return kr.snap.Load().current
}

// Version increments on every rotation.
func (kr *KeyRing) Version() uint64 {
	return kr.snap.Load().version
}

// Open tries the current key, then the previous key while the grace window
// is open. Only the tag check decides which key matched.
func (kr *KeyRing) Open(dst []byte, sequence uint64, header, sealed []byte) ([]byte, error) {
	s := kr.snap.Load()
	out, err := s.current.Open(dst, sequence, header, sealed)
	if err == nil {
		return out, nil
	}
	if s.previous != nil && kr.timeProvider.Now().Before(s.deadline) {
		if out, perr := s.previous.Open(dst, sequence, header, sealed); perr == nil {
			return out, nil
		}
	}
	return nil, err
}

// Expire ends a grace window early. Subsequent opens use the current key only.
func (kr *KeyRing) Expire() {
	kr.mu.Lock()
	defer kr.mu.Unlock()

	s := kr.snap.Load()
	if s.previous == nil {
		return
	}
	kr.snap.Store(&keySnapshot{current: s.current, version: s.version})
}
