package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTimeProvider(t *testing.T) {
	before := time.Now()
	now := DefaultTimeProvider{}.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after))
}

func TestKeyRingUsesInjectedClock(t *testing.T) {
	clock := &mockTimeProvider{now: time.Unix(1000, 0)}
	kr, err := NewKeyRing(testKey(1), time.Minute, clock)
	if err != nil {
		t.Fatalf("NewKeyRing failed: %v", err)
	}
	if err := kr.Rotate(testKey(2)); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	assert.Equal(t, KeyRotating, kr.State())
	clock.Advance(59 * time.Second)
	assert.Equal(t, KeyRotating, kr.State())
	clock.Advance(time.Second)
	assert.Equal(t, KeyActive, kr.State(), "grace ends exactly at the deadline")
}
