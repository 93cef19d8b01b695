package crypto

import "time"

// TimeProvider abstracts the clock used for rotation deadlines so the grace
// window can be driven deterministically in tests.
// Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }
