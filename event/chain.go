// Package event provides ordered observer chains for state-change and
// warning notifications.
//
// A Chain holds callbacks for one event category. Registration and removal
// are safe from any goroutine; Invoke runs every callback synchronously on
// the goroutine that raises the event, in registration order.
//
//	var warnings event.Chain[error]
//	h := warnings.Add(func(err error) { log.Print(err) })
//	defer warnings.Remove(h)
//	warnings.Invoke(errors.New("stale key"))
package event

import "sync"

// Handle identifies a registered callback for later removal.
type Handle uint64

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// Chain is an ordered list of callbacks for one event category.
// The zero value is ready to use.
type Chain[T any] struct {
	mu      sync.RWMutex
	next    Handle
	entries []entry[T]
}

// Add registers fn and returns its handle. A nil fn is ignored and yields
// the zero handle.
func (c *Chain[T]) Add(fn func(T)) Handle {
	if fn == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	// Copy on write so Invoke can iterate a snapshot without holding the lock.
	entries := make([]entry[T], len(c.entries), len(c.entries)+1)
	copy(entries, c.entries)
	c.entries = append(entries, entry[T]{handle: c.next, fn: fn})
	return c.next
}

// Remove unregisters the callback and reports whether it was present.
func (c *Chain[T]) Remove(h Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.handle == h {
			entries := make([]entry[T], 0, len(c.entries)-1)
			entries = append(entries, c.entries[:i]...)
			c.entries = append(entries, c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Invoke calls every registered callback with v.
func (c *Chain[T]) Invoke(v T) {
	c.mu.RLock()
	entries := c.entries
	c.mu.RUnlock()

	for _, e := range entries {
		e.fn(v)
	}
}

// Len returns the number of registered callbacks.
func (c *Chain[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
