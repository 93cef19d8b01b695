package crypto

import "fmt"

// SequenceGuard rejects duplicated and stale datagram sequence numbers using a
// sliding bitfield over the last width sequences.
//
// The guard remembers the highest accepted sequence and one bit for each of
// the width-1 sequences below it. Anything at or below highest-width is
// considered too old. Memory is fixed at construction.
//
// Example usage:
//
//	guard := crypto.NewSequenceGuard(64)
//	if guard.ShouldAccept(seq) {
//	    // authenticate the datagram first
//	    guard.MarkAccepted(seq)
//	}
//
// A guard belongs to one channel and is driven from one goroutine; it does
// no locking of its own.
type SequenceGuard struct {
	width   uint64
	bits    []uint64 // circular bitfield indexed by sequence % width
	highest uint64
	primed  bool
}

// NewSequenceGuard creates a guard with the given window width.
// Widths outside [1, MaxReplayWindow] are rejected.
func NewSequenceGuard(width int) (*SequenceGuard, error) {
	if width < 1 || width > MaxReplayWindow {
		return nil, fmt.Errorf("replay window %d outside [1, %d]", width, MaxReplayWindow)
	}
	return &SequenceGuard{
		width: uint64(width),
		bits:  make([]uint64, (width+63)/64),
	}, nil
}

// Width returns the configured window width.
func (g *SequenceGuard) Width() int { return int(g.width) }

// Highest returns the highest accepted sequence and whether any sequence has
// been accepted yet.
func (g *SequenceGuard) Highest() (uint64, bool) { return g.highest, g.primed }

// ShouldAccept reports whether sequence has not been seen and is inside the
// window. It does not mutate the guard.
func (g *SequenceGuard) ShouldAccept(sequence uint64) bool {
	if !g.primed || sequence > g.highest {
		return true
	}
	if g.highest-sequence >= g.width {
		return false
	}
	return !g.test(sequence)
}

// MarkAccepted records sequence as seen, sliding the window forward when it
// is a new high-water mark. Callers must only mark sequences that passed
// ShouldAccept and authenticated successfully.
func (g *SequenceGuard) MarkAccepted(sequence uint64) {
	if !g.primed {
		g.primed = true
		g.highest = sequence
		g.set(sequence)
		return
	}

	if sequence > g.highest {
		gap := sequence - g.highest
		if gap >= g.width {
			for i := range g.bits {
				g.bits[i] = 0
			}
		} else {
			for s := g.highest + 1; s != sequence; s++ {
				g.clear(s)
			}
		}
		g.highest = sequence
		g.set(sequence)
		return
	}

	if g.highest-sequence < g.width {
		g.set(sequence)
	}
}

// Reset forgets every accepted sequence.
func (g *SequenceGuard) Reset() {
	for i := range g.bits {
		g.bits[i] = 0
	}
	g.highest = 0
	g.primed = false
}

func (g *SequenceGuard) slot(sequence uint64) (int, uint64) {
	idx := sequence % g.width
	return int(idx / 64), 1 << (idx % 64)
}

func (g *SequenceGuard) test(sequence uint64) bool {
	w, m := g.slot(sequence)
	return g.bits[w]&m != 0
}

func (g *SequenceGuard) set(sequence uint64) {
	w, m := g.slot(sequence)
	g.bits[w] |= m
}

func (g *SequenceGuard) clear(sequence uint64) {
	w, m := g.slot(sequence)
	g.bits[w] &^= m
}
