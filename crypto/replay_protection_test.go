package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// accept runs the check-then-mark sequence the channel performs.
func accept(g *SequenceGuard, seq uint64) bool {
	if !g.ShouldAccept(seq) {
		return false
	}
	g.MarkAccepted(seq)
	return true
}

func TestNewSequenceGuardWidth(t *testing.T) {
	for _, w := range []int{0, -1, MaxReplayWindow + 1} {
		_, err := NewSequenceGuard(w)
		assert.Error(t, err, "width %d", w)
	}
	g, err := NewSequenceGuard(MaxReplayWindow)
	require.NoError(t, err)
	assert.Equal(t, MaxReplayWindow, g.Width())
}

func TestSequenceGuardFirstSequenceAccepted(t *testing.T) {
	g, err := NewSequenceGuard(16)
	require.NoError(t, err)

	_, primed := g.Highest()
	assert.False(t, primed)

	assert.True(t, accept(g, 1_000_000))
	high, primed := g.Highest()
	assert.True(t, primed)
	assert.Equal(t, uint64(1_000_000), high)
}

func TestSequenceGuardMonotonicStream(t *testing.T) {
	g, err := NewSequenceGuard(8)
	require.NoError(t, err)

	for seq := uint64(1); seq <= 100; seq++ {
		assert.True(t, accept(g, seq), "first delivery of %d", seq)
	}
	for seq := uint64(93); seq <= 100; seq++ {
		assert.False(t, accept(g, seq), "replay of %d", seq)
	}
	assert.False(t, accept(g, 50), "far behind window")
}

func TestSequenceGuardReorderedWithinWindow(t *testing.T) {
	g, err := NewSequenceGuard(4)
	require.NoError(t, err)

	for _, seq := range []uint64{1, 2, 4, 3} {
		assert.True(t, accept(g, seq), "sequence %d", seq)
	}
	assert.False(t, accept(g, 3), "second delivery of 3")
}

func TestSequenceGuardWindowEdges(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		stream []uint64
		probe  uint64
		want   bool
	}{
		{name: "trailing_edge_inside", width: 4, stream: []uint64{10}, probe: 7, want: true},
		{name: "trailing_edge_outside", width: 4, stream: []uint64{10}, probe: 6, want: false},
		{name: "width_one_rejects_older", width: 1, stream: []uint64{10}, probe: 9, want: false},
		{name: "large_gap_clears_history", width: 4, stream: []uint64{1, 2, 3, 100}, probe: 98, want: true},
		{name: "slot_reuse_after_slide", width: 4, stream: []uint64{1, 2, 3, 4, 5}, probe: 5, want: false},
		{name: "unseen_after_slide", width: 4, stream: []uint64{1, 4, 6}, probe: 5, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewSequenceGuard(tt.width)
			require.NoError(t, err)
			for _, seq := range tt.stream {
				require.True(t, accept(g, seq))
			}
			assert.Equal(t, tt.want, g.ShouldAccept(tt.probe))
		})
	}
}

func TestSequenceGuardShouldAcceptDoesNotMutate(t *testing.T) {
	g, err := NewSequenceGuard(8)
	require.NoError(t, err)
	require.True(t, accept(g, 10))

	assert.True(t, g.ShouldAccept(9))
	assert.True(t, g.ShouldAccept(9), "check alone must not mark")
	high, _ := g.Highest()
	assert.Equal(t, uint64(10), high)
}

func TestSequenceGuardReset(t *testing.T) {
	g, err := NewSequenceGuard(8)
	require.NoError(t, err)
	require.True(t, accept(g, 5))
	g.Reset()
	assert.True(t, accept(g, 5))
}

func TestSequenceGuardWideWindow(t *testing.T) {
	g, err := NewSequenceGuard(200)
	require.NoError(t, err)

	for seq := uint64(200); seq >= 1; seq-- {
		if seq == 200 {
			require.True(t, accept(g, seq))
			continue
		}
		assert.True(t, accept(g, seq), "reverse order %d", seq)
	}
	for seq := uint64(1); seq <= 200; seq++ {
		assert.False(t, g.ShouldAccept(seq))
	}
}
