package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

func seqAction(seq int64) state.GameAction {
	return state.GameAction{ID: string(rune('a' + seq)), Sequence: seq}
}

func sequencesOf(actions []state.GameAction) []int64 {
	out := make([]int64, len(actions))
	for i, a := range actions {
		out[i] = a.Sequence
	}
	return out
}

func push(t *testing.T, s *Sequencer, seq int64) []int64 {
	t.Helper()
	ready, err := s.Push(seqAction(seq))
	require.NoError(t, err)
	return sequencesOf(ready)
}

func TestSequencerOrdersOutOfOrderArrivals(t *testing.T) {
	s := NewSequencer(1, nil)

	assert.Empty(t, push(t, s, 3))
	assert.Empty(t, push(t, s, 2))
	assert.Equal(t, 2, s.Pending())

	assert.Equal(t, []int64{1, 2, 3}, push(t, s, 1))
	assert.Equal(t, int64(4), s.Next())
	assert.Equal(t, 0, s.Pending())

	assert.Equal(t, []int64{4}, push(t, s, 4))
}

func TestSequencerDropsDuplicates(t *testing.T) {
	s := NewSequencer(1, nil)
	assert.Len(t, push(t, s, 1), 1)
	assert.Empty(t, push(t, s, 1))

	assert.Empty(t, push(t, s, 3))
	assert.Empty(t, push(t, s, 3))
	assert.Equal(t, 1, s.Pending())

	s.Reset(10)
	assert.Equal(t, int64(10), s.Next())
	assert.Equal(t, 0, s.Pending())
}

func TestSequencerRefusesActionsBeyondWindow(t *testing.T) {
	s := NewSequencer(1, nil)
	for seq := int64(1_000_000); seq < 1_000_100; seq++ {
		_, err := s.Push(seqAction(seq))
		assert.ErrorIs(t, err, ErrTooFarAhead)
	}
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, int64(1), s.Next())

	assert.Empty(t, push(t, s, 1+DefaultMaxAhead), "edge of the window is held")
	assert.Equal(t, 1, s.Pending())

	s.SetMaxAhead(2)
	_, err := s.Push(seqAction(4))
	assert.ErrorIs(t, err, ErrTooFarAhead)
	assert.Empty(t, push(t, s, 3))
	assert.Equal(t, []int64{1}, push(t, s, 1))
	assert.Equal(t, []int64{2, 3}, push(t, s, 2))
}
