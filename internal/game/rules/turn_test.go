package rules

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTurn(t *testing.T, order ...string) Turn {
	t.Helper()
	turn, err := NewTurn(order, TurnOrderClockwise, order[0])
	require.NoError(t, err)
	return turn
}

func TestTurnStepSequence(t *testing.T) {
	turn := newTestTurn(t, "Alice", "Bob")

	expected := []struct {
		phase Phase
		step  Step
	}{
		{PhaseBeginning, StepUntap},
		{PhaseBeginning, StepUpkeep},
		{PhaseBeginning, StepDraw},
		{PhasePrecombatMain, StepMain1},
		{PhaseCombat, StepBeginCombat},
		{PhaseCombat, StepDeclareAttackers},
		{PhaseCombat, StepDeclareBlockers},
		{PhaseCombat, StepCombatDamage},
		{PhaseCombat, StepEndCombat},
		{PhasePostcombatMain, StepMain2},
		{PhaseEnding, StepEnd},
		{PhaseEnding, StepCleanup},
	}

	for i, exp := range expected {
		if turn.CurrentPhase != exp.phase {
			t.Fatalf("step %d: expected phase %s, got %s", i, exp.phase, turn.CurrentPhase)
		}
		if turn.CurrentStep != exp.step {
			t.Fatalf("step %d: expected step %s, got %s", i, exp.step, turn.CurrentStep)
		}
		if i < len(expected)-1 {
			turn = turn.AdvanceStep()
		}
	}
}

func TestTurnAdvanceWrapsIntoNextTurn(t *testing.T) {
	turn := newTestTurn(t, "Alice", "Bob")

	for i := 0; i < 11; i++ {
		turn = turn.AdvanceStep()
		if turn.TurnNumber != 1 {
			t.Fatalf("expected to remain on turn 1, got turn %d at step %d", turn.TurnNumber, i)
		}
		if turn.ActivePlayerID != "Alice" {
			t.Fatalf("expected active player to remain Alice during turn, got %s", turn.ActivePlayerID)
		}
	}

	turn = turn.AdvanceStep()
	assert.Equal(t, 2, turn.TurnNumber)
	assert.Equal(t, "Bob", turn.ActivePlayerID)
	assert.Equal(t, "Bob", turn.PriorityPlayerID)
	assert.Equal(t, PhaseBeginning, turn.CurrentPhase)
	assert.Equal(t, StepUntap, turn.CurrentStep)
}

func TestTurnAdvanceResetsPriority(t *testing.T) {
	turn := newTestTurn(t, "Alice", "Bob").WithPriority("Bob")
	turn = turn.AdvanceStep()
	assert.Equal(t, "Alice", turn.PriorityPlayerID)
}

func TestTurnFirstStrikeStep(t *testing.T) {
	turn := newTestTurn(t, "Alice", "Bob")
	for turn.CurrentStep != StepDeclareBlockers {
		turn = turn.AdvanceStep()
	}
	turn = turn.WithFirstStrike(true).AdvanceStep()
	assert.Equal(t, StepFirstStrikeDamage, turn.CurrentStep)
	turn = turn.AdvanceStep()
	assert.Equal(t, StepCombatDamage, turn.CurrentStep)

	next := turn.StartNextTurn()
	assert.False(t, next.HasFirstStrike, "first strike step only applies to the turn it was added in")
}

func TestTurnIsImmutable(t *testing.T) {
	original := newTestTurn(t, "A", "B", "C")
	advanced := original.StartNextTurn()

	assert.Equal(t, 1, original.TurnNumber)
	assert.Equal(t, "A", original.ActivePlayerID)
	assert.Equal(t, 2, advanced.TurnNumber)
	assert.Equal(t, "B", advanced.ActivePlayerID)

	updated, err := UpdateTurnOrder(original, []string{"C", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, original.TurnOrder)
	assert.Equal(t, []string{"C", "B", "A"}, updated.TurnOrder)
}

func TestNewTurnRejectsUnknownStartingPlayer(t *testing.T) {
	_, err := NewTurn([]string{"A", "B"}, TurnOrderClockwise, "Z")
	assert.ErrorIs(t, err, ErrUnknownPlayer)

	_, err = NewTurn(nil, TurnOrderClockwise, "")
	assert.ErrorIs(t, err, ErrInvalidTurnOrder)
}

func TestFourPlayerRoundProgression(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C", "D")

	var actives []string
	roundBumps := 0
	for i := 0; i < 4; i++ {
		before := turn.RoundNumber
		turn = turn.StartNextTurn()
		if turn.RoundNumber != before {
			roundBumps++
			assert.Equal(t, before+1, turn.RoundNumber)
		}
		actives = append(actives, turn.ActivePlayerID)
	}

	assert.Equal(t, []string{"B", "C", "D", "A"}, actives)
	assert.Equal(t, 1, roundBumps)
	assert.Equal(t, 2, turn.RoundNumber)
	assert.Equal(t, 5, turn.TurnNumber)
}

func TestExtraTurnDoesNotAdvanceRoundOrSeat(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C")
	turn = turn.StartNextTurn().StartNextTurn() // C's turn, round 1

	extra, err := turn.StartExtraTurn("C")
	require.NoError(t, err)
	assert.True(t, extra.IsExtraTurn)
	assert.Equal(t, "C", extra.ActivePlayerID)
	assert.Equal(t, turn.ActivePlayerIndex, extra.ActivePlayerIndex)
	assert.Equal(t, 1, extra.RoundNumber)
	assert.Equal(t, turn.TurnNumber+1, extra.TurnNumber)

	resumed := extra.StartNextTurn()
	assert.False(t, resumed.IsExtraTurn)
	assert.Equal(t, "A", resumed.ActivePlayerID)
	assert.Equal(t, 2, resumed.RoundNumber)
}

func TestExtraTurnForOtherPlayerResumesAfterPrecedingSeat(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C", "D")

	extra, err := turn.StartExtraTurn("C")
	require.NoError(t, err)
	assert.Equal(t, "C", extra.ActivePlayerID)
	assert.Equal(t, "C", extra.PriorityPlayerID)

	resumed := extra.StartNextTurn()
	assert.Equal(t, "B", resumed.ActivePlayerID)
	assert.Equal(t, 1, resumed.RoundNumber)

	_, err = turn.StartExtraTurn("Z")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestStartNextTurnSkipping(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C", "D")
	out := map[string]bool{"B": true, "C": true}
	skip := func(id string) bool { return out[id] }

	turn = turn.StartNextTurnSkipping(skip)
	assert.Equal(t, "D", turn.ActivePlayerID)
	assert.Equal(t, 1, turn.RoundNumber)

	turn = turn.StartNextTurnSkipping(skip)
	assert.Equal(t, "A", turn.ActivePlayerID)
	assert.Equal(t, 2, turn.RoundNumber)
	assert.Equal(t, 3, turn.TurnNumber)
}

func TestCreateTurnOrder(t *testing.T) {
	players := []string{"A", "B", "C", "D"}

	t.Run("clockwise keeps order", func(t *testing.T) {
		order, err := CreateTurnOrder(players, TurnOrderClockwise, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, players, order)
	})

	t.Run("random is a permutation", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for n := MinPlayers; n <= 8; n++ {
			ids := make([]string, n)
			for i := range ids {
				ids[i] = string(rune('A' + i))
			}
			order, err := CreateTurnOrder(ids, TurnOrderRandom, nil, rng)
			require.NoError(t, err)
			require.Len(t, order, n)
			sorted := append([]string(nil), order...)
			sort.Strings(sorted)
			assert.Equal(t, ids, sorted)
		}
	})

	t.Run("random does not alias input", func(t *testing.T) {
		ids := []string{"A", "B", "C"}
		_, err := CreateTurnOrder(ids, TurnOrderRandom, nil, rand.New(rand.NewSource(7)))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B", "C"}, ids)
	})

	t.Run("custom permutation accepted", func(t *testing.T) {
		order, err := CreateTurnOrder(players, TurnOrderCustom, []string{"C", "A", "D", "B"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"C", "A", "D", "B"}, order)
	})

	failures := []struct {
		name    string
		players []string
		kind    TurnOrderType
		custom  []string
	}{
		{"custom missing player", players, TurnOrderCustom, []string{"A", "B", "C"}},
		{"custom unknown player", players, TurnOrderCustom, []string{"A", "B", "C", "Z"}},
		{"custom duplicate", players, TurnOrderCustom, []string{"A", "A", "C", "D"}},
		{"single player", []string{"A"}, TurnOrderClockwise, nil},
		{"duplicate input", []string{"A", "A"}, TurnOrderClockwise, nil},
		{"unknown type", players, TurnOrderType("spiral"), nil},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CreateTurnOrder(tc.players, tc.kind, tc.custom, nil)
			assert.ErrorIs(t, err, ErrInvalidTurnOrder)
		})
	}
}

func TestNextPlayerCyclesBackToStart(t *testing.T) {
	for n := 2; n <= 6; n++ {
		ids := make([]string, n)
		for i := range ids {
			ids[i] = string(rune('A' + i))
		}
		turn := newTestTurn(t, ids...)
		start := turn.ActivePlayerID
		for i := 0; i < n; i++ {
			next := NextPlayerInTurnOrder(turn)
			turn = turn.StartNextTurn()
			require.Equal(t, next, turn.ActivePlayerID)
		}
		assert.Equal(t, start, turn.ActivePlayerID)
	}
}

func TestPreviousPlayerInTurnOrder(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C")
	assert.Equal(t, "C", PreviousPlayerInTurnOrder(turn))
	assert.Equal(t, "B", NextPlayerInTurnOrder(turn))
}

func TestNeighbors(t *testing.T) {
	t.Run("two players are both neighbours", func(t *testing.T) {
		turn := newTestTurn(t, "A", "B")
		assert.True(t, IsLeftNeighbor(turn, "B", "A"))
		assert.True(t, IsRightNeighbor(turn, "B", "A"))
	})

	t.Run("four players", func(t *testing.T) {
		turn := newTestTurn(t, "A", "B", "C", "D")
		assert.True(t, IsLeftNeighbor(turn, "B", "A"))
		assert.True(t, IsRightNeighbor(turn, "D", "A"))
		assert.False(t, IsLeftNeighbor(turn, "C", "A"))
		assert.False(t, IsRightNeighbor(turn, "C", "A"))
		assert.False(t, IsLeftNeighbor(turn, "B", "Z"))
	})

	t.Run("seats", func(t *testing.T) {
		turn := newTestTurn(t, "A", "B", "C")
		seats := Seats(turn)
		require.Len(t, seats, 3)
		assert.Equal(t, PlayerSeat{Index: 0, PlayerID: "A", LeftNeighbor: "B", RightNeighbor: "C"}, seats[0])
		assert.Equal(t, PlayerSeat{Index: 2, PlayerID: "C", LeftNeighbor: "A", RightNeighbor: "B"}, seats[2])
	})
}

func TestAttackableOpponents(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C", "D")
	all := []string{"A", "B", "C", "D", "spectator"}

	cases := []struct {
		restriction AttackRestriction
		want        []string
	}{
		{AttackAnyone, []string{"B", "C", "D"}},
		{AttackLeft, []string{"B"}},
		{AttackRight, []string{"D"}},
		{AttackNeighbors, []string{"B", "D"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.restriction), func(t *testing.T) {
			assert.Equal(t, tc.want, AttackableOpponents(turn, all, tc.restriction))
		})
	}
}

func TestRoundInfo(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C")
	info := RoundInfo(turn)
	assert.Equal(t, RoundProgress{RoundNumber: 1, CurrentPlayerInRound: 1, TurnsInRound: 3, IsRoundStart: true}, info)

	turn = turn.StartNextTurn().StartNextTurn()
	info = RoundInfo(turn)
	assert.Equal(t, 3, info.CurrentPlayerInRound)
	assert.True(t, info.IsRoundEnd)
	assert.False(t, info.IsRoundStart)
}

func TestUpdateTurnOrder(t *testing.T) {
	turn := newTestTurn(t, "A", "B", "C", "D").StartNextTurn() // B active at index 1

	updated, err := UpdateTurnOrder(turn, []string{"D", "C", "B", "A"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.ActivePlayerIndex)
	assert.Equal(t, "B", updated.TurnOrder[updated.ActivePlayerIndex])
	assert.Equal(t, TurnOrderCustom, updated.TurnOrderType)
	assert.Equal(t, "A", updated.StartNextTurn().ActivePlayerID)

	_, err = UpdateTurnOrder(turn, []string{"A", "B", "C"})
	assert.ErrorIs(t, err, ErrPlayerSetMismatch)
	_, err = UpdateTurnOrder(turn, []string{"A", "B", "C", "E"})
	assert.ErrorIs(t, err, ErrPlayerSetMismatch)
}
