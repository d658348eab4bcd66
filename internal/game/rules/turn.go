package rules

import (
	"fmt"
)

// Phase represents the broad phases of a Magic: The Gathering turn.
type Phase int

const (
	PhaseBeginning Phase = iota
	PhasePrecombatMain
	PhaseCombat
	PhasePostcombatMain
	PhaseEnding
)

var phaseNames = map[Phase]string{
	PhaseBeginning:      "BEGINNING",
	PhasePrecombatMain:  "PRECOMBAT_MAIN",
	PhaseCombat:         "COMBAT",
	PhasePostcombatMain: "POSTCOMBAT_MAIN",
	PhaseEnding:         "ENDING",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// Step represents the individual steps that comprise a turn.
type Step int

const (
	StepUntap Step = iota
	StepUpkeep
	StepDraw
	StepMain1
	StepBeginCombat
	StepDeclareAttackers
	StepDeclareBlockers
	StepFirstStrikeDamage
	StepCombatDamage
	StepEndCombat
	StepMain2
	StepEnd
	StepCleanup
)

var stepNames = map[Step]string{
	StepUntap:             "UNTAP",
	StepUpkeep:            "UPKEEP",
	StepDraw:              "DRAW",
	StepMain1:             "MAIN1",
	StepBeginCombat:       "BEGIN_COMBAT",
	StepDeclareAttackers:  "DECLARE_ATTACKERS",
	StepDeclareBlockers:   "DECLARE_BLOCKERS",
	StepFirstStrikeDamage: "FIRST_STRIKE_DAMAGE",
	StepCombatDamage:      "COMBAT_DAMAGE",
	StepEndCombat:         "END_COMBAT",
	StepMain2:             "MAIN2",
	StepEnd:               "END",
	StepCleanup:           "CLEANUP",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STEP_%d", int(s))
}

type turnEntry struct {
	phase Phase
	step  Step
}

// baseTurnSequence is the default turn structure without first strike damage step
var baseTurnSequence = []turnEntry{
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

// firstStrikeTurnSequence has StepFirstStrikeDamage ahead of regular damage.
var firstStrikeTurnSequence = buildTurnSequence(true)

func buildTurnSequence(hasFirstStrike bool) []turnEntry {
	sequence := make([]turnEntry, 0, len(baseTurnSequence)+1)
	for _, entry := range baseTurnSequence {
		if hasFirstStrike && entry.step == StepCombatDamage {
			sequence = append(sequence, turnEntry{PhaseCombat, StepFirstStrikeDamage})
		}
		sequence = append(sequence, entry)
	}
	return sequence
}

// TurnOrderType describes how the seating order was produced.
type TurnOrderType string

const (
	TurnOrderClockwise TurnOrderType = "clockwise"
	TurnOrderRandom    TurnOrderType = "random"
	TurnOrderCustom    TurnOrderType = "custom"
)

// Turn is an immutable view of turn, round and priority state. Every
// transition returns a new Turn; TurnOrder is shared between values and
// must be treated as read-only.
type Turn struct {
	TurnNumber        int           `json:"turnNumber"`
	RoundNumber       int           `json:"roundNumber"`
	TurnOrder         []string      `json:"turnOrder"`
	ActivePlayerIndex int           `json:"activePlayerIndex"`
	TurnOrderType     TurnOrderType `json:"turnOrderType"`
	CurrentPhase      Phase         `json:"currentPhase"`
	CurrentStep       Step          `json:"currentStep"`
	ActivePlayerID    string        `json:"activePlayerId"`
	PriorityPlayerID  string        `json:"priorityPlayerId"`
	IsExtraTurn       bool          `json:"isExtraTurn,omitempty"`
	HasFirstStrike    bool          `json:"hasFirstStrike,omitempty"`
}

// NewTurn creates turn 1, round 1 with startingPlayer active. An empty
// startingPlayer selects the first seat.
func NewTurn(order []string, orderType TurnOrderType, startingPlayer string) (Turn, error) {
	if len(order) == 0 {
		return Turn{}, fmt.Errorf("%w: no players seated", ErrInvalidTurnOrder)
	}
	index := 0
	if startingPlayer != "" {
		index = indexOf(order, startingPlayer)
		if index < 0 {
			return Turn{}, fmt.Errorf("%w: starting player %s is not seated", ErrUnknownPlayer, startingPlayer)
		}
	}
	seats := make([]string, len(order))
	copy(seats, order)
	active := seats[index]
	return Turn{
		TurnNumber:        1,
		RoundNumber:       1,
		TurnOrder:         seats,
		ActivePlayerIndex: index,
		TurnOrderType:     orderType,
		CurrentPhase:      PhaseBeginning,
		CurrentStep:       StepUntap,
		ActivePlayerID:    active,
		PriorityPlayerID:  active,
	}, nil
}

func (t Turn) sequence() []turnEntry {
	if t.HasFirstStrike {
		return firstStrikeTurnSequence
	}
	return baseTurnSequence
}

func (t Turn) stepIndex() int {
	for i, entry := range t.sequence() {
		if entry.step == t.CurrentStep {
			return i
		}
	}
	return 0
}

// WithPriority returns a copy with priority given to playerID.
func (t Turn) WithPriority(playerID string) Turn {
	t.PriorityPlayerID = playerID
	return t
}

// WithFirstStrike includes or removes the first strike damage step for the
// rest of the current turn.
func (t Turn) WithFirstStrike(hasFirstStrike bool) Turn {
	if t.HasFirstStrike && !hasFirstStrike && t.CurrentStep == StepFirstStrikeDamage {
		t.CurrentStep = StepCombatDamage
	}
	t.HasFirstStrike = hasFirstStrike
	return t
}

// IsLastStep reports whether the turn is in its cleanup step.
func (t Turn) IsLastStep() bool {
	return t.CurrentStep == StepCleanup
}

// AdvanceStep moves to the next step. Advancing past cleanup starts the
// next turn in normal order. Priority reverts to the active player.
func (t Turn) AdvanceStep() Turn {
	sequence := t.sequence()
	next := t.stepIndex() + 1
	if next >= len(sequence) {
		return t.StartNextTurn()
	}
	t.CurrentPhase = sequence[next].phase
	t.CurrentStep = sequence[next].step
	t.PriorityPlayerID = t.ActivePlayerID
	return t
}

// StartNextTurn begins the next turn in normal seating order. The round
// number increments when the active index wraps to the first seat.
func (t Turn) StartNextTurn() Turn {
	return t.StartNextTurnSkipping(nil)
}

// StartNextTurnSkipping begins the next turn, passing over seats for which
// skip returns true. Each wrap past the first seat counts as a new round.
// If every seat is skipped the turn stays with the current seat.
func (t Turn) StartNextTurnSkipping(skip func(playerID string) bool) Turn {
	n := len(t.TurnOrder)
	if n == 0 {
		return t
	}
	index := t.ActivePlayerIndex
	round := t.RoundNumber
	for i := 0; i < n; i++ {
		index = (index + 1) % n
		if index == 0 {
			round++
		}
		if skip == nil || !skip(t.TurnOrder[index]) {
			break
		}
	}
	return t.beginTurn(index, round, t.TurnOrder[index], false)
}

// StartExtraTurn gives playerID a turn out of sequence. Neither the seat
// index nor the round number move, so the next StartNextTurn resumes after
// the seat whose turn preceded the extra one.
func (t Turn) StartExtraTurn(playerID string) (Turn, error) {
	if indexOf(t.TurnOrder, playerID) < 0 {
		return t, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	return t.beginTurn(t.ActivePlayerIndex, t.RoundNumber, playerID, true), nil
}

func (t Turn) beginTurn(index, round int, activePlayerID string, extra bool) Turn {
	t.TurnNumber++
	t.RoundNumber = round
	t.ActivePlayerIndex = index
	t.ActivePlayerID = activePlayerID
	t.PriorityPlayerID = activePlayerID
	t.CurrentPhase = PhaseBeginning
	t.CurrentStep = StepUntap
	t.IsExtraTurn = extra
	t.HasFirstStrike = false
	return t
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
