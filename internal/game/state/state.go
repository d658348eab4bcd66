// Package state holds the serialisable game snapshot shared by the session,
// replay and auto-save layers.
package state

import (
	"time"

	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/rules"
)

// GameStatus is the lifecycle state of a game.
type GameStatus string

const (
	StatusWaiting    GameStatus = "waiting"
	StatusInProgress GameStatus = "in_progress"
	StatusEnded      GameStatus = "ended"
)

// StartingLife is the Commander starting life total.
const StartingLife = 40

// PlayerState is one player's slice of the snapshot.
type PlayerState struct {
	ID             string           `json:"id"`
	Life           int              `json:"life"`
	ManaPool       mana.ManaPool    `json:"manaPool"`
	Battlefield    []mana.Permanent `json:"battlefield,omitempty"`
	Eliminated     bool             `json:"eliminated,omitempty"`
	CommanderCasts int              `json:"commanderCasts,omitempty"`
	LandsPlayed    int              `json:"landsPlayed,omitempty"`
}

// GameState is a JSON-serialisable snapshot of a game.
type GameState struct {
	GameID       string                   `json:"gameId"`
	Format       string                   `json:"format"`
	Status       GameStatus               `json:"status"`
	Turn         rules.Turn               `json:"turn"`
	Stack        []rules.StackItem        `json:"stack"`
	Players      []PlayerState            `json:"players"`
	Cards        map[string]mana.CardData `json:"cards,omitempty"`
	Winner       string                   `json:"winner,omitempty"`
	LastActionID string                   `json:"lastActionId,omitempty"`
	ActionCount  int                      `json:"actionCount"`
	CapturedAt   time.Time                `json:"capturedAt"`
}

// Player returns the state of playerID.
func (s *GameState) Player(playerID string) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return PlayerState{}, false
}

// Clone returns a deep copy so recorded snapshots never alias live state.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}
	out := *s
	out.Turn.TurnOrder = append([]string(nil), s.Turn.TurnOrder...)

	out.Stack = make([]rules.StackItem, len(s.Stack))
	for i, item := range s.Stack {
		item.Resolve = nil
		if item.Metadata != nil {
			meta := make(map[string]string, len(item.Metadata))
			for k, v := range item.Metadata {
				meta[k] = v
			}
			item.Metadata = meta
		}
		out.Stack[i] = item
	}

	out.Players = make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		p.Battlefield = append([]mana.Permanent(nil), p.Battlefield...)
		out.Players[i] = p
	}

	if s.Cards != nil {
		out.Cards = make(map[string]mana.CardData, len(s.Cards))
		for k, v := range s.Cards {
			out.Cards[k] = v
		}
	}
	return &out
}
