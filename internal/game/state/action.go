package state

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ActionType identifies a game command.
type ActionType string

const (
	ActionStartGame       ActionType = "start_game"
	ActionAdvanceStep     ActionType = "advance_step"
	ActionEndTurn         ActionType = "end_turn"
	ActionExtraTurn       ActionType = "extra_turn"
	ActionUpdateTurnOrder ActionType = "update_turn_order"
	ActionPassPriority    ActionType = "pass_priority"
	ActionPlayLand        ActionType = "play_land"
	ActionAddMana         ActionType = "add_mana"
	ActionCastSpell       ActionType = "cast_spell"
	ActionActivateAbility ActionType = "activate_ability"
	ActionCounter         ActionType = "counter"
	ActionGainLife        ActionType = "gain_life"
	ActionLoseLife        ActionType = "lose_life"
	ActionCreatureDied    ActionType = "creature_died"
	ActionOpenChoice      ActionType = "open_choice"
	ActionCloseChoice     ActionType = "close_choice"
	ActionConcede         ActionType = "concede"
	ActionQuit            ActionType = "quit"
	ActionEndGame         ActionType = "end_game"
)

// GameAction is one command applied to a game. Data carries the command
// arguments as strings so actions serialise without type information.
type GameAction struct {
	ID        string            `json:"id"`
	Type      ActionType        `json:"type"`
	PlayerID  string            `json:"playerId,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Sequence  int64             `json:"sequence"`
}

// NewAction creates an action with a fresh ID stamped at now.
func NewAction(actionType ActionType, playerID string, data map[string]string, now time.Time) GameAction {
	return GameAction{
		ID:        uuid.NewString(),
		Type:      actionType,
		PlayerID:  playerID,
		Data:      data,
		Timestamp: now,
	}
}

// Get returns the data value for key, or "".
func (a GameAction) Get(key string) string {
	if a.Data == nil {
		return ""
	}
	return a.Data[key]
}

// Int returns the data value for key parsed as an int, or def.
func (a GameAction) Int(key string, def int) int {
	v, err := strconv.Atoi(a.Get(key))
	if err != nil {
		return def
	}
	return v
}

// Bool reports whether the data value for key is "true".
func (a GameAction) Bool(key string) bool {
	b, _ := strconv.ParseBool(a.Get(key))
	return b
}

// Clone returns a copy that shares no maps with a.
func (a GameAction) Clone() GameAction {
	if a.Data != nil {
		data := make(map[string]string, len(a.Data))
		for k, v := range a.Data {
			data[k] = v
		}
		a.Data = data
	}
	return a
}
