package rules

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	// ErrInvalidTurnOrder is returned when a seating order is not a valid
	// permutation of the seated players.
	ErrInvalidTurnOrder = errors.New("invalid turn order")
	// ErrPlayerSetMismatch is returned when a replacement order seats a
	// different set of players.
	ErrPlayerSetMismatch = errors.New("player set mismatch")
	// ErrUnknownPlayer is returned for player IDs not present in the turn order.
	ErrUnknownPlayer = errors.New("unknown player")
)

// MinPlayers is the smallest table a turn order can be built for.
const MinPlayers = 2

// CreateTurnOrder builds a seating order. Clockwise keeps playerIDs as
// given, random shuffles them with rng and custom validates that custom is
// a permutation of playerIDs. A nil rng falls back to a time-seeded source.
func CreateTurnOrder(playerIDs []string, orderType TurnOrderType, custom []string, rng *rand.Rand) ([]string, error) {
	if len(playerIDs) < MinPlayers {
		return nil, fmt.Errorf("%w: need at least %d players, got %d", ErrInvalidTurnOrder, MinPlayers, len(playerIDs))
	}
	if dup, ok := firstDuplicate(playerIDs); ok {
		return nil, fmt.Errorf("%w: duplicate player %s", ErrInvalidTurnOrder, dup)
	}

	switch orderType {
	case TurnOrderClockwise, "":
		order := make([]string, len(playerIDs))
		copy(order, playerIDs)
		return order, nil
	case TurnOrderRandom:
		if rng == nil {
			rng = rand.New(rand.NewSource(rand.Int63()))
		}
		order := make([]string, len(playerIDs))
		copy(order, playerIDs)
		for i := len(order) - 1; i > 0; i-- {
			j := rng.Intn(i + 1)
			order[i], order[j] = order[j], order[i]
		}
		return order, nil
	case TurnOrderCustom:
		if !samePlayers(playerIDs, custom) {
			return nil, fmt.Errorf("%w: custom order %v is not a permutation of %v", ErrInvalidTurnOrder, custom, playerIDs)
		}
		order := make([]string, len(custom))
		copy(order, custom)
		return order, nil
	default:
		return nil, fmt.Errorf("%w: unknown order type %q", ErrInvalidTurnOrder, orderType)
	}
}

// NextPlayerInTurnOrder returns the seat after the active seat.
func NextPlayerInTurnOrder(t Turn) string {
	n := len(t.TurnOrder)
	if n == 0 {
		return ""
	}
	return t.TurnOrder[(t.ActivePlayerIndex+1)%n]
}

// PreviousPlayerInTurnOrder returns the seat before the active seat. It is
// used for counter-clockwise effects, never for turn advancement.
func PreviousPlayerInTurnOrder(t Turn) string {
	n := len(t.TurnOrder)
	if n == 0 {
		return ""
	}
	return t.TurnOrder[(t.ActivePlayerIndex-1+n)%n]
}

// IsLeftNeighbor reports whether playerID sits immediately after refID.
func IsLeftNeighbor(t Turn, playerID, refID string) bool {
	n := len(t.TurnOrder)
	ref := indexOf(t.TurnOrder, refID)
	if ref < 0 || n < 2 {
		return false
	}
	return t.TurnOrder[(ref+1)%n] == playerID
}

// IsRightNeighbor reports whether playerID sits immediately before refID.
func IsRightNeighbor(t Turn, playerID, refID string) bool {
	n := len(t.TurnOrder)
	ref := indexOf(t.TurnOrder, refID)
	if ref < 0 || n < 2 {
		return false
	}
	return t.TurnOrder[(ref-1+n)%n] == playerID
}

// PlayerSeat describes one seat and its neighbours.
type PlayerSeat struct {
	Index         int    `json:"index"`
	PlayerID      string `json:"playerId"`
	LeftNeighbor  string `json:"leftNeighbor"`
	RightNeighbor string `json:"rightNeighbor"`
}

// Seats derives the seating chart from the turn order.
func Seats(t Turn) []PlayerSeat {
	n := len(t.TurnOrder)
	seats := make([]PlayerSeat, 0, n)
	for i, id := range t.TurnOrder {
		seat := PlayerSeat{Index: i, PlayerID: id}
		if n > 1 {
			seat.LeftNeighbor = t.TurnOrder[(i+1)%n]
			seat.RightNeighbor = t.TurnOrder[(i-1+n)%n]
		}
		seats = append(seats, seat)
	}
	return seats
}

// AttackRestriction limits which opponents the active player may attack.
type AttackRestriction string

const (
	AttackAnyone    AttackRestriction = "anyone"
	AttackLeft      AttackRestriction = "left"
	AttackRight     AttackRestriction = "right"
	AttackNeighbors AttackRestriction = "neighbors"
)

// AttackableOpponents lists the players the active player may attack,
// preserving the order of allPlayerIDs. Players not seated are ignored.
func AttackableOpponents(t Turn, allPlayerIDs []string, restriction AttackRestriction) []string {
	active := t.ActivePlayerID
	opponents := make([]string, 0, len(allPlayerIDs))
	for _, id := range allPlayerIDs {
		if id == active || indexOf(t.TurnOrder, id) < 0 {
			continue
		}
		switch restriction {
		case AttackLeft:
			if !IsLeftNeighbor(t, id, active) {
				continue
			}
		case AttackRight:
			if !IsRightNeighbor(t, id, active) {
				continue
			}
		case AttackNeighbors:
			if !IsLeftNeighbor(t, id, active) && !IsRightNeighbor(t, id, active) {
				continue
			}
		}
		opponents = append(opponents, id)
	}
	return opponents
}

// RoundProgress summarises where the active seat sits within the round.
type RoundProgress struct {
	RoundNumber          int  `json:"roundNumber"`
	CurrentPlayerInRound int  `json:"currentPlayerInRound"`
	TurnsInRound         int  `json:"turnsInRound"`
	IsRoundStart         bool `json:"isRoundStart"`
	IsRoundEnd           bool `json:"isRoundEnd"`
}

// RoundInfo reports round progress for t.
func RoundInfo(t Turn) RoundProgress {
	n := len(t.TurnOrder)
	return RoundProgress{
		RoundNumber:          t.RoundNumber,
		CurrentPlayerInRound: t.ActivePlayerIndex + 1,
		TurnsInRound:         n,
		IsRoundStart:         t.ActivePlayerIndex == 0,
		IsRoundEnd:           t.ActivePlayerIndex == n-1,
	}
}

// UpdateTurnOrder replaces the seating order and re-indexes the active
// seat so it still points at the same player.
func UpdateTurnOrder(t Turn, newOrder []string) (Turn, error) {
	if len(t.TurnOrder) == 0 {
		return t, fmt.Errorf("%w: no players seated", ErrInvalidTurnOrder)
	}
	if !samePlayers(t.TurnOrder, newOrder) {
		return t, fmt.Errorf("%w: %v does not seat %v", ErrPlayerSetMismatch, newOrder, t.TurnOrder)
	}
	seatHolder := t.TurnOrder[t.ActivePlayerIndex]
	order := make([]string, len(newOrder))
	copy(order, newOrder)
	t.TurnOrder = order
	t.ActivePlayerIndex = indexOf(order, seatHolder)
	t.TurnOrderType = TurnOrderCustom
	return t, nil
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id, true
		}
		seen[id] = struct{}{}
	}
	return "", false
}

func samePlayers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	if _, dup := firstDuplicate(b); dup {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, id := range a {
		seen[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}
