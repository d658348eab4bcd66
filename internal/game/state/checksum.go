package state

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Checksum computes a deterministic hash of the game state. Capture and
// stack timestamps are left out so peers that applied the same actions at
// different wall-clock times agree.
func Checksum(s *GameState) string {
	if s == nil {
		return ""
	}
	sum := blake2b.Sum256([]byte(canonical(s)))
	return hex.EncodeToString(sum[:])
}

// DetectDesync compares the local state against a peer's checksum. It
// returns true when they differ, along with the local checksum.
func DetectDesync(local *GameState, remoteHash string) (bool, string) {
	localHash := Checksum(local)
	return !strings.EqualFold(localHash, remoteHash), localHash
}

// canonical builds a representation independent of map iteration order.
func canonical(s *GameState) string {
	var buf bytes.Buffer

	t := s.Turn
	fmt.Fprintf(&buf, "GAME:%s|%s|%s|%s|%d\n", s.GameID, s.Format, s.Status, s.Winner, s.ActionCount)
	fmt.Fprintf(&buf, "TURN:%d|%d|%d|%s|%s|%s|%s|%s|%t|%t\n",
		t.TurnNumber, t.RoundNumber, t.ActivePlayerIndex, t.TurnOrderType,
		t.CurrentPhase, t.CurrentStep, t.ActivePlayerID, t.PriorityPlayerID,
		t.IsExtraTurn, t.HasFirstStrike)
	buf.WriteString("ORDER:")
	buf.WriteString(strings.Join(t.TurnOrder, ","))
	buf.WriteString("\n")

	// Players keep seating order; the slice is built from the turn order.
	for _, p := range s.Players {
		mp := p.ManaPool
		fmt.Fprintf(&buf, "PLAYER:%s|%d|%t|%d|%d|%d,%d,%d,%d,%d,%d,%d\n",
			p.ID, p.Life, p.Eliminated, p.CommanderCasts, p.LandsPlayed,
			mp.White, mp.Blue, mp.Black, mp.Red, mp.Green, mp.Colorless, mp.Generic)

		perms := make([]string, len(p.Battlefield))
		for i, perm := range p.Battlefield {
			perms[i] = fmt.Sprintf("%s:%t", perm.CardID, perm.Tapped)
		}
		sort.Strings(perms)
		buf.WriteString("  BATTLEFIELD:")
		buf.WriteString(strings.Join(perms, ","))
		buf.WriteString("\n")
	}

	// Stack order matters, so don't sort
	buf.WriteString("STACK:\n")
	for i, item := range s.Stack {
		fmt.Fprintf(&buf, "  %d:%s|%s|%s|%s|%s|%t\n",
			i, item.ID, item.Name, item.Type, item.ControllerID, item.ManaCost, item.IsCountered)
	}

	cardIDs := make([]string, 0, len(s.Cards))
	for id := range s.Cards {
		cardIDs = append(cardIDs, id)
	}
	sort.Strings(cardIDs)
	for _, id := range cardIDs {
		card := s.Cards[id]
		fmt.Fprintf(&buf, "CARD:%s|%s|%s\n", id, card.Name, card.TypeLine)
	}

	return buf.String()
}
