package game

import (
	"strconv"

	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// Start seats the players and begins turn one. The resolved seating is
// stored in the action so peers reproduce a random order exactly.
func (s *Session) Start() error {
	s.mu.Lock()
	order, err := rules.CreateTurnOrder(s.cfg.Players, s.cfg.TurnOrderType, s.cfg.CustomOrder, s.rng)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	starting := s.cfg.StartingPlayer
	if starting == "" {
		starting = order[0]
	}
	_, err = s.submit(state.ActionStartGame, "", map[string]string{
		"order":           joinList(order),
		"order_type":      string(s.cfg.TurnOrderType),
		"starting_player": starting,
	})
	return err
}

// AdvanceStep moves the active player's turn to its next step.
func (s *Session) AdvanceStep(playerID string) error {
	_, err := s.submit(state.ActionAdvanceStep, playerID, nil)
	return err
}

// StartNextTurn ends the active player's turn.
func (s *Session) StartNextTurn(playerID string) error {
	_, err := s.submit(state.ActionEndTurn, playerID, nil)
	return err
}

// GrantExtraTurn queues an extra turn for playerID after the current one.
func (s *Session) GrantExtraTurn(playerID string) error {
	_, err := s.submit(state.ActionExtraTurn, playerID, nil)
	return err
}

// UpdateTurnOrder reseats the players, keeping the active player.
func (s *Session) UpdateTurnOrder(playerID string, order []string) error {
	_, err := s.submit(state.ActionUpdateTurnOrder, playerID, map[string]string{"order": joinList(order)})
	return err
}

// PassPriority passes priority and reports what the pass caused.
func (s *Session) PassPriority(playerID string) (rules.PassOutcome, error) {
	out, err := s.submit(state.ActionPassPriority, playerID, nil)
	return out.pass, err
}

// PlayLand puts a land from hand onto the battlefield.
func (s *Session) PlayLand(playerID, cardID string) error {
	_, err := s.submit(state.ActionPlayLand, playerID, map[string]string{"card_id": cardID})
	return err
}

// AddMana adds mana to a player's pool.
func (s *Session) AddMana(playerID string, color mana.Color, amount int) error {
	_, err := s.submit(state.ActionAddMana, playerID, map[string]string{
		"color":  string(color),
		"amount": strconv.Itoa(amount),
	})
	return err
}

// CastRequest describes a spell to cast.
type CastRequest struct {
	CardID   string
	Name     string // defaults to the card's name
	ManaCost string // defaults to the card's mana cost
	X        int
	// SourceIDs pays with exactly these lands; empty auto-taps.
	SourceIDs []string
	// Preferred lists lands to spend first on generic costs when auto-tapping.
	Preferred       []string
	FromCommandZone bool
}

func (r CastRequest) data() map[string]string {
	data := map[string]string{}
	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	set("card_id", r.CardID)
	set("name", r.Name)
	set("cost", r.ManaCost)
	set("sources", joinList(r.SourceIDs))
	set("preferred", joinList(r.Preferred))
	if r.X > 0 {
		data["x"] = strconv.Itoa(r.X)
	}
	if r.FromCommandZone {
		data["commander"] = "true"
	}
	return data
}

// CastSpell pays for a spell and puts it on the stack. The payment result
// is returned even when the cost cannot be paid, so callers can show its
// explanation.
func (s *Session) CastSpell(playerID string, req CastRequest) (mana.AutoTapResult, error) {
	out, err := s.submit(state.ActionCastSpell, playerID, req.data())
	return paymentOf(out), err
}

// ActivateAbility pays for an ability of sourceID and puts it on the stack.
func (s *Session) ActivateAbility(playerID, sourceID, name, cost string, sources []string) (mana.AutoTapResult, error) {
	req := CastRequest{CardID: sourceID, Name: name, ManaCost: cost, SourceIDs: sources}
	out, err := s.submit(state.ActionActivateAbility, playerID, req.data())
	return paymentOf(out), err
}

func paymentOf(out outcome) mana.AutoTapResult {
	if out.payment == nil {
		return mana.AutoTapResult{}
	}
	return *out.payment
}

// Counter counters the top item of the stack.
func (s *Session) Counter(playerID, itemID string) error {
	_, err := s.submit(state.ActionCounter, playerID, map[string]string{"item_id": itemID})
	return err
}

// GainLife adds life to playerID.
func (s *Session) GainLife(playerID string, amount int) error {
	_, err := s.submit(state.ActionGainLife, playerID, map[string]string{"amount": strconv.Itoa(amount)})
	return err
}

// LoseLife removes life from playerID, eliminating them at zero.
func (s *Session) LoseLife(playerID string, amount int) error {
	_, err := s.submit(state.ActionLoseLife, playerID, map[string]string{"amount": strconv.Itoa(amount)})
	return err
}

// CreatureDied records that a creature controlled by controllerID died.
func (s *Session) CreatureDied(controllerID, cardID, name string) error {
	data := map[string]string{}
	if cardID != "" {
		data["card_id"] = cardID
	}
	if name != "" {
		data["name"] = name
	}
	_, err := s.submit(state.ActionCreatureDied, controllerID, data)
	return err
}

// OpenChoice asks playerID for a modal, target or payment decision.
func (s *Session) OpenChoice(playerID string, choice rules.ChoiceWindowType, context string) error {
	_, err := s.submit(state.ActionOpenChoice, playerID, map[string]string{
		"choice":  string(choice),
		"context": context,
	})
	return err
}

// CloseChoice closes playerID's open choice.
func (s *Session) CloseChoice(playerID string) error {
	_, err := s.submit(state.ActionCloseChoice, playerID, nil)
	return err
}

// Concede eliminates playerID.
func (s *Session) Concede(playerID string) error {
	_, err := s.submit(state.ActionConcede, playerID, nil)
	return err
}

// Quit removes playerID from the game as if they had conceded.
func (s *Session) Quit(playerID string) error {
	_, err := s.submit(state.ActionQuit, playerID, nil)
	return err
}

// EndGame ends the game. An empty winner records a draw.
func (s *Session) EndGame(winner string) error {
	data := map[string]string{}
	if winner != "" {
		data["winner"] = winner
	}
	_, err := s.submit(state.ActionEndGame, "", data)
	return err
}
