package game

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// dispatchLocked routes an action to its handler.
func (s *Session) dispatchLocked(a state.GameAction) (outcome, error) {
	if a.Type == state.ActionStartGame {
		return s.startGameLocked(a)
	}
	switch s.status {
	case state.StatusWaiting:
		return outcome{}, ErrGameNotStarted
	case state.StatusEnded:
		return outcome{}, ErrGameEnded
	}

	switch a.Type {
	case state.ActionAdvanceStep:
		return s.advanceStepLocked(a)
	case state.ActionEndTurn:
		return s.endTurnLocked(a)
	case state.ActionExtraTurn:
		return s.extraTurnLocked(a)
	case state.ActionUpdateTurnOrder:
		return s.updateTurnOrderLocked(a)
	case state.ActionPassPriority:
		return s.passPriorityLocked(a)
	case state.ActionPlayLand:
		return s.playLandLocked(a)
	case state.ActionAddMana:
		return s.addManaLocked(a)
	case state.ActionCastSpell:
		return s.castLocked(a, rules.StackItemSpell)
	case state.ActionActivateAbility:
		return s.castLocked(a, rules.StackItemAbility)
	case state.ActionCounter:
		return s.counterLocked(a)
	case state.ActionGainLife:
		return s.gainLifeLocked(a)
	case state.ActionLoseLife:
		return s.loseLifeLocked(a)
	case state.ActionCreatureDied:
		return s.creatureDiedLocked(a)
	case state.ActionOpenChoice:
		return s.openChoiceLocked(a)
	case state.ActionCloseChoice:
		return s.closeChoiceLocked(a)
	case state.ActionConcede:
		return s.leaveLocked(a, false)
	case state.ActionQuit:
		return s.leaveLocked(a, true)
	case state.ActionEndGame:
		return s.endGameLocked(a)
	default:
		return outcome{}, fmt.Errorf("%w: %s", ErrUnknownAction, a.Type)
	}
}

func (s *Session) event(a state.GameAction, eventType rules.EventType, targetID, sourceID, playerID string) rules.Event {
	e := rules.NewEvent(eventType, targetID, sourceID, playerID)
	e.Timestamp = a.Timestamp
	return e
}

func (s *Session) livePlayerLocked(playerID string) (*player, error) {
	p, ok := s.players[playerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if p.eliminated {
		return nil, fmt.Errorf("%w: %s", ErrPlayerEliminated, playerID)
	}
	return p, nil
}

func (s *Session) isEliminatedLocked(playerID string) bool {
	p, ok := s.players[playerID]
	return !ok || p.eliminated
}

func (s *Session) startGameLocked(a state.GameAction) (outcome, error) {
	if s.status != state.StatusWaiting {
		return outcome{}, ErrGameStarted
	}
	order, err := rules.CreateTurnOrder(s.cfg.Players, rules.TurnOrderCustom, splitList(a.Get("order")), nil)
	if err != nil {
		return outcome{}, err
	}
	turn, err := rules.NewTurn(order, rules.TurnOrderType(a.Get("order_type")), a.Get("starting_player"))
	if err != nil {
		return outcome{}, err
	}

	s.status = state.StatusInProgress
	s.order = order
	s.turn = turn
	s.priority = rules.NewPriorityTracker(turn)
	s.beginTurnLocked()
	s.buffer.SetGameStartTime(a.Timestamp)
	s.recorder.StartRecording(replay.Metadata{
		GameID:    s.cfg.GameID,
		Format:    s.cfg.Format,
		Players:   append([]string(nil), order...),
		StartedAt: a.Timestamp,
	})

	s.logger.Info("game started",
		zap.Strings("turn_order", order),
		zap.String("starting_player", turn.ActivePlayerID),
	)

	started := s.event(a, rules.EventGameStarted, "", "", turn.ActivePlayerID)
	started.Data = joinList(order)
	begin := s.event(a, rules.EventBeginTurn, "", "", turn.ActivePlayerID)
	begin.Amount = turn.TurnNumber
	return outcome{
		events:      []rules.Event{started, begin},
		description: fmt.Sprintf("Game started, %s goes first", turn.ActivePlayerID),
	}, nil
}

// beginTurnLocked performs the turn-based actions of the untap step for the
// new active player.
func (s *Session) beginTurnLocked() {
	p, ok := s.players[s.turn.ActivePlayerID]
	if !ok {
		return
	}
	for i := range p.battlefield {
		p.battlefield[i].Tapped = false
	}
	p.landsPlayed = 0
}

func (s *Session) emptyPoolsLocked() {
	for _, p := range s.players {
		p.pool = p.pool.Empty()
	}
}

func (s *Session) requireActiveLocked(playerID string) error {
	if _, err := s.livePlayerLocked(playerID); err != nil {
		return err
	}
	if s.turn.ActivePlayerID != playerID {
		return fmt.Errorf("%w: %s is not %s", ErrNotActivePlayer, playerID, s.turn.ActivePlayerID)
	}
	if !s.stack.IsEmpty() {
		return fmt.Errorf("%w: %d items", ErrStackNotEmpty, s.stack.Len())
	}
	return nil
}

func (s *Session) advanceStepLocked(a state.GameAction) (outcome, error) {
	if err := s.requireActiveLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	events := s.advanceLocked(a, nil)
	return outcome{
		events:      events,
		description: fmt.Sprintf("%s advanced to %s", a.PlayerID, s.turn.CurrentStep),
	}, nil
}

// advanceLocked moves to the next step, or the next turn after cleanup.
// Mana pools empty between steps.
func (s *Session) advanceLocked(a state.GameAction, events []rules.Event) []rules.Event {
	prev := s.turn
	if prev.IsLastStep() {
		return s.nextTurnLocked(a, events)
	}

	s.turn = prev.AdvanceStep()
	s.emptyPoolsLocked()
	s.priority.Reset(s.turn)

	if prev.CurrentPhase == rules.PhaseCombat && s.turn.CurrentPhase != rules.PhaseCombat {
		events = append(events, s.event(a, rules.EventCombatEnded, "", "", s.turn.ActivePlayerID))
	}
	step := s.event(a, rules.EventStepChanged, "", "", s.turn.ActivePlayerID)
	step.Data = s.turn.CurrentStep.String()
	return append(events, step)
}

// nextTurnLocked ends the current turn. A pending extra turn is taken
// before normal seating order resumes.
func (s *Session) nextTurnLocked(a state.GameAction, events []rules.Event) []rules.Event {
	prev := s.turn
	end := s.event(a, rules.EventEndTurn, "", "", prev.ActivePlayerID)
	end.Amount = prev.TurnNumber
	events = append(events, end)

	next, extra := prev, false
	for len(s.extraTurns) > 0 && !extra {
		id := s.extraTurns[0]
		s.extraTurns = s.extraTurns[1:]
		if s.isEliminatedLocked(id) {
			continue
		}
		if t, err := prev.StartExtraTurn(id); err == nil {
			next, extra = t, true
		}
	}
	if !extra {
		next = prev.StartNextTurnSkipping(s.isEliminatedLocked)
	}

	s.turn = next
	s.emptyPoolsLocked()
	s.beginTurnLocked()
	s.priority.Reset(next)

	begin := s.event(a, rules.EventBeginTurn, "", "", next.ActivePlayerID)
	begin.Amount = next.TurnNumber
	begin.Flag = extra
	events = append(events, begin)
	if extra {
		events = append(events, s.event(a, rules.EventExtraTurn, "", "", next.ActivePlayerID))
	}

	s.logger.Debug("turn started",
		zap.Int("turn", next.TurnNumber),
		zap.Int("round", next.RoundNumber),
		zap.String("active_player", next.ActivePlayerID),
		zap.Bool("extra_turn", extra),
	)
	return events
}

func (s *Session) endTurnLocked(a state.GameAction) (outcome, error) {
	if err := s.requireActiveLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	events := s.nextTurnLocked(a, nil)
	return outcome{
		events:      events,
		description: fmt.Sprintf("%s ended the turn", a.PlayerID),
	}, nil
}

func (s *Session) extraTurnLocked(a state.GameAction) (outcome, error) {
	if _, err := s.livePlayerLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	s.extraTurns = append(s.extraTurns, a.PlayerID)
	return outcome{description: fmt.Sprintf("%s will take an extra turn", a.PlayerID)}, nil
}

func (s *Session) updateTurnOrderLocked(a state.GameAction) (outcome, error) {
	turn, err := rules.UpdateTurnOrder(s.turn, splitList(a.Get("order")))
	if err != nil {
		return outcome{}, err
	}
	s.turn = turn
	s.order = append([]string(nil), turn.TurnOrder...)
	s.priority.Reset(turn)

	e := s.event(a, rules.EventTurnOrderChanged, "", "", a.PlayerID)
	e.Data = joinList(turn.TurnOrder)
	return outcome{
		events:      []rules.Event{e},
		description: "Turn order changed to " + strings.Join(turn.TurnOrder, ", "),
	}, nil
}

func (s *Session) passPriorityLocked(a state.GameAction) (outcome, error) {
	if _, err := s.livePlayerLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	result, err := s.priority.Pass(a.PlayerID, s.stack.IsEmpty())
	if err != nil {
		return outcome{}, err
	}

	events := []rules.Event{s.event(a, rules.EventPriorityPassed, "", "", a.PlayerID)}
	switch result {
	case rules.OutcomeResolveTop:
		events = s.resolveTopLocked(a, events)
	case rules.OutcomeAdvanceStep:
		events = s.advanceLocked(a, events)
	}
	s.turn = s.turn.WithPriority(s.priority.Holder())

	return outcome{
		events:      events,
		description: fmt.Sprintf("%s passed priority", a.PlayerID),
		pass:        result,
	}, nil
}

// resolveTopLocked resolves the top stack item. Permanent spells enter the
// battlefield under their controller.
func (s *Session) resolveTopLocked(a state.GameAction, events []rules.Event) []rules.Event {
	top, ok := s.stack.Peek()
	if !ok {
		return events
	}
	if err := s.resolution.BeginResolution(top.ID); err != nil {
		s.logger.Warn("stack resolution refused", zap.String("item_id", top.ID), zap.Error(err))
		return events
	}
	item, _, err := s.stack.Resolve()
	if endErr := s.resolution.EndResolution(item.ID); endErr != nil {
		s.logger.Warn("resolution bookkeeping failed", zap.Error(endErr))
	}
	if err != nil {
		s.logger.Warn("stack item failed to resolve", zap.String("item_id", item.ID), zap.Error(err))
	}

	if item.Type == rules.StackItemSpell {
		if card, ok := s.cards[item.SourceID]; ok && isPermanentCard(card) {
			if p, ok := s.players[item.ControllerID]; ok && !p.eliminated {
				p.battlefield = append(p.battlefield, mana.Permanent{CardID: card.ID, ControllerID: p.id})
			}
		}
	}
	s.priority.StackChanged("")

	resolved := s.event(a, rules.EventStackItemResolved, item.ID, item.SourceID, item.ControllerID)
	resolved.Data = item.Name
	return append(events, resolved)
}

func isPermanentCard(card mana.CardData) bool {
	return !strings.Contains(card.TypeLine, "Instant") && !strings.Contains(card.TypeLine, "Sorcery")
}

// castLocked pays for and pushes a spell or ability. The stack item takes
// the action's ID and timestamp so rebuilt games match the original.
func (s *Session) castLocked(a state.GameAction, itemType rules.StackItemType) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	if holder := s.priority.Holder(); holder != p.id {
		return outcome{}, fmt.Errorf("%w: %s (holder %s)", rules.ErrNotPriorityPlayer, p.id, holder)
	}

	cardID := a.Get("card_id")
	name, cost := a.Get("name"), a.Get("cost")
	if card, ok := s.cards[cardID]; ok {
		if name == "" {
			name = card.Name
		}
		if cost == "" && itemType == rules.StackItemSpell {
			cost = card.ManaCost
		}
	} else if cardID != "" && itemType == rules.StackItemSpell {
		return outcome{}, fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	if name == "" {
		return outcome{}, fmt.Errorf("%w: missing name", ErrInvalidAction)
	}

	commander := a.Bool("commander")
	req := mana.ParseManaCost(cost)
	if req.HasXCost {
		req = req.WithX(a.Int("x", 0))
	}
	req = p.reductions.ApplyReductions(name, req)
	if commander {
		req = mana.ApplyCommanderTax(req, p.commanderCasts)
	}

	payment, err := s.payLocked(p, req, splitList(a.Get("sources")), splitList(a.Get("preferred")))
	if err != nil {
		return outcome{payment: &payment}, err
	}
	if commander {
		p.commanderCasts++
	}

	var metadata map[string]string
	if x := a.Get("x"); x != "" {
		metadata = map[string]string{"x": x}
	}
	item := s.stack.Push(rules.StackItem{
		ID:           a.ID,
		Name:         name,
		Type:         itemType,
		ControllerID: p.id,
		ManaCost:     mana.FormatManaCost(req),
		Timestamp:    a.Timestamp,
		SourceID:     cardID,
		Metadata:     metadata,
	})
	s.priority.StackChanged(p.id)
	s.turn = s.turn.WithPriority(s.priority.Holder())

	eventType, verb := rules.EventSpellCast, "cast"
	if itemType == rules.StackItemAbility {
		eventType, verb = rules.EventAbilityActivated, "activated"
	}
	e := s.event(a, eventType, item.ID, cardID, p.id)
	e.Data = name
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s %s %s", p.id, verb, name),
		payment:     &payment,
	}, nil
}

// payLocked pays req from selected sources when given, otherwise by
// auto-tapping with the player's pool. Nothing changes unless the payment
// succeeds.
func (s *Session) payLocked(p *player, req mana.ManaPaymentRequest, selectedIDs, preferred []string) (mana.AutoTapResult, error) {
	sources := mana.GetManaSources(p.battlefield, s.cards, s.lands)

	if len(selectedIDs) > 0 {
		byID := make(map[string]mana.ManaSource, len(sources))
		for _, src := range sources {
			byID[src.CardID] = src
		}
		selected := make([]mana.ManaSource, 0, len(selectedIDs))
		for _, id := range selectedIDs {
			src, ok := byID[id]
			if !ok {
				return mana.AutoTapResult{Explanation: fmt.Sprintf("%s is not an untapped land", id)},
					fmt.Errorf("%w: %s is not an untapped land", ErrCannotPay, id)
			}
			delete(byID, id)
			selected = append(selected, src)
		}
		check := mana.ValidateManaSelection(selected, req)
		result := mana.AutoTapResult{
			Sources:       selected,
			CanPay:        check.Valid,
			Explanation:   check.Explanation,
			RemainingPool: p.pool,
		}
		if !check.Valid {
			result.Sources = nil
			return result, fmt.Errorf("%w: %s", ErrCannotPay, check.Explanation)
		}
		s.tapLocked(p, selected)
		return result, nil
	}

	result := mana.SmartAutoTap(p.pool, sources, req, preferred)
	if !result.CanPay {
		return result, fmt.Errorf("%w: %s", ErrCannotPay, result.Explanation)
	}
	s.tapLocked(p, result.Sources)
	p.pool = result.RemainingPool
	return result, nil
}

func (s *Session) tapLocked(p *player, sources []mana.ManaSource) {
	for _, src := range sources {
		for i := range p.battlefield {
			if p.battlefield[i].CardID == src.CardID && !p.battlefield[i].Tapped {
				p.battlefield[i].Tapped = true
				break
			}
		}
	}
}

func (s *Session) counterLocked(a state.GameAction) (outcome, error) {
	if _, err := s.livePlayerLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	item, err := s.stack.Counter(a.Get("item_id"))
	if err != nil {
		return outcome{}, err
	}
	s.priority.StackChanged("")
	s.turn = s.turn.WithPriority(s.priority.Holder())

	e := s.event(a, rules.EventCountered, item.ID, a.PlayerID, item.ControllerID)
	e.Data = item.Name
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s countered %s", a.PlayerID, item.Name),
	}, nil
}

func (s *Session) playLandLocked(a state.GameAction) (outcome, error) {
	if err := s.requireActiveLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	if step := s.turn.CurrentStep; step != rules.StepMain1 && step != rules.StepMain2 {
		return outcome{}, fmt.Errorf("%w: lands are played in a main phase, not %s", ErrWrongTiming, step)
	}
	p := s.players[a.PlayerID]
	if p.landsPlayed > 0 {
		return outcome{}, ErrLandAlreadyPlayed
	}
	cardID := a.Get("card_id")
	card, ok := s.cards[cardID]
	if !ok {
		return outcome{}, fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
	}
	if !mana.IsLand(card.TypeLine) {
		return outcome{}, fmt.Errorf("%w: %s", ErrNotALand, card.Name)
	}

	p.battlefield = append(p.battlefield, mana.Permanent{CardID: cardID, ControllerID: p.id})
	p.landsPlayed++

	e := s.event(a, rules.EventLandPlayed, cardID, cardID, p.id)
	e.Data = card.Name
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s played %s", p.id, card.Name),
	}, nil
}

func (s *Session) addManaLocked(a state.GameAction) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	color := mana.Color(a.Get("color"))
	if !validPoolColor(color) {
		return outcome{}, fmt.Errorf("%w: unknown colour %q", ErrInvalidAction, color)
	}
	amount := a.Int("amount", 0)
	if amount <= 0 {
		return outcome{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAction)
	}
	p.pool = p.pool.Add(color, amount)

	e := s.event(a, rules.EventManaAdded, p.id, "", p.id)
	e.Amount = amount
	e.Data = string(color)
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s added %d %s mana", p.id, amount, color),
	}, nil
}

func validPoolColor(c mana.Color) bool {
	if c == mana.ColorGeneric {
		return true
	}
	for _, known := range mana.PaymentOrder {
		if c == known {
			return true
		}
	}
	return false
}

func (s *Session) gainLifeLocked(a state.GameAction) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	amount := a.Int("amount", 0)
	if amount <= 0 {
		return outcome{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAction)
	}
	p.life += amount

	e := s.event(a, rules.EventGainedLife, p.id, a.Get("source_id"), p.id)
	e.Amount = amount
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s gained %d life", p.id, amount),
	}, nil
}

func (s *Session) loseLifeLocked(a state.GameAction) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	amount := a.Int("amount", 0)
	if amount <= 0 {
		return outcome{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAction)
	}
	p.life -= amount

	e := s.event(a, rules.EventLostLife, p.id, a.Get("source_id"), p.id)
	e.Amount = amount
	events := []rules.Event{e}
	if p.life <= 0 {
		events = s.eliminateLocked(a, p, events)
	} else {
		s.priority.StateBasedAction()
		s.turn = s.turn.WithPriority(s.priority.Holder())
	}
	return outcome{
		events:      events,
		description: fmt.Sprintf("%s lost %d life", p.id, amount),
	}, nil
}

func (s *Session) creatureDiedLocked(a state.GameAction) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	cardID := a.Get("card_id")
	name := a.Get("name")
	if card, ok := s.cards[cardID]; ok && name == "" {
		name = card.Name
	}
	if cardID == "" && name == "" {
		return outcome{}, fmt.Errorf("%w: missing creature", ErrInvalidAction)
	}
	for i, perm := range p.battlefield {
		if cardID != "" && perm.CardID == cardID {
			p.battlefield = append(p.battlefield[:i], p.battlefield[i+1:]...)
			break
		}
	}
	s.priority.StateBasedAction()
	s.turn = s.turn.WithPriority(s.priority.Holder())

	e := s.event(a, rules.EventCreatureDied, cardID, "", p.id)
	e.Data = name
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s died", name),
	}, nil
}

func (s *Session) openChoiceLocked(a state.GameAction) (outcome, error) {
	if _, err := s.livePlayerLocked(a.PlayerID); err != nil {
		return outcome{}, err
	}
	window := rules.ChoiceWindow{
		Type:     rules.ChoiceWindowType(a.Get("choice")),
		PlayerID: a.PlayerID,
		Context:  a.Get("context"),
	}
	switch window.Type {
	case rules.ChoiceWindowModal, rules.ChoiceWindowTarget, rules.ChoiceWindowPayment:
	default:
		return outcome{}, fmt.Errorf("%w: unknown choice %q", ErrInvalidAction, window.Type)
	}
	if err := s.choices.OpenWindow(window); err != nil {
		return outcome{}, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	e := s.event(a, rules.EventChoiceWindowOpen, "", "", a.PlayerID)
	e.Data = string(window.Type)
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s is choosing (%s)", a.PlayerID, window.Type),
	}, nil
}

func (s *Session) closeChoiceLocked(a state.GameAction) (outcome, error) {
	window, ok := s.choices.ActiveWindow()
	if !ok {
		return outcome{}, fmt.Errorf("%w: no open choice", ErrInvalidAction)
	}
	if window.PlayerID != a.PlayerID {
		return outcome{}, fmt.Errorf("%w: choice belongs to %s", ErrInvalidAction, window.PlayerID)
	}
	s.choices.CloseWindow()

	e := s.event(a, rules.EventChoiceWindowClose, "", "", a.PlayerID)
	e.Data = string(window.Type)
	return outcome{
		events:      []rules.Event{e},
		description: fmt.Sprintf("%s made a choice", a.PlayerID),
	}, nil
}

// leaveLocked handles concession and quitting.
func (s *Session) leaveLocked(a state.GameAction, quit bool) (outcome, error) {
	p, err := s.livePlayerLocked(a.PlayerID)
	if err != nil {
		return outcome{}, err
	}
	var events []rules.Event
	verb := "conceded"
	if quit {
		verb = "quit"
		events = append(events, s.event(a, rules.EventPlayerQuit, p.id, "", p.id))
	}
	events = s.eliminateLocked(a, p, events)
	return outcome{
		events:      events,
		description: fmt.Sprintf("%s %s", p.id, verb),
	}, nil
}

// eliminateLocked removes a player from the game. Their spells leave the
// stack, pending extra turns are dropped and, if they were active, the
// turn passes on. The game ends when one player remains.
func (s *Session) eliminateLocked(a state.GameAction, p *player, events []rules.Event) []rules.Event {
	p.eliminated = true
	s.priority.Eliminate(p.id)
	for _, item := range s.stack.List() {
		if item.ControllerID == p.id {
			s.stack.Remove(item.ID)
		}
	}
	pending := s.extraTurns[:0]
	for _, id := range s.extraTurns {
		if id != p.id {
			pending = append(pending, id)
		}
	}
	s.extraTurns = pending

	lost := s.event(a, rules.EventPlayerLost, p.id, "", p.id)
	lost.Amount = p.life
	events = append(events, lost)
	s.logger.Info("player eliminated", zap.String("player_id", p.id), zap.Int("life", p.life))

	live := s.livePlayersLocked()
	if len(live) <= 1 {
		winner := ""
		if len(live) == 1 {
			winner = live[0]
		}
		return s.finishLocked(a, winner, events)
	}
	if s.turn.ActivePlayerID == p.id {
		return s.nextTurnLocked(a, events)
	}
	s.priority.StateBasedAction()
	s.turn = s.turn.WithPriority(s.priority.Holder())
	return events
}

func (s *Session) livePlayersLocked() []string {
	live := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if !s.players[id].eliminated {
			live = append(live, id)
		}
	}
	return live
}

func (s *Session) endGameLocked(a state.GameAction) (outcome, error) {
	winner := a.Get("winner")
	if winner != "" {
		if _, ok := s.players[winner]; !ok {
			return outcome{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, winner)
		}
	}
	events := s.finishLocked(a, winner, nil)
	description := "Game ended in a draw"
	if winner != "" {
		description = fmt.Sprintf("%s won the game", winner)
	}
	return outcome{events: events, description: description}, nil
}

func (s *Session) finishLocked(a state.GameAction, winner string, events []rules.Event) []rules.Event {
	s.status = state.StatusEnded
	s.winner = winner
	s.stack.Clear()
	s.choices.CloseWindow()

	s.logger.Info("game ended",
		zap.String("winner", winner),
		zap.Int("turn", s.turn.TurnNumber),
	)
	ended := s.event(a, rules.EventGameEnded, winner, "", winner)
	ended.Amount = s.turn.TurnNumber
	return append(events, ended)
}
