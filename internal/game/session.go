// Package game ties the rules, mana, replay and auto-save packages into a
// per-game Session. Every change to a game goes through a GameAction so
// that local commands, remote peers and replays share one code path.
package game

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/autosave"
	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// Config describes the game a Session runs.
type Config struct {
	GameID         string
	Format         string
	Players        []string
	TurnOrderType  rules.TurnOrderType
	CustomOrder    []string
	StartingPlayer string // defaults to the first seat
	StartingLife   int    // defaults to state.StartingLife
	Seed           int64  // seeds random seating; zero uses the clock

	Cards     map[string]mana.CardData
	LandTable mana.LandTable // nil uses mana.DefaultLandTable
	// Battlefield lists card IDs each player starts with in play.
	Battlefield map[string][]string

	Replay replay.Config
}

type player struct {
	id             string
	life           int
	pool           mana.ManaPool
	battlefield    []mana.Permanent
	eliminated     bool
	commanderCasts int
	landsPlayed    int
	reductions     *mana.CostReductionManager
}

// outcome is what applying one action produced.
type outcome struct {
	events      []rules.Event
	description string
	payment     *mana.AutoTapResult
	pass        rules.PassOutcome
}

// Session is the single writer for one game. All methods are safe for
// concurrent use; events are published after the session lock is released
// so listeners may call back into the session.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger
	clock  replay.Clock
	rng    *rand.Rand

	status     state.GameStatus
	turn       rules.Turn
	order      []string
	stack      *rules.Stack
	priority   *rules.PriorityTracker
	resolution *rules.ResolutionContext
	choices    *rules.ChoiceWindowManager
	players    map[string]*player
	cards      map[string]mana.CardData
	lands      mana.LandTable
	extraTurns []string
	winner     string

	sequence     int64
	lastActionID string
	actionCount  int

	bus      *rules.EventBus
	buffer   *replay.Buffer
	recorder *replay.Recorder
}

// NewSession creates a session waiting to start. A nil clock uses the wall
// clock and a nil recorder keeps replays in memory only.
func NewSession(cfg Config, clock replay.Clock, recorder *replay.Recorder, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = replay.RealClock{}
	}
	if cfg.GameID == "" {
		cfg.GameID = uuid.NewString()
	}
	if cfg.TurnOrderType == "" {
		cfg.TurnOrderType = rules.TurnOrderClockwise
	}
	if cfg.StartingLife <= 0 {
		cfg.StartingLife = state.StartingLife
	}
	if cfg.LandTable == nil {
		cfg.LandTable = mana.DefaultLandTable()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = clock.Now().UnixNano()
	}
	logger = logger.With(zap.String("game_id", cfg.GameID))
	if recorder == nil {
		recorder = replay.NewRecorder(logger, nil)
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
		bus:      rules.NewEventBus(),
		buffer:   replay.NewBuffer(cfg.Replay, clock, logger),
		recorder: recorder,
	}
	s.buffer.SetApplier(s.applyBuffered)
	s.buffer.SetSeekApplier(s.applySeek)
	s.resetLocked()
	return s
}

func (s *Session) resetLocked() {
	s.status = state.StatusWaiting
	s.turn = rules.Turn{}
	s.order = append([]string(nil), s.cfg.Players...)
	s.stack = rules.NewStack()
	s.stack.SetClock(s.clock.Now)
	s.priority = rules.NewPriorityTracker(rules.Turn{})
	s.resolution = rules.NewResolutionContext()
	s.choices = rules.NewChoiceWindowManager()
	s.extraTurns = nil
	s.winner = ""
	s.sequence = 0
	s.lastActionID = ""
	s.actionCount = 0

	s.cards = make(map[string]mana.CardData, len(s.cfg.Cards))
	for id, card := range s.cfg.Cards {
		s.cards[id] = card
	}
	s.lands = s.cfg.LandTable

	s.players = make(map[string]*player, len(s.cfg.Players))
	for _, id := range s.cfg.Players {
		p := &player{
			id:         id,
			life:       s.cfg.StartingLife,
			reductions: mana.NewCostReductionManager(),
		}
		for _, cardID := range s.cfg.Battlefield[id] {
			p.battlefield = append(p.battlefield, mana.Permanent{CardID: cardID, ControllerID: id})
		}
		s.players[id] = p
	}
}

// GameID returns the session's game ID.
func (s *Session) GameID() string { return s.cfg.GameID }

// Bus returns the event bus rules events are published on.
func (s *Session) Bus() *rules.EventBus { return s.bus }

// Buffer returns the replay buffer, for playback controls.
func (s *Session) Buffer() *replay.Buffer { return s.buffer }

// Recorder returns the replay recorder.
func (s *Session) Recorder() *replay.Recorder { return s.recorder }

func (s *Session) Status() state.GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Turn returns the current turn value.
func (s *Session) Turn() rules.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// Sequence returns the sequence number of the last applied action.
func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// StackItems lists the stack bottom to top.
func (s *Session) StackItems() []rules.StackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.List()
}

// PriorityHolder returns the player who may act next.
func (s *Session) PriorityHolder() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priority.Holder()
}

func (s *Session) Life(playerID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return 0, false
	}
	return p.life, true
}

func (s *Session) Pool(playerID string) (mana.ManaPool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return mana.ManaPool{}, false
	}
	return p.pool, true
}

// ManaSources lists the untapped lands playerID could tap.
func (s *Session) ManaSources(playerID string) []mana.ManaSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return nil
	}
	return mana.GetManaSources(p.battlefield, s.cards, s.lands)
}

// ActiveChoice returns the open choice window, if any.
func (s *Session) ActiveChoice() (rules.ChoiceWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.choices.ActiveWindow()
}

// Seats returns the seating chart of the current turn order.
func (s *Session) Seats() []rules.PlayerSeat {
	return rules.Seats(s.Turn())
}

// RoundInfo reports how far the current round has progressed.
func (s *Session) RoundInfo() rules.RoundProgress {
	return rules.RoundInfo(s.Turn())
}

// AttackableOpponents lists the live players the active player may attack.
func (s *Session) AttackableOpponents(restriction rules.AttackRestriction) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make([]string, 0, len(s.order))
	for _, id := range s.order {
		if !s.players[id].eliminated {
			live = append(live, id)
		}
	}
	return rules.AttackableOpponents(s.turn, live, restriction)
}

// RegisterCards adds card data used for land and permanent lookups.
func (s *Session) RegisterCards(cards ...mana.CardData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, card := range cards {
		s.cards[card.ID] = card
	}
}

// AddCostReduction registers a cost reduction effect for playerID.
func (s *Session) AddCostReduction(playerID string, reduction mana.CostReduction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	p.reductions.AddReduction(reduction)
	return nil
}

// Snapshot captures the current game state.
func (s *Session) Snapshot() *state.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() *state.GameState {
	turn := s.turn
	turn.TurnOrder = append([]string(nil), s.turn.TurnOrder...)

	st := &state.GameState{
		GameID:       s.cfg.GameID,
		Format:       s.cfg.Format,
		Status:       s.status,
		Turn:         turn,
		Stack:        s.stack.List(),
		Players:      make([]state.PlayerState, 0, len(s.order)),
		Cards:        make(map[string]mana.CardData, len(s.cards)),
		Winner:       s.winner,
		LastActionID: s.lastActionID,
		ActionCount:  s.actionCount,
		CapturedAt:   s.clock.Now(),
	}
	for _, id := range s.order {
		p := s.players[id]
		st.Players = append(st.Players, state.PlayerState{
			ID:             p.id,
			Life:           p.life,
			ManaPool:       p.pool,
			Battlefield:    append([]mana.Permanent(nil), p.battlefield...),
			Eliminated:     p.eliminated,
			CommanderCasts: p.commanderCasts,
			LandsPlayed:    p.landsPlayed,
		})
	}
	for id, card := range s.cards {
		st.Cards[id] = card
	}
	for i := range st.Stack {
		st.Stack[i].Resolve = nil
	}
	return st
}

// Checksum hashes the current state for desync detection.
func (s *Session) Checksum() string {
	return state.Checksum(s.Snapshot())
}

// DetectDesync compares the local state against a peer's checksum.
func (s *Session) DetectDesync(remoteHash string) (bool, string) {
	return state.DetectDesync(s.Snapshot(), remoteHash)
}

// Join reports whether a player may still join this game at now.
func (s *Session) Join(now time.Time) replay.JoinDecision {
	decision := s.buffer.ValidateJoin(now)
	if !decision.CanJoin {
		s.logger.Info("join rejected", zap.String("reason", decision.Reason))
	} else if decision.Warning != "" {
		s.logger.Warn("late join", zap.String("warning", decision.Warning))
	}
	return decision
}

// Reset returns the session to its pre-game state. Bus subscriptions are
// kept.
func (s *Session) Reset() {
	s.buffer.Reset()
	s.recorder.Clear(s.cfg.GameID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Info("session reset")
}

// EnableAutoSave attaches an auto-save manager to the session's events.
// localPlayer scopes quit cleanup to this client's own departure.
func (s *Session) EnableAutoSave(cfg autosave.Config, store autosave.Store, localPlayer string) *autosave.Manager {
	m := autosave.NewManager(s.cfg.GameID, cfg, store, s.Snapshot, s.logger)
	m.SetClock(s.clock.Now)
	m.SetLocalPlayer(localPlayer)
	m.Attach(s.bus)
	return m
}

// ApplyRemoteAction applies an action produced by another peer. Actions
// must arrive in sequence order.
func (s *Session) ApplyRemoteAction(action state.GameAction) error {
	s.mu.Lock()
	out, err := s.applyLocked(action.Clone(), true)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.bus.PublishBatch(out.events)
	return nil
}

// QueueAction adds an action to the replay buffer without applying it.
// Queued actions are applied by buffer playback or a seek, used to catch a
// late joiner up at a watchable pace. Until they are all applied, local
// commands and remote actions fail with ErrCatchingUp.
func (s *Session) QueueAction(action state.GameAction) {
	s.buffer.AddAction(action.Clone())
}

// Rebuild resets the session and applies actions in order without
// publishing events. It is used to restore a game from a saved action log.
func (s *Session) Rebuild(actions []state.GameAction) error {
	s.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, action := range actions {
		if _, err := s.applyLocked(action.Clone(), true); err != nil {
			return fmt.Errorf("rebuild action %d (%s): %w", i, action.Type, err)
		}
	}
	s.logger.Info("session rebuilt", zap.Int("action_count", len(actions)))
	return nil
}

func (s *Session) applyBuffered(action state.GameAction) error {
	s.mu.Lock()
	out, err := s.applyLocked(action.Clone(), false)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.bus.PublishBatch(out.events)
	return nil
}

// applySeek brings the session to a seek target without publishing
// events. A rewind starts the game over from the first buffered action.
func (s *Session) applySeek(actions []state.GameAction, rewind bool) error {
	if rewind {
		s.recorder.Clear(s.cfg.GameID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rewind {
		s.resetLocked()
	}
	for i, action := range actions {
		if _, err := s.applyLocked(action.Clone(), false); err != nil {
			return fmt.Errorf("seek action %d (%s): %w", i, action.Type, err)
		}
	}
	s.logger.Debug("session seeked", zap.Int("applied", len(actions)), zap.Bool("rewind", rewind))
	return nil
}

// submit stamps a local command as the next action and applies it.
func (s *Session) submit(actionType state.ActionType, playerID string, data map[string]string) (outcome, error) {
	s.mu.Lock()
	action := state.NewAction(actionType, playerID, data, s.clock.Now())
	out, err := s.applyLocked(action, true)
	s.mu.Unlock()
	if err != nil {
		return out, err
	}
	s.bus.PublishBatch(out.events)
	return out, nil
}

// applyLocked validates sequencing, dispatches the action and, on success,
// appends it to the buffer and the replay. Handlers validate before they
// mutate, so a rejected action leaves no trace.
func (s *Session) applyLocked(action state.GameAction, buffered bool) (outcome, error) {
	if buffered {
		if pending := s.buffer.Pending(); pending > 0 {
			return outcome{}, fmt.Errorf("%w: %d pending", ErrCatchingUp, pending)
		}
	}
	switch {
	case action.Sequence == 0:
		action.Sequence = s.sequence + 1
	case action.Sequence <= s.sequence:
		return outcome{}, fmt.Errorf("%w: %s (sequence %d)", ErrDuplicateAction, action.ID, action.Sequence)
	case action.Sequence > s.sequence+1:
		return outcome{}, fmt.Errorf("%w: got %d, want %d", ErrSequenceGap, action.Sequence, s.sequence+1)
	}

	out, err := s.dispatchLocked(action)
	if err != nil {
		s.logger.Debug("action rejected",
			zap.String("action_id", action.ID),
			zap.String("type", string(action.Type)),
			zap.String("player_id", action.PlayerID),
			zap.Error(err),
		)
		return out, err
	}

	s.sequence = action.Sequence
	s.lastActionID = action.ID
	s.actionCount++
	if buffered {
		s.buffer.AddAction(action)
		s.buffer.MarkAllApplied()
	}
	s.recorder.Record(s.cfg.GameID, action, s.snapshotLocked(), out.description)
	if s.status == state.StatusEnded {
		s.recorder.StopRecording(s.cfg.GameID, s.winner)
	}
	return out, nil
}

func joinList(ids []string) string {
	return strings.Join(ids, ",")
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
