package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planarnexus/nexus-server/internal/game/autosave"
	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testCards() map[string]mana.CardData {
	cards := []mana.CardData{
		{ID: "island-a", Name: "Island", TypeLine: "Basic Land - Island"},
		{ID: "plains-a", Name: "Plains", TypeLine: "Basic Land - Plains"},
		{ID: "mountain-b", Name: "Mountain", TypeLine: "Basic Land - Mountain"},
		{ID: "forest-b", Name: "Forest", TypeLine: "Basic Land - Forest"},
		{ID: "forest-b2", Name: "Forest", TypeLine: "Basic Land - Forest"},
		{ID: "hand-forest", Name: "Forest", TypeLine: "Basic Land - Forest"},
		{ID: "hand-island", Name: "Island", TypeLine: "Basic Land - Island"},
		{ID: "bolt", Name: "Lightning Bolt", TypeLine: "Instant", ManaCost: "{R}"},
		{ID: "leak", Name: "Mana Leak", TypeLine: "Instant", ManaCost: "{1}{U}"},
		{ID: "blade", Name: "Doom Blade", TypeLine: "Instant", ManaCost: "{1}{B}"},
		{ID: "bears", Name: "Grizzly Bears", TypeLine: "Creature - Bear", ManaCost: "{1}{G}"},
		{ID: "cmdr", Name: "Kenrith", TypeLine: "Legendary Creature - Human Noble", ManaCost: "{W}"},
	}
	out := make(map[string]mana.CardData, len(cards))
	for _, c := range cards {
		out[c.ID] = c
	}
	return out
}

func testConfig(players ...string) Config {
	return Config{
		GameID:  "g1",
		Format:  "commander",
		Players: players,
		Cards:   testCards(),
		Battlefield: map[string][]string{
			"A": {"island-a", "plains-a"},
			"B": {"mountain-b", "forest-b", "forest-b2"},
		},
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *replay.ManualClock) {
	t.Helper()
	clock := replay.NewManualClock(epoch)
	return NewSession(cfg, clock, nil, nil), clock
}

func startedSession(t *testing.T, players ...string) *Session {
	t.Helper()
	s, _ := newTestSession(t, testConfig(players...))
	require.NoError(t, s.Start())
	return s
}

// eventLog collects every event published on a session's bus.
type eventLog struct {
	mu     sync.Mutex
	events []rules.Event
}

func watch(s *Session) *eventLog {
	l := &eventLog{}
	s.Bus().Subscribe(func(e rules.Event) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, e)
	})
	return l
}

func (l *eventLog) types() []rules.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]rules.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) last(eventType rules.EventType) (rules.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].Type == eventType {
			return l.events[i], true
		}
	}
	return rules.Event{}, false
}

func pass(s *Session, playerID string) error {
	_, err := s.PassPriority(playerID)
	return err
}

func toMain(t *testing.T, s *Session, playerID string) {
	t.Helper()
	for s.Turn().CurrentStep != rules.StepMain1 {
		require.NoError(t, s.AdvanceStep(playerID))
	}
}

func TestSessionStart(t *testing.T) {
	s, _ := newTestSession(t, testConfig("A", "B", "C", "D"))
	log := watch(s)

	assert.ErrorIs(t, pass(s, "A"), ErrGameNotStarted)
	require.NoError(t, s.Start())

	turn := s.Turn()
	assert.Equal(t, state.StatusInProgress, s.Status())
	assert.Equal(t, 1, turn.TurnNumber)
	assert.Equal(t, 1, turn.RoundNumber)
	assert.Equal(t, "A", turn.ActivePlayerID)
	assert.Equal(t, rules.StepUntap, turn.CurrentStep)
	assert.Equal(t, "A", s.PriorityHolder())
	assert.Equal(t, []rules.EventType{rules.EventGameStarted, rules.EventBeginTurn}, log.types())

	life, ok := s.Life("C")
	require.True(t, ok)
	assert.Equal(t, state.StartingLife, life)
	assert.Len(t, s.Seats(), 4)
	assert.Equal(t, int64(1), s.Sequence())

	assert.ErrorIs(t, s.Start(), ErrGameStarted)
}

func TestSessionRandomSeatingIsRecorded(t *testing.T) {
	cfg := testConfig("A", "B", "C", "D")
	cfg.TurnOrderType = rules.TurnOrderRandom
	cfg.Seed = 42
	s, _ := newTestSession(t, cfg)
	require.NoError(t, s.Start())

	actions := s.Buffer().GameActions()
	require.Len(t, actions, 1)
	assert.Equal(t, joinList(s.Turn().TurnOrder), actions[0].Get("order"))
	assert.ElementsMatch(t, []string{"A", "B", "C", "D"}, s.Turn().TurnOrder)
}

func TestSessionRoundsAdvanceAfterEverySeat(t *testing.T) {
	s := startedSession(t, "A", "B", "C", "D")

	for i, want := range []string{"B", "C", "D"} {
		require.NoError(t, s.StartNextTurn(s.Turn().ActivePlayerID))
		turn := s.Turn()
		assert.Equal(t, want, turn.ActivePlayerID)
		assert.Equal(t, i+2, turn.TurnNumber)
		assert.Equal(t, 1, turn.RoundNumber)
	}
	assert.True(t, s.RoundInfo().IsRoundEnd)

	require.NoError(t, s.StartNextTurn("D"))
	turn := s.Turn()
	assert.Equal(t, "A", turn.ActivePlayerID)
	assert.Equal(t, 5, turn.TurnNumber)
	assert.Equal(t, 2, turn.RoundNumber)
	assert.True(t, s.RoundInfo().IsRoundStart)

	assert.ErrorIs(t, s.StartNextTurn("B"), ErrNotActivePlayer)
}

func TestSessionStepChangeEmptiesPools(t *testing.T) {
	s := startedSession(t, "A", "B")

	require.NoError(t, s.AddMana("A", mana.ColorRed, 2))
	pool, _ := s.Pool("A")
	assert.Equal(t, 2, pool.Red)

	require.NoError(t, s.AdvanceStep("A"))
	pool, _ = s.Pool("A")
	assert.Equal(t, 0, pool.Total())
	assert.Equal(t, rules.StepUpkeep, s.Turn().CurrentStep)

	assert.ErrorIs(t, s.AdvanceStep("B"), ErrNotActivePlayer)
	assert.ErrorIs(t, s.AddMana("A", mana.Color("purple"), 1), ErrInvalidAction)
	assert.ErrorIs(t, s.AddMana("A", mana.ColorRed, 0), ErrInvalidAction)
}

func TestSessionPriorityResolvesThenAdvances(t *testing.T) {
	s := startedSession(t, "A", "B", "C")
	log := watch(s)
	toMain(t, s, "A")

	_, err := s.CastSpell("A", CastRequest{CardID: "leak"})
	require.NoError(t, err)
	require.Len(t, s.StackItems(), 1)
	assert.Equal(t, "A", s.PriorityHolder())

	_, err = s.PassPriority("B")
	assert.ErrorIs(t, err, rules.ErrNotPriorityPlayer)

	for _, id := range []string{"A", "B"} {
		outcome, err := s.PassPriority(id)
		require.NoError(t, err)
		assert.Equal(t, rules.OutcomePriorityPassed, outcome)
	}
	outcome, err := s.PassPriority("C")
	require.NoError(t, err)
	assert.Equal(t, rules.OutcomeResolveTop, outcome)
	assert.Empty(t, s.StackItems())
	assert.Equal(t, "A", s.PriorityHolder())

	resolved, ok := log.last(rules.EventStackItemResolved)
	require.True(t, ok)
	assert.Equal(t, "Mana Leak", resolved.Data)

	for _, id := range []string{"A", "B"} {
		_, err := s.PassPriority(id)
		require.NoError(t, err)
	}
	outcome, err = s.PassPriority("C")
	require.NoError(t, err)
	assert.Equal(t, rules.OutcomeAdvanceStep, outcome)
	assert.Equal(t, rules.StepBeginCombat, s.Turn().CurrentStep)
	assert.Equal(t, "A", s.Turn().PriorityPlayerID)
}

func TestSessionCastAutoTaps(t *testing.T) {
	s := startedSession(t, "A", "B")

	result, err := s.CastSpell("A", CastRequest{CardID: "leak"})
	require.NoError(t, err)
	assert.True(t, result.CanPay)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "Island", result.Sources[0].Name)
	assert.Equal(t, "Plains", result.Sources[1].Name)
	assert.Equal(t, "Tap Island, Plains", result.Explanation)
	assert.Empty(t, s.ManaSources("A"), "both lands tapped")

	items := s.StackItems()
	require.Len(t, items, 1)
	assert.Equal(t, "Mana Leak", items[0].Name)
	assert.Equal(t, "{1}{U}", items[0].ManaCost)
	assert.Equal(t, "leak", items[0].SourceID)
}

func TestSessionCastMissingColor(t *testing.T) {
	s := startedSession(t, "A", "B")
	require.NoError(t, pass(s, "A"))

	before := s.Sequence()
	result, err := s.CastSpell("B", CastRequest{CardID: "blade"})
	require.ErrorIs(t, err, ErrCannotPay)
	assert.False(t, result.CanPay)
	assert.Equal(t, "Missing required colors: black", result.Explanation)
	assert.Empty(t, s.StackItems())
	assert.Len(t, s.ManaSources("B"), 3, "nothing tapped")
	assert.Equal(t, before, s.Sequence(), "rejected actions take no sequence number")

	_, err = s.CastSpell("B", CastRequest{CardID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCard)
}

func TestSessionCastWithSelectedSources(t *testing.T) {
	s := startedSession(t, "A", "B")

	result, err := s.CastSpell("A", CastRequest{CardID: "leak", SourceIDs: []string{"plains-a"}})
	require.ErrorIs(t, err, ErrCannotPay)
	assert.Equal(t, "Selected lands are missing 1 blue mana", result.Explanation)

	_, err = s.CastSpell("A", CastRequest{CardID: "leak", SourceIDs: []string{"forest-b"}})
	assert.ErrorIs(t, err, ErrCannotPay, "another player's land")

	result, err = s.CastSpell("A", CastRequest{CardID: "leak", SourceIDs: []string{"plains-a", "island-a"}})
	require.NoError(t, err)
	assert.True(t, result.CanPay)
	assert.Empty(t, s.ManaSources("A"))
}

func TestSessionPermanentSpellEntersBattlefield(t *testing.T) {
	s := startedSession(t, "A", "B")
	require.NoError(t, pass(s, "A"))

	_, err := s.CastSpell("B", CastRequest{CardID: "bears"})
	require.NoError(t, err)
	require.NoError(t, pass(s, "B"))
	require.NoError(t, pass(s, "A"))

	snap := s.Snapshot()
	b, ok := snap.Player("B")
	require.True(t, ok)
	var ids []string
	for _, perm := range b.Battlefield {
		ids = append(ids, perm.CardID)
	}
	assert.Contains(t, ids, "bears")

	require.NoError(t, s.CreatureDied("B", "bears", ""))
	b, _ = s.Snapshot().Player("B")
	assert.Len(t, b.Battlefield, 3)
}

func TestSessionCommanderTax(t *testing.T) {
	cfg := testConfig("A", "B")
	cfg.Battlefield = nil
	s, _ := newTestSession(t, cfg)
	require.NoError(t, s.Start())

	require.NoError(t, s.AddMana("A", mana.ColorWhite, 1))
	_, err := s.CastSpell("A", CastRequest{CardID: "cmdr", FromCommandZone: true})
	require.NoError(t, err)
	require.NoError(t, pass(s, "A"))
	require.NoError(t, pass(s, "B"))
	require.NoError(t, s.CreatureDied("A", "cmdr", ""))

	require.NoError(t, s.AddMana("A", mana.ColorWhite, 1))
	result, err := s.CastSpell("A", CastRequest{CardID: "cmdr", FromCommandZone: true})
	require.ErrorIs(t, err, ErrCannotPay)
	assert.Equal(t, "Not enough mana: 2 generic mana unpaid", result.Explanation)

	require.NoError(t, s.AddMana("A", mana.ColorGeneric, 2))
	_, err = s.CastSpell("A", CastRequest{CardID: "cmdr", FromCommandZone: true})
	require.NoError(t, err)

	a, _ := s.Snapshot().Player("A")
	assert.Equal(t, 2, a.CommanderCasts)
	assert.Equal(t, "{2}{W}", s.StackItems()[0].ManaCost)
}

func TestSessionPlayLand(t *testing.T) {
	s := startedSession(t, "A", "B")

	assert.ErrorIs(t, s.PlayLand("A", "hand-forest"), ErrWrongTiming)
	toMain(t, s, "A")

	assert.ErrorIs(t, s.PlayLand("B", "hand-forest"), ErrNotActivePlayer)
	assert.ErrorIs(t, s.PlayLand("A", "bolt"), ErrNotALand)
	assert.ErrorIs(t, s.PlayLand("A", "missing"), ErrUnknownCard)
	require.NoError(t, s.PlayLand("A", "hand-forest"))
	assert.Len(t, s.ManaSources("A"), 3)
	assert.ErrorIs(t, s.PlayLand("A", "hand-island"), ErrLandAlreadyPlayed)

	// The land allowance and tapped lands reset on the next turn.
	_, err := s.CastSpell("A", CastRequest{CardID: "leak"})
	require.NoError(t, err)
	require.NoError(t, pass(s, "A"))
	require.NoError(t, pass(s, "B"))
	require.NoError(t, s.StartNextTurn("A"))
	require.NoError(t, s.StartNextTurn("B"))
	assert.Len(t, s.ManaSources("A"), 3)
}

func TestSessionCounter(t *testing.T) {
	s := startedSession(t, "A", "B")
	require.NoError(t, s.AddMana("A", mana.ColorRed, 2))

	_, err := s.CastSpell("A", CastRequest{CardID: "bolt"})
	require.NoError(t, err)
	_, err = s.CastSpell("A", CastRequest{CardID: "bolt"})
	require.NoError(t, err)
	items := s.StackItems()
	require.Len(t, items, 2)

	assert.ErrorIs(t, s.Counter("B", items[0].ID), rules.ErrNotTopOfStack)
	require.NoError(t, s.Counter("B", items[1].ID))
	assert.Len(t, s.StackItems(), 1)
	assert.Equal(t, "A", s.PriorityHolder())
}

func TestSessionExtraTurn(t *testing.T) {
	s := startedSession(t, "A", "B", "C")
	log := watch(s)

	require.NoError(t, s.GrantExtraTurn("A"))
	require.NoError(t, s.StartNextTurn("A"))

	turn := s.Turn()
	assert.Equal(t, "A", turn.ActivePlayerID)
	assert.True(t, turn.IsExtraTurn)
	assert.Equal(t, 2, turn.TurnNumber)
	assert.Equal(t, 1, turn.RoundNumber)
	_, ok := log.last(rules.EventExtraTurn)
	assert.True(t, ok)

	require.NoError(t, s.StartNextTurn("A"))
	turn = s.Turn()
	assert.Equal(t, "B", turn.ActivePlayerID)
	assert.False(t, turn.IsExtraTurn)
	assert.Equal(t, 3, turn.TurnNumber)
}

func TestSessionUpdateTurnOrderKeepsActivePlayer(t *testing.T) {
	s := startedSession(t, "A", "B", "C", "D")

	require.NoError(t, s.UpdateTurnOrder("A", []string{"B", "A", "D", "C"}))
	turn := s.Turn()
	assert.Equal(t, "A", turn.ActivePlayerID)
	assert.Equal(t, 1, turn.ActivePlayerIndex)
	assert.Equal(t, rules.TurnOrderCustom, turn.TurnOrderType)

	require.NoError(t, s.StartNextTurn("A"))
	assert.Equal(t, "D", s.Turn().ActivePlayerID)

	assert.ErrorIs(t, s.UpdateTurnOrder("D", []string{"A", "B"}), rules.ErrPlayerSetMismatch)
}

func TestSessionEliminationAndWinner(t *testing.T) {
	s := startedSession(t, "A", "B", "C")
	log := watch(s)

	require.NoError(t, s.LoseLife("B", 40))
	lost, ok := log.last(rules.EventPlayerLost)
	require.True(t, ok)
	assert.Equal(t, "B", lost.PlayerID)
	assert.ErrorIs(t, s.GainLife("B", 1), ErrPlayerEliminated)
	assert.Equal(t, []string{"C"}, s.AttackableOpponents(rules.AttackAnyone))

	require.NoError(t, s.StartNextTurn("A"))
	assert.Equal(t, "C", s.Turn().ActivePlayerID, "eliminated seats are skipped")
	require.NoError(t, s.StartNextTurn("C"))
	assert.Equal(t, "A", s.Turn().ActivePlayerID)
	assert.Equal(t, 2, s.Turn().RoundNumber)

	require.NoError(t, s.Concede("C"))
	assert.Equal(t, state.StatusEnded, s.Status())
	ended, ok := log.last(rules.EventGameEnded)
	require.True(t, ok)
	assert.Equal(t, "A", ended.PlayerID)
	assert.ErrorIs(t, pass(s, "A"), ErrGameEnded)

	assert.False(t, s.Recorder().IsRecording("g1"))
	rec, ok := s.Recorder().Replay("g1")
	require.True(t, ok)
	assert.Equal(t, "A", rec.Metadata.Winner)
	assert.False(t, rec.Metadata.EndedAt.IsZero())
}

func TestSessionActivePlayerConcedingPassesTheTurn(t *testing.T) {
	s := startedSession(t, "A", "B", "C")
	require.NoError(t, s.AddMana("A", mana.ColorRed, 1))
	_, err := s.CastSpell("A", CastRequest{CardID: "bolt"})
	require.NoError(t, err)

	require.NoError(t, s.Concede("A"))
	assert.Equal(t, state.StatusInProgress, s.Status())
	assert.Empty(t, s.StackItems(), "the conceding player's spells leave the stack")
	turn := s.Turn()
	assert.Equal(t, "B", turn.ActivePlayerID)
	assert.Equal(t, 2, turn.TurnNumber)
	assert.Equal(t, "B", s.PriorityHolder())
}

func TestSessionEndGameDraw(t *testing.T) {
	s := startedSession(t, "A", "B")
	assert.ErrorIs(t, s.EndGame("Z"), ErrUnknownPlayer)
	require.NoError(t, s.EndGame(""))
	assert.Equal(t, state.StatusEnded, s.Status())
	assert.Empty(t, s.Snapshot().Winner)
}

func TestSessionChoiceWindows(t *testing.T) {
	s := startedSession(t, "A", "B")

	require.NoError(t, s.OpenChoice("A", rules.ChoiceWindowModal, "Choose one"))
	window, ok := s.ActiveChoice()
	require.True(t, ok)
	assert.Equal(t, "A", window.PlayerID)

	assert.ErrorIs(t, s.OpenChoice("B", rules.ChoiceWindowTarget, ""), ErrInvalidAction)
	assert.ErrorIs(t, s.OpenChoice("A", rules.ChoiceWindowType("vote"), ""), ErrInvalidAction)
	assert.ErrorIs(t, s.CloseChoice("B"), ErrInvalidAction)
	require.NoError(t, s.CloseChoice("A"))
	_, ok = s.ActiveChoice()
	assert.False(t, ok)
}

// playSample runs a short game and returns its action log.
func playSample(t *testing.T, s *Session) []state.GameAction {
	t.Helper()
	require.NoError(t, s.Start())
	toMain(t, s, "A")
	_, err := s.CastSpell("A", CastRequest{CardID: "leak"})
	require.NoError(t, err)
	require.NoError(t, pass(s, "A"))
	require.NoError(t, pass(s, "B"))
	require.NoError(t, s.GainLife("B", 3))
	require.NoError(t, s.StartNextTurn("A"))
	toMain(t, s, "B")
	require.NoError(t, s.PlayLand("B", "hand-forest"))
	return s.Buffer().GameActions()
}

func TestSessionRemoteActionsReproduceState(t *testing.T) {
	cfg := testConfig("A", "B")
	cfg.TurnOrderType = rules.TurnOrderRandom
	cfg.StartingPlayer = "A"
	cfg.Seed = 7
	local, _ := newTestSession(t, cfg)
	actions := playSample(t, local)

	cfg.Seed = 99
	peer, _ := newTestSession(t, cfg)
	log := watch(peer)
	for _, action := range actions {
		require.NoError(t, peer.ApplyRemoteAction(action))
	}
	assert.Equal(t, local.Checksum(), peer.Checksum())
	desync, _ := peer.DetectDesync(local.Checksum())
	assert.False(t, desync)
	assert.Contains(t, log.types(), rules.EventLandPlayed)

	assert.ErrorIs(t, peer.ApplyRemoteAction(actions[0]), ErrDuplicateAction)
	ahead := state.NewAction(state.ActionGainLife, "A", map[string]string{"amount": "1"}, epoch)
	ahead.Sequence = peer.Sequence() + 2
	assert.ErrorIs(t, peer.ApplyRemoteAction(ahead), ErrSequenceGap)
	ahead.Sequence = peer.Sequence() + 1
	require.NoError(t, peer.ApplyRemoteAction(ahead))
	assert.NotEqual(t, local.Checksum(), peer.Checksum())
}

func TestSessionRebuild(t *testing.T) {
	local, _ := newTestSession(t, testConfig("A", "B"))
	actions := playSample(t, local)
	want := local.Checksum()

	restored, _ := newTestSession(t, testConfig("A", "B"))
	log := watch(restored)
	require.NoError(t, restored.Rebuild(actions))
	assert.Equal(t, want, restored.Checksum())
	assert.Empty(t, log.types(), "rebuilding publishes nothing")
	assert.Equal(t, len(actions), restored.Buffer().Len())

	require.NoError(t, local.Rebuild(actions))
	assert.Equal(t, want, local.Checksum())

	bad := append([]state.GameAction(nil), actions...)
	bad[1].Type = "dance"
	err := restored.Rebuild(bad)
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestSessionPlaybackCatchesUpLateJoiner(t *testing.T) {
	local, _ := newTestSession(t, testConfig("A", "B"))
	actions := playSample(t, local)

	joiner, clock := newTestSession(t, testConfig("A", "B"))
	for _, action := range actions {
		joiner.QueueAction(action)
	}
	decision := joiner.Join(epoch.Add(time.Minute))
	assert.True(t, decision.CanJoin)
	assert.Equal(t, len(actions), decision.ActionCount)
	assert.Equal(t, state.StatusWaiting, joiner.Status(), "queued actions wait for playback")

	require.True(t, joiner.Buffer().Start())
	clock.Advance(time.Duration(len(actions)) * replay.DefaultConfig().BaseDelay)

	assert.Equal(t, replay.StateCompleted, joiner.Buffer().State())
	assert.Equal(t, local.Checksum(), joiner.Checksum())

	assert.False(t, joiner.Join(epoch.Add(3*time.Hour)).CanJoin)
}

func TestSessionSeekThenPlay(t *testing.T) {
	local, _ := newTestSession(t, testConfig("A", "B"))
	actions := playSample(t, local)

	joiner, clock := newTestSession(t, testConfig("A", "B"))
	for _, action := range actions {
		joiner.QueueAction(action)
	}

	require.True(t, joiner.Buffer().SeekTo(2))
	assert.Equal(t, int64(3), joiner.Sequence())
	assert.Equal(t, state.StatusInProgress, joiner.Status())
	prefix, _ := newTestSession(t, testConfig("A", "B"))
	require.NoError(t, prefix.Rebuild(actions[:3]))
	assert.Equal(t, prefix.Checksum(), joiner.Checksum())

	require.True(t, joiner.Buffer().Start())
	clock.Advance(time.Duration(len(actions)) * replay.DefaultConfig().BaseDelay)
	assert.Equal(t, replay.StateCompleted, joiner.Buffer().State())
	assert.Equal(t, int64(len(actions)), joiner.Sequence())
	assert.Equal(t, local.Checksum(), joiner.Checksum())

	// Seeking back re-derives the game from the buffer.
	require.True(t, joiner.Buffer().SeekTo(2))
	assert.Equal(t, len(actions), joiner.Buffer().Len(), "buffer kept")
	assert.Equal(t, prefix.Checksum(), joiner.Checksum())
	require.True(t, joiner.Buffer().SeekTo(len(actions)-1))
	assert.Equal(t, local.Checksum(), joiner.Checksum())
}

func TestSessionRejectsCommandsWhileCatchingUp(t *testing.T) {
	local, _ := newTestSession(t, testConfig("A", "B"))
	actions := playSample(t, local)

	joiner, _ := newTestSession(t, testConfig("A", "B"))
	for _, action := range actions {
		joiner.QueueAction(action)
	}

	assert.ErrorIs(t, joiner.Start(), ErrCatchingUp)
	assert.ErrorIs(t, joiner.ApplyRemoteAction(actions[0]), ErrCatchingUp)
	assert.Equal(t, 0, joiner.Buffer().Progress().AppliedActions)
	assert.Equal(t, len(actions), joiner.Buffer().Pending())

	require.True(t, joiner.Buffer().SeekTo(len(actions)-1))
	assert.Equal(t, 0, joiner.Buffer().Pending())
	require.NoError(t, joiner.GainLife("A", 1))
	assert.Equal(t, int64(len(actions)+1), joiner.Sequence())
}

func TestSessionRecordsReplay(t *testing.T) {
	local, _ := newTestSession(t, testConfig("A", "B"))
	actions := playSample(t, local)

	rec, ok := local.Recorder().Replay("g1")
	require.True(t, ok)
	assert.Equal(t, len(actions), rec.TotalActions)
	assert.Equal(t, []string{"A", "B"}, rec.Metadata.Players)
	assert.Equal(t, "Game started, A goes first", rec.Actions[0].Description)
	assert.Equal(t, "A cast Mana Leak", rec.Actions[4].Description)

	first, ok := rec.StateAt(0)
	require.True(t, ok)
	assert.Equal(t, state.StatusInProgress, first.Status)
	assert.Equal(t, 1, first.ActionCount)

	local.Reset()
	assert.Equal(t, state.StatusWaiting, local.Status())
	_, ok = local.Recorder().Replay("g1")
	assert.False(t, ok)
	assert.Zero(t, local.Buffer().Len())
}

func TestSessionAutoSaveOnEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, testConfig("A", "B"))
	store := autosave.NewMemoryStore()
	m := s.EnableAutoSave(autosave.DefaultConfig(), store, "A")

	require.NoError(t, s.Start())
	require.NoError(t, s.StartNextTurn("A"))
	require.NoError(t, s.GainLife("A", 2))

	saves, err := m.Saves(ctx)
	require.NoError(t, err)
	require.Len(t, saves, 2)
	assert.Equal(t, autosave.TriggerEndOfTurn, saves[0].Trigger)
	assert.Equal(t, 2, saves[0].State.Turn.TurnNumber)
	assert.Equal(t, "A gained 2 life", saves[1].Description)

	require.NoError(t, s.Quit("A"))
	saves, err = m.Saves(ctx)
	require.NoError(t, err)
	assert.Empty(t, saves, "the local player quitting clears their auto-saves")
}
