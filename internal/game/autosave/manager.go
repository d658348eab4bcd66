// Package autosave takes rotating snapshots of a running game at
// configurable trigger points.
package autosave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/game/state"
)

// SnapshotSource returns the current game state, or nil when there is
// nothing to save yet.
type SnapshotSource func() *state.GameState

// Manager decides when to save and which slot to write.
type Manager struct {
	mu          sync.Mutex
	gameID      string
	localPlayer string
	cfg         Config
	store       Store
	source      SnapshotSource
	logger      *zap.Logger
	now         func() time.Time

	bus     *rules.EventBus
	handles []int
}

func NewManager(gameID string, cfg Config, store Store, source SnapshotSource, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gameID: gameID,
		cfg:    cfg,
		store:  store,
		source: source,
		logger: logger.With(zap.String("game_id", gameID)),
		now:    time.Now,
	}
}

// SetClock replaces the timestamp source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// SetLocalPlayer names the player whose quit ends this session. With no
// local player only the end of the game triggers cleanup.
func (m *Manager) SetLocalPlayer(playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localPlayer = playerID
}

func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// SetConfig applies new settings to subsequent triggers.
func (m *Manager) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	return nil
}

func (m *Manager) OnEndOfTurn(ctx context.Context) error {
	return m.trigger(ctx, TriggerEndOfTurn, "End of turn")
}

func (m *Manager) OnAfterCombat(ctx context.Context) error {
	return m.trigger(ctx, TriggerAfterCombat, "After combat")
}

func (m *Manager) OnPriorityPass(ctx context.Context) error {
	return m.trigger(ctx, TriggerPriorityPass, "Priority passed")
}

func (m *Manager) OnPreModal(ctx context.Context) error {
	return m.trigger(ctx, TriggerPreModal, "Before choice")
}

func (m *Manager) OnCardPlayed(ctx context.Context, cardName string) error {
	return m.trigger(ctx, TriggerCardPlayed, describe("Played", cardName))
}

func (m *Manager) OnSpellResolved(ctx context.Context, spellName string) error {
	return m.trigger(ctx, TriggerSpellResolved, describe("Resolved", spellName))
}

func (m *Manager) OnLifeGain(ctx context.Context, playerID string, amount int) error {
	return m.trigger(ctx, TriggerLifeGain, fmt.Sprintf("%s gained %d life", playerID, amount))
}

func (m *Manager) OnCreatureDeath(ctx context.Context, creatureName string) error {
	return m.trigger(ctx, TriggerCreatureDeath, describe("Died:", creatureName))
}

// OnGameEnd removes this game's auto-saves when cleanup is enabled.
func (m *Manager) OnGameEnd(ctx context.Context) error {
	return m.cleanup(ctx, "game ended")
}

// OnGameQuit is OnGameEnd for a game abandoned by the local player.
func (m *Manager) OnGameQuit(ctx context.Context) error {
	return m.cleanup(ctx, "game quit")
}

// Saves lists this game's auto-saves, oldest first.
func (m *Manager) Saves(ctx context.Context) ([]Save, error) {
	return m.store.List(ctx, m.gameID)
}

// Latest returns the newest auto-save.
func (m *Manager) Latest(ctx context.Context) (Save, bool, error) {
	saves, err := m.store.List(ctx, m.gameID)
	if err != nil || len(saves) == 0 {
		return Save{}, false, err
	}
	return saves[len(saves)-1], true, nil
}

func (m *Manager) trigger(ctx context.Context, trigger Trigger, description string) error {
	m.mu.Lock()
	cfg := m.cfg
	now := m.now
	m.mu.Unlock()

	if !cfg.Enabled || !cfg.Has(trigger) {
		return nil
	}
	snapshot := m.source()
	if snapshot == nil {
		return nil
	}

	saves, err := m.store.List(ctx, m.gameID)
	if err != nil {
		return fmt.Errorf("auto-save %s: %w", trigger, err)
	}
	slot, ok := m.pickSlot(cfg, saves)
	if !ok {
		m.logger.Info("auto-save slots full, skipping",
			zap.String("trigger", string(trigger)),
			zap.Int("max_auto_saves", cfg.MaxAutoSaves),
		)
		return nil
	}

	var serial int64
	for _, existing := range saves {
		if existing.Serial > serial {
			serial = existing.Serial
		}
	}

	save := Save{
		ID:          uuid.NewString(),
		GameID:      m.gameID,
		Slot:        slot,
		Trigger:     trigger,
		Description: description,
		State:       snapshot,
		CreatedAt:   now(),
		Serial:      serial + 1,
	}
	if err := m.store.Put(ctx, save); err != nil {
		return fmt.Errorf("auto-save %s: %w", trigger, err)
	}

	m.logger.Debug("auto-saved",
		zap.String("trigger", string(trigger)),
		zap.Int("slot", slot),
		zap.Int("turn", snapshot.Turn.TurnNumber),
	)
	return nil
}

// pickSlot returns the lowest free slot, or the oldest one when all are
// taken and rotation is on.
func (m *Manager) pickSlot(cfg Config, saves []Save) (int, bool) {
	used := make(map[int]bool, len(saves))
	for _, s := range saves {
		used[s.Slot] = true
	}
	for slot := 0; slot < cfg.MaxAutoSaves; slot++ {
		if !used[slot] {
			return slot, true
		}
	}
	if !cfg.RotateSlots || len(saves) == 0 {
		return 0, false
	}
	m.logger.Debug("rotating oldest auto-save", zap.Int("slot", saves[0].Slot))
	return saves[0].Slot, true
}

func (m *Manager) cleanup(ctx context.Context, reason string) error {
	if !m.Config().CleanupOnEnd {
		return nil
	}
	if err := m.store.DeleteGame(ctx, m.gameID); err != nil {
		return fmt.Errorf("clean up auto-saves: %w", err)
	}
	m.logger.Info("cleaned up auto-saves", zap.String("reason", reason))
	return nil
}

// Attach subscribes the manager's handlers to bus. Handler errors are
// logged; events are never blocked on persistence failures.
func (m *Manager) Attach(bus *rules.EventBus) {
	m.Detach()

	on := func(eventType rules.EventType, handle func(context.Context, rules.Event) error) int {
		return bus.SubscribeTyped(eventType, func(e rules.Event) {
			if err := handle(context.Background(), e); err != nil {
				m.logger.Warn("auto-save failed",
					zap.String("event", string(e.Type)),
					zap.Error(err),
				)
			}
		})
	}

	handles := []int{
		on(rules.EventEndTurn, func(ctx context.Context, _ rules.Event) error { return m.OnEndOfTurn(ctx) }),
		on(rules.EventCombatEnded, func(ctx context.Context, _ rules.Event) error { return m.OnAfterCombat(ctx) }),
		on(rules.EventPriorityPassed, func(ctx context.Context, _ rules.Event) error { return m.OnPriorityPass(ctx) }),
		on(rules.EventChoiceWindowOpen, func(ctx context.Context, _ rules.Event) error { return m.OnPreModal(ctx) }),
		on(rules.EventLandPlayed, func(ctx context.Context, e rules.Event) error { return m.OnCardPlayed(ctx, e.Data) }),
		on(rules.EventSpellCast, func(ctx context.Context, e rules.Event) error { return m.OnCardPlayed(ctx, e.Data) }),
		on(rules.EventStackItemResolved, func(ctx context.Context, e rules.Event) error { return m.OnSpellResolved(ctx, e.Data) }),
		on(rules.EventGainedLife, func(ctx context.Context, e rules.Event) error {
			return m.OnLifeGain(ctx, e.PlayerID, e.Amount)
		}),
		on(rules.EventCreatureDied, func(ctx context.Context, e rules.Event) error { return m.OnCreatureDeath(ctx, e.Data) }),
		on(rules.EventGameEnded, func(ctx context.Context, _ rules.Event) error { return m.OnGameEnd(ctx) }),
		on(rules.EventPlayerQuit, func(ctx context.Context, e rules.Event) error {
			m.mu.Lock()
			local := m.localPlayer
			m.mu.Unlock()
			if local == "" || e.PlayerID != local {
				return nil
			}
			return m.OnGameQuit(ctx)
		}),
	}

	m.mu.Lock()
	m.bus = bus
	m.handles = handles
	m.mu.Unlock()
}

// Detach removes every subscription made by Attach.
func (m *Manager) Detach() {
	m.mu.Lock()
	bus, handles := m.bus, m.handles
	m.bus, m.handles = nil, nil
	m.mu.Unlock()

	if bus == nil {
		return
	}
	for _, h := range handles {
		bus.Unsubscribe(h)
	}
}

func describe(prefix, name string) string {
	if name == "" {
		return prefix
	}
	return prefix + " " + name
}
