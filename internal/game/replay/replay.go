package replay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

// Metadata describes the game a replay was recorded from.
type Metadata struct {
	GameID    string    `json:"gameId"`
	Format    string    `json:"format"`
	Players   []string  `json:"players"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
	Winner    string    `json:"winner,omitempty"`
}

// RecordedAction is one applied action together with the state it produced.
// ResultingState is nil for replays rebuilt from a minified share link.
type RecordedAction struct {
	Action         state.GameAction `json:"action"`
	ResultingState *state.GameState `json:"resultingState,omitempty"`
	Description    string           `json:"description"`
}

// Replay is a recorded game. CurrentPosition indexes the action whose
// resulting state is currently shown.
type Replay struct {
	ID              string           `json:"id"`
	Metadata        Metadata         `json:"metadata"`
	Actions         []RecordedAction `json:"actions"`
	CurrentPosition int              `json:"currentPosition"`
	TotalActions    int              `json:"totalActions"`
	CreatedAt       time.Time        `json:"createdAt"`
	LastModifiedAt  time.Time        `json:"lastModifiedAt"`
}

// NewReplay creates an empty replay for a game.
func NewReplay(meta Metadata, now time.Time) *Replay {
	return &Replay{
		ID:             uuid.NewString(),
		Metadata:       meta,
		Actions:        make([]RecordedAction, 0),
		CreatedAt:      now,
		LastModifiedAt: now,
	}
}

// Append records an action and its resulting state.
func (r *Replay) Append(rec RecordedAction, now time.Time) {
	r.Actions = append(r.Actions, rec)
	r.TotalActions = len(r.Actions)
	r.LastModifiedAt = now
}

// StateAt returns the state after the action at index.
func (r *Replay) StateAt(index int) (*state.GameState, bool) {
	if index < 0 || index >= len(r.Actions) {
		return nil, false
	}
	return r.Actions[index].ResultingState, true
}

// Seek moves to index and returns the state there. Out of range leaves the
// position unchanged.
func (r *Replay) Seek(index int) (*state.GameState, bool) {
	st, ok := r.StateAt(index)
	if !ok {
		return nil, false
	}
	r.CurrentPosition = index
	return st, true
}

// Next moves one action forward.
func (r *Replay) Next() (*state.GameState, bool) {
	return r.Seek(r.CurrentPosition + 1)
}

// Previous moves one action back.
func (r *Replay) Previous() (*state.GameState, bool) {
	return r.Seek(r.CurrentPosition - 1)
}

// Clone returns a copy that shares no slices with r. Recorded states are
// immutable once appended, so their pointers are shared.
func (r *Replay) Clone() *Replay {
	cp := *r
	cp.Metadata.Players = append([]string(nil), r.Metadata.Players...)
	cp.Actions = append([]RecordedAction(nil), r.Actions...)
	return &cp
}

// Recorder keeps the in-progress replay of each recorded game.
type Recorder struct {
	logger  *zap.Logger
	store   Store
	now     func() time.Time
	mu      sync.RWMutex
	replays map[string]*Replay // gameID -> Replay
	enabled map[string]bool    // gameID -> whether recording is enabled
}

// NewRecorder creates a recorder. store may be nil when replays are only
// kept in memory.
func NewRecorder(logger *zap.Logger, store Store) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		logger:  logger,
		store:   store,
		now:     time.Now,
		replays: make(map[string]*Replay),
		enabled: make(map[string]bool),
	}
}

// SetClock replaces the timestamp source.
func (rr *Recorder) SetClock(now func() time.Time) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.now = now
}

// StartRecording begins a new replay for a game, replacing any previous one.
func (rr *Recorder) StartRecording(meta Metadata) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	now := rr.now()
	if meta.StartedAt.IsZero() {
		meta.StartedAt = now
	}
	rr.replays[meta.GameID] = NewReplay(meta, now)
	rr.enabled[meta.GameID] = true

	rr.logger.Info("started replay recording", zap.String("game_id", meta.GameID))
}

// StopRecording stops appending to a game's replay and stamps its end.
func (rr *Recorder) StopRecording(gameID, winner string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	rr.enabled[gameID] = false
	if r, ok := rr.replays[gameID]; ok {
		r.Metadata.EndedAt = rr.now()
		r.Metadata.Winner = winner
	}

	rr.logger.Info("stopped replay recording", zap.String("game_id", gameID))
}

// Record appends an action if recording is enabled for its game.
func (rr *Recorder) Record(gameID string, action state.GameAction, result *state.GameState, description string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	r := rr.replays[gameID]
	if !rr.enabled[gameID] || r == nil {
		return
	}
	r.Append(RecordedAction{Action: action, ResultingState: result, Description: description}, rr.now())

	rr.logger.Debug("recorded replay action",
		zap.String("game_id", gameID),
		zap.String("action_type", string(action.Type)),
		zap.Int("action_count", r.TotalActions),
	)
}

// Replay returns a copy of a game's replay.
func (rr *Recorder) Replay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	r, ok := rr.replays[gameID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// Save persists a game's replay and removes it from memory.
func (rr *Recorder) Save(ctx context.Context, gameID string) (string, error) {
	if rr.store == nil {
		return "", fmt.Errorf("save replay for game %s: no store configured", gameID)
	}

	rr.mu.Lock()
	r, ok := rr.replays[gameID]
	if !ok {
		rr.mu.Unlock()
		return "", fmt.Errorf("no replay found for game %s", gameID)
	}
	delete(rr.replays, gameID)
	delete(rr.enabled, gameID)
	rr.mu.Unlock()

	if err := rr.store.SaveReplay(ctx, r); err != nil {
		return "", fmt.Errorf("failed to save replay: %w", err)
	}

	rr.logger.Info("saved replay",
		zap.String("game_id", gameID),
		zap.String("replay_id", r.ID),
		zap.Int("action_count", r.TotalActions),
	)
	return r.ID, nil
}

// Load reads a stored replay by its ID.
func (rr *Recorder) Load(ctx context.Context, replayID string) (*Replay, error) {
	if rr.store == nil {
		return nil, fmt.Errorf("load replay %s: no store configured", replayID)
	}
	r, err := rr.store.LoadReplay(ctx, replayID)
	if err != nil {
		return nil, err
	}

	rr.logger.Info("loaded replay",
		zap.String("replay_id", replayID),
		zap.Int("action_count", r.TotalActions),
	)
	return r, nil
}

// Clear drops a game's replay without saving.
func (rr *Recorder) Clear(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	delete(rr.replays, gameID)
	delete(rr.enabled, gameID)

	rr.logger.Debug("cleared replay from memory", zap.String("game_id", gameID))
}

// IsRecording reports whether actions for gameID are being recorded.
func (rr *Recorder) IsRecording(gameID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.enabled[gameID]
}
