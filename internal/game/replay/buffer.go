package replay

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/planarnexus/nexus-server/internal/game/state"
)

// PlaybackState is the state of the playback machine.
type PlaybackState string

const (
	StateIdle           PlaybackState = "idle"
	StatePlaying        PlaybackState = "playing"
	StatePaused         PlaybackState = "paused"
	StateFastForwarding PlaybackState = "fast-forwarding"
	StateCompleted      PlaybackState = "completed"
)

// Config controls buffer capacity, playback timing and join policy.
type Config struct {
	MaxBufferSize         int           `mapstructure:"max_buffer_size" json:"maxBufferSize"`
	MaxGameAge            time.Duration `mapstructure:"max_game_age" json:"maxGameAge"`
	LateJoinWarnThreshold int           `mapstructure:"late_join_warn_threshold" json:"lateJoinWarnThreshold"`
	BaseDelay             time.Duration `mapstructure:"base_delay" json:"baseDelay"`
	FastForwardSpeed      float64       `mapstructure:"fast_forward_speed" json:"fastForwardSpeed"`
}

// DefaultConfig returns the default buffer configuration.
func DefaultConfig() Config {
	return Config{
		MaxBufferSize:         10000,
		MaxGameAge:            2 * time.Hour,
		LateJoinWarnThreshold: 500,
		BaseDelay:             100 * time.Millisecond,
		FastForwardSpeed:      16,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = def.MaxBufferSize
	}
	if c.MaxGameAge <= 0 {
		c.MaxGameAge = def.MaxGameAge
	}
	if c.LateJoinWarnThreshold <= 0 {
		c.LateJoinWarnThreshold = def.LateJoinWarnThreshold
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.FastForwardSpeed <= 0 {
		c.FastForwardSpeed = def.FastForwardSpeed
	}
	return c
}

// BufferedAction is an action held by the buffer with its apply status.
type BufferedAction struct {
	Action     state.GameAction `json:"action"`
	ReceivedAt time.Time        `json:"receivedAt"`
	Applied    bool             `json:"applied"`
	AppliedAt  time.Time        `json:"appliedAt,omitempty"`
}

// Progress summarises playback position.
type Progress struct {
	TotalActions           int           `json:"totalActions"`
	AppliedActions         int           `json:"appliedActions"`
	Percentage             float64       `json:"percentage"`
	EstimatedTimeRemaining time.Duration `json:"estimatedTimeRemaining"`
}

// JoinDecision is the outcome of a late-join check.
type JoinDecision struct {
	CanJoin     bool          `json:"canJoin"`
	Reason      string        `json:"reason,omitempty"`
	Warning     string        `json:"warning,omitempty"`
	GameAge     time.Duration `json:"gameAge"`
	ActionCount int           `json:"actionCount"`
}

// ActionApplier applies one action during timed playback.
type ActionApplier func(action state.GameAction) error

// SeekApplier brings the owner's state to a seek target in one batch. With
// rewind set the owner starts over and actions runs from the first
// buffered action; otherwise actions are the ones skipped from the cursor.
type SeekApplier func(actions []state.GameAction, rewind bool) error

// Buffer is the bounded, append-only action log with a playback state
// machine on top. The cursor is the index of the next action to apply, so
// every action before it is applied.
type Buffer struct {
	mu     sync.Mutex
	cfg    Config
	clock  Clock
	logger *zap.Logger

	actions       []BufferedAction
	cursor        int
	gameStartTime time.Time

	state      PlaybackState
	speed      float64
	ffTarget   int
	savedSpeed float64
	timer      Timer
	generation int

	applier    ActionApplier
	seeker     SeekApplier
	onProgress func(Progress)
	onState    func(PlaybackState)
	onSeek     func(index int)
}

// NewBuffer creates an empty buffer. A nil clock uses the wall clock and a
// nil logger discards output.
func NewBuffer(cfg Config, clock Clock, logger *zap.Logger) *Buffer {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buffer{
		cfg:    cfg.withDefaults(),
		clock:  clock,
		logger: logger,
		state:  StateIdle,
		speed:  1,
	}
}

// SetApplier sets the callback run for each action applied by a tick.
func (b *Buffer) SetApplier(applier ActionApplier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applier = applier
}

// SetSeekApplier sets the callback that applies the actions a seek skips
// over or rewinds through.
func (b *Buffer) SetSeekApplier(seeker SeekApplier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeker = seeker
}

// Pending returns how many buffered actions are not yet applied.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ba := range b.actions {
		if !ba.Applied {
			n++
		}
	}
	return n
}

// OnProgress registers the progress observer, called after every tick and
// seek.
func (b *Buffer) OnProgress(fn func(Progress)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onProgress = fn
}

// OnStateChange registers the playback state observer.
func (b *Buffer) OnStateChange(fn func(PlaybackState)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onState = fn
}

// OnSeek registers a callback receiving the index a seek landed on.
func (b *Buffer) OnSeek(fn func(index int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSeek = fn
}

// SetGameStartTime overrides the start time used by ValidateJoin. It
// otherwise defaults to the arrival time of the first action.
func (b *Buffer) SetGameStartTime(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gameStartTime = t
}

// AddAction appends an action. Past MaxBufferSize the oldest action is
// evicted and the cursor shifts down with it, never below zero.
func (b *Buffer) AddAction(action state.GameAction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	if b.gameStartTime.IsZero() {
		b.gameStartTime = now
	}
	b.actions = append(b.actions, BufferedAction{Action: action, ReceivedAt: now})

	for len(b.actions) > b.cfg.MaxBufferSize {
		evicted := b.actions[0]
		b.actions[0] = BufferedAction{}
		b.actions = b.actions[1:]
		if b.cursor > 0 {
			b.cursor--
		}
		if b.ffTarget > 0 {
			b.ffTarget--
		}
		b.logger.Debug("replay buffer evicted oldest action",
			zap.String("action_id", evicted.Action.ID),
			zap.Int("max_buffer_size", b.cfg.MaxBufferSize),
		)
	}
}

// Len returns the number of buffered actions.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.actions)
}

// CurrentIndex returns the cursor: the index of the next action to apply.
func (b *Buffer) CurrentIndex() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// State returns the playback state.
func (b *Buffer) State() PlaybackState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Speed returns the playback speed multiplier.
func (b *Buffer) Speed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.speed
}

// Actions returns a copy of the buffered actions.
func (b *Buffer) Actions() []BufferedAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	cpy := make([]BufferedAction, len(b.actions))
	copy(cpy, b.actions)
	return cpy
}

// GameActions returns the buffered actions without apply status.
func (b *Buffer) GameActions() []state.GameAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]state.GameAction, len(b.actions))
	for i, ba := range b.actions {
		out[i] = ba.Action
	}
	return out
}

// MarkAllApplied marks every buffered action applied and moves the cursor
// to the end. Used by a live session whose actions are applied as they are
// recorded.
func (b *Buffer) MarkAllApplied() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	for i := b.cursor; i < len(b.actions); i++ {
		b.actions[i].Applied = true
		b.actions[i].AppliedAt = now
	}
	b.cursor = len(b.actions)
}

// ValidateJoin decides whether a player may join at now. Games older than
// MaxGameAge are refused; long games are joinable with a warning.
func (b *Buffer) ValidateJoin(now time.Time) JoinDecision {
	b.mu.Lock()
	defer b.mu.Unlock()

	decision := JoinDecision{CanJoin: true, ActionCount: len(b.actions)}
	if !b.gameStartTime.IsZero() {
		decision.GameAge = now.Sub(b.gameStartTime)
	}
	if decision.GameAge > b.cfg.MaxGameAge {
		decision.CanJoin = false
		decision.Reason = fmt.Sprintf("game too old: started %s ago, limit %s",
			decision.GameAge.Round(time.Second), b.cfg.MaxGameAge)
		return decision
	}
	if decision.ActionCount > b.cfg.LateJoinWarnThreshold {
		decision.Warning = fmt.Sprintf("game has %d actions and may be nearly over", decision.ActionCount)
	}
	return decision
}

// Start begins playback from the cursor. It is valid from idle or
// completed; an empty buffer or a cursor at the end is a logged no-op.
func (b *Buffer) Start() bool {
	b.mu.Lock()
	if b.state != StateIdle && b.state != StateCompleted {
		b.mu.Unlock()
		b.logger.Warn("replay start ignored", zap.String("state", string(b.state)))
		return false
	}
	if len(b.actions) == 0 || b.cursor >= len(b.actions) {
		b.mu.Unlock()
		b.logger.Warn("replay start ignored: no actions to play", zap.Int("actions", b.Len()))
		return false
	}
	notify := b.transitionLocked(StatePlaying)
	b.scheduleLocked()
	b.mu.Unlock()
	notify()
	return true
}

// Pause stops the timer while playing or fast-forwarding.
func (b *Buffer) Pause() bool {
	b.mu.Lock()
	if b.state != StatePlaying && b.state != StateFastForwarding {
		b.mu.Unlock()
		return false
	}
	b.cancelTimerLocked()
	b.restoreSpeedLocked()
	notify := b.transitionLocked(StatePaused)
	b.mu.Unlock()
	notify()
	return true
}

// Resume continues normal playback after a pause.
func (b *Buffer) Resume() bool {
	b.mu.Lock()
	if b.state != StatePaused {
		b.mu.Unlock()
		return false
	}
	notify := b.transitionLocked(StatePlaying)
	b.scheduleLocked()
	b.mu.Unlock()
	notify()
	return true
}

// Stop cancels playback and returns to idle. The cursor is kept.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.cancelTimerLocked()
	b.restoreSpeedLocked()
	notify := b.transitionLocked(StateIdle)
	b.mu.Unlock()
	notify()
}

// SetSpeed changes the playback speed multiplier, clamped to
// (0, FastForwardSpeed]. A pending tick is rescheduled at the new rate.
func (b *Buffer) SetSpeed(speed float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if speed <= 0 {
		return
	}
	if speed > b.cfg.FastForwardSpeed {
		speed = b.cfg.FastForwardSpeed
	}
	b.speed = speed
	if b.state == StatePlaying {
		b.scheduleLocked()
	}
}

// StartFastForward plays at maximum speed up to and including target. A
// target past the end is clamped to the last action. The cursor is the
// next action to apply, so target == cursor still has one action to play;
// only a target below the cursor is already applied and a logged no-op.
func (b *Buffer) StartFastForward(target int) bool {
	b.mu.Lock()
	if target >= len(b.actions) {
		target = len(b.actions) - 1
	}
	if target < b.cursor {
		cursor := b.cursor
		b.mu.Unlock()
		b.logger.Warn("fast-forward target already reached",
			zap.Int("target", target),
			zap.Int("current_index", cursor),
		)
		return false
	}
	if b.state != StateFastForwarding {
		b.savedSpeed = b.speed
	}
	b.ffTarget = target
	b.speed = b.cfg.FastForwardSpeed
	notify := b.transitionLocked(StateFastForwarding)
	b.scheduleLocked()
	b.mu.Unlock()
	notify()
	return true
}

// SeekTo applies actions 0..index in one batch and marks later ones
// pending. A forward seek hands the skipped actions to the seek applier; a
// backward seek hands it everything up to index for a rewind. Playback
// resumes afterwards only if it was active. An index out of range, or a
// batch the applier rejects, is logged and leaves the cursor unchanged.
func (b *Buffer) SeekTo(index int) bool {
	b.mu.Lock()
	if index < 0 || index >= len(b.actions) {
		size := len(b.actions)
		b.mu.Unlock()
		b.logger.Warn("replay seek out of bounds", zap.Int("index", index), zap.Int("actions", size))
		return false
	}

	rewind := index < b.cursor-1
	from := b.cursor
	if rewind {
		from = 0
	}
	batch := make([]state.GameAction, 0, index+1-from)
	for i := from; i <= index; i++ {
		batch = append(batch, b.actions[i].Action)
	}
	active := b.state == StatePlaying || b.state == StateFastForwarding
	b.cancelTimerLocked()
	seeker := b.seeker
	b.mu.Unlock()

	var seekErr error
	if seeker != nil && (rewind || len(batch) > 0) {
		seekErr = seeker(batch, rewind)
	}

	b.mu.Lock()
	if seekErr != nil {
		if active {
			b.scheduleLocked()
		}
		b.mu.Unlock()
		b.logger.Warn("replay seek failed to apply",
			zap.Int("index", index),
			zap.Bool("rewind", rewind),
			zap.Error(seekErr),
		)
		return false
	}
	// The buffer may have been trimmed while unlocked.
	if index >= len(b.actions) {
		index = len(b.actions) - 1
	}
	now := b.clock.Now()
	for i := range b.actions {
		if i <= index {
			if !b.actions[i].Applied {
				b.actions[i].Applied = true
				b.actions[i].AppliedAt = now
			}
		} else {
			b.actions[i].Applied = false
			b.actions[i].AppliedAt = time.Time{}
		}
	}
	b.cursor = index + 1

	if active {
		b.scheduleLocked()
	}
	progress := b.progressLocked()
	onProgress, onSeek := b.onProgress, b.onSeek
	b.mu.Unlock()

	if onSeek != nil {
		onSeek(index)
	}
	if onProgress != nil {
		onProgress(progress)
	}
	return true
}

// Progress reports playback progress.
func (b *Buffer) Progress() Progress {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progressLocked()
}

// Reset clears the buffer, cursor, timer and playback state.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.cancelTimerLocked()
	b.actions = nil
	b.cursor = 0
	b.ffTarget = 0
	b.speed = 1
	b.savedSpeed = 0
	b.gameStartTime = time.Time{}
	notify := b.transitionLocked(StateIdle)
	b.mu.Unlock()
	notify()
}

func (b *Buffer) progressLocked() Progress {
	p := Progress{TotalActions: len(b.actions)}
	var first, last time.Time
	for _, ba := range b.actions {
		if !ba.Applied {
			continue
		}
		p.AppliedActions++
		if first.IsZero() || ba.AppliedAt.Before(first) {
			first = ba.AppliedAt
		}
		if ba.AppliedAt.After(last) {
			last = ba.AppliedAt
		}
	}
	if p.TotalActions > 0 {
		p.Percentage = float64(p.AppliedActions) / float64(p.TotalActions) * 100
	}
	if p.AppliedActions >= 2 {
		avg := last.Sub(first) / time.Duration(p.AppliedActions-1)
		p.EstimatedTimeRemaining = avg * time.Duration(p.TotalActions-p.AppliedActions)
	}
	return p
}

func (b *Buffer) delayLocked() time.Duration {
	return time.Duration(float64(b.cfg.BaseDelay) / b.speed)
}

// scheduleLocked replaces any pending tick with a new one.
func (b *Buffer) scheduleLocked() {
	b.cancelTimerLocked()
	gen := b.generation
	b.timer = b.clock.AfterFunc(b.delayLocked(), func() { b.tick(gen) })
}

func (b *Buffer) cancelTimerLocked() {
	b.generation++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Buffer) restoreSpeedLocked() {
	if b.state == StateFastForwarding && b.savedSpeed > 0 {
		b.speed = b.savedSpeed
		b.savedSpeed = 0
	}
}

func (b *Buffer) targetLocked() int {
	if b.state == StateFastForwarding {
		return b.ffTarget
	}
	return len(b.actions) - 1
}

// transitionLocked changes state and returns a function that notifies the
// observer once the lock is released.
func (b *Buffer) transitionLocked(next PlaybackState) func() {
	if b.state == next {
		return func() {}
	}
	b.state = next
	observer := b.onState
	return func() {
		if observer != nil {
			observer(next)
		}
	}
}

func (b *Buffer) tick(gen int) {
	b.mu.Lock()
	if gen != b.generation {
		b.mu.Unlock()
		return
	}
	b.timer = nil

	if b.cursor > b.targetLocked() {
		b.restoreSpeedLocked()
		notify := b.transitionLocked(StateCompleted)
		b.mu.Unlock()
		notify()
		return
	}

	idx := b.cursor
	b.actions[idx].Applied = true
	b.actions[idx].AppliedAt = b.clock.Now()
	action := b.actions[idx].Action
	b.cursor++

	notify := func() {}
	if b.cursor > b.targetLocked() {
		b.restoreSpeedLocked()
		notify = b.transitionLocked(StateCompleted)
	} else {
		b.scheduleLocked()
	}
	progress := b.progressLocked()
	applier, onProgress := b.applier, b.onProgress
	b.mu.Unlock()

	if applier != nil {
		if err := applier(action); err != nil {
			b.logger.Warn("replay action failed to apply",
				zap.String("action_id", action.ID),
				zap.String("type", string(action.Type)),
				zap.Error(err),
			)
		}
	}
	if onProgress != nil {
		onProgress(progress)
	}
	notify()
}
