package rules

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNotPriorityPlayer is returned when a player acts without holding priority.
var ErrNotPriorityPlayer = errors.New("player does not have priority")

// PassOutcome tells the caller what a priority pass requires next.
type PassOutcome int

const (
	// OutcomePriorityPassed means priority moved to the next live player.
	OutcomePriorityPassed PassOutcome = iota
	// OutcomeResolveTop means every live player passed with items on the stack.
	OutcomeResolveTop
	// OutcomeAdvanceStep means every live player passed with an empty stack.
	OutcomeAdvanceStep
)

var passOutcomeNames = map[PassOutcome]string{
	OutcomePriorityPassed: "PRIORITY_PASSED",
	OutcomeResolveTop:     "RESOLVE_TOP",
	OutcomeAdvanceStep:    "ADVANCE_STEP",
}

func (o PassOutcome) String() string {
	if name, ok := passOutcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OUTCOME_%d", int(o))
}

// PriorityTracker runs the priority passing protocol for one step. Players
// receive priority in turn order starting with the active player;
// eliminated players count as having passed and are skipped.
type PriorityTracker struct {
	mu         sync.Mutex
	order      []string
	active     string
	holder     string
	passed     map[string]bool
	eliminated map[string]bool
}

// NewPriorityTracker creates a tracker for the step described by turn.
func NewPriorityTracker(turn Turn) *PriorityTracker {
	pt := &PriorityTracker{
		eliminated: make(map[string]bool),
	}
	pt.Reset(turn)
	return pt
}

// Reset starts a new priority round for turn's current step. Elimination
// state is kept.
func (pt *PriorityTracker) Reset(turn Turn) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.order = turn.TurnOrder
	pt.active = turn.ActivePlayerID
	pt.resetPassedLocked()
	pt.holder = pt.firstLiveFromLocked(pt.active)
}

// Holder returns the player currently holding priority, or "" when no live
// players remain.
func (pt *PriorityTracker) Holder() string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.holder
}

// HasPassed reports whether playerID has passed since the last reset.
func (pt *PriorityTracker) HasPassed(playerID string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.passed[playerID]
}

// Pass records that playerID passed priority. When every live player has
// passed in sequence the pass flags reset, priority returns to the active
// player and the outcome tells the caller whether to resolve the top of the
// stack or advance the step.
func (pt *PriorityTracker) Pass(playerID string, stackEmpty bool) (PassOutcome, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if pt.holder == "" || pt.holder != playerID {
		return OutcomePriorityPassed, fmt.Errorf("%w: %s (holder %s)", ErrNotPriorityPlayer, playerID, pt.holder)
	}
	pt.passed[playerID] = true

	if pt.allPassedLocked() {
		pt.resetPassedLocked()
		pt.holder = pt.firstLiveFromLocked(pt.active)
		if stackEmpty {
			return OutcomeAdvanceStep, nil
		}
		return OutcomeResolveTop, nil
	}

	pt.holder = pt.nextLiveAfterLocked(playerID)
	return OutcomePriorityPassed, nil
}

// StackChanged restarts the pass sequence after an item was pushed or
// resolved. Priority goes to holder, normally the caster after a push and
// the active player after a resolution.
func (pt *PriorityTracker) StackChanged(holder string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.resetPassedLocked()
	if holder == "" {
		holder = pt.active
	}
	pt.holder = pt.firstLiveFromLocked(holder)
}

// StateBasedAction restarts the pass sequence with the active player.
func (pt *PriorityTracker) StateBasedAction() {
	pt.StackChanged(pt.activePlayer())
}

// Eliminate removes playerID from the protocol. If they held priority it
// moves on to the next live player.
func (pt *PriorityTracker) Eliminate(playerID string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.eliminated[playerID] = true
	pt.passed[playerID] = true
	if pt.holder == playerID {
		pt.holder = pt.nextLiveAfterLocked(playerID)
	}
}

// IsEliminated reports whether playerID has left the protocol.
func (pt *PriorityTracker) IsEliminated(playerID string) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.eliminated[playerID]
}

// LivePlayers returns the players still taking part, in turn order.
func (pt *PriorityTracker) LivePlayers() []string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	live := make([]string, 0, len(pt.order))
	for _, id := range pt.order {
		if !pt.eliminated[id] {
			live = append(live, id)
		}
	}
	return live
}

func (pt *PriorityTracker) activePlayer() string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.active
}

// resetPassedLocked clears pass flags; eliminated players stay passed.
func (pt *PriorityTracker) resetPassedLocked() {
	pt.passed = make(map[string]bool, len(pt.order))
	for _, id := range pt.order {
		pt.passed[id] = pt.eliminated[id]
	}
}

func (pt *PriorityTracker) allPassedLocked() bool {
	for _, id := range pt.order {
		if !pt.passed[id] && !pt.eliminated[id] {
			return false
		}
	}
	return true
}

func (pt *PriorityTracker) firstLiveFromLocked(playerID string) string {
	if playerID != "" && !pt.eliminated[playerID] && indexOf(pt.order, playerID) >= 0 {
		return playerID
	}
	return pt.nextLiveAfterLocked(playerID)
}

func (pt *PriorityTracker) nextLiveAfterLocked(playerID string) string {
	n := len(pt.order)
	if n == 0 {
		return ""
	}
	current := indexOf(pt.order, playerID)
	if current < 0 {
		current = n - 1
	}
	for i := 1; i <= n; i++ {
		candidate := pt.order[(current+i)%n]
		if !pt.eliminated[candidate] {
			return candidate
		}
	}
	return ""
}

// ResolutionContext tracks what spell/ability is currently resolving
// and allows nested resolution (e.g., casting copies during resolution)
type ResolutionContext struct {
	mu             sync.RWMutex
	resolvingStack []string // innermost at end
	depth          int
	maxDepth       int
}

// NewResolutionContext creates a new resolution context
func NewResolutionContext() *ResolutionContext {
	return &ResolutionContext{
		resolvingStack: make([]string, 0, 8),
		maxDepth:       10,
	}
}

// BeginResolution marks the start of resolving a stack item
func (rc *ResolutionContext) BeginResolution(itemID string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.depth >= rc.maxDepth {
		return fmt.Errorf("maximum resolution depth (%d) exceeded", rc.maxDepth)
	}

	rc.resolvingStack = append(rc.resolvingStack, itemID)
	rc.depth++
	return nil
}

// EndResolution marks the end of resolving a stack item
func (rc *ResolutionContext) EndResolution(itemID string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.depth == 0 {
		return fmt.Errorf("no item currently resolving")
	}

	current := rc.resolvingStack[len(rc.resolvingStack)-1]
	if current != itemID {
		return fmt.Errorf("resolution mismatch: expected %s, got %s", current, itemID)
	}
	rc.resolvingStack = rc.resolvingStack[:len(rc.resolvingStack)-1]
	rc.depth--
	return nil
}

// IsResolving returns true if something is currently resolving
func (rc *ResolutionContext) IsResolving() bool {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.depth > 0
}

// CurrentResolvingID returns the ID of the innermost resolving item.
func (rc *ResolutionContext) CurrentResolvingID() string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	if len(rc.resolvingStack) == 0 {
		return ""
	}
	return rc.resolvingStack[len(rc.resolvingStack)-1]
}

func (rc *ResolutionContext) Depth() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.depth
}

// Reset clears all resolution state
func (rc *ResolutionContext) Reset() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.resolvingStack = rc.resolvingStack[:0]
	rc.depth = 0
}

// ChoiceWindowType identifies the modal choice a player is being asked for.
type ChoiceWindowType string

const (
	ChoiceWindowModal   ChoiceWindowType = "modal"
	ChoiceWindowTarget  ChoiceWindowType = "target"
	ChoiceWindowPayment ChoiceWindowType = "payment"
)

// ChoiceWindow is an open request for a player decision that suspends the
// normal priority flow until closed.
type ChoiceWindow struct {
	Type     ChoiceWindowType `json:"type"`
	PlayerID string           `json:"playerId"`
	Context  string           `json:"context"`
}

// ChoiceWindowManager tracks at most one open choice window.
type ChoiceWindowManager struct {
	mu            sync.RWMutex
	activeWindow  *ChoiceWindow
	windowHistory []ChoiceWindow
}

// NewChoiceWindowManager creates a new choice window manager
func NewChoiceWindowManager() *ChoiceWindowManager {
	return &ChoiceWindowManager{
		windowHistory: make([]ChoiceWindow, 0, 16),
	}
}

// OpenWindow opens a new choice window
func (cwm *ChoiceWindowManager) OpenWindow(window ChoiceWindow) error {
	cwm.mu.Lock()
	defer cwm.mu.Unlock()

	if cwm.activeWindow != nil {
		return fmt.Errorf("choice window already open: %v", cwm.activeWindow.Type)
	}

	cwm.activeWindow = &window
	cwm.windowHistory = append(cwm.windowHistory, window)
	return nil
}

// CloseWindow closes the active choice window
func (cwm *ChoiceWindowManager) CloseWindow() {
	cwm.mu.Lock()
	defer cwm.mu.Unlock()
	cwm.activeWindow = nil
}

// ActiveWindow returns a copy of the open window, if any.
func (cwm *ChoiceWindowManager) ActiveWindow() (ChoiceWindow, bool) {
	cwm.mu.RLock()
	defer cwm.mu.RUnlock()
	if cwm.activeWindow == nil {
		return ChoiceWindow{}, false
	}
	return *cwm.activeWindow, true
}

// History returns every window opened since the last reset.
func (cwm *ChoiceWindowManager) History() []ChoiceWindow {
	cwm.mu.RLock()
	defer cwm.mu.RUnlock()
	cpy := make([]ChoiceWindow, len(cwm.windowHistory))
	copy(cpy, cwm.windowHistory)
	return cpy
}

// Reset clears all window state
func (cwm *ChoiceWindowManager) Reset() {
	cwm.mu.Lock()
	defer cwm.mu.Unlock()
	cwm.activeWindow = nil
	cwm.windowHistory = cwm.windowHistory[:0]
}
