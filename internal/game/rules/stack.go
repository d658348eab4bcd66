package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotTopOfStack is returned when an item below the top is targeted by an
// operation that must respect stack order.
var ErrNotTopOfStack = errors.New("item is not on top of the stack")

// StackItemType describes the type of object on the stack.
type StackItemType string

const (
	// StackItemSpell represents a spell cast by a player.
	StackItemSpell StackItemType = "spell"
	// StackItemAbility represents an activated or triggered ability.
	StackItemAbility StackItemType = "ability"
)

// StackItem represents a single object on the stack.
type StackItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         StackItemType     `json:"type"`
	ControllerID string            `json:"controllerId"`
	ManaCost     string            `json:"manaCost,omitempty"`
	IsCountered  bool              `json:"isCountered,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	SourceID     string            `json:"sourceId,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Resolve      func() error      `json:"-"`
}

// Stack manages the game stack. Only the top item may resolve or be
// countered.
type Stack struct {
	mu    sync.Mutex
	items []StackItem
	now   func() time.Time
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{
		items: make([]StackItem, 0, 16),
		now:   time.Now,
	}
}

// SetClock overrides the timestamp source. Used for deterministic rebuilds.
func (s *Stack) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Push adds an item to the top of the stack, assigning an ID and timestamp
// when they are missing. The stored item is returned.
func (s *Stack) Push(item StackItem) StackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Timestamp.IsZero() {
		item.Timestamp = s.now()
	}
	s.items = append(s.items, item)
	return item
}

// Resolve pops the top item and runs its resolve callback. An empty stack
// reports false with no error. The item is removed even if the callback
// fails.
func (s *Stack) Resolve() (StackItem, bool, error) {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return StackItem{}, false, nil
	}
	idx := len(s.items) - 1
	item := s.items[idx]
	s.items = s.items[:idx]
	s.mu.Unlock()

	if item.Resolve != nil {
		if err := item.Resolve(); err != nil {
			return item, true, fmt.Errorf("resolve %s: %w", item.Name, err)
		}
	}
	return item, true, nil
}

// Counter removes the top item without resolving it. Items underneath the
// top cannot be countered.
func (s *Stack) Counter(id string) (StackItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return StackItem{}, fmt.Errorf("%w: stack empty", ErrNotTopOfStack)
	}
	idx := len(s.items) - 1
	if s.items[idx].ID != id {
		return StackItem{}, fmt.Errorf("%w: %s", ErrNotTopOfStack, id)
	}
	item := s.items[idx]
	item.IsCountered = true
	s.items = s.items[:idx]
	return item, nil
}

// Remove deletes an item from anywhere in the stack by ID. It is reserved
// for state-based removal such as a source leaving the game.
func (s *Stack) Remove(id string) (StackItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := len(s.items) - 1; idx >= 0; idx-- {
		if s.items[idx].ID == id {
			item := s.items[idx]
			s.items = append(s.items[:idx], s.items[idx+1:]...)
			return item, true
		}
	}
	return StackItem{}, false
}

// Peek returns the top item without removing it.
func (s *Stack) Peek() (StackItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return StackItem{}, false
	}
	return s.items[len(s.items)-1], true
}

// List returns a copy of all stack items (topmost last).
func (s *Stack) List() []StackItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	cpy := make([]StackItem, len(s.items))
	copy(cpy, s.items)
	return cpy
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IsEmpty returns whether the stack is empty.
func (s *Stack) IsEmpty() bool {
	return s.Len() == 0
}

// Clear drops every item without resolving it.
func (s *Stack) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = s.items[:0]
}
