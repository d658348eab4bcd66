package rules

import (
	"sync"
	"time"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// Game/Turn events
	EventGameStarted       EventType = "GAME_STARTED"
	EventBeginTurn         EventType = "BEGIN_TURN"
	EventExtraTurn         EventType = "EXTRA_TURN"
	EventStepChanged       EventType = "STEP_CHANGED"
	EventEndTurn           EventType = "END_TURN"
	EventTurnOrderChanged  EventType = "TURN_ORDER_CHANGED"
	EventCombatEnded       EventType = "COMBAT_ENDED"
	EventPriorityPassed    EventType = "PRIORITY_PASSED"
	EventChoiceWindowOpen  EventType = "CHOICE_WINDOW_OPEN"
	EventChoiceWindowClose EventType = "CHOICE_WINDOW_CLOSE"

	// Card events
	EventLandPlayed        EventType = "LAND_PLAYED"
	EventSpellCast         EventType = "SPELL_CAST"
	EventAbilityActivated  EventType = "ABILITY_ACTIVATED"
	EventStackItemResolved EventType = "STACK_ITEM_RESOLVED"
	EventCountered         EventType = "COUNTERED"
	EventManaAdded         EventType = "MANA_ADDED"

	// Player events
	EventGainedLife   EventType = "GAINED_LIFE"
	EventLostLife     EventType = "LOST_LIFE"
	EventCreatureDied EventType = "CREATURE_DIED"
	EventPlayerLost   EventType = "PLAYER_LOST"
	EventPlayerQuit   EventType = "PLAYER_QUIT"
	EventGameEnded    EventType = "GAME_ENDED"
)

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type       EventType
	TargetID   string            // card, stack item or player affected
	SourceID   string            // ID of the source ability/object
	Controller string            // Player ID of the controller
	PlayerID   string            // often the same as Controller
	Amount     int               // life, mana or turn number depending on type
	Flag       bool
	Data       string
	Timestamp  time.Time
	Metadata   map[string]string
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

type typedListener struct {
	handle    int
	eventType EventType
	callback  Listener
}

// EventBus provides a synchronous publish/subscribe implementation with type
// filtering. Listeners run in subscription order, outside the bus lock, so a
// listener may subscribe or publish in turn.
type EventBus struct {
	mu         sync.RWMutex
	listeners  []typedListener
	nextHandle int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	return bus.SubscribeTyped("", listener)
}

// SubscribeTyped registers a listener for a specific event type. The empty
// type matches every event.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback Listener) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners = append(bus.listeners, typedListener{
		handle:    handle,
		eventType: eventType,
		callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i, l := range bus.listeners {
		if l.handle == handle {
			bus.listeners = append(bus.listeners[:i], bus.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to all matching listeners synchronously.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	matched := make([]Listener, 0, len(bus.listeners))
	for _, l := range bus.listeners {
		if l.eventType == "" || l.eventType == event.Type {
			matched = append(matched, l.callback)
		}
	}
	bus.mu.RUnlock()

	for _, listener := range matched {
		listener(event)
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, targetID, sourceID, controllerID string) Event {
	return Event{
		Type:       eventType,
		TargetID:   targetID,
		SourceID:   sourceID,
		Controller: controllerID,
		PlayerID:   controllerID,
		Timestamp:  time.Now(),
		Metadata:   make(map[string]string),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, targetID, sourceID, controllerID string, amount int) Event {
	evt := NewEvent(eventType, targetID, sourceID, controllerID)
	evt.Amount = amount
	return evt
}
