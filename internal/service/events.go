package service

import "sync"

// EventType defines the type of event
type EventType string

const (
	EventContextCreated      EventType = "config_context_created"
	EventContextUpdated      EventType = "config_context_updated"
	EventContextDeleted      EventType = "config_context_deleted"
	EventGroupCreated        EventType = "group_created"
	EventGroupDeleted        EventType = "group_deleted"
	EventTargetUpdated       EventType = "target_updated"
	EventTargetDeleted       EventType = "target_deleted"
	EventLocalContextUpdated EventType = "local_context_updated"
	EventSyncCompleted       EventType = "sync_completed"
	EventSyncFailed          EventType = "sync_failed"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	handlers    []func(Event)
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events. Slow subscribers miss events.
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// SubscribeFunc registers fn to run synchronously on every Publish.
// fn must not publish.
func (eb *EventBus) SubscribeFunc(fn func(Event)) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers = append(eb.handlers, fn)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, fn := range eb.handlers {
		fn(event)
	}
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// EventName names the event on the SSE stream
func (e Event) EventName() string {
	return string(e.Type)
}
