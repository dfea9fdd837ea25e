package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"carelog/internal/shared/logger"
)

// Event represents a generic event
type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

// Handler defines the event handler function type
type Handler func(ctx context.Context, event Event) error

// HandlerID identifies one registered handler so it can be removed on its own.
type HandlerID uint64

// EventBusInterface defines the contract for event bus implementations
type EventBusInterface interface {
	Subscribe(eventType string, handler Handler) HandlerID
	Unsubscribe(eventType string, id HandlerID)
	Publish(ctx context.Context, event Event) error
	GetSubscriberCount(eventType string) int
	GetEventTypes() []string
}

type registration struct {
	id      HandlerID
	handler Handler
}

// EventBus is an in-process publish/subscribe hub. Handlers run synchronously on the
// publishing goroutine, in subscription order.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]registration
	nextID   atomic.Uint64
	logger   logger.Logger
}

// NewEventBus creates a new event bus instance
func NewEventBus(log logger.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]registration),
		logger:   logger.OrNop(log).WithComponent("eventbus"),
	}
}

// Subscribe adds a handler for a specific event type
func (eb *EventBus) Subscribe(eventType string, handler Handler) HandlerID {
	id := HandlerID(eb.nextID.Add(1))

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], registration{id: id, handler: handler})
	eb.logger.Debugf("Subscribed handler %d for event type: %s", id, eventType)
	return id
}

// Unsubscribe removes a single handler. Unknown IDs are ignored.
func (eb *EventBus) Unsubscribe(eventType string, id HandlerID) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	regs := eb.handlers[eventType]
	for i, r := range regs {
		if r.id != id {
			continue
		}
		kept := make([]registration, 0, len(regs)-1)
		kept = append(kept, regs[:i]...)
		kept = append(kept, regs[i+1:]...)
		if len(kept) == 0 {
			delete(eb.handlers, eventType)
		} else {
			eb.handlers[eventType] = kept
		}
		eb.logger.Debugf("Unsubscribed handler %d for event type: %s", id, eventType)
		return
	}
}

// Publish sends an event to all registered handlers and stops at the first failure.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	eb.mu.RLock()
	regs := eb.handlers[event.Type()]
	eb.mu.RUnlock()

	if len(regs) == 0 {
		return nil
	}

	eb.logger.Debugf("Publishing event type: %s to %d handlers", event.Type(), len(regs))
	for _, r := range regs {
		if err := r.handler(ctx, event); err != nil {
			eb.logger.Errorf("Handler %d failed for event %s: %v", r.id, event.Type(), err)
			return fmt.Errorf("handler %d failed for event %s: %w", r.id, event.Type(), err)
		}
	}
	return nil
}

// GetSubscriberCount returns the number of handlers for an event type
func (eb *EventBus) GetSubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// GetEventTypes returns all registered event types
func (eb *EventBus) GetEventTypes() []string {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	types := make([]string, 0, len(eb.handlers))
	for eventType := range eb.handlers {
		types = append(types, eventType)
	}
	return types
}

// BasicEvent implements the Event interface
type BasicEvent struct {
	eventType string
	data      interface{}
	timestamp time.Time
	source    string
}

// NewBasicEvent creates a new basic event
func NewBasicEvent(eventType string, data interface{}) Event {
	return NewBasicEventWithSource(eventType, data, "unknown")
}

// NewBasicEventWithSource creates a new basic event with source
func NewBasicEventWithSource(eventType string, data interface{}, source string) Event {
	return &BasicEvent{
		eventType: eventType,
		data:      data,
		timestamp: time.Now(),
		source:    source,
	}
}

func (e *BasicEvent) Type() string         { return e.eventType }
func (e *BasicEvent) Data() interface{}    { return e.data }
func (e *BasicEvent) Timestamp() time.Time { return e.timestamp }
func (e *BasicEvent) Source() string       { return e.source }

const (
	// EventTypeCollectionChangedPrefix prefixes the collection path of a document change.
	EventTypeCollectionChangedPrefix = "collection.changed:"
	// EventTypeAuthStateChanged fires when the signed-in identity changes.
	EventTypeAuthStateChanged = "auth.state_changed"
)
