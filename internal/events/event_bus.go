// Package events provides event types and the event bus for the realtime relay.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/avolkovs/portal-api/internal/metrics"
)

// InMemoryEventBus implements EventBus using in-memory channels.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]EventHandler // topic -> subscriptionID -> handler
	store       EventStore
}

// NewEventBus creates a new InMemoryEventBus with the given event store.
func NewEventBus(store EventStore) *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[string]EventHandler),
		store:       store,
	}
}

// Publish sends an event to all subscribers of the event's topic.
// It also stores the event for replay if a store is configured.
func (eb *InMemoryEventBus) Publish(event Event) error {
	if event.Topic == "" {
		return fmt.Errorf("event must have a Topic")
	}

	if eb.store != nil {
		// A full or failed store never blocks delivery.
		_ = eb.store.Store(event)
	}

	metrics.EventsPublishedTotal.WithLabelValues(event.Topic).Inc()

	eb.mu.RLock()
	handlers, exists := eb.subscribers[event.Topic]
	if !exists || len(handlers) == 0 {
		eb.mu.RUnlock()
		return nil // No subscribers, not an error
	}

	// Copy handlers to avoid holding lock during delivery
	handlersCopy := make([]EventHandler, 0, len(handlers))
	for _, handler := range handlers {
		handlersCopy = append(handlersCopy, handler)
	}
	eb.mu.RUnlock()

	for _, handler := range handlersCopy {
		handler(event)
	}

	return nil
}

// Subscribe registers a handler for events on a topic.
// Returns an unsubscribe function that removes the subscription.
func (eb *InMemoryEventBus) Subscribe(topic string, handler EventHandler) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.subscribers[topic] == nil {
		eb.subscribers[topic] = make(map[string]EventHandler)
	}

	subscriptionID := uuid.New().String()
	eb.subscribers[topic][subscriptionID] = handler

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		if handlers, exists := eb.subscribers[topic]; exists {
			delete(handlers, subscriptionID)
			if len(handlers) == 0 {
				delete(eb.subscribers, topic)
			}
		}
	}
}

// GetEventsSince returns events after the given event ID for replay.
// Returns empty slice if no store is configured or no events found.
func (eb *InMemoryEventBus) GetEventsSince(topic string, lastEventID string) ([]Event, error) {
	if eb.store == nil {
		return []Event{}, nil
	}

	return eb.store.GetSince(topic, lastEventID, 100)
}

// SubscriberCount returns the number of subscribers for a topic.
// Useful for testing and monitoring.
func (eb *InMemoryEventBus) SubscriberCount(topic string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if handlers, exists := eb.subscribers[topic]; exists {
		return len(handlers)
	}
	return 0
}

// TotalSubscribers returns the total number of subscribers across all topics.
func (eb *InMemoryEventBus) TotalSubscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	total := 0
	for _, handlers := range eb.subscribers {
		total += len(handlers)
	}
	return total
}
