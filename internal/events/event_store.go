package events

import (
	"container/list"
	"sync"
	"time"
)

// InMemoryEventStore implements EventStore using an in-memory buffer.
type InMemoryEventStore struct {
	mu          sync.RWMutex
	events      *list.List               // Doubly linked list for efficient removal
	eventIndex  map[string]*list.Element // eventID -> list element for O(1) lookup
	topicEvents map[string][]*list.Element
	maxSize     int
}

// NewEventStore creates a new InMemoryEventStore with the given buffer size.
func NewEventStore(maxSize int) *InMemoryEventStore {
	if maxSize <= 0 {
		maxSize = 1000
	}

	return &InMemoryEventStore{
		events:      list.New(),
		eventIndex:  make(map[string]*list.Element),
		topicEvents: make(map[string][]*list.Element),
		maxSize:     maxSize,
	}
}

// Store saves an event for later replay.
// If the buffer is full, the oldest event is removed.
func (es *InMemoryEventStore) Store(event Event) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	if es.events.Len() >= es.maxSize {
		es.removeOldestLocked()
	}

	elem := es.events.PushBack(event)
	es.eventIndex[event.ID] = elem
	es.topicEvents[event.Topic] = append(es.topicEvents[event.Topic], elem)

	return nil
}

// GetSince returns events after the given event ID for a topic.
// If eventID is empty, returns the most recent events up to limit.
func (es *InMemoryEventStore) GetSince(topic string, eventID string, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	result := make([]Event, 0)

	if eventID == "" {
		topicElems := es.topicEvents[topic]
		start := 0
		if len(topicElems) > limit {
			start = len(topicElems) - limit
		}
		for i := start; i < len(topicElems); i++ {
			result = append(result, topicElems[i].Value.(Event))
		}
		return result, nil
	}

	startElem, exists := es.eventIndex[eventID]
	if !exists {
		// Event aged out of the buffer, the client has to start fresh
		return result, nil
	}

	for elem := startElem.Next(); elem != nil && len(result) < limit; elem = elem.Next() {
		event := elem.Value.(Event)
		if event.Topic == topic {
			result = append(result, event)
		}
	}

	return result, nil
}

// Cleanup removes events older than the given duration.
func (es *InMemoryEventStore) Cleanup(olderThan time.Duration) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)

	for es.events.Len() > 0 {
		front := es.events.Front()
		event := front.Value.(Event)

		if event.Timestamp.After(cutoff) {
			break
		}

		es.removeElementLocked(front)
	}

	return nil
}

// removeOldestLocked removes the oldest event. Must be called with lock held.
func (es *InMemoryEventStore) removeOldestLocked() {
	if es.events.Len() == 0 {
		return
	}
	es.removeElementLocked(es.events.Front())
}

// removeElementLocked removes an element from all indexes. Must be called with lock held.
func (es *InMemoryEventStore) removeElementLocked(elem *list.Element) {
	event := elem.Value.(Event)

	es.events.Remove(elem)
	delete(es.eventIndex, event.ID)

	topicElems := es.topicEvents[event.Topic]
	for i, e := range topicElems {
		if e == elem {
			es.topicEvents[event.Topic] = append(topicElems[:i], topicElems[i+1:]...)
			break
		}
	}

	if len(es.topicEvents[event.Topic]) == 0 {
		delete(es.topicEvents, event.Topic)
	}
}

// Len returns the number of events in the store.
func (es *InMemoryEventStore) Len() int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.events.Len()
}

// LenForTopic returns the number of events for a topic.
func (es *InMemoryEventStore) LenForTopic(topic string) int {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return len(es.topicEvents[topic])
}
