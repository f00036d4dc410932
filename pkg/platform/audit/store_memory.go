package audit

import (
	"context"
	"sync"
)

// InMemoryStore retains the most recent events. Used in tests and as a
// bounded fallback sink when no external collaborator is configured.
type InMemoryStore struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewInMemoryStore creates a store retaining at most limit events
// (oldest dropped first). A non-positive limit retains 1024.
func NewInMemoryStore(limit int) *InMemoryStore {
	if limit <= 0 {
		limit = 1024
	}
	return &InMemoryStore{limit: limit}
}

func (s *InMemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, e)
	if len(s.events) > s.limit {
		s.events = s.events[len(s.events)-s.limit:]
	}
	return nil
}

// Events returns a copy of the retained events.
func (s *InMemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
