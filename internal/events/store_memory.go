package events

import (
	"context"
	"sync"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events map[int64]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[int64]Event)}
}

// Seed inserts an event directly, for tests and local seeding.
func (s *InMemoryStore) Seed(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

func (s *InMemoryStore) FindByID(_ context.Context, eventID int64) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if event, ok := s.events[eventID]; ok {
		return event, nil
	}
	return Event{}, sentinel.ErrNotFound
}
