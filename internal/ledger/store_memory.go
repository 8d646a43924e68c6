package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// statusRank orders statuses so upserts only ever move forward.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusFailed:    1,
	StatusSucceeded: 2,
}

type InMemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextID: 1, entries: make(map[string]Entry)}
}

func (s *InMemoryStore) UpsertTerminal(_ context.Context, entry Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[entry.IntentID]
	if !ok {
		entry.ID = s.nextID
		s.nextID++
		entry.CreatedAt = time.Now()
		if entry.Status == StatusSucceeded && entry.PaidAt == nil {
			now := time.Now()
			entry.PaidAt = &now
		}
		s.entries[entry.IntentID] = entry
		return entry, nil
	}

	if statusRank[entry.Status] > statusRank[existing.Status] {
		existing.Status = entry.Status
		if entry.Status == StatusSucceeded {
			now := time.Now()
			existing.PaidAt = &now
			existing.PaymentMethod = entry.PaymentMethod
		}
	}
	s.entries[entry.IntentID] = existing
	return existing, nil
}

func (s *InMemoryStore) FindByIntentID(_ context.Context, intentID string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[intentID]; ok {
		return entry, nil
	}
	return Entry{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}
