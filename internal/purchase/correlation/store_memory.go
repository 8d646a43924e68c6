package correlation

import (
	"context"
	"sync"
	"time"

	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

type memoryEntry struct {
	record    purchase.CorrelationRecord
	expiresAt time.Time
}

// InMemoryStore mirrors the redis store's expiry semantics closely enough
// for unit tests: expired entries are indistinguishable from absent ones.
type InMemoryStore struct {
	mu          sync.Mutex
	records     map[string]memoryEntry
	userIntents map[string]memoryEntry
	now         func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:     make(map[string]memoryEntry),
		userIntents: make(map[string]memoryEntry),
		now:         time.Now,
	}
}

// SetClock overrides the store's clock so tests can force expiry.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *InMemoryStore) Put(_ context.Context, record purchase.CorrelationRecord, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.IntentID] = memoryEntry{record: record, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, intentID string) (purchase.CorrelationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.records[intentID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.records, intentID)
		return purchase.CorrelationRecord{}, sentinel.ErrNotFound
	}
	return entry.record, nil
}

func (s *InMemoryStore) Delete(_ context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, intentID)
	return nil
}

func (s *InMemoryStore) PutUserIntent(_ context.Context, userID, intentID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userIntents[userID] = memoryEntry{
		record:    purchase.CorrelationRecord{IntentID: intentID},
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *InMemoryStore) GetUserIntent(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.userIntents[userID]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.userIntents, userID)
		return "", sentinel.ErrNotFound
	}
	return entry.record.IntentID, nil
}
