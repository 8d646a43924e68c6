package users

import (
	"context"
	"sync"
	"time"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// InMemoryStore keeps unit tests lightweight. It intentionally favors
// clarity over performance.
type InMemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{profiles: make(map[string]Profile)}
}

// Seed inserts a profile directly, for tests and local seeding.
func (s *InMemoryStore) Seed(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
}

func (s *InMemoryStore) FindByID(_ context.Context, userID string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if profile, ok := s.profiles[userID]; ok {
		return profile, nil
	}
	return Profile{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) SetRole(_ context.Context, userID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	profile.Role = role
	profile.UpdatedAt = time.Now()
	s.profiles[userID] = profile
	return nil
}
