package registration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

type userEventKey struct {
	userID  string
	eventID int64
}

type InMemoryStore struct {
	mu     sync.Mutex
	byPair map[userEventKey]*Registration
	byCode map[string]*Registration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byPair: make(map[userEventKey]*Registration),
		byCode: make(map[string]*Registration),
	}
}

func (s *InMemoryStore) InsertIfAbsent(_ context.Context, reg Registration) (Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userEventKey{userID: reg.UserID, eventID: reg.EventID}
	if existing, ok := s.byPair[key]; ok {
		return *existing, false, nil
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = StatusIncomplete
	}
	now := time.Now()
	reg.CreatedAt = now
	reg.UpdatedAt = now

	stored := reg
	s.byPair[key] = &stored
	if stored.TicketCode != nil {
		s.byCode[*stored.TicketCode] = &stored
	}
	return stored, true, nil
}

func (s *InMemoryStore) CountByEvent(_ context.Context, eventID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for key := range s.byPair {
		if key.eventID == eventID {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) FindByUserEvent(_ context.Context, userID string, eventID int64) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.byPair[userEventKey{userID: userID, eventID: eventID}]; ok {
		return *reg, nil
	}
	return Registration{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByTicketCode(_ context.Context, code string) (Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.byCode[code]; ok {
		return *reg, nil
	}
	return Registration{}, sentinel.ErrNotFound
}

func (s *InMemoryStore) SetTicketCode(_ context.Context, userID string, eventID int64, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byPair[userEventKey{userID: userID, eventID: eventID}]
	if !ok {
		return sentinel.ErrNotFound
	}
	if reg.TicketCode != nil {
		delete(s.byCode, *reg.TicketCode)
	}
	reg.TicketCode = &code
	if reg.Status == StatusIncomplete {
		reg.Status = StatusRegistered
	}
	reg.UpdatedAt = time.Now()
	s.byCode[code] = reg
	return nil
}

func (s *InMemoryStore) CheckIn(_ context.Context, code string) (Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.byCode[code]
	if !ok {
		return Registration{}, false, sentinel.ErrNotFound
	}
	if reg.Status == StatusCheckedIn {
		return *reg, true, nil
	}
	now := time.Now()
	reg.Status = StatusCheckedIn
	reg.CheckedInAt = &now
	reg.UpdatedAt = now
	return *reg, false, nil
}
