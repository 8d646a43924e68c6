package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/notify"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/registration"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
)

// faultyLookupStore fails the existing-registration lookup with an
// infrastructure error rather than a miss.
type faultyLookupStore struct {
	*registration.InMemoryStore
	lookupErr error
}

func (s *faultyLookupStore) FindByUserEvent(ctx context.Context, userID string, eventID int64) (registration.Registration, error) {
	return registration.Registration{}, s.lookupErr
}

func TestRegisterFreeLookupFailureDoesNotIssue(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	m := metrics.NewWith(prometheus.NewRegistry())

	store := &faultyLookupStore{
		InMemoryStore: registration.NewInMemoryStore(),
		lookupErr:     errors.New("connection reset"),
	}

	userStore := users.NewInMemoryStore()
	userStore.Seed(users.Profile{UserID: "user-1", Name: "Ada", Email: "ada@example.com"})

	eventStore := events.NewInMemoryStore()
	cap := 5
	eventStore.Seed(events.Event{
		ID:          60,
		Title:       "Open House",
		StartsAt:    time.Now().Add(24 * time.Hour),
		EndsAt:      time.Now().Add(26 * time.Hour),
		AttendeeCap: &cap,
	})

	mailer := notify.NewInMemoryMailer()
	issuer := ticket.NewIssuer("https://portal.test", store,
		ticket.NewInMemoryObjectStore("https://tickets.test"), logger, m)
	notifier := notify.NewNotifier(notify.NewInMemoryGuard(), 24*time.Hour,
		mailer, userStore, eventStore, logger, m)

	svc := NewService(store, eventStore, issuer, notifier, logger)

	_, err := svc.RegisterFree(context.Background(), "user-1", 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.lookupErr)

	// the failed lookup must not be treated as capacity headroom
	count, err := store.InMemoryStore.CountByEvent(context.Background(), 60)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, mailer.Sent())
}
