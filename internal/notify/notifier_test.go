package notify

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
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
)

type notifierFixture struct {
	guard    *InMemoryGuard
	mailer   *InMemoryMailer
	notifier *Notifier
}

func newNotifierFixture(t *testing.T) *notifierFixture {
	t.Helper()

	userStore := users.NewInMemoryStore()
	userStore.Seed(users.Profile{UserID: "user-1", Name: "Ada", Email: "ada@example.com"})
	userStore.Seed(users.Profile{UserID: "user-2", Email: "jordan.lee@example.com"})

	price := int64(2500)
	eventStore := events.NewInMemoryStore()
	eventStore.Seed(events.Event{ID: 42, Title: "Product Night", Location: "Sauder", PriceCents: &price})

	guard := NewInMemoryGuard()
	mailer := NewInMemoryMailer()
	notifier := NewNotifier(guard, 24*time.Hour, mailer, userStore, eventStore,
		slog.New(slog.DiscardHandler), metrics.NewWith(prometheus.NewRegistry()))
	return &notifierFixture{guard: guard, mailer: mailer, notifier: notifier}
}

func TestSendReceiptMembership(t *testing.T) {
	f := newNotifierFixture(t)

	err := f.notifier.SendReceipt(context.Background(), Receipt{
		Kind:        purchase.KindMembership,
		UserID:      "user-1",
		IntentID:    "pi_1",
		AmountCents: 1500,
		Currency:    "cad",
	})
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "ada@example.com", sent[0].To)
	assert.Contains(t, sent[0].Subject, "Membership")
	assert.Contains(t, sent[0].HTMLBody, "Ada")
	assert.Contains(t, sent[0].HTMLBody, "$15.00 CAD")
	assert.Contains(t, sent[0].HTMLBody, "pi_1")
}

func TestSendReceiptEventWithTicket(t *testing.T) {
	f := newNotifierFixture(t)
	eventID := int64(42)

	err := f.notifier.SendReceipt(context.Background(), Receipt{
		Kind:        purchase.KindEvent,
		UserID:      "user-1",
		IntentID:    "pi_2",
		AmountCents: 2500,
		Currency:    "cad",
		EventID:     &eventID,
		Ticket: &ticket.Ticket{
			Code:     "T-ABC12345",
			ImageURL: "https://tickets.test/tickets/T-ABC12345.png",
		},
	})
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Subject, "Product Night")
	assert.Contains(t, sent[0].HTMLBody, "T-ABC12345")
	assert.Contains(t, sent[0].HTMLBody, "https://tickets.test/tickets/T-ABC12345.png")
	assert.Contains(t, sent[0].TextBody, "T-ABC12345")
}

func TestSendReceiptExactlyOncePerIntent(t *testing.T) {
	f := newNotifierFixture(t)
	receipt := Receipt{
		Kind:        purchase.KindMembership,
		UserID:      "user-1",
		IntentID:    "pi_3",
		AmountCents: 1500,
		Currency:    "cad",
	}

	for range 3 {
		require.NoError(t, f.notifier.SendReceipt(context.Background(), receipt))
	}
	assert.Len(t, f.mailer.Sent(), 1)
}

func TestSendReceiptFreeRegistrationGuardKey(t *testing.T) {
	f := newNotifierFixture(t)
	eventID := int64(42)
	receipt := Receipt{
		Kind:    purchase.KindEvent,
		UserID:  "user-1",
		EventID: &eventID,
		Ticket:  &ticket.Ticket{Code: "F-USER-1-42"},
	}

	require.NoError(t, f.notifier.SendReceipt(context.Background(), receipt))
	require.NoError(t, f.notifier.SendReceipt(context.Background(), receipt))
	assert.Len(t, f.mailer.Sent(), 1)

	// a different user registering free for the same event is a new key
	other := receipt
	other.UserID = "user-2"
	require.NoError(t, f.notifier.SendReceipt(context.Background(), other))
	assert.Len(t, f.mailer.Sent(), 2)
}

func TestSendReceiptNameFallsBackToEmail(t *testing.T) {
	f := newNotifierFixture(t)

	err := f.notifier.SendReceipt(context.Background(), Receipt{
		Kind:        purchase.KindMembership,
		UserID:      "user-2",
		IntentID:    "pi_4",
		AmountCents: 1500,
		Currency:    "cad",
	})
	require.NoError(t, err)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].HTMLBody, "Jordan")
}

func TestSendReceiptDeliveryFailureSurfaced(t *testing.T) {
	f := newNotifierFixture(t)
	f.mailer.SendErr = errors.New("smtp refused")

	err := f.notifier.SendReceipt(context.Background(), Receipt{
		Kind:        purchase.KindMembership,
		UserID:      "user-1",
		IntentID:    "pi_5",
		AmountCents: 1500,
		Currency:    "cad",
	})
	assert.Error(t, err)
}

func TestSendReceiptUnknownRecipient(t *testing.T) {
	f := newNotifierFixture(t)

	err := f.notifier.SendReceipt(context.Background(), Receipt{
		Kind:     purchase.KindMembership,
		UserID:   "ghost",
		IntentID: "pi_6",
	})
	assert.Error(t, err)
	assert.Empty(t, f.mailer.Sent())
}
