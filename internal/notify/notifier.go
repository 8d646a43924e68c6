package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
	"github.com/ubcma/mp-backend/pkg/email"
)

// Receipt describes one confirmation email to send. IntentID is empty for
// free registrations.
type Receipt struct {
	Kind        purchase.Kind
	UserID      string
	IntentID    string
	AmountCents int64
	Currency    string
	EventID     *int64
	Ticket      *ticket.Ticket
}

// guardKey picks the idempotency key: intent id when there was a payment,
// (user, event) otherwise.
func (r Receipt) guardKey() string {
	if r.IntentID != "" {
		return "email:pi:" + r.IntentID
	}
	return fmt.Sprintf("email:free:%s:%d", r.UserID, eventIDOrZero(r.EventID))
}

func eventIDOrZero(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

// Notifier renders and sends one-time receipt emails. Each receipt is
// guarded by a set-if-not-exists key so webhook redelivery cannot double
// send. Delivery failures are logged, never retried here.
type Notifier struct {
	guard    Guard
	guardTTL time.Duration
	mailer   Mailer
	users    users.Store
	events   events.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewNotifier(
	guard Guard,
	guardTTL time.Duration,
	mailer Mailer,
	userStore users.Store,
	eventStore events.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Notifier {
	return &Notifier{
		guard:    guard,
		guardTTL: guardTTL,
		mailer:   mailer,
		users:    userStore,
		events:   eventStore,
		logger:   logger,
		metrics:  m,
	}
}

// SendReceipt is best-effort by contract: the caller already committed the
// financial state, so errors here are reported but must not unwind it.
func (n *Notifier) SendReceipt(ctx context.Context, receipt Receipt) error {
	acquired, err := n.guard.Acquire(ctx, receipt.guardKey(), n.guardTTL)
	if err != nil {
		return fmt.Errorf("receipt guard: %w", err)
	}
	if !acquired {
		n.metrics.ReceiptsSkipped.Inc()
		n.logger.InfoContext(ctx, "receipt already sent, skipping",
			"intent_id", receipt.IntentID,
		)
		return nil
	}

	profile, err := n.users.FindByID(ctx, receipt.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	name := profile.Name
	if name == "" {
		first, _ := email.DeriveNameFromEmail(profile.Email)
		name = first
	}

	var msg Message
	switch receipt.Kind {
	case purchase.KindMembership:
		msg = membershipReceipt(name, receipt.AmountCents, receipt.Currency, receipt.IntentID, time.Now())
	case purchase.KindEvent:
		event, err := n.events.FindByID(ctx, eventIDOrZero(receipt.EventID))
		if err != nil {
			return fmt.Errorf("resolve event for receipt: %w", err)
		}
		msg = eventReceipt(name, receipt.AmountCents, receipt.Currency, receipt.IntentID, event, receipt.Ticket, time.Now())
	default:
		return fmt.Errorf("unknown receipt kind %q", receipt.Kind)
	}
	msg.To = profile.Email

	if err := n.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}

	n.metrics.ReceiptsSent.Inc()
	n.logger.InfoContext(ctx, "receipt email sent",
		"intent_id", receipt.IntentID,
		"kind", receipt.Kind,
	)
	return nil
}
