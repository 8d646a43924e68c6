package fulfillment

import (
	"context"
	"log/slog"

	"github.com/ubcma/mp-backend/internal/notify"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/ticket"
)

// Job is the notification work left after the financial state is committed:
// issue the ticket (event purchases) and send the receipt.
type Job struct {
	Record        purchase.CorrelationRecord
	PaymentMethod string
}

// SideEffects runs post-fulfillment work. Implementations must tolerate
// redelivery: the ticket code is deterministic and the notifier carries its
// own idempotency guard, so running a job twice is safe.
type SideEffects interface {
	Fulfilled(ctx context.Context, job Job)
}

// Tx scopes one delivery's state mutations to a single commit. The postgres
// runner threads a real transaction through context; InlineTx is for stores
// with no shared database underneath.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type InlineTx struct{}

func (InlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// InlineEffects executes jobs synchronously. Failures are logged and
// swallowed: payment and registration correctness outrank notification
// delivery.
type InlineEffects struct {
	issuer   *ticket.Issuer
	notifier *notify.Notifier
	logger   *slog.Logger
}

func NewInlineEffects(issuer *ticket.Issuer, notifier *notify.Notifier, logger *slog.Logger) *InlineEffects {
	return &InlineEffects{issuer: issuer, notifier: notifier, logger: logger}
}

func (e *InlineEffects) Fulfilled(ctx context.Context, job Job) {
	record := job.Record

	var issued *ticket.Ticket
	if record.Kind == purchase.KindEvent && record.EventID != nil {
		tkt, err := e.issuer.Issue(ctx, record.UserID, *record.EventID, &record.IntentID)
		if err != nil {
			e.logger.ErrorContext(ctx, "ticket issuance failed",
				"intent_id", record.IntentID,
				"event_id", *record.EventID,
				"error", err.Error(),
			)
		} else {
			issued = &tkt
		}
	}

	err := e.notifier.SendReceipt(ctx, notify.Receipt{
		Kind:        record.Kind,
		UserID:      record.UserID,
		IntentID:    record.IntentID,
		AmountCents: record.Amount,
		Currency:    record.Currency,
		EventID:     record.EventID,
		Ticket:      issued,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "receipt notification failed",
			"intent_id", record.IntentID,
			"error", err.Error(),
		)
	}
}

// QueuedEffects hands jobs to a background worker so webhook handling can
// acknowledge within the provider's delivery timeout. The channel is
// buffered; if it fills, enqueueing falls back to inline execution rather
// than dropping the job.
type QueuedEffects struct {
	inline *InlineEffects
	inbox  chan Job
	logger *slog.Logger
}

func NewQueuedEffects(inline *InlineEffects, buffer int, logger *slog.Logger) *QueuedEffects {
	return &QueuedEffects{
		inline: inline,
		inbox:  make(chan Job, buffer),
		logger: logger,
	}
}

func (q *QueuedEffects) Fulfilled(ctx context.Context, job Job) {
	select {
	case q.inbox <- job:
	default:
		q.logger.WarnContext(ctx, "effects queue full, running inline",
			"intent_id", job.Record.IntentID,
		)
		q.inline.Fulfilled(ctx, job)
	}
}

// Run drains the queue until ctx is cancelled. Jobs use a fresh context so
// an HTTP request finishing does not cancel its ticket render mid-flight.
func (q *QueuedEffects) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-q.inbox:
			q.inline.Fulfilled(context.WithoutCancel(ctx), job)
		}
	}
}
