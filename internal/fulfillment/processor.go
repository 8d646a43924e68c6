package fulfillment

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/ledger"
	"github.com/ubcma/mp-backend/internal/payments/intent"
	"github.com/ubcma/mp-backend/internal/payments/provider"
	"github.com/ubcma/mp-backend/internal/payments/webhook"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/purchase/correlation"
	"github.com/ubcma/mp-backend/internal/registration"
	"github.com/ubcma/mp-backend/internal/users"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// Processor is the state machine between a verified webhook event and the
// durable fulfillment state. Per intent id it moves
// Unknown -> Correlated -> Fulfilled (or Failed); the ledger upsert is the
// serialization point that makes redelivery converge on one row.
type Processor struct {
	correlations  correlation.Store
	ledger        ledger.Store
	registrations registration.Store
	users         users.Store
	events        events.Store
	provider      provider.Client
	effects       SideEffects
	tx            Tx
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

func NewProcessor(
	correlations correlation.Store,
	ledgerStore ledger.Store,
	registrations registration.Store,
	userStore users.Store,
	eventStore events.Store,
	providerClient provider.Client,
	effects SideEffects,
	txRunner Tx,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		correlations:  correlations,
		ledger:        ledgerStore,
		registrations: registrations,
		users:         userStore,
		events:        eventStore,
		provider:      providerClient,
		effects:       effects,
		tx:            txRunner,
		logger:        logger,
		metrics:       m,
	}
}

// Process handles one verified webhook event. The caller acknowledges the
// delivery regardless of the return value; errors here feed logs and
// alerting, not the HTTP status.
func (p *Processor) Process(ctx context.Context, event webhook.Event) error {
	start := time.Now()
	defer func() {
		p.metrics.FulfillmentLatency.Observe(time.Since(start).Seconds())
	}()
	p.metrics.WebhooksReceived.WithLabelValues(string(event.Kind)).Inc()

	switch event.Kind {
	case webhook.KindPaymentSucceeded:
		return p.processSucceeded(ctx, event.Intent)
	case webhook.KindPaymentFailed:
		return p.processFailed(ctx, event.Intent)
	default:
		p.logger.InfoContext(ctx, "ignoring unhandled webhook event",
			"type", event.RawType,
		)
		return nil
	}
}

// errAlreadySettled marks a redelivery whose intent already has a terminal
// ledger row. It is absorbed, never surfaced as a fulfillment loss.
var errAlreadySettled = errors.New("intent already settled")

func (p *Processor) processSucceeded(ctx context.Context, pi provider.Intent) error {
	record, err := p.resolveCorrelation(ctx, pi)
	if err != nil {
		if errors.Is(err, errAlreadySettled) {
			return nil
		}
		return err
	}

	outcome := "fulfilled"
	var fulfillErr error
	var entry ledger.Entry

	// Role or seat and the ledger row commit together: a crash between them
	// cannot leave fulfillment state without its ledger record. The upsert
	// stays the idempotency boundary across deliveries.
	err = p.tx.RunInTx(ctx, func(ctx context.Context) error {
		switch record.Kind {
		case purchase.KindMembership:
			// Repeated role sets are no-ops, so redelivery is naturally safe.
			if err := p.users.SetRole(ctx, record.UserID, users.RoleMember); err != nil {
				return dErrors.New(dErrors.CodeInternal, "membership role update failed: "+err.Error())
			}
		case purchase.KindEvent:
			registered, err := p.registerForEvent(ctx, record)
			if err != nil {
				return err
			}
			if !registered {
				// The charge already happened. Record it, surface it, and leave
				// reconciliation (refund or manual seat) to operations.
				outcome = "capacity_exceeded"
				p.metrics.CapacityExceeded.Inc()
				fulfillErr = dErrors.New(dErrors.CodeCapacityExceeded,
					"payment succeeded but event is at capacity")
				p.logger.ErrorContext(ctx, "payment succeeded for a full event, manual reconciliation required",
					"intent_id", record.IntentID,
					"user_id", record.UserID,
					"event_id", *record.EventID,
				)
			}
		}

		e, err := p.ledger.UpsertTerminal(ctx, ledger.Entry{
			IntentID:      record.IntentID,
			UserID:        record.UserID,
			Kind:          record.Kind,
			Amount:        record.Amount,
			Currency:      record.Currency,
			PaymentMethod: pi.PaymentMethod(),
			EventID:       record.EventID,
			Status:        ledger.StatusSucceeded,
		})
		if err != nil {
			return dErrors.New(dErrors.CodeInternal, "ledger upsert failed: "+err.Error())
		}
		entry = e
		return nil
	})
	if err != nil {
		return err
	}

	if fulfillErr == nil {
		p.effects.Fulfilled(ctx, Job{Record: record, PaymentMethod: entry.PaymentMethod})
	}

	if err := p.correlations.Delete(ctx, record.IntentID); err != nil {
		p.logger.WarnContext(ctx, "correlation cleanup failed",
			"intent_id", record.IntentID,
			"error", err.Error(),
		)
	}

	p.metrics.Fulfillments.WithLabelValues(string(record.Kind), outcome).Inc()
	p.logger.InfoContext(ctx, "payment fulfilled",
		"intent_id", record.IntentID,
		"kind", record.Kind,
		"outcome", outcome,
	)
	return fulfillErr
}

// registerForEvent re-checks capacity and inserts the registration.
// The count and insert are separate statements: two deliveries for
// different requesters racing for the last seat can both pass the check, a
// bounded overbook we accept and document rather than hide. Redelivery for
// the same requester is absorbed by the (user, event) unique pair.
func (p *Processor) registerForEvent(ctx context.Context, record purchase.CorrelationRecord) (bool, error) {
	event, err := p.events.FindByID(ctx, *record.EventID)
	if err != nil {
		return false, dErrors.New(dErrors.CodeInternal, "event lookup failed: "+err.Error())
	}

	if event.AttendeeCap != nil {
		// A redelivered event whose registration already exists must not be
		// counted against capacity again.
		if _, err := p.registrations.FindByUserEvent(ctx, record.UserID, *record.EventID); err == nil {
			return true, nil
		}
		count, err := p.registrations.CountByEvent(ctx, *record.EventID)
		if err != nil {
			return false, dErrors.New(dErrors.CodeInternal, "capacity count failed: "+err.Error())
		}
		if count >= *event.AttendeeCap {
			return false, nil
		}
	}

	_, _, err = p.registrations.InsertIfAbsent(ctx, registration.Registration{
		UserID:   record.UserID,
		EventID:  *record.EventID,
		Status:   registration.StatusRegistered,
		IntentID: &record.IntentID,
	})
	if err != nil {
		return false, dErrors.New(dErrors.CodeInternal, "registration insert failed: "+err.Error())
	}
	return true, nil
}

func (p *Processor) processFailed(ctx context.Context, pi provider.Intent) error {
	p.logger.WarnContext(ctx, "payment failed", "intent_id", pi.ID)

	// A failed payment with no correlation is not a fulfillment loss;
	// nothing was owed. Resolve quietly and skip if nothing is found.
	record, err := p.correlations.Get(ctx, pi.ID)
	if err != nil {
		recovered, ok := p.recoverFromMetadata(ctx, pi)
		if !ok {
			p.logger.InfoContext(ctx, "no correlation for failed payment, skipping ledger record",
				"intent_id", pi.ID,
			)
			return nil
		}
		record = recovered
	}

	// Record the failure for audit. The store keeps this forward-only: it
	// will not downgrade an already-succeeded row, and a later successful
	// retry upgrades this one.
	_, err = p.ledger.UpsertTerminal(ctx, ledger.Entry{
		IntentID:      record.IntentID,
		UserID:        record.UserID,
		Kind:          record.Kind,
		Amount:        record.Amount,
		Currency:      record.Currency,
		PaymentMethod: pi.PaymentMethod(),
		EventID:       record.EventID,
		Status:        ledger.StatusFailed,
	})
	if err != nil {
		return dErrors.New(dErrors.CodeInternal, "ledger upsert failed: "+err.Error())
	}
	p.metrics.Fulfillments.WithLabelValues(string(record.Kind), "failed").Inc()
	return nil
}

// resolveCorrelation finds the purchase behind an intent. Cache first; on a
// miss, a terminal ledger row means this delivery is a harmless duplicate,
// and failing that the provider's own intent metadata is the last resort
// before declaring the fulfillment lost.
func (p *Processor) resolveCorrelation(ctx context.Context, pi provider.Intent) (purchase.CorrelationRecord, error) {
	record, err := p.correlations.Get(ctx, pi.ID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return purchase.CorrelationRecord{}, dErrors.New(dErrors.CodeInternal,
			"correlation lookup failed: "+err.Error())
	}

	if entry, err := p.ledger.FindByIntentID(ctx, pi.ID); err == nil && entry.IsTerminal() {
		p.logger.InfoContext(ctx, "duplicate delivery for settled intent, acknowledging",
			"intent_id", pi.ID,
			"status", entry.Status,
		)
		return purchase.CorrelationRecord{}, errAlreadySettled
	}

	if record, ok := p.recoverFromMetadata(ctx, pi); ok {
		p.metrics.CorrelationRecovery.Inc()
		p.logger.WarnContext(ctx, "correlation record missing, recovered from intent metadata",
			"intent_id", pi.ID,
		)
		return record, nil
	}

	p.metrics.MissingCorrelations.Inc()
	p.logger.ErrorContext(ctx, "no correlation record and no ledger row for intent, fulfillment lost",
		"intent_id", pi.ID,
	)
	return purchase.CorrelationRecord{}, dErrors.New(dErrors.CodeMissingCorrelation,
		"no correlation record for intent "+pi.ID)
}

// recoverFromMetadata rebuilds the correlation record from the metadata the
// initiator attached to the intent. The webhook's embedded object may be a
// thin copy, so the intent is re-read from the provider first.
func (p *Processor) recoverFromMetadata(ctx context.Context, pi provider.Intent) (purchase.CorrelationRecord, bool) {
	full, err := p.provider.RetrieveIntent(ctx, pi.ID)
	if err != nil {
		p.logger.WarnContext(ctx, "intent re-read failed during correlation recovery",
			"intent_id", pi.ID,
			"error", err.Error(),
		)
		full = pi
	}

	kind := purchase.Kind(full.Metadata[intent.MetaPurchaseType])
	userID := full.Metadata[intent.MetaUserID]
	if (kind != purchase.KindMembership && kind != purchase.KindEvent) || userID == "" {
		return purchase.CorrelationRecord{}, false
	}

	record := purchase.CorrelationRecord{
		IntentID: full.ID,
		Kind:     kind,
		UserID:   userID,
		Amount:   full.Amount,
		Currency: full.Currency,
	}
	if kind == purchase.KindEvent {
		eventID, err := strconv.ParseInt(full.Metadata[intent.MetaEventID], 10, 64)
		if err != nil {
			return purchase.CorrelationRecord{}, false
		}
		record.EventID = &eventID
	}
	return record, true
}
