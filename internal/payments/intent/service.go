package intent

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/payments/provider"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/purchase/correlation"
	"github.com/ubcma/mp-backend/internal/users"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// Metadata keys attached to every intent. They are the recovery path when
// the correlation record expires before the webhook lands.
const (
	MetaPurchaseType = "purchaseType"
	MetaUserID       = "userId"
	MetaEventID      = "eventId"
)

// Config carries the pricing and TTL knobs the initiator needs.
type Config struct {
	MembershipPriceCents int64
	DefaultCurrency      string
	CorrelationTTL       time.Duration
}

// Service validates a purchase request, prices it server-side, creates the
// provider intent, and writes the correlation record the webhook path will
// consume.
type Service struct {
	cfg          Config
	provider     provider.Client
	correlations correlation.Store
	users        users.Store
	events       events.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

func NewService(
	cfg Config,
	providerClient provider.Client,
	correlations correlation.Store,
	userStore users.Store,
	eventStore events.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		cfg:          cfg,
		provider:     providerClient,
		correlations: correlations,
		users:        userStore,
		events:       eventStore,
		logger:       logger,
		metrics:      m,
	}
}

// Result is what the checkout frontend needs to confirm the payment.
type Result struct {
	IntentID     string
	ClientSecret string
}

// Create prices the purchase, creates exactly one provider-side intent, and
// writes the correlation record. A cache-write failure after the provider
// call surfaces as intent_persistence_failed so the caller retries the whole
// flow; the provider reconciles the orphaned intent on its side.
func (s *Service) Create(ctx context.Context, req purchase.Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	profile, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeUserNotFound, "no profile for requester")
		}
		return Result{}, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	meta := map[string]string{
		MetaPurchaseType: string(req.Kind),
		MetaUserID:       req.UserID,
	}

	var amount int64
	switch req.Kind {
	case purchase.KindMembership:
		if profile.IsMember() {
			return Result{}, dErrors.New(dErrors.CodeAlreadyMember, "requester already holds membership")
		}
		amount = s.cfg.MembershipPriceCents
	case purchase.KindEvent:
		event, err := s.events.FindByID(ctx, *req.EventID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return Result{}, dErrors.New(dErrors.CodeEventNotFound, "unknown event")
			}
			return Result{}, err
		}
		if event.PriceCents == nil {
			return Result{}, dErrors.New(dErrors.CodeEventPriceMissing, "event has no price configured")
		}
		amount = *event.PriceCents
		meta[MetaEventID] = strconv.FormatInt(event.ID, 10)
	}

	created, err := s.provider.CreateIntent(ctx, provider.CreateIntentParams{
		Amount:   amount,
		Currency: currency,
		Customer: provider.CustomerParams{Email: profile.Email, Name: profile.Name},
		Metadata: meta,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "provider rejected intent creation",
			"kind", req.Kind,
			"error", err.Error(),
		)
		return Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "provider rejected intent creation")
	}

	record := purchase.CorrelationRecord{
		IntentID: created.ID,
		Kind:     req.Kind,
		UserID:   req.UserID,
		Amount:   amount,
		Currency: currency,
		EventID:  req.EventID,
	}
	if err := s.correlations.Put(ctx, record, s.cfg.CorrelationTTL); err != nil {
		// The provider-side intent already exists. Surface the failure so
		// the caller retries the whole flow rather than confirming a payment
		// we cannot correlate.
		s.logger.ErrorContext(ctx, "correlation write failed after intent creation",
			"intent_id", created.ID,
			"error", err.Error(),
		)
		return Result{}, dErrors.New(dErrors.CodeIntentPersistenceFailed, "could not persist purchase correlation")
	}
	if err := s.correlations.PutUserIntent(ctx, req.UserID, created.ID, s.cfg.CorrelationTTL); err != nil {
		// Secondary index only; checkout resume degrades, fulfillment does not.
		s.logger.WarnContext(ctx, "user intent index write failed",
			"intent_id", created.ID,
			"error", err.Error(),
		)
	}

	s.metrics.IntentsCreated.Inc()
	s.logger.InfoContext(ctx, "payment intent created",
		"intent_id", created.ID,
		"kind", req.Kind,
		"amount", amount,
		"currency", currency,
	)
	return Result{IntentID: created.ID, ClientSecret: created.ClientSecret}, nil
}

// PendingIntent returns the requester's most recent pending intent, read
// back from the provider, so an interrupted checkout can resume.
func (s *Service) PendingIntent(ctx context.Context, userID string) (provider.Intent, error) {
	intentID, err := s.correlations.GetUserIntent(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return provider.Intent{}, dErrors.New(dErrors.CodeNotFound, "no pending payment intent")
		}
		return provider.Intent{}, err
	}
	intent, err := s.provider.RetrieveIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return provider.Intent{}, dErrors.New(dErrors.CodeNotFound, "no pending payment intent")
		}
		return provider.Intent{}, err
	}
	return intent, nil
}
