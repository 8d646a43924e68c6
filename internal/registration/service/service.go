package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/notify"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/registration"
	"github.com/ubcma/mp-backend/internal/ticket"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// Service handles free-event registration. Paid registration happens only
// through the payment pipeline; this path exists so free events share the
// same ticket issuer and receipt notifier.
type Service struct {
	registrations registration.Store
	events        events.Store
	issuer        *ticket.Issuer
	notifier      *notify.Notifier
	logger        *slog.Logger
}

func NewService(
	registrations registration.Store,
	eventStore events.Store,
	issuer *ticket.Issuer,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Service {
	return &Service{
		registrations: registrations,
		events:        eventStore,
		issuer:        issuer,
		notifier:      notifier,
		logger:        logger,
	}
}

// Result is the registration plus its issued ticket.
type Result struct {
	Registration registration.Registration
	Ticket       ticket.Ticket
}

// RegisterFree registers the user for a free event and issues the ticket.
// Repeat calls reproduce the same ticket rather than erroring: the
// registration insert is idempotent on (user, event) and the ticket code is
// deterministic.
func (s *Service) RegisterFree(ctx context.Context, userID string, eventID int64) (Result, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeEventNotFound, "unknown event")
		}
		return Result{}, err
	}
	if !event.IsFree() {
		return Result{}, dErrors.New(dErrors.CodeEventNotFree, "priced events require checkout")
	}

	if event.AttendeeCap != nil {
		// An existing registration bypasses the capacity check; any other
		// lookup failure must not.
		_, err := s.registrations.FindByUserEvent(ctx, userID, eventID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			count, err := s.registrations.CountByEvent(ctx, eventID)
			if err != nil {
				return Result{}, err
			}
			if count >= *event.AttendeeCap {
				return Result{}, dErrors.New(dErrors.CodeCapacityExceeded, "event is full")
			}
		case err != nil:
			return Result{}, err
		}
	}

	issued, err := s.issuer.Issue(ctx, userID, eventID, nil)
	if err != nil {
		return Result{}, err
	}

	reg, err := s.registrations.FindByUserEvent(ctx, userID, eventID)
	if err != nil {
		return Result{}, err
	}

	if err := s.notifier.SendReceipt(ctx, notify.Receipt{
		Kind:     purchase.KindEvent,
		UserID:   userID,
		EventID:  &eventID,
		Currency: "",
		Ticket:   &issued,
	}); err != nil {
		s.logger.ErrorContext(ctx, "free registration receipt failed",
			"event_id", eventID,
			"error", err.Error(),
		)
	}

	return Result{Registration: reg, Ticket: issued}, nil
}
