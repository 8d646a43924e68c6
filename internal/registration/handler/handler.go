package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ubcma/mp-backend/internal/platform/middleware"
	"github.com/ubcma/mp-backend/internal/registration"
	regservice "github.com/ubcma/mp-backend/internal/registration/service"
	"github.com/ubcma/mp-backend/internal/transport/http/shared"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

// Handler exposes free-event registration and ticket scanning.
type Handler struct {
	service       *regservice.Service
	registrations registration.Store
	logger        *slog.Logger
	jwtValidator  middleware.JWTValidator
}

func New(
	service *regservice.Service,
	registrations registration.Store,
	logger *slog.Logger,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		service:       service,
		registrations: registrations,
		logger:        logger,
		jwtValidator:  jwtValidator,
	}
}

// Register mounts the routes. Ticket scanning is unauthenticated: the link
// is printed inside the QR and scanned at the door.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/events/{id}/register", h.handleRegisterFree)
	})
	r.Get("/tickets/scan/{code}", h.handleScan)
}

func (h *Handler) handleRegisterFree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user"))
		return
	}

	eventID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid event id"))
		return
	}

	result, err := h.service.RegisterFree(ctx, userID, eventID)
	if err != nil {
		h.logger.WarnContext(ctx, "free registration rejected",
			"request_id", middleware.GetRequestID(ctx),
			"event_id", eventID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"registration": map[string]any{
			"id":      result.Registration.ID,
			"eventId": result.Registration.EventID,
			"status":  result.Registration.Status,
		},
		"ticketCode": result.Ticket.Code,
	})
}

// handleScan marks the ticket's registration checked in. Scanning twice
// returns the original confirmation without touching the timestamp, so a
// flaky scanner at the door cannot corrupt attendance data.
func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	reg, already, err := h.registrations.CheckIn(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown ticket code"))
			return
		}
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "check-in failed"))
		return
	}

	h.logger.InfoContext(ctx, "ticket scanned",
		"ticket_code", code,
		"already_checked_in", already,
	)
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"ticketCode":  code,
		"status":      reg.Status,
		"checkedInAt": formatTime(reg.CheckedInAt),
	})
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
