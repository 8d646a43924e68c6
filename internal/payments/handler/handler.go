package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ubcma/mp-backend/internal/fulfillment"
	"github.com/ubcma/mp-backend/internal/ledger"
	"github.com/ubcma/mp-backend/internal/payments/intent"
	"github.com/ubcma/mp-backend/internal/payments/webhook"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/platform/middleware"
	"github.com/ubcma/mp-backend/internal/purchase"
	"github.com/ubcma/mp-backend/internal/transport/http/shared"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// Handler exposes the payment endpoints: intent creation on the checkout
// path and the provider-facing webhook.
type Handler struct {
	intents      *intent.Service
	verifier     *webhook.Verifier
	processor    *fulfillment.Processor
	ledger       ledger.Store
	logger       *slog.Logger
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	intents *intent.Service,
	verifier *webhook.Verifier,
	processor *fulfillment.Processor,
	ledgerStore ledger.Store,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		intents:      intents,
		verifier:     verifier,
		processor:    processor,
		ledger:       ledgerStore,
		logger:       logger,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the payment routes. The webhook route skips auth: the
// provider authenticates with its signature, not a session.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/payment-intents", h.handleCreateIntent)
		r.Get("/payment-intents/me", h.handlePendingIntent)
		r.Get("/transactions/me", h.handleTransactions)
	})
	r.Post("/webhooks/payment", h.handleWebhook)
}

func (h *Handler) handleCreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user"))
		return
	}

	var req purchase.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.UserID = userID

	result, err := h.intents.Create(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "intent creation rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]string{
		"clientSecret": result.ClientSecret,
		"intentId":     result.IntentID,
	})
}

func (h *Handler) handlePendingIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user"))
		return
	}

	pending, err := h.intents.PendingIntent(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"intent": map[string]any{
			"id":           pending.ID,
			"clientSecret": pending.ClientSecret,
			"amount":       pending.Amount,
			"currency":     pending.Currency,
			"status":       pending.Status,
		},
	})
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing authenticated user"))
		return
	}

	entries, err := h.ledger.ListByUser(ctx, userID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"intentId":      e.IntentID,
			"purchaseType":  e.Kind,
			"amount":        e.Amount,
			"currency":      e.Currency,
			"status":        e.Status,
			"paymentMethod": e.PaymentMethod,
			"createdAt":     e.CreatedAt,
		}
		if e.EventID != nil {
			item["eventId"] = *e.EventID
		}
		if e.PaidAt != nil {
			item["paidAt"] = *e.PaidAt
		}
		items = append(items, item)
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"transactions": items})
}

// handleWebhook verifies the signature over the raw body and acknowledges
// once the event is accepted for processing. Fulfillment failures after
// verification still ack 200: the provider cannot fix a business failure by
// resending, and unbounded retries would only amplify it.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unreadable body"))
		return
	}

	event, err := h.verifier.Verify(body, r.Header.Get(webhook.SignatureHeader))
	if err != nil {
		h.metrics.SignatureFailures.Inc()
		h.logger.WarnContext(ctx, "webhook signature rejected",
			"request_id", middleware.GetRequestID(ctx),
			"remote_addr", r.RemoteAddr,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}

	if err := h.processor.Process(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "webhook fulfillment failed",
			"request_id", middleware.GetRequestID(ctx),
			"intent_id", event.Intent.ID,
			"type", event.RawType,
			"error", err.Error(),
		)
	}

	shared.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}
