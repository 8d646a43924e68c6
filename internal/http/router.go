package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	paymentsHandler "github.com/ubcma/mp-backend/internal/payments/handler"
	"github.com/ubcma/mp-backend/internal/platform/middleware"
	registrationHandler "github.com/ubcma/mp-backend/internal/registration/handler"
	"github.com/ubcma/mp-backend/internal/transport/http/shared"
)

// HealthChecker reports whether a backing resource is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) Health(ctx context.Context) error { return f(ctx) }

// NewRouter wires the public surface: payment endpoints, registration and
// scanning, health, and metrics. Handlers stay thin; business logic lives in
// the services they delegate to.
func NewRouter(
	logger *slog.Logger,
	payments *paymentsHandler.Handler,
	registrations *registrationHandler.Handler,
	checks map[string]HealthChecker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))

	payments.Register(r)
	registrations.Register(r)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handleHealth(checks))

	return r
}

func handleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Health(ctx); err != nil {
				report[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				report[name] = "ok"
			}
		}
		shared.WriteJSON(w, status, report)
	}
}
