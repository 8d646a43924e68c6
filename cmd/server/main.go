package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/fulfillment"
	httpapi "github.com/ubcma/mp-backend/internal/http"
	"github.com/ubcma/mp-backend/internal/jwttoken"
	"github.com/ubcma/mp-backend/internal/ledger"
	"github.com/ubcma/mp-backend/internal/notify"
	paymentsHandler "github.com/ubcma/mp-backend/internal/payments/handler"
	"github.com/ubcma/mp-backend/internal/payments/intent"
	"github.com/ubcma/mp-backend/internal/payments/provider"
	"github.com/ubcma/mp-backend/internal/payments/webhook"
	"github.com/ubcma/mp-backend/internal/platform/config"
	"github.com/ubcma/mp-backend/internal/platform/httpserver"
	"github.com/ubcma/mp-backend/internal/platform/logger"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/platform/postgres"
	platformredis "github.com/ubcma/mp-backend/internal/platform/redis"
	"github.com/ubcma/mp-backend/internal/purchase/correlation"
	"github.com/ubcma/mp-backend/internal/registration"
	registrationHandler "github.com/ubcma/mp-backend/internal/registration/handler"
	regservice "github.com/ubcma/mp-backend/internal/registration/service"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.PostgresURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err.Error())
		return
	}
	defer db.Close()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err.Error())
		return
	}
	defer redisClient.Close()

	m := metrics.New()

	userStore := users.NewPostgresStore(db)
	eventStore := events.NewPostgresStore(db)
	ledgerStore := ledger.NewPostgresStore(db)
	registrationStore := registration.NewPostgresStore(db)
	correlationStore := correlation.NewRedisStore(redisClient.Client)

	providerClient := provider.Client(provider.NewStripeClient(cfg.Stripe.APIKey, cfg.Stripe.BaseURL))
	if cfg.Stripe.APIKey == "" {
		log.Warn("no provider API key configured, using mock provider")
		providerClient = provider.NewMockClient()
	}

	// Ticket images are served straight from the bucket; the in-memory
	// object store is a placeholder until the S3 adapter is deployed
	// alongside. Same shape, swap at wiring time.
	objectStore := ticket.NewInMemoryObjectStore(cfg.TicketBucketURL)
	mailer := notify.NewInMemoryMailer()

	issuer := ticket.NewIssuer(cfg.BaseURL, registrationStore, objectStore, log, m)
	notifier := notify.NewNotifier(
		notify.NewRedisGuard(redisClient.Client), cfg.ReceiptGuardTTL,
		mailer, userStore, eventStore, log, m)

	inlineEffects := fulfillment.NewInlineEffects(issuer, notifier, log)
	effects := fulfillment.NewQueuedEffects(inlineEffects, 256, log)

	intentService := intent.NewService(intent.Config{
		MembershipPriceCents: cfg.MembershipPriceCents,
		DefaultCurrency:      cfg.DefaultCurrency,
		CorrelationTTL:       cfg.CorrelationTTL,
	}, providerClient, correlationStore, userStore, eventStore, log, m)

	processor := fulfillment.NewProcessor(
		correlationStore, ledgerStore, registrationStore, userStore, eventStore,
		providerClient, effects, postgres.NewTxRunner(db), log, m)

	verifier := webhook.NewVerifier(cfg.Stripe.WebhookSecret)
	jwtService := jwttoken.NewService(cfg.JWTSigningKey, "mp-backend")

	freeRegistration := regservice.NewService(registrationStore, eventStore, issuer, notifier, log)

	router := httpapi.NewRouter(
		log,
		paymentsHandler.New(intentService, verifier, processor, ledgerStore, log, m, jwtService),
		registrationHandler.New(freeRegistration, registrationStore, log, jwtService),
		map[string]httpapi.HealthChecker{
			"postgres": httpapi.HealthCheckFunc(db.PingContext),
			"redis":    redisClient,
		},
	)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return effects.Run(groupCtx)
	})
	group.Go(func() error {
		log.Info("starting mp-backend", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped", "error", err.Error())
	}
}
