package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/fulfillment"
	"github.com/ubcma/mp-backend/internal/jwttoken"
	"github.com/ubcma/mp-backend/internal/ledger"
	"github.com/ubcma/mp-backend/internal/notify"
	"github.com/ubcma/mp-backend/internal/payments/intent"
	"github.com/ubcma/mp-backend/internal/payments/provider"
	"github.com/ubcma/mp-backend/internal/payments/webhook"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/purchase/correlation"
	"github.com/ubcma/mp-backend/internal/registration"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
)

const webhookSecret = "whsec_handler_test"

// =============================================================================
// Payments Handler Test Suite
// =============================================================================
// These run the full checkout path over HTTP: authenticated intent creation,
// then a signed webhook delivery against the same wired pipeline.

type PaymentsHandlerSuite struct {
	suite.Suite

	router      chi.Router
	jwt         *jwttoken.Service
	provider    *provider.MockClient
	userStore   *users.InMemoryStore
	ledgerStore *ledger.InMemoryStore
	mailer      *notify.InMemoryMailer
	metrics     *metrics.Metrics
}

func TestPaymentsHandlerSuite(t *testing.T) {
	suite.Run(t, new(PaymentsHandlerSuite))
}

func (s *PaymentsHandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.metrics = metrics.NewWith(prometheus.NewRegistry())

	correlations := correlation.NewInMemoryStore()
	s.ledgerStore = ledger.NewInMemoryStore()
	registrations := registration.NewInMemoryStore()
	s.userStore = users.NewInMemoryStore()
	eventStore := events.NewInMemoryStore()
	s.provider = provider.NewMockClient()
	s.mailer = notify.NewInMemoryMailer()

	s.userStore.Seed(users.Profile{
		UserID: "user-1",
		Name:   "Ada",
		Email:  "ada@example.com",
		Role:   users.RoleBasic,
	})
	price := int64(2500)
	eventStore.Seed(events.Event{ID: 42, Title: "Product Night", PriceCents: &price})

	issuer := ticket.NewIssuer("https://portal.test", registrations,
		ticket.NewInMemoryObjectStore("https://tickets.test"), logger, s.metrics)
	notifier := notify.NewNotifier(notify.NewInMemoryGuard(), 24*time.Hour,
		s.mailer, s.userStore, eventStore, logger, s.metrics)

	intentService := intent.NewService(intent.Config{
		MembershipPriceCents: 1500,
		DefaultCurrency:      "cad",
		CorrelationTTL:       time.Hour,
	}, s.provider, correlations, s.userStore, eventStore, logger, s.metrics)

	processor := fulfillment.NewProcessor(
		correlations, s.ledgerStore, registrations, s.userStore, eventStore,
		s.provider, fulfillment.NewInlineEffects(issuer, notifier, logger), fulfillment.InlineTx{}, logger, s.metrics)

	s.jwt = jwttoken.NewService("test-signing-key", "mp-backend-test")

	s.router = chi.NewRouter()
	New(intentService, webhook.NewVerifier(webhookSecret), processor, s.ledgerStore, logger, s.metrics, s.jwt).Register(s.router)
}

func (s *PaymentsHandlerSuite) authedRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	token, err := s.jwt.GenerateToken("user-1", time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func (s *PaymentsHandlerSuite) deliverWebhook(eventType, intentID string) *httptest.ResponseRecorder {
	body := []byte(`{"type":"` + eventType + `","data":{"object":{"id":"` + intentID + `"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign(webhookSecret, time.Now(), body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Intent Creation
// =============================================================================

func (s *PaymentsHandlerSuite) TestCreateIntent() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))

	s.Equal(http.StatusOK, rec.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotEmpty(resp["clientSecret"])
	s.NotEmpty(resp["intentId"])
}

func (s *PaymentsHandlerSuite) TestCreateIntentRequiresAuth() {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payment-intents", strings.NewReader(`{"purchaseType":"membership"}`))
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *PaymentsHandlerSuite) TestCreateIntentRejectsExpiredToken() {
	token, err := s.jwt.GenerateToken("user-1", -time.Minute)
	s.Require().NoError(err)

	req := httptest.NewRequest(http.MethodPost, "/payment-intents", strings.NewReader(`{"purchaseType":"membership"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *PaymentsHandlerSuite) TestCreateIntentBadBody() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{not json`))
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *PaymentsHandlerSuite) TestCreateIntentDomainErrorMapped() {
	s.userStore.Seed(users.Profile{UserID: "user-1", Email: "ada@example.com", Role: users.RoleMember})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))

	s.Equal(http.StatusConflict, rec.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("already_member", resp["error"])
}

// =============================================================================
// Pending Intent Lookup
// =============================================================================

func (s *PaymentsHandlerSuite) TestPendingIntent() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodGet, "/payment-intents/me", ""))
	s.Equal(http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodGet, "/payment-intents/me", ""))
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Intent struct {
			ID           string `json:"id"`
			ClientSecret string `json:"clientSecret"`
			Amount       int64  `json:"amount"`
		} `json:"intent"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.NotEmpty(resp.Intent.ID)
	s.Equal(int64(1500), resp.Intent.Amount)
}

// =============================================================================
// Transaction History
// =============================================================================

func (s *PaymentsHandlerSuite) TestTransactionsEmpty() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodGet, "/transactions/me", ""))
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"transactions":[]}`, rec.Body.String())
}

func (s *PaymentsHandlerSuite) TestTransactionsAfterSettlement() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))
	s.Require().Equal(http.StatusOK, rec.Code)

	var created map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	s.deliverWebhook("payment_intent.succeeded", created["intentId"])

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodGet, "/transactions/me", ""))
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Transactions []struct {
			IntentID     string `json:"intentId"`
			PurchaseType string `json:"purchaseType"`
			Amount       int64  `json:"amount"`
			Status       string `json:"status"`
			PaidAt       string `json:"paidAt"`
		} `json:"transactions"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Require().Len(resp.Transactions, 1)
	s.Equal(created["intentId"], resp.Transactions[0].IntentID)
	s.Equal("membership", resp.Transactions[0].PurchaseType)
	s.Equal(int64(1500), resp.Transactions[0].Amount)
	s.Equal("succeeded", resp.Transactions[0].Status)
	s.NotEmpty(resp.Transactions[0].PaidAt)
}

func (s *PaymentsHandlerSuite) TestTransactionsRequireAuth() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/me", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Webhook Delivery
// =============================================================================

func (s *PaymentsHandlerSuite) TestWebhookEndToEnd() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))
	s.Require().Equal(http.StatusOK, rec.Code)

	var created map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	rec = s.deliverWebhook("payment_intent.succeeded", created["intentId"])
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"received":true}`, rec.Body.String())

	profile, err := s.userStore.FindByID(context.Background(), "user-1")
	s.Require().NoError(err)
	s.True(profile.IsMember())

	entry, err := s.ledgerStore.FindByIntentID(context.Background(), created["intentId"])
	s.Require().NoError(err)
	s.Equal(ledger.StatusSucceeded, entry.Status)
	s.Len(s.mailer.Sent(), 1)
}

func (s *PaymentsHandlerSuite) TestWebhookBadSignature() {
	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(webhook.SignatureHeader, webhook.Sign("whsec_wrong", time.Now(), body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("invalid_signature", resp["error"])
	s.Equal(1.0, promtestutil.ToFloat64(s.metrics.SignatureFailures))
}

func (s *PaymentsHandlerSuite) TestWebhookMissingSignature() {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment",
		strings.NewReader(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *PaymentsHandlerSuite) TestWebhookBusinessFailureStillAcks() {
	// verified delivery for an intent nothing knows about
	rec := s.deliverWebhook("payment_intent.succeeded", "pi_untracked")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"received":true}`, rec.Body.String())
}

func (s *PaymentsHandlerSuite) TestWebhookUnhandledTypeAcked() {
	rec := s.deliverWebhook("charge.refunded", "pi_whatever")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *PaymentsHandlerSuite) TestWebhookRedeliveredOnce() {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, s.authedRequest(http.MethodPost, "/payment-intents", `{"purchaseType":"membership"}`))
	s.Require().Equal(http.StatusOK, rec.Code)
	var created map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &created))

	for range 3 {
		rec := s.deliverWebhook("payment_intent.succeeded", created["intentId"])
		s.Equal(http.StatusOK, rec.Code)
	}
	s.Len(s.mailer.Sent(), 1)
}
