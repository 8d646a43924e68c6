package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/ubcma/mp-backend/internal/events"
	"github.com/ubcma/mp-backend/internal/jwttoken"
	"github.com/ubcma/mp-backend/internal/notify"
	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/registration"
	regservice "github.com/ubcma/mp-backend/internal/registration/service"
	"github.com/ubcma/mp-backend/internal/ticket"
	"github.com/ubcma/mp-backend/internal/users"
)

// =============================================================================
// Registration Handler Test Suite
// =============================================================================

type RegistrationHandlerSuite struct {
	suite.Suite

	router        chi.Router
	jwt           *jwttoken.Service
	registrations *registration.InMemoryStore
	mailer        *notify.InMemoryMailer
}

func TestRegistrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistrationHandlerSuite))
}

func (s *RegistrationHandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	m := metrics.NewWith(prometheus.NewRegistry())

	s.registrations = registration.NewInMemoryStore()
	userStore := users.NewInMemoryStore()
	eventStore := events.NewInMemoryStore()
	s.mailer = notify.NewInMemoryMailer()

	userStore.Seed(users.Profile{UserID: "user-1", Name: "Ada", Email: "ada@example.com"})
	userStore.Seed(users.Profile{UserID: "user-2", Name: "Brin", Email: "brin@example.com"})

	price := int64(2500)
	cap := 1
	eventStore.Seed(events.Event{ID: 42, Title: "Paid Night", PriceCents: &price})
	eventStore.Seed(events.Event{ID: 43, Title: "Free Workshop", Location: "Sauder"})
	eventStore.Seed(events.Event{ID: 44, Title: "Tiny Workshop", AttendeeCap: &cap})

	issuer := ticket.NewIssuer("https://portal.test", s.registrations,
		ticket.NewInMemoryObjectStore("https://tickets.test"), logger, m)
	notifier := notify.NewNotifier(notify.NewInMemoryGuard(), 24*time.Hour,
		s.mailer, userStore, eventStore, logger, m)
	service := regservice.NewService(s.registrations, eventStore, issuer, notifier, logger)

	s.jwt = jwttoken.NewService("test-signing-key", "mp-backend-test")
	s.router = chi.NewRouter()
	New(service, s.registrations, logger, s.jwt).Register(s.router)
}

func (s *RegistrationHandlerSuite) post(userID, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	token, err := s.jwt.GenerateToken(userID, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Free Registration
// =============================================================================

func (s *RegistrationHandlerSuite) TestRegisterFree() {
	rec := s.post("user-1", "/events/43/register")
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		Registration struct {
			ID      string `json:"id"`
			EventID int64  `json:"eventId"`
			Status  string `json:"status"`
		} `json:"registration"`
		TicketCode string `json:"ticketCode"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(int64(43), resp.Registration.EventID)
	s.Equal("registered", resp.Registration.Status)
	s.Equal("F-USER-1-43", resp.TicketCode)
	s.Len(s.mailer.Sent(), 1)
}

func (s *RegistrationHandlerSuite) TestRegisterFreeRepeatSameTicketOneEmail() {
	first := s.post("user-1", "/events/43/register")
	s.Require().Equal(http.StatusOK, first.Code)
	second := s.post("user-1", "/events/43/register")
	s.Require().Equal(http.StatusOK, second.Code)

	s.JSONEq(first.Body.String(), second.Body.String())
	s.Len(s.mailer.Sent(), 1)
}

func (s *RegistrationHandlerSuite) TestRegisterFreeRejectsPaidEvent() {
	rec := s.post("user-1", "/events/42/register")
	s.Equal(http.StatusConflict, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("event_not_free", resp["error"])
}

func (s *RegistrationHandlerSuite) TestRegisterFreeUnknownEvent() {
	rec := s.post("user-1", "/events/999/register")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RegistrationHandlerSuite) TestRegisterFreeInvalidEventID() {
	rec := s.post("user-1", "/events/not-a-number/register")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *RegistrationHandlerSuite) TestRegisterFreeCapacity() {
	rec := s.post("user-1", "/events/44/register")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.post("user-2", "/events/44/register")
	s.Equal(http.StatusConflict, rec.Code)

	// the registered user can still re-request their ticket
	rec = s.post("user-1", "/events/44/register")
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RegistrationHandlerSuite) TestRegisterFreeRequiresAuth() {
	req := httptest.NewRequest(http.MethodPost, "/events/43/register", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Ticket Scanning
// =============================================================================

func (s *RegistrationHandlerSuite) scan(code string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tickets/scan/"+code, nil))
	return rec
}

func (s *RegistrationHandlerSuite) TestScanChecksIn() {
	s.Require().Equal(http.StatusOK, s.post("user-1", "/events/43/register").Code)

	rec := s.scan("F-USER-1-43")
	s.Equal(http.StatusOK, rec.Code)

	var resp struct {
		TicketCode  string `json:"ticketCode"`
		Status      string `json:"status"`
		CheckedInAt string `json:"checkedInAt"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("F-USER-1-43", resp.TicketCode)
	s.Equal("checkedIn", resp.Status)
	s.NotEmpty(resp.CheckedInAt)
}

func (s *RegistrationHandlerSuite) TestScanIdempotent() {
	s.Require().Equal(http.StatusOK, s.post("user-1", "/events/43/register").Code)

	first := s.scan("F-USER-1-43")
	s.Require().Equal(http.StatusOK, first.Code)
	second := s.scan("F-USER-1-43")
	s.Require().Equal(http.StatusOK, second.Code)

	// the second scan reports the original check-in time
	s.JSONEq(first.Body.String(), second.Body.String())
}

func (s *RegistrationHandlerSuite) TestScanUnknownCode() {
	rec := s.scan("T-UNKNOWN1")
	s.Equal(http.StatusNotFound, rec.Code)
}
