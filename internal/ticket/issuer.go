package ticket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/ubcma/mp-backend/internal/platform/metrics"
	"github.com/ubcma/mp-backend/internal/registration"
)

const qrSize = 300

// Issuer derives ticket codes, renders their QR images, and attaches the
// code to the registration row. Codes are derived, not random: re-issuing
// for the same inputs reproduces the same ticket instead of minting a new
// one, which is what makes webhook redelivery safe downstream.
type Issuer struct {
	baseURL       string
	registrations registration.Store
	objects       ObjectStore
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

func NewIssuer(
	baseURL string,
	registrations registration.Store,
	objects ObjectStore,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Issuer {
	return &Issuer{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		registrations: registrations,
		objects:       objects,
		logger:        logger,
		metrics:       m,
	}
}

// Ticket is the issued artifact embedded in the registration.
type Ticket struct {
	Code     string
	ScanURL  string
	ImageURL string
}

// Code derives the deterministic ticket code. Paid tickets key off the
// intent id tail; free tickets off the requester and event so two free
// registrations never collide.
func Code(userID string, eventID int64, intentID *string) string {
	if intentID != nil && *intentID != "" {
		return "T-" + strings.ToUpper(tail(*intentID, 8))
	}
	return fmt.Sprintf("F-%s-%d", strings.ToUpper(tail(userID, 6)), eventID)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// Issue renders and stores the QR ticket, inserting the registration row
// first if none exists for this (requester, event) pair. Render or upload
// failure is fatal: the receipt email embeds the image, so a ticket without
// one must not exist.
func (i *Issuer) Issue(ctx context.Context, userID string, eventID int64, intentID *string) (Ticket, error) {
	code := Code(userID, eventID, intentID)
	scanURL := i.baseURL + "/tickets/scan/" + code

	png, err := qrcode.Encode(scanURL, qrcode.High, qrSize)
	if err != nil {
		return Ticket{}, fmt.Errorf("render ticket qr %s: %w", code, err)
	}

	imageURL, err := i.objects.Put(ctx, "tickets/"+code+".png", png, "image/png")
	if err != nil {
		return Ticket{}, fmt.Errorf("upload ticket qr %s: %w", code, err)
	}

	_, _, err = i.registrations.InsertIfAbsent(ctx, registration.Registration{
		UserID:   userID,
		EventID:  eventID,
		Status:   registration.StatusRegistered,
		IntentID: intentID,
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("ensure registration for ticket %s: %w", code, err)
	}
	if err := i.registrations.SetTicketCode(ctx, userID, eventID, code); err != nil {
		return Ticket{}, fmt.Errorf("attach ticket code %s: %w", code, err)
	}

	i.metrics.TicketsIssued.Inc()
	i.logger.InfoContext(ctx, "ticket issued",
		"ticket_code", code,
		"event_id", eventID,
	)
	return Ticket{Code: code, ScanURL: scanURL, ImageURL: imageURL}, nil
}
