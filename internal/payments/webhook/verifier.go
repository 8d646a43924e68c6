package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ubcma/mp-backend/internal/payments/provider"
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
)

// SignatureHeader is the header the provider signs deliveries with.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance bounds how stale a signed timestamp may be. Replays older
// than this are rejected even with a valid signature.
const DefaultTolerance = 5 * time.Minute

// EventKind is the closed set of webhook events this system understands.
// Anything else is KindUnhandled: acknowledged, logged, never an error.
type EventKind string

const (
	KindPaymentSucceeded EventKind = "payment_intent.succeeded"
	KindPaymentFailed    EventKind = "payment_intent.payment_failed"
	KindUnhandled        EventKind = "unhandled"
)

// Event is the decoded webhook delivery. RawType preserves the provider's
// type string for logging unhandled kinds.
type Event struct {
	Kind    EventKind
	RawType string
	Intent  provider.Intent
}

// envelope matches the provider's wire shape {type, data: {object: intent}}.
type envelope struct {
	Type string `json:"type"`
	Data struct {
		Object provider.Intent `json:"object"`
	} `json:"data"`
}

// Verifier authenticates webhook deliveries against the shared endpoint
// secret and decodes them into typed events.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: DefaultTolerance,
		now:       time.Now,
	}
}

// WithClock overrides the verifier's clock for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks the signature over the exact bytes received and decodes the
// event. It fails closed: any parse or comparison problem is an
// invalid_signature error and produces no side effects.
//
// The signed payload is "<timestamp>.<raw body>"; re-serializing the body
// before verification would break the signature, so callers must pass the
// request body untouched.
func (v *Verifier) Verify(body []byte, header string) (Event, error) {
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return Event{}, dErrors.New(dErrors.CodeInvalidSignature, err.Error())
	}

	age := v.now().Sub(time.Unix(timestamp, 0))
	if age > v.tolerance || age < -v.tolerance {
		return Event{}, dErrors.New(dErrors.CodeInvalidSignature, "signed timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	expected := mac.Sum(nil)

	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return Event{}, dErrors.New(dErrors.CodeInvalidSignature, "no matching v1 signature")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, dErrors.New(dErrors.CodeInvalidSignature, "malformed event payload")
	}

	event := Event{RawType: env.Type, Intent: env.Data.Object}
	switch env.Type {
	case string(KindPaymentSucceeded):
		event.Kind = KindPaymentSucceeded
	case string(KindPaymentFailed):
		event.Kind = KindPaymentFailed
	default:
		event.Kind = KindUnhandled
	}
	return event, nil
}

// parseSignatureHeader splits "t=<unix>,v1=<hex>[,v1=<hex>...]". Unknown
// schemes (v0) are ignored, matching the provider's rotation behavior.
func parseSignatureHeader(header string) (int64, [][]byte, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var timestamp int64 = -1
	var signatures [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return 0, nil, fmt.Errorf("malformed signature header")
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed signature timestamp")
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed v1 signature")
			}
			signatures = append(signatures, sig)
		}
	}

	if timestamp < 0 {
		return 0, nil, fmt.Errorf("missing signature timestamp")
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("missing v1 signature")
	}
	return timestamp, signatures, nil
}

// Sign produces a valid signature header for the given body. Tests and the
// local producer use it; the server never signs.
func Sign(secret string, timestamp time.Time, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp.Unix())
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
