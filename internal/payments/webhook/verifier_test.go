package webhook

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
)

const testSecret = "whsec_test_secret"

var frozenNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func frozenVerifier() *Verifier {
	return NewVerifier(testSecret).WithClock(func() time.Time { return frozenNow })
}

func succeededBody(intentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"type":"payment_intent.succeeded","data":{"object":{"id":%q,"amount":1500,"currency":"cad","status":"succeeded"}}}`,
		intentID))
}

func TestVerify(t *testing.T) {
	t.Run("valid signature decodes succeeded event", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow, body)

		event, err := frozenVerifier().Verify(body, header)
		require.NoError(t, err)
		assert.Equal(t, KindPaymentSucceeded, event.Kind)
		assert.Equal(t, "pi_123", event.Intent.ID)
		assert.Equal(t, int64(1500), event.Intent.Amount)
	})

	t.Run("failed event kind", func(t *testing.T) {
		body := []byte(`{"type":"payment_intent.payment_failed","data":{"object":{"id":"pi_f"}}}`)
		header := Sign(testSecret, frozenNow, body)

		event, err := frozenVerifier().Verify(body, header)
		require.NoError(t, err)
		assert.Equal(t, KindPaymentFailed, event.Kind)
	})

	t.Run("unknown type is unhandled, not an error", func(t *testing.T) {
		body := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
		header := Sign(testSecret, frozenNow, body)

		event, err := frozenVerifier().Verify(body, header)
		require.NoError(t, err)
		assert.Equal(t, KindUnhandled, event.Kind)
		assert.Equal(t, "charge.refunded", event.RawType)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign("whsec_other", frozenNow, body)

		_, err := frozenVerifier().Verify(body, header)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})

	t.Run("tampered body rejected", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow, body)
		tampered := succeededBody("pi_456")

		_, err := frozenVerifier().Verify(tampered, header)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})

	t.Run("stale timestamp rejected", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow.Add(-6*time.Minute), body)

		_, err := frozenVerifier().Verify(body, header)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})

	t.Run("future timestamp rejected", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow.Add(6*time.Minute), body)

		_, err := frozenVerifier().Verify(body, header)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})

	t.Run("timestamp within tolerance accepted", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow.Add(-4*time.Minute), body)

		_, err := frozenVerifier().Verify(body, header)
		assert.NoError(t, err)
	})

	t.Run("missing header rejected", func(t *testing.T) {
		_, err := frozenVerifier().Verify(succeededBody("pi_123"), "")
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		for _, header := range []string{
			"t=abc,v1=00",
			"v1=00",
			fmt.Sprintf("t=%d", frozenNow.Unix()),
			fmt.Sprintf("t=%d,v1=nothex", frozenNow.Unix()),
			"garbage",
		} {
			_, err := frozenVerifier().Verify(succeededBody("pi_123"), header)
			assert.Truef(t, dErrors.Is(err, dErrors.CodeInvalidSignature), "header %q", header)
		}
	})

	t.Run("second v1 signature matches after rotation", func(t *testing.T) {
		body := succeededBody("pi_123")
		stale := Sign("whsec_old", frozenNow, body)
		fresh := Sign(testSecret, frozenNow, body)
		// rotation window: both secrets signed, only one verifies
		header := stale + ",v1=" + fresh[len(fmt.Sprintf("t=%d,v1=", frozenNow.Unix())):]

		_, err := frozenVerifier().Verify(body, header)
		assert.NoError(t, err)
	})

	t.Run("unknown scheme ignored", func(t *testing.T) {
		body := succeededBody("pi_123")
		header := Sign(testSecret, frozenNow, body) + ",v0=deadbeef"

		_, err := frozenVerifier().Verify(body, header)
		assert.NoError(t, err)
	})

	t.Run("valid signature over malformed payload rejected", func(t *testing.T) {
		body := []byte("{not json")
		header := Sign(testSecret, frozenNow, body)

		_, err := frozenVerifier().Verify(body, header)
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidSignature))
	})
}
