package correlation

import (
	"context"
	"time"

	"github.com/ubcma/mp-backend/internal/purchase"
)

// Store is the ephemeral handoff between intent creation and webhook
// delivery. It is modeled as an explicit interface, not ambient state, so a
// stricter deployment can swap it for something durable.
//
// Get after expiry behaves exactly like Get on a never-written key: both
// return sentinel.ErrNotFound. The fulfillment processor decides whether
// that is a harmless duplicate or a lost correlation.
type Store interface {
	Put(ctx context.Context, record purchase.CorrelationRecord, ttl time.Duration) error
	Get(ctx context.Context, intentID string) (purchase.CorrelationRecord, error)
	Delete(ctx context.Context, intentID string) error

	// PutUserIntent/GetUserIntent track the requester's most recent pending
	// intent so the client can resume an interrupted checkout.
	PutUserIntent(ctx context.Context, userID, intentID string, ttl time.Duration) error
	GetUserIntent(ctx context.Context, userID string) (string, error)
}
