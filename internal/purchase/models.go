package purchase

import (
	dErrors "github.com/ubcma/mp-backend/pkg/domain-errors"
)

// Kind is the closed set of things money can buy here.
type Kind string

const (
	KindMembership Kind = "membership"
	KindEvent      Kind = "event"
)

// Request is the caller-supplied purchase request. The kind decides which
// fields are required: event purchases carry an event reference, membership
// purchases must not. Amounts are never taken from the caller.
type Request struct {
	Kind     Kind   `json:"purchaseType"`
	UserID   string `json:"-"`
	EventID  *int64 `json:"eventId,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Validate enforces the kind/field pairing before anything touches the
// provider.
func (r Request) Validate() error {
	switch r.Kind {
	case KindMembership:
		if r.EventID != nil {
			return dErrors.New(dErrors.CodeBadRequest, "eventId is not allowed for a membership purchase")
		}
	case KindEvent:
		if r.EventID == nil {
			return dErrors.New(dErrors.CodeBadRequest, "eventId is required for an event purchase")
		}
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown purchase type")
	}
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "missing requester")
	}
	return nil
}

// CorrelationRecord maps a provider intent id back to the purchase that
// produced it. It lives only in the correlation store and is never exposed
// through the API.
type CorrelationRecord struct {
	IntentID string `json:"-"`
	Kind     Kind   `json:"purchaseType"`
	UserID   string `json:"userId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	EventID  *int64 `json:"eventId"`
}
