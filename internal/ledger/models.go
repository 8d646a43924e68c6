package ledger

import (
	"time"

	"github.com/ubcma/mp-backend/internal/purchase"
)

// Status is the terminal-state machine for a ledger entry. Transitions only
// move forward: pending -> succeeded or pending -> failed. A succeeded row
// is never downgraded.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is the durable record of one provider charge. IntentID carries the
// unique constraint that makes webhook redelivery idempotent.
type Entry struct {
	ID            int64
	IntentID      string
	UserID        string
	Kind          purchase.Kind
	Amount        int64
	Currency      string
	PaymentMethod string
	EventID       *int64
	Status        Status
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// IsTerminal reports whether the entry already reached a final status.
func (e Entry) IsTerminal() bool {
	return e.Status == StatusSucceeded || e.Status == StatusFailed
}
