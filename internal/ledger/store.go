package ledger

import "context"

// Store persists ledger entries. UpsertTerminal is the idempotency boundary
// for the whole pipeline: concurrent deliveries of the same intent converge
// on one row.
type Store interface {
	// UpsertTerminal inserts the entry with its terminal status, or if a row
	// already exists for entry.IntentID, advances that row forward
	// (pending -> failed -> succeeded). It never moves a row backward:
	// upserting failed over succeeded leaves the row succeeded.
	UpsertTerminal(ctx context.Context, entry Entry) (Entry, error)
	FindByIntentID(ctx context.Context, intentID string) (Entry, error)
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
}
