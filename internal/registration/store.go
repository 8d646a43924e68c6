package registration

import "context"

// Store persists registrations. InsertIfAbsent is idempotent on the
// (user, event) unique pair; CheckIn is idempotent on repeat scans.
type Store interface {
	// InsertIfAbsent creates the registration unless one already exists for
	// the (user, event) pair. It returns the surviving row and whether this
	// call created it.
	InsertIfAbsent(ctx context.Context, reg Registration) (Registration, bool, error)
	CountByEvent(ctx context.Context, eventID int64) (int, error)
	FindByUserEvent(ctx context.Context, userID string, eventID int64) (Registration, error)
	FindByTicketCode(ctx context.Context, code string) (Registration, error)
	// SetTicketCode attaches the code and marks the row registered.
	SetTicketCode(ctx context.Context, userID string, eventID int64, code string) error
	// CheckIn transitions registered -> checkedIn. A second call for the
	// same code returns the existing row, reporting alreadyCheckedIn, and
	// leaves CheckedInAt untouched.
	CheckIn(ctx context.Context, code string) (reg Registration, alreadyCheckedIn bool, err error)
}
