package registration

import "time"

// Status tracks a registration from creation through event entry.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusRegistered Status = "registered"
	StatusCheckedIn  Status = "checkedIn"
)

// Registration is one user's seat at one event. The (UserID, EventID) pair
// is unique: a duplicate webhook delivery lands on the existing row instead
// of creating a second seat.
type Registration struct {
	ID          string
	UserID      string
	EventID     int64
	Status      Status
	TicketCode  *string
	IntentID    *string
	CheckedInAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
