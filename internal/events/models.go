package events

import "time"

// Event is the read-only slice of the event table the payment pipeline
// consumes. Event CRUD stays in the portal frontend service.
type Event struct {
	ID       int64
	Title    string
	StartsAt time.Time
	EndsAt   time.Time
	Location string
	// PriceCents is nil for a free event, in minor currency units otherwise.
	PriceCents *int64
	// AttendeeCap is nil for unbounded capacity.
	AttendeeCap *int
}

// IsFree reports whether the event has no price configured.
func (e Event) IsFree() bool {
	return e.PriceCents == nil
}
