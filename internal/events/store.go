package events

import "context"

type Store interface {
	FindByID(ctx context.Context, eventID int64) (Event, error)
}
