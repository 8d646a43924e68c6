package users

import "context"

// Store is interface-driven to keep the domain logic testable and to allow
// swapping in-memory and PostgreSQL persistence without rewiring business
// code.
type Store interface {
	FindByID(ctx context.Context, userID string) (Profile, error)
	SetRole(ctx context.Context, userID string, role Role) error
}
