package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, eventID int64) (Event, error) {
	const q = `SELECT id, title, starts_at, ends_at, location, price_cents, attendee_cap
		FROM event WHERE id = $1`
	var e Event
	err := s.db.QueryRowContext(ctx, q, eventID).
		Scan(&e.ID, &e.Title, &e.StartsAt, &e.EndsAt, &e.Location, &e.PriceCents, &e.AttendeeCap)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, sentinel.ErrNotFound
		}
		return Event{}, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}
