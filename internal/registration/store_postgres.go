package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
	txcontext "github.com/ubcma/mp-backend/pkg/platform/tx"
)

// PostgresStore persists registrations in the event_registration table with
// unique indexes on (user_id, event_id) and ticket_code.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const regColumns = `id, user_id, event_id, status, ticket_code,
	stripe_payment_intent_id, checked_in_at, created_at, updated_at`

func (s *PostgresStore) InsertIfAbsent(ctx context.Context, reg Registration) (Registration, bool, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Status == "" {
		reg.Status = StatusIncomplete
	}

	// ON CONFLICT DO NOTHING returns no row on conflict, so fall through to
	// a read of the surviving registration.
	const q = `
		INSERT INTO event_registration
			(id, user_id, event_id, status, ticket_code, stripe_payment_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (user_id, event_id) DO NOTHING
		RETURNING ` + regColumns

	row := s.execer(ctx).QueryRowContext(ctx, q,
		reg.ID, reg.UserID, reg.EventID, reg.Status, reg.TicketCode, reg.IntentID)
	inserted, err := scanRegistration(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Registration{}, false, fmt.Errorf("insert registration: %w", err)
	}

	existing, err := s.FindByUserEvent(ctx, reg.UserID, reg.EventID)
	if err != nil {
		return Registration{}, false, fmt.Errorf("insert registration: %w", err)
	}
	return existing, false, nil
}

func (s *PostgresStore) CountByEvent(ctx context.Context, eventID int64) (int, error) {
	const q = `SELECT COUNT(*) FROM event_registration WHERE event_id = $1`
	var count int
	if err := s.execer(ctx).QueryRowContext(ctx, q, eventID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) FindByUserEvent(ctx context.Context, userID string, eventID int64) (Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registration WHERE user_id = $1 AND event_id = $2`
	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, userID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Registration{}, sentinel.ErrNotFound
		}
		return Registration{}, fmt.Errorf("find registration: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) FindByTicketCode(ctx context.Context, code string) (Registration, error) {
	q := `SELECT ` + regColumns + ` FROM event_registration WHERE ticket_code = $1`
	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Registration{}, sentinel.ErrNotFound
		}
		return Registration{}, fmt.Errorf("find registration by ticket code: %w", err)
	}
	return reg, nil
}

func (s *PostgresStore) SetTicketCode(ctx context.Context, userID string, eventID int64, code string) error {
	const q = `
		UPDATE event_registration
		SET ticket_code = $3,
			status = CASE WHEN status = 'incomplete' THEN 'registered' ELSE status END,
			updated_at = now()
		WHERE user_id = $1 AND event_id = $2`
	res, err := s.execer(ctx).ExecContext(ctx, q, userID, eventID, code)
	if err != nil {
		return fmt.Errorf("set ticket code: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ticket code: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// CheckIn updates only rows not yet checked in, so the checked_in_at
// timestamp survives repeat scans unchanged.
func (s *PostgresStore) CheckIn(ctx context.Context, code string) (Registration, bool, error) {
	const q = `
		UPDATE event_registration
		SET status = 'checkedIn', checked_in_at = now(), updated_at = now()
		WHERE ticket_code = $1 AND status <> 'checkedIn'
		RETURNING ` + regColumns

	reg, err := scanRegistration(s.execer(ctx).QueryRowContext(ctx, q, code))
	if err == nil {
		return reg, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Registration{}, false, fmt.Errorf("check in: %w", err)
	}

	existing, err := s.FindByTicketCode(ctx, code)
	if err != nil {
		return Registration{}, false, err
	}
	return existing, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row rowScanner) (Registration, error) {
	var r Registration
	err := row.Scan(&r.ID, &r.UserID, &r.EventID, &r.Status, &r.TicketCode,
		&r.IntentID, &r.CheckedInAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
