package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
	txcontext "github.com/ubcma/mp-backend/pkg/platform/tx"
)

// PostgresStore reads and updates the user_profile table owned by the portal
// frontend. This service only ever touches the role column.
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

func (s *PostgresStore) FindByID(ctx context.Context, userID string) (Profile, error) {
	const q = `SELECT user_id, name, email, role, updated_at FROM user_profile WHERE user_id = $1`
	var p Profile
	err := s.execer(ctx).QueryRowContext(ctx, q, userID).
		Scan(&p.UserID, &p.Name, &p.Email, &p.Role, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, sentinel.ErrNotFound
		}
		return Profile{}, fmt.Errorf("find user profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SetRole(ctx context.Context, userID string, role Role) error {
	const q = `UPDATE user_profile SET role = $2, updated_at = now() WHERE user_id = $1`
	res, err := s.execer(ctx).ExecContext(ctx, q, userID, role)
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user role: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
