package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ubcma/mp-backend/pkg/platform/sentinel"
	txcontext "github.com/ubcma/mp-backend/pkg/platform/tx"
)

// PostgresStore persists ledger entries in the transaction table. The unique
// index on stripe_payment_intent_id is what makes UpsertTerminal safe under
// concurrent webhook redelivery.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const entryColumns = `id, stripe_payment_intent_id, user_id, purchase_type,
	amount, currency, payment_method_type, event_id, status, created_at, paid_at`

// UpsertTerminal relies on a single INSERT ... ON CONFLICT statement so two
// concurrent deliveries for the same intent serialize on the row and
// converge. The CASE guards keep status transitions forward-only.
func (s *PostgresStore) UpsertTerminal(ctx context.Context, entry Entry) (Entry, error) {
	const q = `
		INSERT INTO transaction
			(stripe_payment_intent_id, user_id, purchase_type, amount, currency,
			 payment_method_type, event_id, status, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(),
			CASE WHEN $8 = 'succeeded' THEN now() END)
		ON CONFLICT (stripe_payment_intent_id) DO UPDATE SET
			status = CASE
				WHEN transaction.status = 'succeeded' THEN transaction.status
				WHEN transaction.status = 'failed' AND EXCLUDED.status <> 'succeeded' THEN transaction.status
				ELSE EXCLUDED.status
			END,
			payment_method_type = CASE
				WHEN transaction.status <> 'succeeded' AND EXCLUDED.status = 'succeeded'
					THEN EXCLUDED.payment_method_type
				ELSE transaction.payment_method_type
			END,
			paid_at = CASE
				WHEN transaction.status <> 'succeeded' AND EXCLUDED.status = 'succeeded' THEN now()
				ELSE transaction.paid_at
			END,
			updated_at = now()
		RETURNING ` + entryColumns

	row := s.execer(ctx).QueryRowContext(ctx, q,
		entry.IntentID, entry.UserID, entry.Kind, entry.Amount, entry.Currency,
		entry.PaymentMethod, entry.EventID, entry.Status)
	out, err := scanEntry(row)
	if err != nil {
		return Entry{}, fmt.Errorf("upsert ledger entry: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByIntentID(ctx context.Context, intentID string) (Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM transaction WHERE stripe_payment_intent_id = $1`
	out, err := scanEntry(s.execer(ctx).QueryRowContext(ctx, q, intentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, sentinel.ErrNotFound
		}
		return Entry{}, fmt.Errorf("find ledger entry: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Entry, error) {
	q := `SELECT ` + entryColumns + ` FROM transaction WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := s.execer(ctx).QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list ledger entries: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.IntentID, &e.UserID, &e.Kind, &e.Amount,
		&e.Currency, &e.PaymentMethod, &e.EventID, &e.Status, &e.CreatedAt, &e.PaidAt)
	return e, err
}
