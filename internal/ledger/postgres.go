// File: internal/ledger/postgres.go
package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the store can be mocked in tests.
type DBPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlCreateLedger = `
        CREATE TABLE IF NOT EXISTS reward_ledger (
            id          UUID PRIMARY KEY,
            session_id  TEXT NOT NULL,
            amount      INTEGER NOT NULL CHECK (amount > 0),
            credited_at TIMESTAMPTZ NOT NULL,
            day         DATE NOT NULL
        );
    `
	sqlCreateLedgerDayIndex = `CREATE INDEX IF NOT EXISTS reward_ledger_day_idx ON reward_ledger (day);`

	sqlInsertCredit = `
        INSERT INTO reward_ledger (id, session_id, amount, credited_at, day)
        VALUES ($1, $2, $3, $4, $5::date);
    `
	sqlTotals = `
        SELECT
            COALESCE(SUM(amount) FILTER (WHERE day = $1::date), 0),
            COALESCE(SUM(amount), 0)
        FROM reward_ledger;
    `
)

// PostgresStore keeps every credited reward in PostgreSQL.
type PostgresStore struct {
	pool DBPool
	log  *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps pool. The caller owns the pool.
func NewPostgresStore(pool DBPool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, log: logger.Named("ledger_store")}
}

// EnsureSchema creates the ledger table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateLedger, sqlCreateLedgerDayIndex} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create ledger schema: %w", err)
		}
	}
	return nil
}

// Record inserts one credit.
func (s *PostgresStore) Record(ctx context.Context, e Entry) error {
	tag, err := s.pool.Exec(ctx, sqlInsertCredit, e.ID.String(), e.SessionID, e.Amount, e.CreditedAt.UTC(), e.Day)
	if err != nil {
		return fmt.Errorf("failed to insert credit: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("unexpected rows affected inserting credit: %d", tag.RowsAffected())
	}
	s.log.Debug("Credit recorded.", zap.String("id", e.ID.String()), zap.Int("amount", e.Amount))
	return nil
}

// Totals sums credits for day (YYYY-MM-DD) and overall.
func (s *PostgresStore) Totals(ctx context.Context, day string) (Totals, error) {
	var today, total int64
	if err := s.pool.QueryRow(ctx, sqlTotals, day).Scan(&today, &total); err != nil {
		return Totals{}, fmt.Errorf("failed to query ledger totals: %w", err)
	}
	return Totals{Day: day, Today: int(today), Total: int(total)}, nil
}
