// File: cmd/providers.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/internal/config"
	"github.com/xkilldash9x/taskpilot/internal/ledger"
	"github.com/xkilldash9x/taskpilot/internal/observability"
)

// ledgerProvider opens the persistent ledger store. Tests inject a fake
// instead of a live database.
type ledgerProvider interface {
	// Create returns the store and a cleanup function releasing its
	// resources.
	Create(ctx context.Context, cfg config.Interface) (ledger.Store, func(), error)
}

type postgresLedgerProvider struct{}

func newLedgerProvider() ledgerProvider {
	return postgresLedgerProvider{}
}

// Create connects to PostgreSQL and makes sure the ledger table exists.
func (postgresLedgerProvider) Create(ctx context.Context, cfg config.Interface) (ledger.Store, func(), error) {
	logger := observability.GetLogger()
	if !cfg.Ledger().Enabled {
		return nil, nil, ledger.ErrNoStore
	}
	if cfg.Ledger().URL == "" {
		return nil, nil, fmt.Errorf("ledger URL is not configured (TASKPILOT_LEDGER_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.Ledger().URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping ledger database: %w", err)
	}

	store := ledger.NewPostgresStore(pool, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("Ledger connection pool closed.", zap.String("component", "ledger"))
	}
	return store, cleanup, nil
}
