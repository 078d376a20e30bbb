// Package bootstrap wires configuration into the concrete backends shared by
// the API and worker binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chatreel/internal/config"
	"chatreel/internal/pkg/errors"
	"chatreel/internal/pkg/logger"
	"chatreel/internal/repositories"
)

const connectTimeout = 5 * time.Second

// Ledger is a job store that can report its own health.
type Ledger interface {
	repositories.JobStore
	Ping(ctx context.Context) error
}

// OpenLedger connects the configured job store and applies migrations when
// asked to. The returned func releases it.
func OpenLedger(ctx context.Context, cfg config.LedgerConfig, log *logger.Logger) (Ledger, func(), error) {
	if cfg.Driver == config.LedgerMemory {
		log.Warn("using in-memory ledger; jobs are lost on restart")
		return repositories.NewMemoryJobRepository(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.CodeValidation, "bootstrap.ledger", "parse DATABASE_URL")
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap.ledger", "ping postgres")
	}
	log.Info("PostgreSQL connected")

	if cfg.RunMigrations {
		if err := repositories.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "bootstrap.ledger", "run migrations")
		}
		log.Info("migrations applied")
	}

	return repositories.NewJobRepository(pool), pool.Close, nil
}
