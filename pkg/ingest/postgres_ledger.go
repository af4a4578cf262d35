package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/packflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

func ledgerMigrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE processed_events (
				key VARCHAR(512) PRIMARY KEY,
				claimed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_processed_events_claimed_at ON processed_events(claimed_at);
		`,
	}
}

// PostgresLedger keeps the ledger in PostgreSQL; the primary key makes
// concurrent claims of the same event race-free.
type PostgresLedger struct {
	db     *sql.DB
	logger *slog.Logger
	ttl    time.Duration
}

// NewPostgresLedger opens the database and applies the ledger migrations.
func NewPostgresLedger(ctx context.Context, logger *slog.Logger, databaseURL string, ttl time.Duration) (*PostgresLedger, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := sqlbase.NewMigrationManager(logger, db, "ledger", ledgerMigrations()).RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run ledger migrations: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}

	return &PostgresLedger{db: db, logger: logger.With("module", "postgres_ledger"), ttl: ttl}, nil
}

func (l *PostgresLedger) Claim(ctx context.Context, key string) (bool, error) {
	// Expired claims are replaced rather than kept forever.
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO processed_events (key, claimed_at) VALUES ($1, NOW())
		ON CONFLICT (key) DO UPDATE SET claimed_at = NOW()
		WHERE processed_events.claimed_at < NOW() - make_interval(secs => $2)
	`, key, l.ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim event %s: %w", key, err)
	}

	return affected == 1, nil
}

func (l *PostgresLedger) Release(ctx context.Context, key string) error {
	if _, err := l.db.ExecContext(ctx, "DELETE FROM processed_events WHERE key = $1", key); err != nil {
		return fmt.Errorf("failed to release event %s: %w", key, err)
	}

	return nil
}

// Purge deletes claims older than the TTL and returns how many were removed.
func (l *PostgresLedger) Purge(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx,
		"DELETE FROM processed_events WHERE claimed_at < NOW() - make_interval(secs => $1)", l.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to purge ledger: %w", err)
	}

	return res.RowsAffected()
}

func (l *PostgresLedger) Close() error {
	return l.db.Close()
}
