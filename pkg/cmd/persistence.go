package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/packflow/pkg/datastore"
	"github.com/dukex/packflow/pkg/ingest"
	"github.com/dukex/packflow/pkg/persistence"
	"github.com/dukex/packflow/pkg/persistence/file"
	"github.com/dukex/packflow/pkg/persistence/postgresql"
	"github.com/dukex/packflow/pkg/protocol"
)

// ErrUnsupportedProvider is returned for a URL scheme or provider name no
// implementation exists for.
var ErrUnsupportedProvider = errors.New("unsupported provider")

func parseProvider(url string) string {
	provider, _, found := strings.Cut(url, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgres"
	default:
		return provider
	}
}

// NewPersistence opens the run ledger. postgres:// URLs use PostgreSQL;
// anything else is a directory for the file store.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(databaseURL), nil
	default:
		return nil, fmt.Errorf("%w: run ledger %q", ErrUnsupportedProvider, databaseURL)
	}
}

// NewDataStore opens the store actions and seeds write to. An empty URL or
// "memory" keeps records in process.
func NewDataStore(ctx context.Context, logger *slog.Logger, storeURL string) (protocol.DataStore, func() error, error) {
	if storeURL == "" || storeURL == "memory" {
		return datastore.NewMemoryStore(), func() error { return nil }, nil
	}

	switch parseProvider(storeURL) {
	case "postgres":
		store, err := datastore.NewPostgresStore(ctx, logger, storeURL)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: data store %q", ErrUnsupportedProvider, storeURL)
	}
}

// NewLedger opens the ingestion dedup ledger.
func NewLedger(ctx context.Context, logger *slog.Logger, ledgerURL string, ttl time.Duration) (ingest.Ledger, func() error, error) {
	if ledgerURL == "" || ledgerURL == "memory" {
		return ingest.NewMemoryLedger(0, ttl), func() error { return nil }, nil
	}

	switch parseProvider(ledgerURL) {
	case "redis", "rediss":
		ledger, err := ingest.NewRedisLedgerFromURL(ctx, ledgerURL, ttl)
		if err != nil {
			return nil, nil, err
		}

		return ledger, ledger.Close, nil
	case "postgres":
		ledger, err := ingest.NewPostgresLedger(ctx, logger, ledgerURL, ttl)
		if err != nil {
			return nil, nil, err
		}

		return ledger, ledger.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: ledger %q", ErrUnsupportedProvider, ledgerURL)
	}
}
