package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/packflow/pkg/persistence/sqlbase"
	"github.com/dukex/packflow/pkg/protocol"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE records (
				model VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				doc JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (model, id)
			);

			CREATE INDEX idx_records_doc ON records USING GIN (doc jsonb_path_ops);
			CREATE INDEX idx_records_model_created_at ON records(model, created_at);
		`,
	}
}

// PostgresStore keeps records as JSONB documents. Scalar equality clauses are
// pushed down with @>; the remaining filter is matched in process. Mutations
// lock the candidate rows, so conditional updates are atomic.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ protocol.DataStore = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL and migrates the records table.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresStoreWithDB(ctx, logger, database)
}

// NewPostgresStoreWithDB uses an existing connection pool.
func NewPostgresStoreWithDB(ctx context.Context, logger *slog.Logger, database *sql.DB) (*PostgresStore, error) {
	logger = logger.With("module", "postgres_datastore")

	err := sqlbase.NewMigrationManager(logger, database, "datastore", migrations()).RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type row struct {
	id  string
	doc map[string]any
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) candidates(ctx context.Context, q querier, model string, filter map[string]any, forUpdate bool) ([]row, error) {
	containment, err := json.Marshal(equalityPart(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	query := `SELECT id, doc FROM records WHERE model = $1 AND doc @> $2::jsonb ORDER BY created_at, id`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	rows, err := q.QueryContext(ctx, query, model, string(containment))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var out []row

	for rows.Next() {
		var (
			id  string
			raw []byte
		)

		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
		}

		matched, err := Match(doc, filter)
		if err != nil {
			return nil, err
		}

		if matched {
			out = append(out, row{id: id, doc: doc})
		}
	}

	return out, rows.Err()
}

func (s *PostgresStore) FindOne(ctx context.Context, model string, filter map[string]any) (map[string]any, error) {
	records, err := s.Find(ctx, model, filter, protocol.FindOptions{Limit: 1})
	if err != nil || len(records) == 0 {
		return nil, err
	}

	return records[0], nil
}

func (s *PostgresStore) Find(ctx context.Context, model string, filter map[string]any, opts protocol.FindOptions) ([]map[string]any, error) {
	rows, err := s.candidates(ctx, s.db, model, filter, false)
	if err != nil {
		return nil, err
	}

	records := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.doc)
	}

	sortRecords(records, opts.Sort)

	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}

	return records, nil
}

func (s *PostgresStore) Create(ctx context.Context, model string, doc map[string]any) (map[string]any, error) {
	return s.insert(ctx, s.db, model, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) insert(ctx context.Context, e execer, model string, doc map[string]any) (map[string]any, error) {
	record := cloneDoc(doc)

	id := recordID(record)
	if id == "" {
		id = uuid.NewString()
	}

	record[IDField] = id

	encoded, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = e.ExecContext(ctx, `INSERT INTO records (model, id, doc) VALUES ($1, $2, $3::jsonb)`, model, id, string(encoded))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s/%s", ErrDuplicateID, model, id)
		}

		return nil, fmt.Errorf("failed to insert record: %w", err)
	}

	return record, nil
}

func (s *PostgresStore) writeDoc(ctx context.Context, tx *sql.Tx, model, id string, doc map[string]any) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET doc = $3::jsonb, updated_at = NOW() WHERE model = $1 AND id = $2`,
		model, id, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}

	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) Update(ctx context.Context, model string, filter map[string]any, patch map[string]any) (int, error) {
	updated := 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.candidates(ctx, tx, model, filter, true)
		if err != nil {
			return err
		}

		for _, r := range rows {
			next, err := ApplyPatch(r.doc, patch)
			if err != nil {
				return err
			}

			if err := s.writeDoc(ctx, tx, model, r.id, next); err != nil {
				return err
			}

			updated++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, model string, filter map[string]any) (int, error) {
	deleted := 0

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.candidates(ctx, tx, model, filter, true)
		if err != nil {
			return err
		}

		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `DELETE FROM records WHERE model = $1 AND id = $2`, model, r.id)
			if err != nil {
				return fmt.Errorf("failed to delete record %s: %w", r.id, err)
			}

			deleted++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, model string, filter map[string]any, doc map[string]any) (map[string]any, error) {
	var stored map[string]any

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := s.candidates(ctx, tx, model, filter, true)
		if err != nil {
			return err
		}

		if len(rows) > 0 {
			replacement := cloneDoc(doc)
			replacement[IDField] = rows[0].id

			if err := s.writeDoc(ctx, tx, model, rows[0].id, replacement); err != nil {
				return err
			}

			stored = replacement

			return nil
		}

		seeded := equalityPart(filter)
		for k, v := range doc {
			seeded[k] = v
		}

		stored, err = s.insert(ctx, tx, model, seeded)

		return err
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}
