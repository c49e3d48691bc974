package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS optimization_runs (
    id          uuid PRIMARY KEY,
    created_at  timestamptz NOT NULL,
    mode        text NOT NULL,
    duration_ms bigint NOT NULL DEFAULT 0,
    parameters  jsonb NOT NULL,
    results     jsonb NOT NULL
);
CREATE INDEX IF NOT EXISTS optimization_runs_created_at_idx ON optimization_runs (created_at DESC);
`

// PostgresRunStore keeps runs in the optimization_runs table.
type PostgresRunStore struct {
	pool  *pgxpool.Pool
	limit int
}

// OpenPostgresRunStore connects to dsn and ensures the schema exists.
func OpenPostgresRunStore(ctx context.Context, dsn string, limit int) (*PostgresRunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresRunStore{pool: pool, limit: limit}
	if s.limit <= 0 {
		s.limit = DefaultHistoryLimit
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the runs table if needed.
func (s *PostgresRunStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, runsSchema); err != nil {
		return fmt.Errorf("migrate optimization_runs: %w", err)
	}
	return nil
}

// SaveRun inserts or replaces a run and deletes the oldest runs beyond the
// configured limit in the same transaction.
func (s *PostgresRunStore) SaveRun(ctx context.Context, run Run) error {
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO optimization_runs (id, created_at, mode, duration_ms, parameters, results)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
			  created_at = EXCLUDED.created_at, mode = EXCLUDED.mode, duration_ms = EXCLUDED.duration_ms,
			  parameters = EXCLUDED.parameters, results = EXCLUDED.results`,
			run.ID, run.CreatedAt, run.Mode, run.DurationMs, params, results,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			DELETE FROM optimization_runs WHERE id IN (
			  SELECT id FROM optimization_runs ORDER BY created_at DESC, id DESC OFFSET $1)`,
			s.limit,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *PostgresRunStore) GetRun(ctx context.Context, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrRunNotFound
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id::text, created_at, mode, duration_ms, parameters, results
		FROM optimization_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("load run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, most recent first.
func (s *PostgresRunStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id::text, created_at, mode, duration_ms, parameters, results
		FROM optimization_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *PostgresRunStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRun(row pgx.Row) (Run, error) {
	var (
		run            Run
		params, result []byte
	)
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.Mode, &run.DurationMs, &params, &result); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal(params, &run.Parameters); err != nil {
		return Run{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal(result, &run.Results); err != nil {
		return Run{}, fmt.Errorf("decode results: %w", err)
	}
	run.CreatedAt = run.CreatedAt.UTC()
	return run, nil
}
