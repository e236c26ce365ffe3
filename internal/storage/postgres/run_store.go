// Package postgres provides the Postgres-backed run ledger.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/causas-crawler/internal/runs"
)

// Config controls the connection pool used for the ledger.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore implements runs.Repository on the crawl_runs table.
type RunStore struct {
	pool pool
}

// NewRunStore connects a pgx pool for the ledger.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("ledger dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p}, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// StartRun records a new running run.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, nationalID, role string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, national_id, role, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, query, id, nationalID, role, startedAt, runs.StatusRunning); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// AddCounts increments the case counters of a run.
func (s *RunStore) AddCounts(ctx context.Context, id uuid.UUID, found, ok, failed int64) error {
	query := `
		UPDATE crawl_runs
		SET cases_found = cases_found + $1,
			cases_ok = cases_ok + $2,
			cases_failed = cases_failed + $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, found, ok, failed, id); err != nil {
		return fmt.Errorf("failed to add run counts: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(ctx context.Context, id uuid.UUID, c runs.Completion) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	if _, err := s.pool.Exec(ctx, query, c.FinishedAt, c.Status, c.ErrMsg, id); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

const runColumns = `id, national_id, role, started_at, finished_at, status, cases_found, cases_ok, cases_failed, error_message`

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (runs.Run, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return runs.Run{}, runs.ErrNotFound
		}
		return runs.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by litigant.
func (s *RunStore) ListRuns(ctx context.Context, nationalID string, limit, offset int) ([]runs.Run, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs
		WHERE ($1 = '' OR national_id = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, nationalID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []runs.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (runs.Run, error) {
	var run runs.Run
	var status string
	err := row.Scan(
		&run.ID,
		&run.NationalID,
		&run.Role,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.CasesFound,
		&run.CasesOK,
		&run.CasesFailed,
		&run.ErrorMessage,
	)
	run.Status = runs.Status(status)
	return run, err
}
