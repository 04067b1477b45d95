package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carmarket/crawler/internal/store"
)

// RunStore implements store.RunRepository on Postgres.
type RunStore struct {
	pool db
}

// NewRunStore connects a RunStore using the given pool config.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	pool, err := NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewRunStoreWithPool(pool db) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &RunStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// StartRun records a new run in the running state. Replays of the same id
// only refresh the status.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, startURL string, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, start_url, status, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status;`
	if _, err := s.pool.Exec(ctx, query, id, startURL, store.RunRunning, startedAt); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// CompleteRun finalizes a run with its outcome and counters.
func (s *RunStore) CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status store.RunStatus, pages int, cars int64, errMsg *string) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, pages_scraped = $3,
			total_cars = $4, error_message = $5
		WHERE id = $6;`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, pages, cars, errMsg, id); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

const runColumns = `id, start_url, status, pages_scraped, total_cars, error_message, started_at, finished_at`

// GetRun retrieves a single run by id.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.CrawlRun, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE id = $1;`
	var run store.CrawlRun
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.StartURL, &run.Status, &run.Pages, &run.Cars,
		&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CrawlRun{}, store.ErrNotFound
		}
		return store.CrawlRun{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, optionally filtered by status.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.CrawlRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.CrawlRun
	for rows.Next() {
		var run store.CrawlRun
		err := rows.Scan(&run.ID, &run.StartURL, &run.Status, &run.Pages,
			&run.Cars, &run.ErrorMessage, &run.StartedAt, &run.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
