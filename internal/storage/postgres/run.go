package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"deal_aggregator/internal/domain"
)

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run *domain.AggregationRun) error {
	query := `
		INSERT INTO aggregation_runs (
			id, started_at, finished_at, success, merged, duplicates,
			invalid, count, degraded, error
		) VALUES (
			:id, :started_at, :finished_at, :success, :merged, :duplicates,
			:invalid, :count, :degraded, :error
		)`

	_, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, run)
	return err
}

type sourceStatsRow struct {
	RunID string `db:"run_id"`
	domain.SourceStats
	DurationMs int64 `db:"duration_ms"`
}

func (s *RunStore) AddSourceStats(ctx context.Context, runID string, stats []domain.SourceStats) error {
	if len(stats) == 0 {
		return nil
	}

	rows := make([]sourceStatsRow, len(stats))
	for i, st := range stats {
		rows[i] = sourceStatsRow{RunID: runID, SourceStats: st, DurationMs: st.Duration.Milliseconds()}
	}

	query := `
		INSERT INTO aggregation_source_stats (
			run_id, source_id, pages, attempts, fetched, normalized, skipped,
			first_page_failed, aborted, breaker_open, last_error, duration_ms
		) VALUES (
			:run_id, :source_id, :pages, :attempts, :fetched, :normalized, :skipped,
			:first_page_failed, :aborted, :breaker_open, :last_error, :duration_ms
		)`

	_, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), query, rows)
	return err
}

// ListRecent returns the newest runs first, each with its per-source stats.
func (s *RunStore) ListRecent(ctx context.Context, limit int) ([]domain.AggregationRun, error) {
	var runs []domain.AggregationRun
	query := `
		SELECT id, started_at, finished_at, success, merged, duplicates,
			invalid, count, degraded, error
		FROM aggregation_runs
		ORDER BY started_at DESC
		LIMIT $1`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &runs, query, limit); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	if len(runs) == 0 {
		return runs, nil
	}

	ids := make([]string, len(runs))
	byID := make(map[string]int, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
		byID[r.ID] = i
	}

	var rows []sourceStatsRow
	statsQuery := `
		SELECT run_id, source_id, pages, attempts, fetched, normalized, skipped,
			first_page_failed, aborted, breaker_open, last_error, duration_ms
		FROM aggregation_source_stats
		WHERE run_id = ANY($1)
		ORDER BY run_id, source_id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, statsQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("select source stats: %w", err)
	}

	for _, row := range rows {
		st := row.SourceStats
		st.Duration = time.Duration(row.DurationMs) * time.Millisecond
		i := byID[row.RunID]
		runs[i].Sources = append(runs[i].Sources, st)
	}

	return runs, nil
}
