package domain

import "time"

// SourceStats holds statistics about one source fetch within a run.
type SourceStats struct {
	SourceID        SourceID      `db:"source_id" json:"sourceId"`
	Pages           int           `db:"pages" json:"pages"`
	Attempts        int           `db:"attempts" json:"attempts"`
	Fetched         int           `db:"fetched" json:"fetched"`
	Normalized      int           `db:"normalized" json:"normalized"`
	Skipped         int           `db:"skipped" json:"skipped"`
	FirstPageFailed bool          `db:"first_page_failed" json:"firstPageFailed"`
	Aborted         bool          `db:"aborted" json:"aborted"`
	BreakerOpen     bool          `db:"breaker_open" json:"breakerOpen"`
	LastError       string        `db:"last_error" json:"lastError,omitempty"`
	Duration        time.Duration `db:"-" json:"duration"`
}

// Failed reports whether the source produced nothing because of an error.
func (s SourceStats) Failed() bool {
	return s.FirstPageFailed || s.BreakerOpen
}

// AggregationRun is the metadata of one pipeline execution. Deals themselves are never stored.
type AggregationRun struct {
	ID         string        `db:"id" json:"id"`
	StartedAt  time.Time     `db:"started_at" json:"startedAt"`
	FinishedAt time.Time     `db:"finished_at" json:"finishedAt"`
	Success    bool          `db:"success" json:"success"`
	Merged     int           `db:"merged" json:"merged"`
	Duplicates int           `db:"duplicates" json:"duplicates"`
	Invalid    int           `db:"invalid" json:"invalid"`
	Count      int           `db:"count" json:"count"`
	Degraded   bool          `db:"degraded" json:"degraded"`
	Error      string        `db:"error" json:"error,omitempty"`
	Sources    []SourceStats `db:"-" json:"sources"`
}

// Duration is the wall time of the run.
func (r AggregationRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
