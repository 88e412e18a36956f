package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"deal_aggregator/internal/config"
	"deal_aggregator/internal/dedup"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
	"deal_aggregator/internal/validate"
)

// ErrPipelinePanic wraps a panic recovered anywhere in the pipeline.
var ErrPipelinePanic = errors.New("aggregation pipeline panicked")

const (
	debugSamples       = 3
	bookkeepingTimeout = 10 * time.Second
)

type Option func(*AggregateService)

// WithClock replaces time.Now for run timestamps and fallback expiry estimates.
func WithClock(now func() time.Time) Option {
	return func(s *AggregateService) { s.now = now }
}

// WithIDGenerator replaces the run id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *AggregateService) { s.newID = newID }
}

type AggregateService struct {
	sources    []Source
	runs       RunStore
	txManager  TransactionManager
	publisher  Publisher
	fallback   FallbackLoader
	metrics    *metrics.Registry
	logger     *slog.Logger
	maxResults int
	timeout    time.Duration
	now        func() time.Time
	newID      func() string
}

// NewAggregateService wires the pipeline. runs, txManager and publisher may be nil.
func NewAggregateService(
	sources []Source,
	runs RunStore,
	txManager TransactionManager,
	publisher Publisher,
	fallback FallbackLoader,
	m *metrics.Registry,
	logger *slog.Logger,
	cfg config.AggregateConfig,
	opts ...Option,
) *AggregateService {
	s := &AggregateService{
		sources:    sources,
		runs:       runs,
		txManager:  txManager,
		publisher:  publisher,
		fallback:   fallback,
		metrics:    m,
		logger:     logger.With("component", "aggregator"),
		maxResults: cfg.MaxResults,
		timeout:    cfg.Timeout,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sourceResult struct {
	deals []domain.Deal
	stats domain.SourceStats
}

// Aggregate fetches every source concurrently, then dedups, validates, ranks
// and truncates the merged deals. It only fails on a pipeline-fatal error;
// failing sources just contribute nothing.
func (s *AggregateService) Aggregate(ctx context.Context) (result *domain.Result, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	run := &domain.AggregationRun{ID: s.newID(), StartedAt: s.now()}
	s.logger.Info("starting aggregation", "run_id", run.ID, "sources", len(s.sources))

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: %v", ErrPipelinePanic, r)
		}
		s.finish(ctx, run, result, err)
	}()

	fetched := s.fetchAll(ctx)

	debug := domain.DebugInfo{
		PerSourceCounts:  make(map[domain.SourceID]int, len(fetched)),
		PerSourceSamples: make(map[domain.SourceID][]domain.Deal, len(fetched)),
	}

	var merged []domain.Deal
	for _, f := range fetched {
		id := f.stats.SourceID
		run.Sources = append(run.Sources, f.stats)
		debug.PerSourceCounts[id] = len(f.deals)
		debug.PerSourceSamples[id] = sample(f.deals, debugSamples)
		merged = append(merged, f.deals...)
	}
	run.Merged = len(merged)

	// An interrupted run says nothing about the upstreams, so it must not
	// fall back to the bundled dataset.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("aggregation interrupted: %w", ctxErr)
	}

	degraded := false
	if len(merged) == 0 {
		merged, err = s.fallback.Load(s.now())
		if err != nil {
			return nil, fmt.Errorf("load fallback dataset: %w", err)
		}
		degraded = true
		s.logger.Warn("every source came back empty, serving fallback dataset", "count", len(merged))
	}

	deduped, dstats := dedup.Dedupe(merged)
	if dstats.NoIdentifier > 0 {
		s.logger.Warn("skipped deals without game identifier", "count", dstats.NoIdentifier)
	}
	run.Duplicates = dstats.Duplicates

	valid := validate.Filter(deduped)
	run.Invalid = len(deduped) - len(valid)

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Discount > valid[j].Discount
	})
	if s.maxResults > 0 && len(valid) > s.maxResults {
		valid = valid[:s.maxResults]
	}

	s.logger.Info("aggregation pipeline finished",
		"run_id", run.ID,
		"merged", run.Merged,
		"duplicates", run.Duplicates,
		"invalid", run.Invalid,
		"returned", len(valid),
		"degraded", degraded,
	)

	return &domain.Result{
		Success:   true,
		Count:     len(valid),
		Deals:     valid,
		Timestamp: s.now().UTC(),
		Degraded:  degraded,
		Debug:     debug,
	}, nil
}

// fetchAll runs every source concurrently. A source that panics contributes
// nothing and is reported as aborted.
func (s *AggregateService) fetchAll(ctx context.Context) []sourceResult {
	results := make([]sourceResult, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("source panicked, dropping its deals", "source", src.ID(), "panic", r)
					results[i] = sourceResult{stats: domain.SourceStats{
						SourceID:  src.ID(),
						Aborted:   true,
						LastError: fmt.Sprintf("panic: %v", r),
					}}
				}
			}()

			deals, stats := src.FetchDeals(ctx)
			if stats.SourceID == "" {
				stats.SourceID = src.ID()
			}
			results[i] = sourceResult{deals: deals, stats: stats}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (s *AggregateService) finish(ctx context.Context, run *domain.AggregationRun, result *domain.Result, err error) {
	run.FinishedAt = s.now()

	if err != nil {
		run.Error = err.Error()
		s.metrics.ObserveRun("error", run.Duration(), 0, false)
		s.logger.Error("aggregation failed", "run_id", run.ID, "error", err)
	} else {
		run.Success = true
		run.Count = result.Count
		run.Degraded = result.Degraded
		s.metrics.ObserveRun("success", run.Duration(), result.Count, result.Degraded)
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	s.recordRun(bgCtx, run)

	if run.Success && s.publisher != nil {
		if err := s.publisher.Publish(bgCtx, run); err != nil {
			s.metrics.ObservePublishFailure()
			s.logger.Warn("failed to publish refresh event", "run_id", run.ID, "error", err)
		}
	}
}

func (s *AggregateService) recordRun(ctx context.Context, run *domain.AggregationRun) {
	if s.runs == nil {
		return
	}

	save := func(txCtx context.Context) error {
		if err := s.runs.Create(txCtx, run); err != nil {
			return fmt.Errorf("create run: %w", err)
		}
		if err := s.runs.AddSourceStats(txCtx, run.ID, run.Sources); err != nil {
			return fmt.Errorf("add source stats: %w", err)
		}
		return nil
	}

	var err error
	if s.txManager != nil {
		err = s.txManager.WithTransaction(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		s.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
}

func sample(deals []domain.Deal, n int) []domain.Deal {
	if len(deals) < n {
		n = len(deals)
	}
	out := make([]domain.Deal, n)
	copy(out, deals[:n])
	return out
}
