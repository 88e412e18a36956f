// Package breaker guards a deal source with a circuit breaker that spans
// aggregation runs, so an upstream that keeps failing is skipped for a while.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"deal_aggregator/internal/config"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
)

var errSourceFailed = errors.New("source failed")

// Source is the method set shared with service.Source.
type Source interface {
	ID() domain.SourceID
	Name() string
	FetchDeals(ctx context.Context) ([]domain.Deal, domain.SourceStats)
}

// Config controls when the breaker opens.
type Config struct {
	// ConsecutiveFailures trips the breaker; 0 disables it.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

func ConfigFrom(cfg config.BreakerConfig) Config {
	return Config{
		ConsecutiveFailures: cfg.ConsecutiveFailures,
		OpenTimeout:         cfg.OpenTimeout,
	}
}

type fetchResult struct {
	deals []domain.Deal
	stats domain.SourceStats
}

// GuardedSource wraps a Source. A run counts as a failure when the first page
// could not be fetched.
type GuardedSource struct {
	src    Source
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// Wrap returns src unchanged when the breaker is disabled.
func Wrap(src Source, cfg Config, m *metrics.Registry, logger *slog.Logger) Source {
	if cfg.ConsecutiveFailures == 0 {
		return src
	}

	logger = logger.With("source", src.ID())
	name := string(src.ID())
	threshold := cfg.ConsecutiveFailures

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.SetBreakerState(name, stateValue(to))
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	}

	cb := gobreaker.NewCircuitBreaker(settings)
	m.SetBreakerState(name, stateValue(cb.State()))

	return &GuardedSource{src: src, cb: cb, logger: logger}
}

func (g *GuardedSource) ID() domain.SourceID { return g.src.ID() }

func (g *GuardedSource) Name() string { return g.src.Name() }

// State is the breaker state, for health reporting.
func (g *GuardedSource) State() gobreaker.State { return g.cb.State() }

func (g *GuardedSource) FetchDeals(ctx context.Context) ([]domain.Deal, domain.SourceStats) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		deals, stats := g.src.FetchDeals(ctx)
		out := fetchResult{deals: deals, stats: stats}
		// a cancelled caller is not an upstream failure
		if stats.FirstPageFailed && ctx.Err() == nil {
			return out, errSourceFailed
		}
		return out, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		g.logger.Warn("circuit breaker open, skipping source")
		return nil, domain.SourceStats{
			SourceID:    g.src.ID(),
			BreakerOpen: true,
			LastError:   fmt.Sprintf("circuit breaker: %v", err),
		}
	}

	out := res.(fetchResult)
	return out.deals, out.stats
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
