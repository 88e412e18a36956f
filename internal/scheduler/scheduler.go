package scheduler

import (
	"context"
	"log/slog"
	"time"

	"deal_aggregator/internal/domain"
)

// Refresher rebuilds the cached deal list.
type Refresher interface {
	Refresh(ctx context.Context) (*domain.Result, error)
}

type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// NewScheduler refreshes every interval. Each refresh is bounded by timeout when positive.
func NewScheduler(refresher Refresher, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.runRefresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

func (s *Scheduler) runRefresh(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.refresher.Refresh(ctx)
	if err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
		return
	}
	s.logger.Info("scheduled refresh finished", "count", result.Count, "degraded", result.Degraded)
}
