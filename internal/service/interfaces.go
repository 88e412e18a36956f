package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"deal_aggregator/internal/domain"
)

type Source interface {
	ID() domain.SourceID
	Name() string
	FetchDeals(ctx context.Context) ([]domain.Deal, domain.SourceStats)
}

type RunStore interface {
	Create(ctx context.Context, run *domain.AggregationRun) error
	AddSourceStats(ctx context.Context, runID string, stats []domain.SourceStats) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, run *domain.AggregationRun) error
	Close() error
}

type FallbackLoader interface {
	Load(now time.Time) ([]domain.Deal, error)
}
