// Package cache keeps the latest aggregation result for one TTL window and
// coalesces concurrent refreshes into a single pipeline run.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
)

var ErrNotFound = errors.New("cache entry not found")

// Clock returns the current time.
type Clock func() time.Time

// Entry is one cached aggregation result.
type Entry struct {
	Result      *domain.Result `json:"result"`
	GeneratedAt time.Time      `json:"generatedAt"`
	TTL         time.Duration  `json:"ttl"`
}

// Fresh reports whether the entry may still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return e.Result != nil && now.Before(e.GeneratedAt.Add(e.TTL))
}

// ExpiresAt is when the entry stops being fresh.
func (e Entry) ExpiresAt() time.Time {
	return e.GeneratedAt.Add(e.TTL)
}

type Store interface {
	Get(ctx context.Context) (*Entry, error)
	Set(ctx context.Context, entry Entry) error
}

type Aggregator interface {
	Aggregate(ctx context.Context) (*domain.Result, error)
}

type Cache struct {
	store   Store
	agg     Aggregator
	ttl     time.Duration
	clock   Clock
	group   singleflight.Group
	metrics *metrics.Registry
	logger  *slog.Logger
}

func New(store Store, agg Aggregator, ttl time.Duration, clock Clock, m *metrics.Registry, logger *slog.Logger) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{
		store:   store,
		agg:     agg,
		ttl:     ttl,
		clock:   clock,
		metrics: m,
		logger:  logger.With("component", "cache"),
	}
}

// Get serves a fresh cached result, or aggregates when the entry is missing,
// stale, or force is set. A failed refresh falls back to a stale entry if one
// exists.
func (c *Cache) Get(ctx context.Context, force bool) (*domain.Result, error) {
	entry, err := c.store.Get(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		c.logger.Warn("failed to read cache", "error", err)
		entry = nil
	}

	if entry != nil && !force && entry.Fresh(c.clock()) {
		c.metrics.ObserveCache("hit")
		return entry.Result, nil
	}

	switch {
	case entry == nil:
		c.metrics.ObserveCache("miss")
	case force:
		c.metrics.ObserveCache("forced")
	default:
		c.metrics.ObserveCache("stale")
	}

	result, err := c.Refresh(ctx)
	if err != nil {
		if entry != nil && entry.Result != nil {
			c.logger.Warn("refresh failed, serving stale result",
				"generated_at", entry.GeneratedAt,
				"error", err,
			)
			return entry.Result, nil
		}
		return nil, err
	}
	return result, nil
}

// Refresh runs the pipeline and stores its result. Concurrent callers share
// one run, which is detached from the first caller's cancellation; the
// aggregator bounds it with its own timeout.
func (c *Cache) Refresh(ctx context.Context) (*domain.Result, error) {
	ctx = context.WithoutCancel(ctx)
	v, err, shared := c.group.Do("aggregate", func() (interface{}, error) {
		result, err := c.agg.Aggregate(ctx)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}

		entry := Entry{Result: result, GeneratedAt: c.clock(), TTL: c.ttl}
		if err := c.store.Set(ctx, entry); err != nil {
			c.logger.Warn("failed to write cache", "error", err)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined in-flight refresh")
	}
	return v.(*domain.Result), nil
}

// Peek returns the current entry without refreshing.
func (c *Cache) Peek(ctx context.Context) (Entry, bool) {
	entry, err := c.store.Get(ctx)
	if err != nil || entry == nil {
		return Entry{}, false
	}
	return *entry, true
}

// Fresh reports whether e is fresh by the cache clock.
func (c *Cache) Fresh(e Entry) bool {
	return e.Fresh(c.clock())
}
