// Package api serves the aggregated deal list over HTTP.
package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"deal_aggregator/internal/cache"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
)

// DealCache is the cached view of the aggregation pipeline.
type DealCache interface {
	Get(ctx context.Context, force bool) (*domain.Result, error)
	Peek(ctx context.Context) (cache.Entry, bool)
	Fresh(e cache.Entry) bool
}

// RunLister exposes recent aggregation runs.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]domain.AggregationRun, error)
}

type Config struct {
	// RefreshInterval is the minimum spacing between client-forced refreshes.
	RefreshInterval time.Duration
	SearchLimit     int
	RunsLimit       int
}

type Handler struct {
	deals   DealCache
	runs    RunLister
	refresh *rate.Limiter
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
}

// NewRouter builds the gin engine. runs and m may be nil; the matching
// endpoints are then not mounted.
func NewRouter(deals DealCache, runs RunLister, m *metrics.Registry, cfg Config, logger *slog.Logger) *gin.Engine {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
	if cfg.RunsLimit <= 0 {
		cfg.RunsLimit = 20
	}

	limit := rate.Inf
	if cfg.RefreshInterval > 0 {
		limit = rate.Every(cfg.RefreshInterval)
	}

	h := &Handler{
		deals:   deals,
		runs:    runs,
		refresh: rate.NewLimiter(limit, 1),
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With("component", "api"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recoveryMiddleware(h.logger))
	router.Use(loggerMiddleware(h.logger))

	router.GET("/deals", h.getDeals)
	router.GET("/deals/search", h.searchDeals)
	router.GET("/health", h.health)
	if runs != nil {
		router.GET("/runs", h.listRuns)
	}
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	return router
}
