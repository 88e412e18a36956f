package cheapshark

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"deal_aggregator/internal/config"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
	"deal_aggregator/internal/normalize"
	"deal_aggregator/internal/retry"
	"deal_aggregator/internal/source"
)

const (
	SourceID   = domain.SourceCheapShark
	SourceName = "CheapShark"
)

// Config holds CheapShark source configuration.
type Config struct {
	BaseURL        string
	PageSize       int
	MaxPages       int
	Timeout        time.Duration
	PoliteDelay    time.Duration
	UserAgent      string
	Retry          retry.Policy
	EstimateExpiry bool
	Expiry         normalize.ExpiryTable
	// Now is the clock used for expiry estimates. Defaults to time.Now.
	Now func() time.Time
}

// ConfigFrom builds a Config from the file configuration.
func ConfigFrom(cfg config.SourceConfig, userAgent string, table normalize.ExpiryTable) Config {
	estimate := true
	if cfg.EstimateExpiry != nil {
		estimate = *cfg.EstimateExpiry
	}
	return Config{
		BaseURL:        cfg.BaseURL,
		PageSize:       cfg.PageSize,
		MaxPages:       cfg.MaxPages,
		Timeout:        cfg.Timeout,
		PoliteDelay:    cfg.PoliteDelay,
		UserAgent:      userAgent,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			CapDelay:    cfg.Retry.CapDelay,
		},
		EstimateExpiry: estimate,
		Expiry:         table,
	}
}

// Source implements service.Source for the CheapShark deals API.
type Source struct {
	client  *source.Client
	opts    normalize.Options
	now     func() time.Time
	metrics *metrics.Registry
	logger  *slog.Logger
}

// New creates a new CheapShark source. Options are passed to the page client.
func New(cfg Config, logger *slog.Logger, m *metrics.Registry, opts ...source.Option) *Source {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	pageURL := func(page int) string {
		q := url.Values{}
		q.Set("storeID", steamStoreID)
		q.Set("pageNumber", fmt.Sprint(page))
		q.Set("pageSize", fmt.Sprint(cfg.PageSize))
		q.Set("sortBy", "Deal Rating")
		return cfg.BaseURL + "/deals?" + q.Encode()
	}

	client := source.NewClient(source.Config{
		ID:          SourceID,
		PageSize:    cfg.PageSize,
		MaxPages:    cfg.MaxPages,
		Timeout:     cfg.Timeout,
		PoliteDelay: cfg.PoliteDelay,
		UserAgent:   cfg.UserAgent,
		Retry:       cfg.Retry,
	}, pageURL, source.DecodeArray, logger, append([]source.Option{source.WithMetrics(m)}, opts...)...)

	return &Source{
		client: client,
		opts: normalize.Options{
			Expiry:         cfg.Expiry,
			EstimateExpiry: cfg.EstimateExpiry,
		},
		now:     now,
		metrics: m,
		logger:  logger.With("source", SourceID),
	}
}

func (s *Source) ID() domain.SourceID {
	return SourceID
}

func (s *Source) Name() string {
	return SourceName
}

// FetchDeals pages through the listing and normalizes every record.
func (s *Source) FetchDeals(ctx context.Context) ([]domain.Deal, domain.SourceStats) {
	raws, stats := s.client.FetchAll(ctx)

	opts := s.opts
	opts.Now = s.now()

	deals := source.Transform(raws, func(rec Record) (domain.Deal, error) {
		return Normalize(rec, opts)
	}, &stats, s.metrics, s.logger)

	s.logger.Info("normalized deals",
		"fetched", stats.Fetched,
		"normalized", stats.Normalized,
		"skipped", stats.Skipped,
	)

	return deals, stats
}
