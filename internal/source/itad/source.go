package itad

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	json "github.com/goccy/go-json"

	"deal_aggregator/internal/config"
	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
	"deal_aggregator/internal/normalize"
	"deal_aggregator/internal/retry"
	"deal_aggregator/internal/source"
)

const (
	SourceID   = domain.SourceITAD
	SourceName = "IsThereAnyDeal"

	steamShop = "steam"
)

// Config holds IsThereAnyDeal source configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	Country        string
	PageSize       int
	MaxPages       int
	Timeout        time.Duration
	PoliteDelay    time.Duration
	UserAgent      string
	Retry          retry.Policy
	EstimateExpiry bool
	Expiry         normalize.ExpiryTable
	Now            func() time.Time
}

// ConfigFrom builds a Config from the file configuration.
func ConfigFrom(cfg config.SourceConfig, userAgent string, table normalize.ExpiryTable) Config {
	estimate := false
	if cfg.EstimateExpiry != nil {
		estimate = *cfg.EstimateExpiry
	}
	return Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Country:        cfg.Country,
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

// Source implements service.Source for the IsThereAnyDeal listing. Without
// an API key it is disabled and contributes nothing.
type Source struct {
	client  *source.Client
	enabled bool
	opts    normalize.Options
	now     func() time.Time
	metrics *metrics.Registry
	logger  *slog.Logger
}

func New(cfg Config, logger *slog.Logger, m *metrics.Registry, opts ...source.Option) *Source {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	country := cfg.Country
	if country == "" {
		country = "US"
	}

	pageURL := func(page int) string {
		q := url.Values{}
		q.Set("key", cfg.APIKey)
		q.Set("country", country)
		q.Set("shops", steamShop)
		q.Set("limit", fmt.Sprint(cfg.PageSize))
		q.Set("offset", fmt.Sprint(page*cfg.PageSize))
		q.Set("sort", "discount")
		return cfg.BaseURL + "/v01/deals/list/?" + q.Encode()
	}

	client := source.NewClient(source.Config{
		ID:          SourceID,
		PageSize:    cfg.PageSize,
		MaxPages:    cfg.MaxPages,
		Timeout:     cfg.Timeout,
		PoliteDelay: cfg.PoliteDelay,
		UserAgent:   cfg.UserAgent,
		Retry:       cfg.Retry,
	}, pageURL, DecodePage, logger, append([]source.Option{source.WithMetrics(m)}, opts...)...)

	s := &Source{
		client:  client,
		enabled: cfg.APIKey != "",
		opts: normalize.Options{
			Expiry:         cfg.Expiry,
			EstimateExpiry: cfg.EstimateExpiry,
		},
		now:     now,
		metrics: m,
		logger:  logger.With("source", SourceID),
	}
	if !s.enabled {
		s.logger.Warn("no api key configured, source disabled")
	}
	return s
}

func (s *Source) ID() domain.SourceID {
	return SourceID
}

func (s *Source) Name() string {
	return SourceName
}

// Enabled reports whether an API key was configured.
func (s *Source) Enabled() bool {
	return s.enabled
}

// FetchDeals pages through the listing and normalizes every record.
func (s *Source) FetchDeals(ctx context.Context) ([]domain.Deal, domain.SourceStats) {
	if !s.enabled {
		return nil, domain.SourceStats{SourceID: SourceID}
	}

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

// DecodePage accepts a bare array, {"deals": [...]} or {"data": {"list": [...]}}.
// An {"error": ...} body is a permanent upstream failure.
func DecodePage(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return source.DecodeArray(trimmed)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if json.Valid(trimmed) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", source.ErrMalformedPayload, err)
	}

	if env.Error != "" {
		if env.ErrorDescription != "" {
			return nil, fmt.Errorf("%w: %s: %s", source.ErrUpstream, env.Error, env.ErrorDescription)
		}
		return nil, fmt.Errorf("%w: %s", source.ErrUpstream, env.Error)
	}
	if len(env.Deals) > 0 {
		return env.Deals, nil
	}
	if env.Data != nil {
		return env.Data.List, nil
	}
	return nil, nil
}
