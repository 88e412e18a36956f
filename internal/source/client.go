// Package source implements paginated fetching from one upstream deal
// listing with retry, backoff and pagination termination rules.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
	"deal_aggregator/internal/retry"
)

const maxBodyBytes = 32 << 20

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrUpstream         = errors.New("upstream reported an error")
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

// Retryable reports whether the same page should be requested again.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return "execute request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var transportErr *transportError
	return errors.As(err, &transportErr)
}

// PageURL builds the request URL of a zero-based page.
type PageURL func(page int) string

// PageDecoder extracts the records of one page body. Returning no records
// ends pagination normally.
type PageDecoder func(body []byte) ([]json.RawMessage, error)

// DecodeArray treats the body as a bare JSON array. Valid JSON that is not an
// array is end of data; invalid JSON is ErrMalformedPayload.
func DecodeArray(body []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		if json.Valid(body) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return records, nil
}

// Config holds one upstream's pagination and retry settings.
type Config struct {
	ID          domain.SourceID
	PageSize    int
	MaxPages    int
	Timeout     time.Duration
	PoliteDelay time.Duration
	UserAgent   string
	Retry       retry.Policy
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithSleep replaces the delay used for backoff and polite pauses.
func WithSleep(sleep retry.SleepFunc) Option {
	return func(cl *Client) { cl.sleep = sleep }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(cl *Client) { cl.metrics = m }
}

// Client fetches every page of one upstream. It never fails: problems are
// logged and summarised in the returned SourceStats.
type Client struct {
	id          domain.SourceID
	httpClient  *http.Client
	pageURL     PageURL
	decode      PageDecoder
	maxPages    int
	politeDelay time.Duration
	userAgent   string
	policy      retry.Policy
	sleep       retry.SleepFunc
	metrics     *metrics.Registry
	logger      *slog.Logger
}

func NewClient(cfg Config, pageURL PageURL, decode PageDecoder, logger *slog.Logger, opts ...Option) *Client {
	if decode == nil {
		decode = DecodeArray
	}
	c := &Client{
		id: cfg.ID,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		pageURL:     pageURL,
		decode:      decode,
		maxPages:    cfg.MaxPages,
		politeDelay: cfg.PoliteDelay,
		userAgent:   cfg.UserAgent,
		policy:      cfg.Retry,
		sleep:       retry.Sleep,
		logger:      logger.With("source", cfg.ID),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchAll walks pages in order until the upstream runs dry, a page fails,
// or the page ceiling is reached.
func (c *Client) FetchAll(ctx context.Context) ([]json.RawMessage, domain.SourceStats) {
	start := time.Now()
	stats := domain.SourceStats{SourceID: c.id}
	var all []json.RawMessage

	for page := 0; page < c.maxPages; page++ {
		if page > 0 && c.politeDelay > 0 {
			if err := c.sleep(ctx, c.politeDelay); err != nil {
				stats.Aborted = true
				stats.LastError = err.Error()
				break
			}
		}

		records, err := c.fetchPage(ctx, page, &stats)
		if err != nil {
			stats.Aborted = true
			stats.LastError = err.Error()
			if page == 0 {
				stats.FirstPageFailed = true
				c.logger.Warn("first page failed, source contributes no records", "error", err)
			} else {
				c.logger.Warn("page failed, stopping pagination", "page", page, "error", err)
			}
			break
		}

		if len(records) == 0 {
			c.logger.Debug("no more records", "page", page)
			break
		}

		stats.Pages++
		all = append(all, records...)

		c.logger.Debug("fetched page",
			"page", page,
			"records", len(records),
			"total", len(all),
		)
	}

	stats.Fetched = len(all)
	stats.Duration = time.Since(start)
	c.metrics.ObserveRecords(string(c.id), "fetched", stats.Fetched)

	c.logger.Info("source fetch finished",
		"pages", stats.Pages,
		"attempts", stats.Attempts,
		"records", stats.Fetched,
		"aborted", stats.Aborted,
		"duration", stats.Duration,
	)

	return all, stats
}

func (c *Client) fetchPage(ctx context.Context, page int, stats *domain.SourceStats) ([]json.RawMessage, error) {
	url := c.pageURL(page)
	b := c.policy.NewBackOff()

	for attempt := 1; ; attempt++ {
		stats.Attempts++
		records, err := c.doRequest(ctx, url)
		if err == nil {
			c.metrics.ObserveRequest(string(c.id), "ok")
			return records, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !isRetryable(err) {
			c.metrics.ObserveRequest(string(c.id), "failed")
			return nil, err
		}
		c.metrics.ObserveRequest(string(c.id), "retryable")

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		c.logger.Warn("request failed, retrying",
			"page", page,
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
		c.metrics.ObserveRetry(string(c.id))

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (c *Client) doRequest(ctx context.Context, url string) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read body: %w", err)}
	}

	records, err := c.decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return records, nil
}
