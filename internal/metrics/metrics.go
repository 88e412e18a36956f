package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the aggregator's collectors. A nil *Registry is valid and
// records nothing, which keeps tests free of metric plumbing.
type Registry struct {
	reg *prometheus.Registry

	SourceRequests  *prometheus.CounterVec
	SourceRetries   *prometheus.CounterVec
	SourceRecords   *prometheus.CounterVec
	AggregateRuns   *prometheus.CounterVec
	AggregateTime   prometheus.Histogram
	FallbackUsed    prometheus.Counter
	DealsServed     prometheus.Gauge
	CacheLookups    *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	PublishFailures prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	sourceRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_source_requests_total",
		Help: "Upstream page requests by source and outcome (count)",
	}, []string{"source", "outcome"})
	sourceRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_source_retries_total",
		Help: "Upstream page retries by source (count)",
	}, []string{"source"})
	sourceRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_source_records_total",
		Help: "Records seen per source by stage: fetched, normalized, skipped (count)",
	}, []string{"source", "stage"})
	aggregateRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_aggregate_runs_total",
		Help: "Aggregation runs by status (count)",
	}, []string{"status"})
	aggregateTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "deals_aggregate_duration_seconds",
		Help:    "Wall time of one aggregation run in seconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 240},
	})
	fallbackUsed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deals_fallback_used_total",
		Help: "Runs that served the bundled fallback dataset (count)",
	})
	dealsServed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "deals_current",
		Help: "Deals in the latest aggregation result (count)",
	})
	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deals_cache_lookups_total",
		Help: "Cache lookups by result: hit, miss, stale (count)",
	}, []string{"result"})
	breakerState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "deals_source_breaker_state",
		Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
	}, []string{"source"})
	publishFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deals_publish_failures_total",
		Help: "Refresh events that could not be published (count)",
	})

	r.MustRegister(sourceRequests, sourceRetries, sourceRecords, aggregateRuns, aggregateTime,
		fallbackUsed, dealsServed, cacheLookups, breakerState, publishFailures)

	return &Registry{
		reg:             r,
		SourceRequests:  sourceRequests,
		SourceRetries:   sourceRetries,
		SourceRecords:   sourceRecords,
		AggregateRuns:   aggregateRuns,
		AggregateTime:   aggregateTime,
		FallbackUsed:    fallbackUsed,
		DealsServed:     dealsServed,
		CacheLookups:    cacheLookups,
		BreakerState:    breakerState,
		PublishFailures: publishFailures,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ObserveRequest(source, outcome string) {
	if r == nil {
		return
	}
	r.SourceRequests.WithLabelValues(source, outcome).Inc()
}

func (r *Registry) ObserveRetry(source string) {
	if r == nil {
		return
	}
	r.SourceRetries.WithLabelValues(source).Inc()
}

func (r *Registry) ObserveRecords(source, stage string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.SourceRecords.WithLabelValues(source, stage).Add(float64(n))
}

func (r *Registry) ObserveRun(status string, took time.Duration, deals int, degraded bool) {
	if r == nil {
		return
	}
	r.AggregateRuns.WithLabelValues(status).Inc()
	r.AggregateTime.Observe(took.Seconds())
	if status == "success" {
		r.DealsServed.Set(float64(deals))
	}
	if degraded {
		r.FallbackUsed.Inc()
	}
}

func (r *Registry) ObserveCache(result string) {
	if r == nil {
		return
	}
	r.CacheLookups.WithLabelValues(result).Inc()
}

func (r *Registry) SetBreakerState(source string, state int) {
	if r == nil {
		return
	}
	r.BreakerState.WithLabelValues(source).Set(float64(state))
}

func (r *Registry) ObservePublishFailure() {
	if r == nil {
		return
	}
	r.PublishFailures.Inc()
}
