package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_NilIsSafe(t *testing.T) {
	var r *Registry

	assert.NotPanics(t, func() {
		r.ObserveRequest("cheapshark", "ok")
		r.ObserveRetry("cheapshark")
		r.ObserveRecords("cheapshark", "fetched", 3)
		r.ObserveRun("success", time.Second, 10, true)
		r.ObserveCache("hit")
		r.SetBreakerState("itad", 2)
		r.ObservePublishFailure()
	})
}

func TestRegistry_ObserveRun(t *testing.T) {
	r := NewRegistry()

	r.ObserveRun("success", 2*time.Second, 42, true)
	r.ObserveRun("error", time.Second, 0, false)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.AggregateRuns.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.AggregateRuns.WithLabelValues("error")))
	assert.Equal(t, float64(42), testutil.ToFloat64(r.DealsServed))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.FallbackUsed))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveRequest("cheapshark", "ok")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `deals_source_requests_total{outcome="ok",source="cheapshark"} 1`)
}
