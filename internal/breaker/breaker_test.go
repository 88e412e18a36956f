package breaker

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deal_aggregator/internal/domain"
	"deal_aggregator/internal/metrics"
)

type stubSource struct {
	calls  int
	failed bool
}

func (s *stubSource) ID() domain.SourceID { return domain.SourceCheapShark }
func (s *stubSource) Name() string        { return "stub" }

func (s *stubSource) FetchDeals(context.Context) ([]domain.Deal, domain.SourceStats) {
	s.calls++
	stats := domain.SourceStats{SourceID: domain.SourceCheapShark, FirstPageFailed: s.failed}
	if s.failed {
		return nil, stats
	}
	return []domain.Deal{{Title: "Portal 2", SteamAppID: 620}}, stats
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWrap_DisabledReturnsSource(t *testing.T) {
	src := &stubSource{}
	assert.Same(t, src, Wrap(src, Config{}, nil, testLogger()))
}

func TestGuardedSource_OpensAfterConsecutiveFailures(t *testing.T) {
	src := &stubSource{failed: true}
	m := metrics.NewRegistry()
	guarded := Wrap(src, Config{ConsecutiveFailures: 2, OpenTimeout: time.Hour}, m, testLogger())
	ctx := context.Background()

	_, stats := guarded.FetchDeals(ctx)
	assert.True(t, stats.FirstPageFailed)
	_, _ = guarded.FetchDeals(ctx)
	require.Equal(t, 2, src.calls)

	deals, stats := guarded.FetchDeals(ctx)
	assert.Empty(t, deals)
	assert.True(t, stats.BreakerOpen)
	assert.True(t, stats.Failed())
	assert.Equal(t, domain.SourceCheapShark, stats.SourceID)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, gobreaker.StateOpen, guarded.(*GuardedSource).State())
}

func TestGuardedSource_SuccessPassesThrough(t *testing.T) {
	src := &stubSource{}
	guarded := Wrap(src, Config{ConsecutiveFailures: 1, OpenTimeout: time.Hour}, nil, testLogger())

	deals, stats := guarded.FetchDeals(context.Background())

	assert.Len(t, deals, 1)
	assert.False(t, stats.Failed())
	assert.Equal(t, gobreaker.StateClosed, guarded.(*GuardedSource).State())
}

func TestGuardedSource_CancelledCallerDoesNotTrip(t *testing.T) {
	src := &stubSource{failed: true}
	guarded := Wrap(src, Config{ConsecutiveFailures: 1, OpenTimeout: time.Hour}, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, stats := guarded.FetchDeals(ctx)
	assert.True(t, stats.FirstPageFailed)
	assert.Equal(t, gobreaker.StateClosed, guarded.(*GuardedSource).State())
}
