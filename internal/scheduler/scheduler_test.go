package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"deal_aggregator/internal/domain"
)

type countingRefresher struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (r *countingRefresher) Refresh(ctx context.Context) (*domain.Result, error) {
	r.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		r.deadline.Store(true)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Result{Success: true}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RefreshesImmediatelyAndOnTick(t *testing.T) {
	r := &countingRefresher{}
	s := NewScheduler(r, 10*time.Millisecond, time.Second, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.True(t, r.deadline.Load())
}

func TestScheduler_KeepsRunningAfterFailure(t *testing.T) {
	r := &countingRefresher{err: errors.New("upstream down")}
	s := NewScheduler(r, 10*time.Millisecond, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Start(ctx) }()

	assert.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
