// Package retry describes bounded exponential backoff as a value, so callers
// can compute and test delays without real time passing.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy bounds the attempts made for one request. Delay before retry n
// (zero-based) is min(BaseDelay * 2^n, CapDelay).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		CapDelay:    15 * time.Second,
	}
}

// NewBackOff returns a fresh delay sequence for one request. It yields
// backoff.Stop once MaxAttempts-1 retries have been handed out.
func (p Policy) NewBackOff() backoff.BackOff {
	if p.MaxAttempts <= 1 {
		return &backoff.StopBackOff{}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.CapDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1))
}

// Delays lists every delay the policy would hand out, in order.
func (p Policy) Delays() []time.Duration {
	var delays []time.Duration
	b := p.NewBackOff()
	for d := b.NextBackOff(); d != backoff.Stop; d = b.NextBackOff() {
		delays = append(delays, d)
	}
	return delays
}
