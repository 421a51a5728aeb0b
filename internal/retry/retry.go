// Package retry runs a network operation under a bounded attempt policy.
// Each attempt gets its own timeout; attempts never overlap.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Policy describes how an operation is retried. Timeouts[i] bounds attempt
// i; attempts past the end of Timeouts reuse the last entry. A nil RetryIf
// retries every error.
type Policy struct {
	MaxAttempts int
	Timeouts    []time.Duration
	Backoff     time.Duration
	RetryIf     func(error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultPolicy is one long attempt followed by one short one.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Timeouts:    []time.Duration{15 * time.Second, 5 * time.Second},
	}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) timeout(attempt int) time.Duration {
	if len(p.Timeouts) == 0 {
		return 0
	}
	if attempt >= len(p.Timeouts) {
		return p.Timeouts[len(p.Timeouts)-1]
	}
	return p.Timeouts[attempt]
}

// Do runs op until it succeeds, returns an error RetryIf rejects, or the
// attempts are used up. The returned error is the last attempt's error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	opts := []retry.Option{
		retry.Attempts(uint(p.attempts())),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(p.Backoff),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return p.RetryIf == nil || p.RetryIf(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			if p.OnRetry != nil {
				p.OnRetry(int(n)+1, err)
			}
		}),
	}

	return retry.DoWithData(func() (T, error) {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if d := p.timeout(attempt); d > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, d)
		}
		defer cancel()
		attempt++
		return op(attemptCtx)
	}, opts...)
}
