package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrattend/internal/retry"
)

var (
	errTransport = errors.New("connection refused")
	errRejected  = errors.New("rejected")
)

func policy() retry.Policy {
	p := retry.DefaultPolicy()
	p.Timeouts = []time.Duration{200 * time.Millisecond, 50 * time.Millisecond}
	p.RetryIf = func(err error) bool { return !errors.Is(err, errRejected) }
	return p
}

func TestTwoTransportFailuresStopAfterTwoAttempts(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), policy(), func(ctx context.Context) error {
		calls++
		return errTransport
	})
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, 2, calls)
}

func TestSecondAttemptSucceeds(t *testing.T) {
	calls := 0
	v, err := retry.DoValue(context.Background(), policy(), func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errTransport
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestNoRetryOnRejectedResponse(t *testing.T) {
	calls := 0
	err := retry.Do(context.Background(), policy(), func(ctx context.Context) error {
		calls++
		return errRejected
	})
	assert.ErrorIs(t, err, errRejected)
	assert.Equal(t, 1, calls)
}

func TestAttemptTimeoutsShrink(t *testing.T) {
	var budgets []time.Duration
	_ = retry.Do(context.Background(), policy(), func(ctx context.Context) error {
		dl, ok := ctx.Deadline()
		require.True(t, ok)
		budgets = append(budgets, time.Until(dl))
		<-ctx.Done()
		return ctx.Err()
	})
	require.Len(t, budgets, 2)
	assert.Greater(t, budgets[0], budgets[1])
	assert.LessOrEqual(t, budgets[1], 50*time.Millisecond)
}

func TestParentCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, policy(), func(ctx context.Context) error {
		calls++
		cancel()
		return errTransport
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnRetryReportsAttempt(t *testing.T) {
	p := policy()
	var seen []int
	p.OnRetry = func(attempt int, err error) { seen = append(seen, attempt) }
	_ = retry.Do(context.Background(), p, func(ctx context.Context) error { return errTransport })
	require.NotEmpty(t, seen)
	assert.Equal(t, 1, seen[0])
}
