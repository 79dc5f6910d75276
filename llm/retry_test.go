package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithRetry_SucceedsAfterTransientErrors(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	resp, err := CallWithRetry(context.Background(), policy, func(ctx context.Context) (Response, error) {
		attempts++
		if attempts < 3 {
			return Response{}, NewProviderError("anthropic", "complete", 503, KindUnavailable, "", "overloaded", "", nil)
		}
		return Response{Text: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, 3, attempts)
}

func TestCallWithRetry_StopsAfterMaxAttempts(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	_, err := CallWithRetry(context.Background(), policy, func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, NewProviderError("anthropic", "complete", 429, KindRateLimited, "", "rate limited", "", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
}

func TestCallWithRetry_PermanentErrorReturnsImmediately(t *testing.T) {
	attempts := 0
	policy := DefaultRetryPolicy()
	_, err := CallWithRetry(context.Background(), policy, func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, NewProviderError("anthropic", "complete", 401, KindAuth, "", "bad key", "", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestCallWithRetry_NonProviderErrorReturnsImmediately(t *testing.T) {
	attempts := 0
	policy := DefaultRetryPolicy()
	sentinel := errors.New("boom")
	_, err := CallWithRetry(context.Background(), policy, func(ctx context.Context) (Response, error) {
		attempts++
		return Response{}, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, attempts)
}

func TestCallWithRetry_ContextCancelledDuringBackoffStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond}
	_, err := CallWithRetry(ctx, policy, func(ctx context.Context) (Response, error) {
		attempts++
		if attempts == 1 {
			cancel()
		}
		return Response{}, NewProviderError("anthropic", "complete", 503, KindUnavailable, "", "down", "", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestBackoffDelay_DoublesUntilCap(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
	d0 := backoffDelay(policy, 0)
	d3 := backoffDelay(policy, 3)
	assert.True(t, d0 > 0 && d0 <= 100*time.Millisecond)
	assert.True(t, d3 > 0 && d3 <= 250*time.Millisecond)
}
