package llm

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the jittered exponential backoff applied to Transient
// provider errors, per §4.3.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the "exponential backoff with jitter, capped at
// N attempts" language of §4.3: five tries, starting at half a second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// CallWithRetry invokes fn, retrying only on Transient ProviderErrors.
// Permanent errors and any error that isn't a ProviderError are returned
// immediately without delay, matching §4.3's "Permanent: immediate Fail
// event; no retry."
func CallWithRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (Response, error)) (Response, error) {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := fn(ctx)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		pe, ok := AsProviderError(err)
		if !ok || pe.Class() != ClassTransient {
			return Response{}, err
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-time.After(backoffDelay(policy, attempt)):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	return Response{}, lastErr
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	base := policy.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := policy.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}
	d := base * time.Duration(uint64(1)<<uint(attempt))
	if d <= 0 || d > max {
		d = max
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
