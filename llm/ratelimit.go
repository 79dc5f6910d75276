package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces Client.Complete calls against a process-local
// tokens-per-minute budget, estimated from request size. It is a simplified,
// non-adaptive counterpart of a cluster-coordinated limiter: this engine has
// one LLM client shared by every Thread Processor goroutine in the process
// (§5, "LLM client: shared, stateless; rate-limit state is vendor-internal"),
// so there is no cross-process budget to reconcile.
type RateLimiter struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimiter wraps next with a token-bucket limiter sized to tpm tokens
// per minute.
func NewRateLimiter(next Client, tpm float64) *RateLimiter {
	if tpm <= 0 {
		tpm = 60000
	}
	return &RateLimiter{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(tpm/60.0), int(tpm)),
	}
}

// Complete waits for capacity, then delegates to the wrapped Client.
func (l *RateLimiter) Complete(ctx context.Context, req Request) (Response, error) {
	if err := l.limiter.WaitN(ctx, estimateTokens(req)); err != nil {
		return Response{}, err
	}
	return l.next.Complete(ctx, req)
}

// estimateTokens is a cheap heuristic: characters / 3, plus a fixed buffer
// for system prompt and provider framing overhead.
func estimateTokens(req Request) int {
	chars := len(req.System)
	for _, m := range req.Messages {
		chars += len(m.Text)
	}
	tokens := chars/3 + 500
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
