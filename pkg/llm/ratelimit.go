package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a provider with a client-side token-bucket
// rate limiter, keeping request rates under provider quotas regardless of
// how fast the workflow issues calls.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider wraps provider so at most rps requests per second
// are issued, with the given burst allowance.
func NewRateLimitedProvider(provider Provider, rps float64, burst int) *RateLimitedProvider {
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

// Complete waits for rate-limiter clearance, then delegates to the
// wrapped provider. The wait respects context cancellation.
func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}
