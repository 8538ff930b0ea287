package provider

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/teranos/dataq/errors"
)

// RateLimited spaces calls to the wrapped generator
type RateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

// WithRateLimit allows at most perMinute calls per minute with a burst of one.
// perMinute <= 0 returns g unchanged.
func WithRateLimit(g Generator, perMinute int) Generator {
	if perMinute <= 0 {
		return g
	}
	return &RateLimited{
		next:    g,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (r *RateLimited) Name() string  { return r.next.Name() }
func (r *RateLimited) Model() string { return r.next.Model() }

// Generate waits for a token, then forwards. A wait that cannot finish before
// the context deadline counts as a timeout.
func (r *RateLimited) Generate(ctx context.Context, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "rate limit wait"), errors.ErrLLMTimeout)
	}
	return r.next.Generate(ctx, prompt)
}
