package resolver

import (
	"context"

	"golang.org/x/time/rate"
)

// Backoff is consulted after every failed lookup attempt. Returning an error
// stops the resolver.
type Backoff interface {
	Wait(ctx context.Context, attempt int) error
}

// NoBackoff retries immediately.
type NoBackoff struct{}

func (NoBackoff) Wait(ctx context.Context, attempt int) error {
	return ctx.Err()
}

// LimiterBackoff spaces attempts with a token bucket.
type LimiterBackoff struct {
	limiter *rate.Limiter
}

// NewLimiterBackoff allows at most perSecond attempts per second with no burst.
// A non-positive rate yields an unlimited limiter.
func NewLimiterBackoff(perSecond float64) *LimiterBackoff {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &LimiterBackoff{limiter: rate.NewLimiter(limit, 1)}
}

func (b *LimiterBackoff) Wait(ctx context.Context, attempt int) error {
	return b.limiter.Wait(ctx)
}
