package util

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter bounds outbound requests to a provider. A nil *RateLimiter
// never blocks.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter that allows perMinute operations per
// minute with a burst of one. perMinute <= 0 disables limiting and returns nil.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

// Wait blocks until a token is available or the context is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return ctx.Err()
	}
	return rl.limiter.Wait(ctx)
}

// PerMinute returns the configured rate, or 0 when unlimited.
func (rl *RateLimiter) PerMinute() float64 {
	if rl == nil {
		return 0
	}
	return float64(rl.limiter.Limit()) * 60
}
