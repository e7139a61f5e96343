package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound calls to an external API to a fixed number of
// requests per minute.
type Limiter struct {
	limiter *rate.Limiter
}

// NewPerMinute creates a Limiter allowing maxPerMinute requests per minute.
// A non-positive value disables throttling.
func NewPerMinute(maxPerMinute int) *Limiter {
	if maxPerMinute <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), 1)}
}

// Wait blocks until a request is permitted or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}
