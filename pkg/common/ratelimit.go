package common

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces the outbound requests of a collaborator. It is safe for
// concurrent use by the goroutines of one phase.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter admitting rps events per second with
// bursts of up to burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), max(burst, 1))}
}

// PerSecond creates a RateLimiter whose burst equals its rate, so a phase
// may open with a full second of requests.
func PerSecond(rps int) *RateLimiter {
	return NewRateLimiter(float64(rps), rps)
}

// Wait blocks until the limiter admits an event or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter admits every event immediately.
func (rl *RateLimiter) Unlimited() bool {
	return rl.limiter.Limit() == rate.Inf
}
