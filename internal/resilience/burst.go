package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BurstLimiter smooths short bursts in-process. Unlike RateLimiter it waits
// for a token instead of rejecting, bounded by the caller's deadline.
type BurstLimiter struct {
	limiter *rate.Limiter
}

// NewBurstLimiter returns nil when config.PerSecond is zero.
func NewBurstLimiter(config BurstConfig) *BurstLimiter {
	if config.PerSecond <= 0 {
		return nil
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &BurstLimiter{limiter: rate.NewLimiter(rate.Limit(config.PerSecond), config.Burst)}
}

// Wait blocks until a token is available. It fails immediately if the wait
// would outlast ctx's deadline.
func (b *BurstLimiter) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Allow reports whether a token is available at now and consumes it.
func (b *BurstLimiter) Allow(now time.Time) bool {
	return b.limiter.AllowN(now, 1)
}
