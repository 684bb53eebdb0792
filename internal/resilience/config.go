package resilience

import (
	"time"
)

// Config holds configuration for all resilience primitives.
type Config struct {
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    RateLimiterConfig
	Burst          BurstConfig
	Bulkhead       BulkheadConfig
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	FailureThreshold int

	// SuccessThreshold is the number of half-open successes needed to close.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	OpenTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent probes.
	HalfOpenMaxRequests int
}

// RateLimiterConfig configures the persisted token bucket.
type RateLimiterConfig struct {
	MaxTokens        float64
	RefillRate       float64 // tokens per second
	TokensPerRequest float64

	// DefaultRetryAfter is the block applied on a 429 without a header.
	DefaultRetryAfter time.Duration
}

// BurstConfig configures the short-window limiter.
type BurstConfig struct {
	// PerSecond is the sustained request rate. Zero disables the limiter.
	PerSecond float64
	Burst     int
}

// BulkheadConfig configures concurrent operation limiting.
type BulkheadConfig struct {
	MaxConcurrent int64
}

// DefaultConfig matches the limits of a Riot development key:
// 20 requests per second and 100 requests per two minutes.
func DefaultConfig() *Config {
	return &Config{
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:    5,
			SuccessThreshold:    2,
			OpenTimeout:         30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		RateLimiter: RateLimiterConfig{
			MaxTokens:         100,
			RefillRate:        100.0 / 120.0,
			TokensPerRequest:  1,
			DefaultRetryAfter: 10 * time.Second,
		},
		Burst: BurstConfig{
			PerSecond: 20,
			Burst:     20,
		},
		Bulkhead: BulkheadConfig{
			MaxConcurrent: 10,
		},
	}
}
