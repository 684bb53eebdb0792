package resilience

import (
	"time"
)

// StateVersion is the current state schema version.
const StateVersion = 2

// State is the resilience state persisted between kurisu processes, so a
// restarted bot keeps honoring an upstream Retry-After window and an open
// circuit.
type State struct {
	Version        int                 `json:"version"`
	CircuitBreaker CircuitBreakerState `json:"circuit_breaker"`
	RateLimiter    RateLimiterState    `json:"rate_limiter"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// CircuitBreakerState tracks the circuit breaker.
//   - closed: requests flow through
//   - open: upstream considered down, requests fail fast
//   - half_open: probing, a limited number of requests allowed
type CircuitBreakerState struct {
	State     string `json:"state"`
	Failures  int    `json:"failures"`
	Successes int    `json:"successes"`

	// HalfOpenAttempts counts probes in flight while half-open.
	HalfOpenAttempts int `json:"half_open_attempts,omitempty"`

	// HalfOpenLastAttemptAt detects probes abandoned by a crashed process.
	HalfOpenLastAttemptAt time.Time `json:"half_open_last_attempt_at"`

	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Circuit breaker states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half_open"
)

func (c *CircuitBreakerState) IsClosed() bool {
	return c.State == "" || c.State == CircuitClosed
}

func (c *CircuitBreakerState) IsOpen() bool {
	return c.State == CircuitOpen
}

func (c *CircuitBreakerState) IsHalfOpen() bool {
	return c.State == CircuitHalfOpen
}

// RateLimiterState is the long-window token bucket.
type RateLimiterState struct {
	Tokens       float64   `json:"tokens"`
	LastRefillAt time.Time `json:"last_refill_at"`

	// RetryAfterUntil is set from a 429. Nothing is sent before it passes.
	RetryAfterUntil time.Time `json:"retry_after_until"`
}

// BlockedFor returns how much of the Retry-After window remains at now.
func (r *RateLimiterState) BlockedFor(now time.Time) time.Duration {
	if r.RetryAfterUntil.IsZero() || !now.Before(r.RetryAfterUntil) {
		return 0
	}
	return r.RetryAfterUntil.Sub(now)
}

// NewState returns an empty state. LastRefillAt stays zero so the first
// refill fills the bucket from config.
func NewState() *State {
	return &State{
		Version:        StateVersion,
		CircuitBreaker: CircuitBreakerState{State: CircuitClosed},
		UpdatedAt:      time.Now(),
	}
}
