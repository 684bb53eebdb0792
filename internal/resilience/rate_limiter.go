package resilience

import (
	"time"
)

// RateLimiter is a token bucket persisted in the Store, so the long-window
// budget and any Retry-After block survive a restart.
type RateLimiter struct {
	config RateLimiterConfig
	store  *Store
	now    func() time.Time
}

// NewRateLimiter creates a rate limiter, filling zero config values with
// defaults.
func NewRateLimiter(store *Store, config RateLimiterConfig) *RateLimiter {
	def := DefaultConfig().RateLimiter
	if config.MaxTokens <= 0 {
		config.MaxTokens = def.MaxTokens
	}
	if config.RefillRate <= 0 {
		config.RefillRate = def.RefillRate
	}
	if config.TokensPerRequest <= 0 {
		config.TokensPerRequest = def.TokensPerRequest
	}
	if config.DefaultRetryAfter <= 0 {
		config.DefaultRetryAfter = def.DefaultRetryAfter
	}
	return &RateLimiter{config: config, store: store, now: time.Now}
}

// refill tops the bucket up for the time elapsed since the last refill.
func (rl *RateLimiter) refill(state *RateLimiterState, now time.Time) {
	if state.LastRefillAt.IsZero() {
		state.Tokens = rl.config.MaxTokens
		state.LastRefillAt = now
		return
	}

	elapsed := now.Sub(state.LastRefillAt)
	if elapsed <= 0 {
		return
	}
	state.LastRefillAt = now
	state.Tokens = min(rl.config.MaxTokens, state.Tokens+elapsed.Seconds()*rl.config.RefillRate)
}

// Allow consumes a token if one is available and no Retry-After block is
// active. Store failures fail open.
func (rl *RateLimiter) Allow() (bool, error) {
	var allowed bool

	err := rl.store.Update(func(state *State) error {
		now := rl.now()
		rlState := &state.RateLimiter

		if rlState.BlockedFor(now) > 0 {
			return nil
		}

		rl.refill(rlState, now)
		if rlState.Tokens >= rl.config.TokensPerRequest {
			rlState.Tokens -= rl.config.TokensPerRequest
			allowed = true
		}
		state.UpdatedAt = now
		return nil
	})
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}
	return allowed, nil
}

// SetRetryAfter blocks requests until the given time. An earlier time never
// shortens an existing block.
func (rl *RateLimiter) SetRetryAfter(until time.Time) error {
	return rl.store.Update(func(state *State) error {
		if until.After(state.RateLimiter.RetryAfterUntil) {
			state.RateLimiter.RetryAfterUntil = until
			state.UpdatedAt = rl.now()
		}
		return nil
	})
}

// SetRetryAfterDuration blocks requests for d. Zero applies the configured
// default.
func (rl *RateLimiter) SetRetryAfterDuration(d time.Duration) error {
	if d <= 0 {
		d = rl.config.DefaultRetryAfter
	}
	return rl.SetRetryAfter(rl.now().Add(d))
}

// Tokens returns the available tokens after refilling.
func (rl *RateLimiter) Tokens() (float64, error) {
	var tokens float64
	err := rl.store.Update(func(state *State) error {
		now := rl.now()
		rl.refill(&state.RateLimiter, now)
		tokens = state.RateLimiter.Tokens
		state.UpdatedAt = now
		return nil
	})
	return tokens, err
}

// RetryAfterRemaining returns what is left of the Retry-After block.
func (rl *RateLimiter) RetryAfterRemaining() (time.Duration, error) {
	state, err := rl.store.Load()
	if err != nil {
		return 0, err
	}
	return state.RateLimiter.BlockedFor(rl.now()), nil
}

// Reset refills the bucket and clears any block.
func (rl *RateLimiter) Reset() error {
	return rl.store.Update(func(state *State) error {
		now := rl.now()
		state.RateLimiter = RateLimiterState{Tokens: rl.config.MaxTokens, LastRefillAt: now}
		state.UpdatedAt = now
		return nil
	})
}
