package resilience

import (
	"time"
)

// CircuitBreaker fails fast while the upstream keeps failing. State is kept
// in the Store so a restarted process stays tripped.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	store  *Store
	now    func() time.Time
}

// NewCircuitBreaker creates a breaker, filling zero config values with
// defaults.
func NewCircuitBreaker(store *Store, config CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultConfig().CircuitBreaker
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = def.SuccessThreshold
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = def.OpenTimeout
	}
	return &CircuitBreaker{config: config, store: store, now: time.Now}
}

// Allow reports whether a request may proceed. While half-open it reserves
// a probe slot, which RecordSuccess or RecordFailure releases. Store
// failures fail open.
func (cb *CircuitBreaker) Allow() (bool, error) {
	state, err := cb.store.Load()
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}

	now := cb.now()
	cbState := &state.CircuitBreaker
	switch {
	case cbState.IsClosed():
		return true, nil
	case cbState.IsOpen() && now.Sub(cbState.OpenedAt) < cb.config.OpenTimeout:
		return false, nil
	}

	var allowed bool
	err = cb.store.Update(func(s *State) error {
		c := &s.CircuitBreaker

		if c.IsOpen() {
			if now.Sub(c.OpenedAt) < cb.config.OpenTimeout {
				return nil
			}
			c.State = CircuitHalfOpen
			c.Successes = 0
			c.Failures = 0
			c.HalfOpenAttempts = 0
		}

		if c.IsClosed() {
			allowed = true
			return nil
		}

		if cb.staleProbes(c, now) {
			c.HalfOpenAttempts = 0
		}
		if cb.config.HalfOpenMaxRequests > 0 && c.HalfOpenAttempts >= cb.config.HalfOpenMaxRequests {
			return nil
		}
		c.HalfOpenAttempts++
		c.HalfOpenLastAttemptAt = now
		s.UpdatedAt = now
		allowed = true
		return nil
	})
	if err != nil {
		return true, nil //nolint:nilerr // fail open
	}
	return allowed, nil
}

// staleProbes reports whether the half-open slots are held by probes that
// never reported back for a full OpenTimeout.
func (cb *CircuitBreaker) staleProbes(c *CircuitBreakerState, now time.Time) bool {
	if cb.config.HalfOpenMaxRequests <= 0 || c.HalfOpenAttempts < cb.config.HalfOpenMaxRequests {
		return false
	}
	if c.HalfOpenLastAttemptAt.IsZero() {
		return false
	}
	return now.Sub(c.HalfOpenLastAttemptAt) >= cb.config.OpenTimeout
}

// RecordSuccess records a successful request.
func (cb *CircuitBreaker) RecordSuccess() error {
	return cb.store.Update(func(state *State) error {
		c := &state.CircuitBreaker
		switch {
		case c.IsHalfOpen():
			if c.HalfOpenAttempts > 0 {
				c.HalfOpenAttempts--
			}
			c.Successes++
			if c.Successes >= cb.config.SuccessThreshold {
				*c = CircuitBreakerState{State: CircuitClosed, LastFailureAt: c.LastFailureAt}
			}
		case c.IsClosed():
			c.Failures = 0
		}
		state.UpdatedAt = cb.now()
		return nil
	})
}

// RecordFailure records a failed request.
func (cb *CircuitBreaker) RecordFailure() error {
	return cb.store.Update(func(state *State) error {
		now := cb.now()
		c := &state.CircuitBreaker
		c.LastFailureAt = now

		switch {
		case c.IsClosed():
			c.Failures++
			if c.Failures >= cb.config.FailureThreshold {
				c.State = CircuitOpen
				c.OpenedAt = now
			}
		case c.IsHalfOpen():
			c.State = CircuitOpen
			c.OpenedAt = now
			c.Successes = 0
			c.HalfOpenAttempts = 0
			c.HalfOpenLastAttemptAt = time.Time{}
		}

		state.UpdatedAt = now
		return nil
	})
}

// State returns the effective state. An open circuit past its timeout
// reports half_open.
func (cb *CircuitBreaker) State() (string, error) {
	state, err := cb.store.Load()
	if err != nil {
		return CircuitClosed, err
	}

	c := &state.CircuitBreaker
	switch {
	case c.IsOpen() && cb.now().Sub(c.OpenedAt) >= cb.config.OpenTimeout:
		return CircuitHalfOpen, nil
	case c.State == "":
		return CircuitClosed, nil
	default:
		return c.State, nil
	}
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() error {
	return cb.store.Update(func(state *State) error {
		state.CircuitBreaker = CircuitBreakerState{State: CircuitClosed}
		state.UpdatedAt = cb.now()
		return nil
	})
}
