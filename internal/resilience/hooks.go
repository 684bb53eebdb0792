package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

var _ riot.GatingHooks = (*GatingHooks)(nil)

// releaseKey marks a context whose operation holds a bulkhead slot.
type releaseKey struct{}

// GatingHooks runs every riot operation through the resilience primitives.
// Any of them may be nil.
type GatingHooks struct {
	burst          *BurstLimiter
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
}

// NewGatingHooks creates gating hooks from the given primitives.
func NewGatingHooks(burst *BurstLimiter, rl *RateLimiter, bh *Bulkhead, cb *CircuitBreaker) *GatingHooks {
	return &GatingHooks{
		burst:          burst,
		rateLimiter:    rl,
		bulkhead:       bh,
		circuitBreaker: cb,
	}
}

// NewGatingHooksFromConfig builds every primitive from cfg. Persisted
// primitives share store.
func NewGatingHooksFromConfig(store *Store, cfg *Config) *GatingHooks {
	return NewGatingHooks(
		NewBurstLimiter(cfg.Burst),
		NewRateLimiter(store, cfg.RateLimiter),
		NewBulkhead(cfg.Bulkhead),
		NewCircuitBreaker(store, cfg.CircuitBreaker),
	)
}

// OnOperationGate admits or rejects an operation.
//
// The circuit breaker is checked last: in half-open state Allow reserves a
// probe slot, and a rejection by a later gate would leak it.
func (h *GatingHooks) OnOperationGate(ctx context.Context, op riot.OperationInfo) (context.Context, error) {
	if h.burst != nil {
		if err := h.burst.Wait(ctx); err != nil {
			return ctx, riot.ErrRateLimited
		}
	}

	if h.rateLimiter != nil {
		if allowed, _ := h.rateLimiter.Allow(); !allowed {
			return ctx, riot.ErrRateLimited
		}
	}

	if h.bulkhead != nil {
		if !h.bulkhead.TryAcquire() {
			return ctx, riot.ErrBulkheadFull
		}
		ctx = context.WithValue(ctx, releaseKey{}, true)
	}

	if h.circuitBreaker != nil {
		if allowed, _ := h.circuitBreaker.Allow(); !allowed {
			h.release(ctx)
			return ctx, riot.ErrCircuitOpen
		}
	}

	return ctx, nil
}

func (h *GatingHooks) OnOperationStart(ctx context.Context, _ riot.OperationInfo) context.Context {
	return ctx
}

// OnOperationEnd frees the bulkhead slot and feeds the circuit breaker.
func (h *GatingHooks) OnOperationEnd(ctx context.Context, _ riot.OperationInfo, err error, _ time.Duration) {
	h.release(ctx)

	if h.circuitBreaker == nil {
		return
	}
	if err == nil {
		_ = h.circuitBreaker.RecordSuccess()
		return
	}
	if tripsCircuit(err) {
		_ = h.circuitBreaker.RecordFailure()
	}
}

func (h *GatingHooks) OnRequestStart(ctx context.Context, _ riot.RequestInfo) context.Context {
	return ctx
}

// OnRequestEnd turns an upstream 429 into a persisted Retry-After block.
func (h *GatingHooks) OnRequestEnd(_ context.Context, _ riot.RequestInfo, result riot.RequestResult) {
	if h.rateLimiter == nil {
		return
	}
	switch {
	case result.RetryAfter > 0:
		_ = h.rateLimiter.SetRetryAfterDuration(time.Duration(result.RetryAfter) * time.Second)
	case result.StatusCode == http.StatusTooManyRequests:
		_ = h.rateLimiter.SetRetryAfterDuration(0)
	}
}

func (h *GatingHooks) release(ctx context.Context) {
	if _, ok := ctx.Value(releaseKey{}).(bool); ok && h.bulkhead != nil {
		h.bulkhead.Release()
	}
}

// tripsCircuit reports whether err counts as an upstream failure. Only
// transport errors and 5xx do; client errors and throttling are the
// caller's problem, not an outage.
func tripsCircuit(err error) bool {
	var e *output.Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Code {
	case output.CodeTransport:
		return true
	case output.CodeAPI:
		return e.HTTPStatus >= 500
	default:
		return false
	}
}
