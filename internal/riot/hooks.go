package riot

import (
	"context"
	"time"

	"github.com/quilldev/kurisu/internal/output"
)

// OperationInfo describes a semantic client call, e.g. Summoner.ByName.
type OperationInfo struct {
	Service      string // "Summoner", "Mastery", "DataDragon"
	Operation    string // "ByName", "BySummoner", "Versions", "Bundle"
	ResourceType string // "summoner", "mastery", "version", "bundle"
	Resource     string // name, id or version the call is about
}

// RequestInfo describes a single outgoing HTTP request.
type RequestInfo struct {
	Method  string
	URL     string
	Attempt int
}

// RequestResult describes the outcome of a single HTTP request.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	Error      error
	Retryable  bool
	RetryAfter int // seconds
}

// Hooks observe client activity. Implementations must be safe for
// concurrent use.
type Hooks interface {
	OnOperationStart(ctx context.Context, op OperationInfo) context.Context
	OnOperationEnd(ctx context.Context, op OperationInfo, err error, duration time.Duration)
	OnRequestStart(ctx context.Context, info RequestInfo) context.Context
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)
}

// GatingHooks can refuse an operation before it is started.
// OnOperationGate runs before OnOperationStart; a non-nil error aborts the
// operation and OnOperationStart/End are not called.
type GatingHooks interface {
	Hooks
	OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error)
}

// Sentinel gate rejections. They carry the rate_limit code so callers see
// local throttling the same way they see upstream 429s.
var (
	ErrRateLimited  = output.ErrGateRejected("local rate limit reached")
	ErrBulkheadFull = output.ErrGateRejected("too many concurrent requests")
	ErrCircuitOpen  = output.ErrGateRejected("upstream circuit breaker is open")
)

// NoopHooks does nothing.
type NoopHooks struct{}

func (NoopHooks) OnOperationStart(ctx context.Context, _ OperationInfo) context.Context { return ctx }
func (NoopHooks) OnOperationEnd(context.Context, OperationInfo, error, time.Duration)   {}
func (NoopHooks) OnRequestStart(ctx context.Context, _ RequestInfo) context.Context     { return ctx }
func (NoopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)              {}

// ChainHooks fans out to several hooks. Gates run in order and the first
// rejection wins; Start callbacks run in order, End callbacks in reverse.
type ChainHooks struct {
	hooks []Hooks
}

// NewChainHooks combines hooks, skipping nils.
func NewChainHooks(hooks ...Hooks) *ChainHooks {
	c := &ChainHooks{}
	for _, h := range hooks {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
	return c
}

func (c *ChainHooks) OnOperationGate(ctx context.Context, op OperationInfo) (context.Context, error) {
	for _, h := range c.hooks {
		g, ok := h.(GatingHooks)
		if !ok {
			continue
		}
		var err error
		ctx, err = g.OnOperationGate(ctx, op)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

func (c *ChainHooks) OnOperationStart(ctx context.Context, op OperationInfo) context.Context {
	for _, h := range c.hooks {
		ctx = h.OnOperationStart(ctx, op)
	}
	return ctx
}

func (c *ChainHooks) OnOperationEnd(ctx context.Context, op OperationInfo, err error, d time.Duration) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].OnOperationEnd(ctx, op, err, d)
	}
}

func (c *ChainHooks) OnRequestStart(ctx context.Context, info RequestInfo) context.Context {
	for _, h := range c.hooks {
		ctx = h.OnRequestStart(ctx, info)
	}
	return ctx
}

func (c *ChainHooks) OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult) {
	for i := len(c.hooks) - 1; i >= 0; i-- {
		c.hooks[i].OnRequestEnd(ctx, info, result)
	}
}

var (
	_ Hooks       = NoopHooks{}
	_ GatingHooks = (*ChainHooks)(nil)
)
