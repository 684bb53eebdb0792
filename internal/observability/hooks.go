package observability

import (
	"context"
	"sync"
	"time"

	"github.com/quilldev/kurisu/internal/riot"
)

var _ riot.Hooks = (*CLIHooks)(nil)

// CLIHooks feeds the session collector and prints trace lines by
// verbosity:
//   - 0: silent, counters only
//   - 1: operations and cache lookups
//   - 2: operations, cache lookups and HTTP requests
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates hooks. A nil collector or writer disables that part.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{level: level, collector: collector, writer: writer}
}

// SetLevel changes the verbosity level at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// Level returns the current verbosity level.
func (h *CLIHooks) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

func (h *CLIHooks) OnOperationStart(ctx context.Context, op riot.OperationInfo) context.Context {
	if level, _, w := h.snapshot(); level >= 1 && w != nil {
		w.WriteOperationStart(op)
	}
	return ctx
}

func (h *CLIHooks) OnOperationEnd(_ context.Context, op riot.OperationInfo, err error, d time.Duration) {
	level, c, w := h.snapshot()
	if c != nil {
		c.RecordOperation(op, err, d)
	}
	if level >= 1 && w != nil {
		w.WriteOperationEnd(op, err, d)
	}
}

func (h *CLIHooks) OnRequestStart(ctx context.Context, info riot.RequestInfo) context.Context {
	if level, _, w := h.snapshot(); level >= 2 && w != nil {
		w.WriteRequestStart(info)
	}
	return ctx
}

func (h *CLIHooks) OnRequestEnd(_ context.Context, info riot.RequestInfo, result riot.RequestResult) {
	level, c, w := h.snapshot()
	if c != nil {
		c.RecordRequest(info, result)
	}
	if level >= 2 && w != nil {
		w.WriteRequestEnd(info, result)
	}
}

// ObserveLookup makes CLIHooks usable as the resolver's cache observer.
func (h *CLIHooks) ObserveLookup(cacheName string, hit bool) {
	level, c, w := h.snapshot()
	if c != nil {
		c.ObserveLookup(cacheName, hit)
	}
	if level >= 1 && w != nil {
		w.WriteCacheLookup(cacheName, hit)
	}
}

func (h *CLIHooks) ObserveSweep(cacheName string, removed int) {
	if _, c, _ := h.snapshot(); c != nil {
		c.ObserveSweep(cacheName, removed)
	}
}
