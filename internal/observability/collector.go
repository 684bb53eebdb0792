// Package observability provides session metrics, trace output, structured
// logging, Prometheus metrics and OpenTelemetry spans for upstream calls.
package observability

import (
	"sync"
	"time"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

// SessionMetrics aggregates metrics for a CLI session or a serve run.
type SessionMetrics struct {
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	TotalRequests   int            `json:"total_requests"`
	FailedRequests  int            `json:"failed_requests"`
	TotalOperations int            `json:"total_operations"`
	FailedOps       int            `json:"failed_operations"`
	CacheHits       int            `json:"cache_hits"`
	CacheMisses     int            `json:"cache_misses"`
	Swept           int            `json:"swept"`
	ErrorsByCode    map[string]int `json:"errors_by_code,omitempty"`
	TotalLatency    time.Duration  `json:"total_latency_ns"`
}

// SessionCollector accumulates counters. It is safe for concurrent use and
// keeps no per-request history.
type SessionCollector struct {
	mu sync.Mutex

	startTime       time.Time
	totalRequests   int
	failedRequests  int
	totalOperations int
	failedOps       int
	cacheHits       int
	cacheMisses     int
	swept           int
	errorsByCode    map[string]int
	totalLatency    time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{
		startTime:    time.Now(),
		errorsByCode: make(map[string]int),
	}
}

// RecordRequest records one HTTP request.
func (c *SessionCollector) RecordRequest(_ riot.RequestInfo, result riot.RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += result.Duration
	if result.Error != nil {
		c.failedRequests++
	}
}

// RecordOperation records one client operation.
func (c *SessionCollector) RecordOperation(_ riot.OperationInfo, err error, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalOperations++
	if err != nil {
		c.failedOps++
		c.errorsByCode[output.AsError(err).Code]++
	}
}

// ObserveLookup counts resolver cache hits and misses.
func (c *SessionCollector) ObserveLookup(_ string, hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
}

// ObserveSweep counts entries removed by a sweep.
func (c *SessionCollector) ObserveSweep(_ string, removed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.swept += removed
}

// Summary returns a snapshot of the counters.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	byCode := make(map[string]int, len(c.errorsByCode))
	for k, v := range c.errorsByCode {
		byCode[k] = v
	}

	return SessionMetrics{
		StartTime:       c.startTime,
		EndTime:         time.Now(),
		TotalRequests:   c.totalRequests,
		FailedRequests:  c.failedRequests,
		TotalOperations: c.totalOperations,
		FailedOps:       c.failedOps,
		CacheHits:       c.cacheHits,
		CacheMisses:     c.cacheMisses,
		Swept:           c.swept,
		ErrorsByCode:    byCode,
		TotalLatency:    c.totalLatency,
	}
}

// Reset clears all counters and restarts the clock.
func (c *SessionCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c = SessionCollector{startTime: time.Now(), errorsByCode: make(map[string]int)}
}
