package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
)

var _ riot.Hooks = (*Metrics)(nil)

// Metrics exports upstream and cache activity to Prometheus. Each Metrics
// owns its registry, so several can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	opDuration  *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	cacheLookup *prometheus.CounterVec
	cacheSweep  *prometheus.CounterVec
	commands    *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kurisu",
			Name:      "upstream_operations_total",
			Help:      "Upstream operations by service, operation and outcome code.",
		}, []string{"service", "operation", "code"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kurisu",
			Name:      "upstream_operation_duration_seconds",
			Help:      "Upstream operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "operation"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kurisu",
			Name:      "upstream_requests_total",
			Help:      "Upstream HTTP requests by status code.",
		}, []string{"status"}),
		cacheLookup: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kurisu",
			Name:      "cache_lookups_total",
			Help:      "Resolver cache lookups by cache and result.",
		}, []string{"cache", "result"}),
		cacheSweep: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kurisu",
			Name:      "cache_swept_entries_total",
			Help:      "Expired entries removed by sweeps.",
		}, []string{"cache"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kurisu",
			Name:      "commands_total",
			Help:      "Dispatched chat commands by name and outcome.",
		}, []string{"command", "outcome"}),
	}
	reg.MustRegister(m.operations, m.opDuration, m.requests, m.cacheLookup, m.cacheSweep, m.commands,
		prometheus.NewGoCollector())
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OnOperationStart(ctx context.Context, _ riot.OperationInfo) context.Context {
	return ctx
}

func (m *Metrics) OnOperationEnd(_ context.Context, op riot.OperationInfo, err error, d time.Duration) {
	code := "ok"
	if err != nil {
		code = output.AsError(err).Code
	}
	m.operations.WithLabelValues(op.Service, op.Operation, code).Inc()
	m.opDuration.WithLabelValues(op.Service, op.Operation).Observe(d.Seconds())
}

func (m *Metrics) OnRequestStart(ctx context.Context, _ riot.RequestInfo) context.Context {
	return ctx
}

func (m *Metrics) OnRequestEnd(_ context.Context, _ riot.RequestInfo, result riot.RequestResult) {
	status := "error"
	if result.StatusCode > 0 {
		status = strconv.Itoa(result.StatusCode)
	}
	m.requests.WithLabelValues(status).Inc()
}

// ObserveLookup implements the resolver's cache observer.
func (m *Metrics) ObserveLookup(cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookup.WithLabelValues(cacheName, result).Inc()
}

func (m *Metrics) ObserveSweep(cacheName string, removed int) {
	m.cacheSweep.WithLabelValues(cacheName).Add(float64(removed))
}

// ObserveCommand counts a dispatched command. Outcome is "ok" or an error
// code.
func (m *Metrics) ObserveCommand(command, outcome string) {
	m.commands.WithLabelValues(command, outcome).Inc()
}
