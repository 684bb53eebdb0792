package observability

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/riot"
	"github.com/quilldev/kurisu/internal/version"
)

const tracerName = "github.com/quilldev/kurisu/internal/riot"

// ShutdownFunc flushes and stops a tracer provider.
type ShutdownFunc func(ctx context.Context) error

// NewTracerProvider exports spans as JSON lines to w. Spans are exported
// synchronously so a one-shot command loses nothing on exit.
func NewTracerProvider(w io.Writer) (*sdktrace.TracerProvider, ShutdownFunc, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "kurisu"),
		attribute.String("service.version", version.Version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)
	return tp, tp.Shutdown, nil
}

var _ riot.Hooks = (*TracingHooks)(nil)

// TracingHooks opens a span per operation and a child span per HTTP request.
type TracingHooks struct {
	tracer trace.Tracer
}

// NewTracingHooks creates hooks on the given provider.
func NewTracingHooks(tp trace.TracerProvider) *TracingHooks {
	return &TracingHooks{tracer: tp.Tracer(tracerName)}
}

func (h *TracingHooks) OnOperationStart(ctx context.Context, op riot.OperationInfo) context.Context {
	ctx, _ = h.tracer.Start(ctx, op.Service+"."+op.Operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("kurisu.resource_type", op.ResourceType),
			attribute.String("kurisu.resource", op.Resource),
		),
	)
	return ctx
}

func (h *TracingHooks) OnOperationEnd(ctx context.Context, _ riot.OperationInfo, err error, _ time.Duration) {
	span := trace.SpanFromContext(ctx)
	endSpan(span, err)
}

func (h *TracingHooks) OnRequestStart(ctx context.Context, info riot.RequestInfo) context.Context {
	ctx, _ = h.tracer.Start(ctx, "HTTP "+info.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", info.Method),
			attribute.String("http.url", scrubURL(info.URL)),
		),
	)
	return ctx
}

func (h *TracingHooks) OnRequestEnd(ctx context.Context, _ riot.RequestInfo, result riot.RequestResult) {
	span := trace.SpanFromContext(ctx)
	if result.StatusCode > 0 {
		span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	}
	if result.RetryAfter > 0 {
		span.SetAttributes(attribute.Int("http.retry_after", result.RetryAfter))
	}
	endSpan(span, result.Error)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, output.AsError(err).Code)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
