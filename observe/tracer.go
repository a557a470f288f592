package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing for client operations such as
// transport connects and manifest fetches.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for the named operation.
	StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// newTracer creates a new Tracer wrapping the given OpenTelemetry tracer.
func newTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new client span with the given attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// nopTracer creates spans that record nothing.
type nopTracer struct {
	tracer trace.Tracer
}

// NopTracer returns a Tracer whose spans record nothing.
func NopTracer() Tracer {
	return &nopTracer{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *nopTracer) StartSpan(ctx context.Context, name string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name)
}

func (t *nopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}

var _ Tracer = (*tracerImpl)(nil)
var _ Tracer = (*nopTracer)(nil)
