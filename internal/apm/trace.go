// Package apm wires OpenTelemetry tracing: exporters, the global provider
// and a small span API used by the application layer.
package apm

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracer starts spans for one instrumentation scope.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span)
	SpanFromContext(ctx context.Context) Span
}

type otelTracer struct {
	scope string
}

// NewTracer returns a tracer for scope. The global provider is looked up on
// every Start so a provider installed later is still honoured.
func NewTracer(scope string) Tracer {
	return &otelTracer{scope: scope}
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, Span) {
	ctx, span := otel.Tracer(t.scope).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, newSpan(span)
}

func (t *otelTracer) SpanFromContext(ctx context.Context) Span {
	return newSpan(trace.SpanFromContext(ctx))
}
