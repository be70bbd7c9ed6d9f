package apm

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/blockviz/internal/apperror"
)

// Span is the subset of an otel span the application records on.
type Span interface {
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
	// NoticeError records err with its app error code. A superseded
	// navigation is an outcome, not a failure, and only adds an event.
	NoticeError(err error)
	End()
}

type traceSpan struct {
	span trace.Span
}

func newSpan(span trace.Span) Span {
	return &traceSpan{span: span}
}

func (t *traceSpan) SetAttributes(attrs ...attribute.KeyValue) {
	t.span.SetAttributes(attrs...)
}

func (t *traceSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	t.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (t *traceSpan) NoticeError(err error) {
	if err == nil {
		return
	}
	code := apperror.GetCode(err)
	t.span.SetAttributes(attribute.String("error.code", string(code)))
	if code == apperror.CodeNavigationSuperseded {
		t.span.AddEvent("superseded")
		return
	}
	t.span.RecordError(err)
	t.span.SetStatus(codes.Error, err.Error())
}

func (t *traceSpan) End() {
	t.span.End()
}
