package apm

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fd1az/blockviz/internal/apperror"
)

func TestNewTraceProvider_Empty(t *testing.T) {
	tp, err := NewTraceProvider(useEmpty())
	require.NoError(t, err)
	assert.NoError(t, tp.Stop())
}

func TestNewTraceProvider_ConsoleExportsSpans(t *testing.T) {
	var buf bytes.Buffer

	tp, err := NewTraceProvider(WithConsoleWriter(&buf), WithServiceName("blockviz-test"))
	require.NoError(t, err)

	tracer := NewTracer("apm-test")
	ctx, span := tracer.Start(context.Background(), "navigate", attribute.Int64("block.target", 42))
	span.NoticeError(errors.New("boom"))
	span.End()

	assert.NotNil(t, tracer.SpanFromContext(ctx))
	require.NoError(t, tp.Stop())

	out := buf.String()
	assert.Contains(t, out, `"Name":"navigate"`)
	assert.Contains(t, out, "block.target")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, string(apperror.CodeUnknownError))
}

func TestSpan_SupersededIsNotAnError(t *testing.T) {
	var buf bytes.Buffer

	tp, err := NewTraceProvider(WithConsoleWriter(&buf))
	require.NoError(t, err)

	_, span := NewTracer("apm-test").Start(context.Background(), "navigate")
	span.NoticeError(apperror.New(apperror.CodeNavigationSuperseded))
	span.NoticeError(nil)
	span.End()
	require.NoError(t, tp.Stop())

	out := buf.String()
	assert.Contains(t, out, `"Name":"superseded"`)
	assert.Contains(t, out, string(apperror.CodeNavigationSuperseded))
	assert.NotContains(t, out, `"Code":"Error"`)
}
