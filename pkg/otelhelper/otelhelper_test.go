package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := StartSpan(context.Background(), tracer, "run", attribute.String(RunIDKey, "run-1"))
	SetError(span, errors.New("boom"), attribute.String(StepIDKey, "start"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "run", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String(RunIDKey, "run-1"))

	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Attributes, attribute.String(StepIDKey, "start"))
	assert.Contains(t, events[0].Attributes, attribute.String(ErrorTypeKey, "*errors.errorString"))
}

func TestStartSpan_DefaultsToGlobalTracer(t *testing.T) {
	ctx, span := StartSpan(context.Background(), nil, "noop")
	defer span.End()

	assert.NotNil(t, ctx)
}
