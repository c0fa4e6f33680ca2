package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

func TestAttributeFilter_KeepsKnownKeys(t *testing.T) {
	t.Parallel()

	keys := observability.ProbeFilterAttributes(
		attribute.String("device", "stack0"),
		attribute.String("op", "push"),
		attribute.String("session", "abc"),
		attribute.Int("stackdev.depth", 3),
		attribute.String("http.route", "GET /v1/stat"),
		attribute.String("mcp.tool", "stack_pop"),
		attribute.Bool("error", true),
	)

	assert.ElementsMatch(t, []string{
		"device", "op", "session", "stackdev.depth", "http.route", "mcp.tool", "error",
	}, keys)
}

func TestAttributeFilter_DropsBlockedAndUnknownKeys(t *testing.T) {
	t.Parallel()

	keys := observability.ProbeFilterAttributes(
		attribute.String("stack.values", "1,2,3"),
		attribute.String("request.body", "AAAA"),
		attribute.String("hostname", "box"),
		attribute.String("op", "pop"),
	)

	assert.Equal(t, []string{"op"}, keys)
}

func TestAttributeFilter_FiltersEventsAndWarnsOnce(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&logs, nil))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(observability.NewAttributeFilter(sdktrace.NewSimpleSpanProcessor(exporter), logger)),
	)

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	for range 2 {
		_, span := tp.Tracer("test").Start(context.Background(), "device.push")
		span.SetAttributes(attribute.String("hostname", "box"))
		span.AddEvent("snapshot", trace.WithAttributes(
			attribute.String("stack.values", "1,2"),
			attribute.Int("stackdev.depth", 2),
		))
		span.RecordError(errors.New("stack exhausted"))
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	events := spans[0].Events
	require.Len(t, events, 2)
	assert.Equal(t, "snapshot", events[0].Name)
	require.Len(t, events[0].Attributes, 1)
	assert.Equal(t, "stackdev.depth", string(events[0].Attributes[0].Key))
	assert.Equal(t, "exception", events[1].Name)
	assert.NotEmpty(t, events[1].Attributes)

	assert.Equal(t, 1, strings.Count(logs.String(), "key=hostname"))
	assert.Equal(t, 1, strings.Count(logs.String(), "key=stack.values"))
}
