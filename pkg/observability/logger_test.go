package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

func newJSONLogger(buf *bytes.Buffer, mode observability.AppMode, env string) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(observability.NewTracingHandler(inner, "stackdev", env, mode))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ModeServe, "test")

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "stack ready")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "stackdev", record["service"])
	assert.Equal(t, "test", record["env"])
	assert.Equal(t, "serve", record["mode"])
}

func TestTracingHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ModeMCP, "")
	logger.InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)

	_, hasTraceID := record["trace_id"]
	assert.False(t, hasTraceID)

	_, hasSession := record["session"]
	assert.False(t, hasSession)

	_, hasEnv := record["env"]
	assert.False(t, hasEnv)

	assert.Equal(t, "mcp", record["mode"])
}

func TestTracingHandler_InjectsSession(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ModeServe, "")

	ctx := observability.WithSession(context.Background(), "c0ffee")
	logger.DebugContext(ctx, "push")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "c0ffee", record["session"])

	id, ok := observability.SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "c0ffee", id)

	_, ok = observability.SessionFromContext(observability.WithSession(context.Background(), ""))
	assert.False(t, ok)
}

func TestTracingHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ModeCLI, "")
	logger.WithGroup("device").InfoContext(context.Background(), "stack ready", slog.String("name", "stack0"))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "stackdev", record["service"])

	group, ok := record["device"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "stack0", group["name"])
}

func TestTracingHandler_WithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, observability.ModeCLI, "")
	logger.With(slog.String("op", "push")).InfoContext(context.Background(), "started")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "push", record["op"])
	assert.Equal(t, "stackdev", record["service"])
}
