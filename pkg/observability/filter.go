package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// allowedPrefixes are attribute key prefixes that pass through the filter.
var allowedPrefixes = []string{
	"stackdev.",
	"device",
	"op",
	"session",
	"error.",
	"http.",
	"mcp.",
	"fuse.",
}

// exceptionEvent is the event name RecordError uses.
const exceptionEvent = "exception"

// blockedKeys are exact attribute keys that are always stripped.
var blockedKeys = map[string]bool{
	"stack.values":  true,
	"request.body":  true,
	"response.body": true,
}

// attributeFilter is a SpanProcessor that strips unknown attributes before
// forwarding to a delegate processor. Stack contents never reach the
// exporter.
type attributeFilter struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger

	// warned holds keys already reported, so each key is logged once.
	warned sync.Map
}

// NewAttributeFilter returns a SpanProcessor that filters span and span
// event attributes against an allow-list. When logger is non-nil, the first
// drop of each key is logged as a warning.
func NewAttributeFilter(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &attributeFilter{delegate: delegate, logger: logger}
}

// OnStart delegates to the wrapped processor.
func (f *attributeFilter) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	f.delegate.OnStart(parent, s)
}

// OnEnd wraps the span in a filtered view, then delegates.
func (f *attributeFilter) OnEnd(s sdktrace.ReadOnlySpan) {
	f.delegate.OnEnd(&filteredSpan{ReadOnlySpan: s, filter: f})
}

// Shutdown delegates to the wrapped processor.
func (f *attributeFilter) Shutdown(ctx context.Context) error {
	err := f.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (f *attributeFilter) ForceFlush(ctx context.Context) error {
	err := f.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("attribute filter flush: %w", err)
	}

	return nil
}

func (f *attributeFilter) isAllowed(key string) bool {
	if blockedKeys[key] {
		f.warn(key)

		return false
	}

	if key == "error" {
		return true
	}

	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}

	f.warn(key)

	return false
}

func (f *attributeFilter) warn(key string) {
	if f.logger == nil {
		return
	}

	if _, seen := f.warned.LoadOrStore(key, struct{}{}); seen {
		return
	}

	f.logger.Warn("attribute blocked by filter", "key", key)
}

func (f *attributeFilter) filter(attrs []attribute.KeyValue) []attribute.KeyValue {
	kept := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		if f.isAllowed(string(kv.Key)) {
			kept = append(kept, kv)
		}
	}

	return kept
}

// filteredSpan wraps a ReadOnlySpan and returns only allowed attributes.
type filteredSpan struct {
	sdktrace.ReadOnlySpan

	filter *attributeFilter
}

// Attributes returns only the allowed attributes.
func (s *filteredSpan) Attributes() []attribute.KeyValue {
	return s.filter.filter(s.ReadOnlySpan.Attributes())
}

// Events returns the span events with their attributes filtered. Recorded
// errors keep their exception attributes.
func (s *filteredSpan) Events() []sdktrace.Event {
	orig := s.ReadOnlySpan.Events()
	events := make([]sdktrace.Event, 0, len(orig))

	for _, ev := range orig {
		if ev.Name != exceptionEvent {
			ev.Attributes = s.filter.filter(ev.Attributes)
		}

		events = append(events, ev)
	}

	return events
}
