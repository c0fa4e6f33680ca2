package device

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

// Capacity defaults inherited from the character device this package models.
const (
	// DefaultCapacity is the capacity allocated on the first session begin.
	DefaultCapacity = 1024
	// MaxCapacity is the largest capacity resize accepts.
	MaxCapacity = 1024
)

type options struct {
	defaultCapacity uint
	maxCapacity     uint
	alloc           stack.Allocator
	logger          *slog.Logger
	recorder        Recorder
	tracer          trace.Tracer
	name            string
}

// Option configures a Device.
type Option func(*options)

// WithDefaultCapacity sets the capacity allocated on session begin.
func WithDefaultCapacity(n uint) Option {
	return func(o *options) {
		o.defaultCapacity = n
	}
}

// WithMaxCapacity sets the upper bound accepted by resize.
func WithMaxCapacity(n uint) Option {
	return func(o *options) {
		o.maxCapacity = n
	}
}

// WithAllocator sets the buffer allocator. Devices sharing an allocator
// share its byte budget.
func WithAllocator(alloc stack.Allocator) Option {
	return func(o *options) {
		o.alloc = alloc
	}
}

// WithLogger sets the logger used for per-operation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec Recorder) Option {
	return func(o *options) {
		o.recorder = rec
	}
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithName labels the device in logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}
