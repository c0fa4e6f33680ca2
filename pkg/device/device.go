// Package device implements the session lifecycle manager for the shared
// bounded stack.
//
// A Device allocates its stack lazily on the first Open and frees it on
// any Release, regardless of how many sessions are still open. A single
// mutex serializes every lifecycle and stack operation, so each call is
// atomic with respect to every other.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/stackdev/pkg/safeconv"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

const (
	defaultName = "stack0"
	spanPrefix  = "device."
)

// Device is a lifecycle-managed bounded stack. The zero value is not usable;
// create devices with New.
type Device struct {
	mu       sync.Mutex
	st       *stack.Stack
	closed   bool
	opens    uint64
	releases uint64

	opts options
}

// New creates a device in the uninitialized state.
func New(opts ...Option) (*Device, error) {
	cfg := options{
		defaultCapacity: DefaultCapacity,
		maxCapacity:     MaxCapacity,
		name:            defaultName,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.maxCapacity == 0 {
		return nil, fmt.Errorf("%w: max capacity must be positive", stack.ErrInvalidSize)
	}

	if cfg.defaultCapacity == 0 || cfg.defaultCapacity > cfg.maxCapacity {
		return nil, fmt.Errorf("%w: default capacity %d not in (0, %d]",
			stack.ErrInvalidSize, cfg.defaultCapacity, cfg.maxCapacity)
	}

	if cfg.alloc == nil {
		cfg.alloc = &stack.HeapAllocator{}
	}

	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}

	if cfg.tracer == nil {
		cfg.tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	cfg.logger = cfg.logger.With(slog.String("device", cfg.name))

	return &Device{opts: cfg}, nil
}

// Name returns the device label.
func (d *Device) Name() string {
	return d.opts.name
}

// Open begins a session. The first Open while uninitialized allocates a
// stack of the default capacity; later calls are no-ops that succeed.
func (d *Device) Open(ctx context.Context) error {
	return d.run(ctx, OpOpen, func() error {
		if d.closed {
			return ErrClosed
		}

		if d.st == nil {
			st, err := stack.New(d.opts.defaultCapacity, d.opts.alloc)
			if err != nil {
				return err
			}

			d.st = st
		}

		d.opens++

		return nil
	})
}

// Release ends a session. It frees the stack unconditionally, even when
// other sessions are still open, and never fails.
func (d *Device) Release(ctx context.Context) {
	_ = d.run(ctx, OpRelease, func() error {
		if d.closed {
			return nil
		}

		d.releases++
		d.teardownLocked()

		return nil
	})
}

// Push writes v on top of the stack.
func (d *Device) Push(ctx context.Context, v int32) error {
	return d.run(ctx, OpPush, func() error {
		st, err := d.readyLocked()
		if err != nil {
			return err
		}

		return st.Push(v)
	})
}

// Pop removes and returns the top of the stack.
func (d *Device) Pop(ctx context.Context) (int32, error) {
	var v int32

	err := d.run(ctx, OpPop, func() error {
		st, err := d.readyLocked()
		if err != nil {
			return err
		}

		v, err = st.Pop()

		return err
	})

	return v, err
}

// Resize changes the stack capacity, truncating live elements above the new
// capacity.
func (d *Device) Resize(ctx context.Context, n uint) error {
	return d.run(ctx, OpResize, func() error {
		return d.resizeLocked(n)
	})
}

// Control dispatches a numbered control command. CmdResize takes the new
// capacity as its argument; any other command is rejected.
func (d *Device) Control(ctx context.Context, cmd Command, arg uint64) error {
	return d.run(ctx, OpControl, func() error {
		if d.closed {
			return ErrClosed
		}

		switch cmd {
		case CmdResize:
			n := uint(arg)
			if uint64(n) != arg {
				return fmt.Errorf("%w: %d", stack.ErrInvalidSize, arg)
			}

			return d.resizeLocked(n)
		default:
			return fmt.Errorf("%w: %d", stack.ErrUnsupportedCommand, cmd)
		}
	})
}

// Close is the terminal teardown. It frees any outstanding stack; every
// later call except Stat and Release fails with ErrClosed.
func (d *Device) Close() error {
	return d.run(context.Background(), OpClose, func() error {
		d.teardownLocked()
		d.closed = true

		return nil
	})
}

// Stat returns a consistent snapshot of the device.
func (d *Device) Stat() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		Shape:           d.shapeLocked(),
		DefaultCapacity: safeconv.MustUintToInt(d.opts.defaultCapacity),
		MaxCapacity:     safeconv.MustUintToInt(d.opts.maxCapacity),
		Opens:           d.opens,
		Releases:        d.releases,
		Closed:          d.closed,
	}
}

// Values returns a copy of the live elements, bottom first, or nil when the
// stack does not exist.
func (d *Device) Values() []int32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.st == nil {
		return nil
	}

	return d.st.Values()
}

func (d *Device) readyLocked() (*stack.Stack, error) {
	if d.closed {
		return nil, ErrClosed
	}

	if d.st == nil {
		return nil, stack.ErrNotInitialized
	}

	return d.st, nil
}

func (d *Device) resizeLocked(n uint) error {
	st, err := d.readyLocked()
	if err != nil {
		return err
	}

	return st.Resize(n, d.opts.maxCapacity)
}

func (d *Device) teardownLocked() {
	if d.st == nil {
		return
	}

	d.st.Release()
	d.st = nil
}

func (d *Device) shapeLocked() Shape {
	if d.st == nil {
		return Shape{State: StateUninitialized}
	}

	return Shape{State: StateReady, Len: d.st.Len(), Cap: d.st.Cap()}
}

// run executes fn under the device lock and reports the outcome once the
// lock is released.
func (d *Device) run(ctx context.Context, op Op, fn func() error) error {
	ctx, span := d.opts.tracer.Start(ctx, spanPrefix+string(op),
		trace.WithAttributes(attribute.String("device", d.opts.name)),
	)
	defer span.End()

	d.mu.Lock()
	before := d.shapeLocked()
	err := fn()
	after := d.shapeLocked()
	d.mu.Unlock()

	ev := Event{Device: d.opts.name, Op: op, Err: err, Before: before, After: after}

	d.log(ctx, ev)

	if d.opts.recorder != nil {
		d.opts.recorder.Record(ctx, ev)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
	}

	return err
}

func (d *Device) log(ctx context.Context, ev Event) {
	attrs := []slog.Attr{
		slog.String("op", string(ev.Op)),
		slog.String("state", ev.After.State.String()),
		slog.Int("len", ev.After.Len),
		slog.Int("cap", ev.After.Cap),
	}

	if ev.Err != nil {
		attrs = append(attrs, slog.String("kind", Kind(ev.Err)), slog.String("error", ev.Err.Error()))
		d.opts.logger.LogAttrs(ctx, slog.LevelWarn, "stack operation failed", attrs...)

		return
	}

	if ev.Before.State != ev.After.State {
		d.opts.logger.LogAttrs(ctx, slog.LevelInfo, "stack "+ev.After.State.String(), attrs...)

		return
	}

	d.opts.logger.LogAttrs(ctx, slog.LevelDebug, "stack operation", attrs...)
}
