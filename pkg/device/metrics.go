package device

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricOpsTotal         = "stackdev.device.ops.total"
	metricDepth            = "stackdev.device.depth"
	metricCapacity         = "stackdev.device.capacity"
	metricTransitionsTotal = "stackdev.device.transitions.total"

	attrDevice = "device"
	attrOp     = "op"
	attrStatus = "status"
	attrState  = "state"
)

// Event describes one completed device operation.
type Event struct {
	Device string
	Op     Op
	Err    error
	Before Shape
	After  Shape
}

// Recorder receives one Event per device operation, after the device lock
// has been released.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Metrics records device events as OTel instruments. Depth and capacity
// are tracked as up-down counters fed with deltas, so devices sharing one
// Metrics add up.
type Metrics struct {
	opsTotal    metric.Int64Counter
	depth       metric.Int64UpDownCounter
	capacity    metric.Int64UpDownCounter
	transitions metric.Int64Counter
}

// NewMetrics creates device instruments from the given meter.
func NewMetrics(mt metric.Meter) (*Metrics, error) {
	opsTotal, err := mt.Int64Counter(metricOpsTotal,
		metric.WithDescription("Total number of stack operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricOpsTotal, err)
	}

	depth, err := mt.Int64UpDownCounter(metricDepth,
		metric.WithDescription("Number of live stack elements"),
		metric.WithUnit("{element}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricDepth, err)
	}

	capacity, err := mt.Int64UpDownCounter(metricCapacity,
		metric.WithDescription("Allocated stack capacity"),
		metric.WithUnit("{element}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCapacity, err)
	}

	transitions, err := mt.Int64Counter(metricTransitionsTotal,
		metric.WithDescription("Total number of lifecycle state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTransitionsTotal, err)
	}

	return &Metrics{
		opsTotal:    opsTotal,
		depth:       depth,
		capacity:    capacity,
		transitions: transitions,
	}, nil
}

// Record implements Recorder.
func (m *Metrics) Record(ctx context.Context, ev Event) {
	devAttr := attribute.String(attrDevice, ev.Device)

	m.opsTotal.Add(ctx, 1, metric.WithAttributes(
		devAttr,
		attribute.String(attrOp, string(ev.Op)),
		attribute.String(attrStatus, Kind(ev.Err)),
	))

	if delta := ev.After.Len - ev.Before.Len; delta != 0 {
		m.depth.Add(ctx, int64(delta), metric.WithAttributes(devAttr))
	}

	if delta := ev.After.Cap - ev.Before.Cap; delta != 0 {
		m.capacity.Add(ctx, int64(delta), metric.WithAttributes(devAttr))
	}

	if ev.Before.State != ev.After.State {
		m.transitions.Add(ctx, 1, metric.WithAttributes(
			devAttr,
			attribute.String(attrState, ev.After.State.String()),
		))
	}
}
