package device_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

func countingFactory(created *atomic.Int64) device.Factory {
	return func() (*device.Device, error) {
		n := created.Add(1)

		return device.New(device.WithName(fmt.Sprintf("stack%d", n-1)))
	}
}

func TestParseIsolation(t *testing.T) {
	t.Parallel()

	mode, err := device.ParseIsolation("Global")
	require.NoError(t, err)
	assert.Equal(t, device.IsolationGlobal, mode)

	mode, err = device.ParseIsolation(" session ")
	require.NoError(t, err)
	assert.Equal(t, device.IsolationSession, mode)

	mode, err = device.ParseIsolation("")
	require.NoError(t, err)
	assert.Equal(t, device.IsolationGlobal, mode)

	_, err = device.ParseIsolation("per-thread")
	require.ErrorIs(t, err, device.ErrUnknownIsolation)
}

func TestScope_GlobalSharesDevice(t *testing.T) {
	t.Parallel()

	var created atomic.Int64

	sc, err := device.NewScope(device.IsolationGlobal, countingFactory(&created))
	require.NoError(t, err)
	assert.Equal(t, device.IsolationGlobal, sc.Mode())

	first, err := sc.Acquire()
	require.NoError(t, err)

	second, err := sc.Acquire()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int64(1), created.Load())

	// Detaching the shared device keeps it usable.
	sc.Detach(first)
	require.NoError(t, second.Open(context.Background()))
	assert.Len(t, sc.Devices(), 1)
}

func TestScope_SessionIsolates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var created atomic.Int64

	sc, err := device.NewScope(device.IsolationSession, countingFactory(&created))
	require.NoError(t, err)
	assert.Empty(t, sc.Devices())

	first, err := sc.Acquire()
	require.NoError(t, err)

	second, err := sc.Acquire()
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	require.NoError(t, first.Open(ctx))
	require.NoError(t, second.Open(ctx))
	require.NoError(t, first.Push(ctx, 1))

	// Ending the first session does not touch the second one.
	first.Release(ctx)
	sc.Detach(first)

	assert.True(t, first.Stat().Closed)
	require.NoError(t, second.Push(ctx, 2))
	assert.Equal(t, []int32{2}, second.Values())
	assert.Len(t, sc.Devices(), 1)
}

func TestScope_Shutdown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var created atomic.Int64

	sc, err := device.NewScope(device.IsolationGlobal, countingFactory(&created))
	require.NoError(t, err)

	dev, err := sc.Acquire()
	require.NoError(t, err)
	require.NoError(t, dev.Open(ctx))

	require.NoError(t, sc.Shutdown())
	assert.True(t, dev.Stat().Closed)

	_, err = sc.Acquire()
	require.ErrorIs(t, err, device.ErrClosed)
}

func TestScope_FactoryError(t *testing.T) {
	t.Parallel()

	failing := func() (*device.Device, error) {
		return device.New(device.WithMaxCapacity(0))
	}

	_, err := device.NewScope(device.IsolationGlobal, failing)
	require.ErrorIs(t, err, stack.ErrInvalidSize)

	sc, err := device.NewScope(device.IsolationSession, failing)
	require.NoError(t, err)

	_, err = sc.Acquire()
	require.ErrorIs(t, err, stack.ErrInvalidSize)

	_, err = device.NewScope("bogus", failing)
	require.ErrorIs(t, err, device.ErrUnknownIsolation)
}
