package stack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

const (
	// testCapacity is the capacity used by most core tests.
	testCapacity = 8

	// testMaxSize is the resize upper bound used by the core tests.
	testMaxSize = 1024
)

// newTestStack creates a stack and pushes values onto it in order.
func newTestStack(t *testing.T, capacity uint, values ...int32) *stack.Stack {
	t.Helper()

	st, err := stack.New(capacity, nil)
	require.NoError(t, err)

	for _, v := range values {
		require.NoError(t, st.Push(v))
	}

	return st
}

// drain pops every element and returns them in pop order.
func drain(t *testing.T, st *stack.Stack) []int32 {
	t.Helper()

	out := make([]int32, 0, st.Len())

	for st.Len() > 0 {
		v, err := st.Pop()
		require.NoError(t, err)

		out = append(out, v)
	}

	return out
}

func TestNew_ZeroCapacity(t *testing.T) {
	t.Parallel()

	st, err := stack.New(0, nil)
	require.ErrorIs(t, err, stack.ErrInvalidSize)
	assert.Nil(t, st)
}

func TestPushPop_LIFO(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, testCapacity, 1, 2, 3, 4, 5)

	assert.Equal(t, []int32{5, 4, 3, 2, 1}, drain(t, st))
	assert.Equal(t, 0, st.Len())
}

func TestPush_Full(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, 3, 7, 8, 9)

	err := st.Push(10)
	require.ErrorIs(t, err, stack.ErrExhausted)
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, []int32{7, 8, 9}, st.Values())
}

func TestPop_Empty(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, testCapacity)

	_, err := st.Pop()
	require.ErrorIs(t, err, stack.ErrEmpty)
	assert.Equal(t, 0, st.Len())
}

func TestPushPop_NegativeAndExtremes(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, testCapacity, -1, 2147483647, -2147483648, 0)

	assert.Equal(t, []int32{0, -2147483648, 2147483647, -1}, drain(t, st))
}

func TestResize_GrowPreserves(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, 3, 1, 2, 3)

	require.NoError(t, st.Resize(6, testMaxSize))
	assert.Equal(t, 6, st.Cap())
	assert.Equal(t, []int32{1, 2, 3}, st.Values())

	for i := int32(4); i <= 6; i++ {
		require.NoError(t, st.Push(i))
	}

	require.ErrorIs(t, st.Push(7), stack.ErrExhausted)
	assert.Equal(t, []int32{6, 5, 4, 3, 2, 1}, drain(t, st))
}

func TestResize_ShrinkTruncates(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, testCapacity, 10, 20, 30, 40, 50)

	require.NoError(t, st.Resize(3, testMaxSize))
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, 3, st.Cap())
	assert.Equal(t, []int32{10, 20, 30}, st.Values())

	// Same capacity again leaves contents untouched.
	require.NoError(t, st.Resize(3, testMaxSize))
	assert.Equal(t, []int32{10, 20, 30}, st.Values())
}

func TestResize_InvalidSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		capacity uint
	}{
		{name: "zero", capacity: 0},
		{name: "above max", capacity: testMaxSize + 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			st := newTestStack(t, 4, 1, 2)

			err := st.Resize(tc.capacity, testMaxSize)
			require.ErrorIs(t, err, stack.ErrInvalidSize)
			assert.Equal(t, 4, st.Cap())
			assert.Equal(t, []int32{1, 2}, st.Values())
		})
	}
}

func TestResize_MaxBoundaryAccepted(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, 1)

	require.NoError(t, st.Resize(testMaxSize, testMaxSize))
	assert.Equal(t, testMaxSize, st.Cap())
}

func TestResize_AllocationFailureLeavesStack(t *testing.T) {
	t.Parallel()

	// Budget fits the initial buffer but not a second one during resize.
	alloc := stack.NewHeapAllocator(4 * 4)

	st, err := stack.New(4, alloc)
	require.NoError(t, err)
	require.NoError(t, st.Push(42))

	err = st.Resize(2, testMaxSize)
	require.ErrorIs(t, err, stack.ErrAllocationFailure)
	assert.Equal(t, 4, st.Cap())
	assert.Equal(t, []int32{42}, st.Values())
	assert.Equal(t, uint64(16), alloc.InUse())
}

func TestValues_IsCopy(t *testing.T) {
	t.Parallel()

	st := newTestStack(t, testCapacity, 1, 2)

	vals := st.Values()
	vals[0] = 99

	assert.Equal(t, []int32{1, 2}, st.Values())
}

func TestRelease_ReturnsBudget(t *testing.T) {
	t.Parallel()

	alloc := stack.NewHeapAllocator(0)

	st, err := stack.New(testCapacity, alloc)
	require.NoError(t, err)
	assert.Equal(t, uint64(testCapacity*4), alloc.InUse())

	require.NoError(t, st.Resize(2, testMaxSize))
	assert.Equal(t, uint64(2*4), alloc.InUse())

	st.Release()
	st.Release()
	assert.Equal(t, uint64(0), alloc.InUse())
	assert.Equal(t, 0, st.Cap())
}
