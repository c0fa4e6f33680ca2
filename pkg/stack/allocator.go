package stack

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/stackdev/pkg/safeconv"
)

// entrySize is the size of one stack slot in bytes.
const entrySize = 4

// Allocator hands out and takes back stack buffers.
type Allocator interface {
	// Allocate returns a buffer of exactly n entries or an error wrapping
	// ErrAllocationFailure.
	Allocate(n uint) ([]int32, error)
	// Free returns a buffer obtained from Allocate.
	Free(buf []int32)
}

// HeapAllocator allocates buffers on the Go heap, optionally bounded by a
// byte budget shared by every buffer it has handed out.
// The zero value is an unbounded allocator.
type HeapAllocator struct {
	mu    sync.Mutex
	limit uint64
	inUse uint64
}

// NewHeapAllocator creates an allocator bounded to limit bytes. Zero disables
// the bound.
func NewHeapAllocator(limit uint64) *HeapAllocator {
	return &HeapAllocator{limit: limit}
}

// ParseMemoryLimit parses a humanize size string (e.g. "64KiB", "1MB").
// An empty string means unbounded and yields zero.
func ParseMemoryLimit(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}

	limit, err := humanize.ParseBytes(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse memory limit %q: %w", raw, err)
	}

	return limit, nil
}

// Allocate implements Allocator.
func (ha *HeapAllocator) Allocate(n uint) ([]int32, error) {
	need := uint64(n) * entrySize

	ha.mu.Lock()
	defer ha.mu.Unlock()

	if ha.limit > 0 && ha.inUse+need > ha.limit {
		return nil, fmt.Errorf("%w: %s requested, %s of %s in use", ErrAllocationFailure,
			humanize.IBytes(need), humanize.IBytes(ha.inUse), humanize.IBytes(ha.limit))
	}

	ha.inUse += need

	return make([]int32, n), nil
}

// Free implements Allocator.
func (ha *HeapAllocator) Free(buf []int32) {
	released := uint64(safeconv.MustIntToUint(len(buf))) * entrySize

	ha.mu.Lock()
	defer ha.mu.Unlock()

	ha.inUse -= min(released, ha.inUse)
}

// InUse reports the number of bytes currently handed out.
func (ha *HeapAllocator) InUse() uint64 {
	ha.mu.Lock()
	defer ha.mu.Unlock()

	return ha.inUse
}

// Limit reports the configured byte budget, zero when unbounded.
func (ha *HeapAllocator) Limit() uint64 {
	return ha.limit
}
