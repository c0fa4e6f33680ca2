// Package stack provides the bounded int32 stack core: a fixed-capacity
// buffer with push, pop and resize.
//
// A Stack is not safe for concurrent use. The lifecycle manager in
// package device owns every Stack and serializes all calls under one lock.
package stack

import "fmt"

// Stack is a bounded LIFO buffer of int32 values.
// Slots at and above top hold stale data and are never read.
type Stack struct {
	entries []int32
	top     int
	alloc   Allocator
}

// New allocates a stack of the given capacity from alloc.
// A nil alloc uses an unbounded heap allocator.
func New(capacity uint, alloc Allocator) (*Stack, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, capacity)
	}

	if alloc == nil {
		alloc = &HeapAllocator{}
	}

	entries, err := alloc.Allocate(capacity)
	if err != nil {
		return nil, err
	}

	return &Stack{entries: entries, alloc: alloc}, nil
}

// Push writes v at index top and then increments top.
func (s *Stack) Push(v int32) error {
	if s.top >= len(s.entries) {
		return ErrExhausted
	}

	s.entries[s.top] = v
	s.top++

	return nil
}

// Pop decrements top and returns the value previously at the top.
func (s *Stack) Pop() (int32, error) {
	if s.top == 0 {
		return 0, ErrEmpty
	}

	s.top--

	return s.entries[s.top], nil
}

// Resize replaces the buffer with one of newCapacity entries, keeping the
// first min(top, newCapacity) live elements in place. Shrinking below top
// discards the elements above newCapacity and clamps top.
//
// newCapacity must lie in (0, limit]. On any error the stack is unchanged.
func (s *Stack) Resize(newCapacity, limit uint) error {
	if newCapacity == 0 || newCapacity > limit {
		return fmt.Errorf("%w: %d not in (0, %d]", ErrInvalidSize, newCapacity, limit)
	}

	entries, err := s.alloc.Allocate(newCapacity)
	if err != nil {
		return err
	}

	kept := copy(entries, s.entries[:s.top])

	s.alloc.Free(s.entries)
	s.entries = entries
	s.top = kept

	return nil
}

// Len returns the number of live elements.
func (s *Stack) Len() int {
	return s.top
}

// Cap returns the allocated capacity.
func (s *Stack) Cap() int {
	return len(s.entries)
}

// Values returns a copy of the live elements, bottom first.
func (s *Stack) Values() []int32 {
	out := make([]int32, s.top)
	copy(out, s.entries[:s.top])

	return out
}

// Release returns the buffer to the allocator. The stack must not be used
// afterwards.
func (s *Stack) Release() {
	if s.entries == nil {
		return
	}

	s.alloc.Free(s.entries)
	s.entries = nil
	s.top = 0
}
