package stack

import "errors"

// Error taxonomy shared by the core, the lifecycle manager and the adaptors.
var (
	// ErrNotInitialized reports an operation on a stack that does not exist.
	ErrNotInitialized = errors.New("stack not initialized")
	// ErrEmpty reports a pop on a stack with no live elements.
	ErrEmpty = errors.New("stack is empty")
	// ErrExhausted reports a push on a full stack.
	ErrExhausted = errors.New("stack is full")
	// ErrInvalidSize reports a capacity outside (0, max].
	ErrInvalidSize = errors.New("invalid stack size")
	// ErrAllocationFailure reports that a buffer could not be obtained.
	ErrAllocationFailure = errors.New("cannot allocate stack buffer")
	// ErrUnsupportedCommand reports an unknown control command.
	ErrUnsupportedCommand = errors.New("unsupported control command")
)
