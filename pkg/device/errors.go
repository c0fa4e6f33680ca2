package device

import (
	"errors"

	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

// ErrClosed reports a call on a device after terminal teardown.
var ErrClosed = errors.New("device closed")

// Error kinds used as log and metric attributes.
const (
	KindOK                 = "ok"
	KindNotInitialized     = "not_initialized"
	KindEmpty              = "empty"
	KindExhausted          = "exhausted"
	KindInvalidSize        = "invalid_size"
	KindAllocationFailure  = "allocation_failure"
	KindUnsupportedCommand = "unsupported_command"
	KindClosed             = "closed"
	KindUnknown            = "unknown"
)

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, stack.ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, stack.ErrEmpty):
		return KindEmpty
	case errors.Is(err, stack.ErrExhausted):
		return KindExhausted
	case errors.Is(err, stack.ErrInvalidSize):
		return KindInvalidSize
	case errors.Is(err, stack.ErrAllocationFailure):
		return KindAllocationFailure
	case errors.Is(err, stack.ErrUnsupportedCommand):
		return KindUnsupportedCommand
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindUnknown
	}
}
