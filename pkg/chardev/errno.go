package chardev

import (
	"errors"
	"syscall"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

// Errno translates an error into the errno a device node would report.
// It returns 0 for nil.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCopyFault):
		return syscall.EFAULT
	case errors.Is(err, stack.ErrExhausted), errors.Is(err, stack.ErrAllocationFailure):
		return syscall.ENOMEM
	case errors.Is(err, stack.ErrEmpty),
		errors.Is(err, stack.ErrInvalidSize),
		errors.Is(err, stack.ErrUnsupportedCommand):
		return syscall.EINVAL
	case errors.Is(err, stack.ErrNotInitialized), errors.Is(err, device.ErrClosed):
		return syscall.ENXIO
	case errors.Is(err, ErrFileClosed):
		return syscall.EBADF
	default:
		return syscall.EIO
	}
}
