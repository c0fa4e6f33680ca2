package chardev_test

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

func TestEncodeValue_LittleEndian(t *testing.T) {
	t.Parallel()

	buf := make([]byte, chardev.ValueSize)

	require.NoError(t, chardev.EncodeValue(buf, 0x01020304))
	assert.Equal(t, []byte{0x04, 0x03, 0x02, 0x01}, buf)

	require.NoError(t, chardev.EncodeValue(buf, -1))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, buf)

	assert.Equal(t, []byte{0x0a, 0, 0, 0}, chardev.AppendValue(nil, 10))
}

func TestDecodeValue(t *testing.T) {
	t.Parallel()

	v, err := chardev.DecodeValue([]byte{0xfe, 0xff, 0xff, 0xff})
	require.NoError(t, err)
	assert.Equal(t, int32(-2), v)

	_, err = chardev.DecodeValue([]byte{1, 2, 3})
	require.ErrorIs(t, err, chardev.ErrCopyFault)

	require.ErrorIs(t, chardev.EncodeValue(make([]byte, 2), 1), chardev.ErrCopyFault)
}

func TestErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want syscall.Errno
	}{
		{err: nil, want: 0},
		{err: stack.ErrEmpty, want: syscall.EINVAL},
		{err: stack.ErrExhausted, want: syscall.ENOMEM},
		{err: stack.ErrAllocationFailure, want: syscall.ENOMEM},
		{err: stack.ErrInvalidSize, want: syscall.EINVAL},
		{err: stack.ErrUnsupportedCommand, want: syscall.EINVAL},
		{err: stack.ErrNotInitialized, want: syscall.ENXIO},
		{err: device.ErrClosed, want: syscall.ENXIO},
		{err: chardev.ErrCopyFault, want: syscall.EFAULT},
		{err: chardev.ErrFileClosed, want: syscall.EBADF},
		{err: fmt.Errorf("wrapped: %w", stack.ErrEmpty), want: syscall.EINVAL},
		{err: assert.AnError, want: syscall.EIO},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, chardev.Errno(tc.err), "error %v", tc.err)
	}
}
