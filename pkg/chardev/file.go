// Package chardev exposes a device as a file-like session handle.
//
// Opening a File begins a session and closing it ends one. Each Read pops
// one value and each Write pushes one value, using a fixed 4-byte wire
// format. Buffers shorter than 4 bytes are rejected here and never reach
// the device.
package chardev

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

var (
	// ErrCopyFault reports a buffer that cannot carry one wire value.
	ErrCopyFault = errors.New("bad address")
	// ErrFileClosed reports use of a handle after Close.
	ErrFileClosed = errors.New("file already closed")
)

// File is one open session on a device. It is safe for concurrent use;
// the device serializes the underlying operations.
type File struct {
	dev     *device.Device
	onClose func(*device.Device)
	closed  atomic.Bool
}

// Open begins a session on dev.
func Open(ctx context.Context, dev *device.Device) (*File, error) {
	err := dev.Open(ctx)
	if err != nil {
		return nil, err
	}

	return &File{dev: dev}, nil
}

// OpenScoped acquires a device from sc and begins a session on it. Closing
// the file detaches the device from the scope.
func OpenScoped(ctx context.Context, sc *device.Scope) (*File, error) {
	dev, err := sc.Acquire()
	if err != nil {
		return nil, err
	}

	f, err := Open(ctx, dev)
	if err != nil {
		sc.Detach(dev)

		return nil, err
	}

	f.onClose = sc.Detach

	return f, nil
}

// Device returns the device behind the handle.
func (f *File) Device() *device.Device {
	return f.dev
}

// Read pops one value into p and reports ValueSize bytes read.
func (f *File) Read(p []byte) (int, error) {
	return f.ReadContext(context.Background(), p)
}

// ReadContext is Read with a context for tracing and logging.
func (f *File) ReadContext(ctx context.Context, p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	if len(p) < ValueSize {
		return 0, ErrCopyFault
	}

	v, err := f.dev.Pop(ctx)
	if err != nil {
		return 0, err
	}

	err = EncodeValue(p, v)
	if err != nil {
		return 0, err
	}

	return ValueSize, nil
}

// Write pushes the value held in the first ValueSize bytes of p. Longer
// buffers are consumed only up to ValueSize.
func (f *File) Write(p []byte) (int, error) {
	return f.WriteContext(context.Background(), p)
}

// WriteContext is Write with a context for tracing and logging.
func (f *File) WriteContext(ctx context.Context, p []byte) (int, error) {
	if f.closed.Load() {
		return 0, ErrFileClosed
	}

	v, err := DecodeValue(p)
	if err != nil {
		return 0, err
	}

	err = f.dev.Push(ctx, v)
	if err != nil {
		return 0, err
	}

	return ValueSize, nil
}

// Ioctl issues a control command on the session's device.
func (f *File) Ioctl(ctx context.Context, cmd device.Command, arg uint64) error {
	if f.closed.Load() {
		return ErrFileClosed
	}

	return f.dev.Control(ctx, cmd, arg)
}

// Close ends the session. The device's stack is freed even if other
// sessions still have it open. A second Close returns ErrFileClosed.
func (f *File) Close() error {
	return f.CloseContext(context.Background())
}

// CloseContext is Close with a context for tracing and logging.
func (f *File) CloseContext(ctx context.Context) error {
	if !f.closed.CompareAndSwap(false, true) {
		return ErrFileClosed
	}

	f.dev.Release(ctx)

	if f.onClose != nil {
		f.onClose(f.dev)
	}

	return nil
}
