//go:build !linux

package fusedev

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

// ErrUnsupported reports that FUSE mounting is not available on this platform.
var ErrUnsupported = errors.New("fuse mounts are only supported on linux")

// Server is a mounted device file system.
type Server struct{}

// Mount always fails on this platform.
func Mount(_, _ string, _ *device.Device, _ *slog.Logger) (*Server, error) {
	return nil, ErrUnsupported
}

// Serve always fails on this platform.
func (s *Server) Serve(_ context.Context) error {
	return ErrUnsupported
}

// Unmount always fails on this platform.
func (s *Server) Unmount() error {
	return ErrUnsupported
}
