//go:build linux

// Package fusedev mounts a device as a FUSE file system, standing in for
// a character device node.
//
// The mount root holds two files. "stack" is the device node: every open
// begins a session, each read pops one 4-byte value, each write pushes one
// and the final release of a handle ends the session. "ctl" accepts
// control lines such as "resize 64" and reports the device state when read.
package fusedev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

const fuseSubtype = "stackdev"

var errNotMounted = errors.New("device not mounted")

// Server is a mounted device file system.
type Server struct {
	mountpoint string
	fsys       *FS
	conn       *fuse.Conn
	logger     *slog.Logger
}

// Mount mounts dev at mountpoint. Serve must be called to answer requests.
func Mount(mountpoint, fsName string, dev *device.Device, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName(fsName),
		fuse.Subtype(fuseSubtype),
	)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", mountpoint, err)
	}

	return &Server{
		mountpoint: mountpoint,
		fsys:       NewFS(dev, logger),
		conn:       conn,
		logger:     logger.With(slog.String("mountpoint", mountpoint)),
	}, nil
}

// Serve answers file system requests until the file system is unmounted.
func (s *Server) Serve(ctx context.Context) error {
	if s.conn == nil {
		return errNotMounted
	}

	s.logger.InfoContext(ctx, "device mounted")

	err := fs.Serve(s.conn, s.fsys)
	if err != nil {
		return fmt.Errorf("serve %s: %w", s.mountpoint, err)
	}

	<-s.conn.Ready

	if err := s.conn.MountError; err != nil {
		return fmt.Errorf("mount %s: %w", s.mountpoint, err)
	}

	return nil
}

// Unmount detaches the file system and closes the FUSE connection.
func (s *Server) Unmount() error {
	if s.conn == nil {
		return errNotMounted
	}

	unmountErr := fuse.Unmount(s.mountpoint)
	closeErr := s.conn.Close()
	s.conn = nil

	s.logger.Info("device unmounted")

	return errors.Join(unmountErr, closeErr)
}
