//go:build linux

package fusedev

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

// File names exposed at the mount root.
const (
	StackFileName   = "stack"
	ControlFileName = "ctl"
)

const (
	rootInode    = 1
	stackInode   = 2
	controlInode = 3

	stackMode   = 0o666
	controlMode = 0o644
	rootMode    = os.ModeDir | 0o555
)

var (
	_ fs.FS                 = (*FS)(nil)
	_ fs.Node               = (*rootDir)(nil)
	_ fs.NodeStringLookuper = (*rootDir)(nil)
	_ fs.HandleReadDirAller = (*rootDir)(nil)
	_ fs.NodeOpener         = (*stackNode)(nil)
	_ fs.NodeSetattrer      = (*stackNode)(nil)
	_ fs.HandleReader       = (*stackHandle)(nil)
	_ fs.HandleWriter       = (*stackHandle)(nil)
	_ fs.HandleReleaser     = (*stackHandle)(nil)
	_ fs.NodeOpener         = (*controlNode)(nil)
	_ fs.NodeSetattrer      = (*controlNode)(nil)
	_ fs.HandleReader       = (*controlNode)(nil)
	_ fs.HandleWriter       = (*controlNode)(nil)
)

// FS is the device file system: a root directory holding the stack node
// and its control file.
type FS struct {
	dev    *device.Device
	logger *slog.Logger
}

// NewFS creates the file system tree for dev.
func NewFS(dev *device.Device, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &FS{dev: dev, logger: logger}
}

// Root implements fs.FS.
func (fsys *FS) Root() (fs.Node, error) {
	return &rootDir{fsys: fsys}, nil
}

type rootDir struct {
	fsys *FS
}

func (d *rootDir) Attr(_ context.Context, attr *fuse.Attr) error {
	attr.Inode = rootInode
	attr.Mode = rootMode

	return nil
}

func (d *rootDir) Lookup(_ context.Context, name string) (fs.Node, error) {
	switch name {
	case StackFileName:
		return &stackNode{fsys: d.fsys}, nil
	case ControlFileName:
		return &controlNode{fsys: d.fsys}, nil
	default:
		return nil, fuse.ENOENT
	}
}

func (d *rootDir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	return []fuse.Dirent{
		{Inode: stackInode, Name: StackFileName, Type: fuse.DT_File},
		{Inode: controlInode, Name: ControlFileName, Type: fuse.DT_File},
	}, nil
}

// stackNode is the device node. Every open is a session.
type stackNode struct {
	fsys *FS
}

func (n *stackNode) Attr(_ context.Context, attr *fuse.Attr) error {
	attr.Inode = stackInode
	attr.Mode = stackMode

	return nil
}

// Setattr accepts truncation from O_TRUNC opens; the node has no size.
func (n *stackNode) Setattr(ctx context.Context, _ *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return n.Attr(ctx, &resp.Attr)
}

func (n *stackNode) Open(ctx context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	file, err := chardev.Open(ctx, n.fsys.dev)
	if err != nil {
		n.fsys.logger.WarnContext(ctx, "session begin failed", "error", err)

		return nil, toErrno(err)
	}

	resp.Flags |= fuse.OpenDirectIO | fuse.OpenNonSeekable

	return &stackHandle{file: file, logger: n.fsys.logger}, nil
}

// stackHandle is one open session on the device node.
type stackHandle struct {
	file   *chardev.File
	logger *slog.Logger
}

func (h *stackHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)

	n, err := h.file.ReadContext(ctx, buf)
	if err != nil {
		return toErrno(err)
	}

	resp.Data = buf[:n]

	return nil
}

func (h *stackHandle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	n, err := h.file.WriteContext(ctx, req.Data)
	if err != nil {
		return toErrno(err)
	}

	resp.Size = n

	return nil
}

func (h *stackHandle) Release(ctx context.Context, _ *fuse.ReleaseRequest) error {
	err := h.file.CloseContext(ctx)
	if err != nil && !errors.Is(err, chardev.ErrFileClosed) {
		return toErrno(err)
	}

	return nil
}

// controlNode carries control commands for the device and reports its
// state when read. Opening it is not a session.
type controlNode struct {
	fsys *FS
}

func (n *controlNode) Attr(_ context.Context, attr *fuse.Attr) error {
	attr.Inode = controlInode
	attr.Mode = controlMode

	return nil
}

// Setattr accepts truncation from shell redirections.
func (n *controlNode) Setattr(ctx context.Context, _ *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	return n.Attr(ctx, &resp.Attr)
}

func (n *controlNode) Open(_ context.Context, _ *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	resp.Flags |= fuse.OpenDirectIO

	return n, nil
}

func (n *controlNode) Read(_ context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	content := formatStat(n.fsys.dev.Stat())

	if req.Offset >= int64(len(content)) {
		return nil
	}

	end := min(int(req.Offset)+req.Size, len(content))
	resp.Data = []byte(content[req.Offset:end])

	return nil
}

func (n *controlNode) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	for line := range strings.Lines(string(req.Data)) {
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, arg, err := ParseControl(line)
		if err == nil {
			err = n.fsys.dev.Control(ctx, cmd, arg)
		}

		if err != nil {
			n.fsys.logger.WarnContext(ctx, "control command failed", "line", strings.TrimSpace(line), "error", err)

			return toErrno(err)
		}
	}

	resp.Size = len(req.Data)

	return nil
}

// toErrno converts an adaptor error into a FUSE errno.
func toErrno(err error) error {
	if errors.Is(err, ErrMalformedControl) {
		return fuse.Errno(syscall.EINVAL)
	}

	return fuse.Errno(chardev.Errno(err))
}
