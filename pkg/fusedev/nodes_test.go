//go:build linux

package fusedev_test

import (
	"context"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/fusedev"
)

type testTree struct {
	dev   *device.Device
	stack fs.Node
	ctl   fs.Node
}

func newTestTree(t *testing.T) testTree {
	t.Helper()

	ctx := context.Background()

	dev, err := device.New(device.WithDefaultCapacity(4), device.WithMaxCapacity(8))
	require.NoError(t, err)

	root, err := fusedev.NewFS(dev, nil).Root()
	require.NoError(t, err)

	lookuper, ok := root.(fs.NodeStringLookuper)
	require.True(t, ok)

	stackNode, err := lookuper.Lookup(ctx, fusedev.StackFileName)
	require.NoError(t, err)

	ctlNode, err := lookuper.Lookup(ctx, fusedev.ControlFileName)
	require.NoError(t, err)

	_, err = lookuper.Lookup(ctx, "missing")
	require.Equal(t, fuse.ENOENT, err)

	return testTree{dev: dev, stack: stackNode, ctl: ctlNode}
}

func openStack(t *testing.T, tree testTree) fs.Handle {
	t.Helper()

	opener, ok := tree.stack.(fs.NodeOpener)
	require.True(t, ok)

	resp := &fuse.OpenResponse{}

	handle, err := opener.Open(context.Background(), &fuse.OpenRequest{}, resp)
	require.NoError(t, err)
	assert.NotZero(t, resp.Flags&fuse.OpenDirectIO)

	return handle
}

func pushValue(ctx context.Context, handle fs.Handle, v int32) error {
	resp := &fuse.WriteResponse{}

	return handle.(fs.HandleWriter).Write(ctx, &fuse.WriteRequest{Data: chardev.AppendValue(nil, v)}, resp)
}

func popValue(ctx context.Context, handle fs.Handle) (int32, error) {
	resp := &fuse.ReadResponse{}

	err := handle.(fs.HandleReader).Read(ctx, &fuse.ReadRequest{Size: chardev.ValueSize}, resp)
	if err != nil {
		return 0, err
	}

	return chardev.DecodeValue(resp.Data)
}

func writeControl(ctx context.Context, tree testTree, line string) error {
	resp := &fuse.WriteResponse{}

	return tree.ctl.(fs.HandleWriter).Write(ctx, &fuse.WriteRequest{Data: []byte(line)}, resp)
}

func TestRootDir_Listing(t *testing.T) {
	t.Parallel()

	root, err := fusedev.NewFS(nil, nil).Root()
	require.NoError(t, err)

	entries, err := root.(fs.HandleReadDirAller).ReadDirAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, fusedev.StackFileName, entries[0].Name)
	assert.Equal(t, fusedev.ControlFileName, entries[1].Name)

	var attr fuse.Attr
	require.NoError(t, root.Attr(context.Background(), &attr))
	assert.True(t, attr.Mode.IsDir())
}

func TestStackNode_SessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tree := newTestTree(t)
	handle := openStack(t, tree)

	assert.Equal(t, device.StateReady, tree.dev.Stat().State)

	require.NoError(t, pushValue(ctx, handle, 10))
	require.NoError(t, pushValue(ctx, handle, 20))

	v, err := popValue(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int32(20), v)

	v, err = popValue(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int32(10), v)

	_, err = popValue(ctx, handle)
	assert.Equal(t, fuse.Errno(syscall.EINVAL), err)

	require.NoError(t, handle.(fs.HandleReleaser).Release(ctx, &fuse.ReleaseRequest{}))
	assert.Equal(t, device.StateUninitialized, tree.dev.Stat().State)
}

func TestStackNode_FullAndShortRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tree := newTestTree(t)
	handle := openStack(t, tree)

	for i := range int32(4) {
		require.NoError(t, pushValue(ctx, handle, i))
	}

	assert.Equal(t, fuse.Errno(syscall.ENOMEM), pushValue(ctx, handle, 4))

	err := handle.(fs.HandleReader).Read(ctx, &fuse.ReadRequest{Size: 2}, &fuse.ReadResponse{})
	assert.Equal(t, fuse.Errno(syscall.EFAULT), err)
	assert.Equal(t, 4, tree.dev.Stat().Len)
}

func TestControlNode_ResizeAndStat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tree := newTestTree(t)

	// No session yet: the stack does not exist.
	assert.Equal(t, fuse.Errno(syscall.ENXIO), writeControl(ctx, tree, "resize 2\n"))

	handle := openStack(t, tree)

	for _, v := range []int32{1, 2, 3} {
		require.NoError(t, pushValue(ctx, handle, v))
	}

	require.NoError(t, writeControl(ctx, tree, "resize 2\n"))
	assert.Equal(t, []int32{1, 2}, tree.dev.Values())

	assert.Equal(t, fuse.Errno(syscall.EINVAL), writeControl(ctx, tree, "resize 0\n"))
	assert.Equal(t, fuse.Errno(syscall.EINVAL), writeControl(ctx, tree, "resize 9\n"))
	assert.Equal(t, fuse.Errno(syscall.EINVAL), writeControl(ctx, tree, "2 4\n"))
	assert.Equal(t, fuse.Errno(syscall.EINVAL), writeControl(ctx, tree, "garbage\n"))

	resp := &fuse.ReadResponse{}
	require.NoError(t, tree.ctl.(fs.HandleReader).Read(ctx, &fuse.ReadRequest{Size: 256}, resp))
	assert.Equal(t, "state=ready len=2 cap=2 max=8 opens=1 releases=0\n", string(resp.Data))

	resp = &fuse.ReadResponse{}
	require.NoError(t, tree.ctl.(fs.HandleReader).Read(ctx, &fuse.ReadRequest{Offset: 1 << 10, Size: 256}, resp))
	assert.Empty(t, resp.Data)
}
