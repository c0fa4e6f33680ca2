package commands_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/stackdev/cmd/stackdev/commands"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

const (
	testCapacity    = 4
	testMaxCapacity = 8
)

func newTestScope(t *testing.T, mode device.Isolation) *device.Scope {
	t.Helper()

	scope, err := device.NewScope(mode, func() (*device.Device, error) {
		return device.New(
			device.WithDefaultCapacity(testCapacity),
			device.WithMaxCapacity(testMaxCapacity),
		)
	})
	require.NoError(t, err)

	t.Cleanup(func() { assert.NoError(t, scope.Shutdown()) })

	return scope
}

func mustParse(t *testing.T, script string) []commands.ScriptOp {
	t.Helper()

	ops, err := commands.ParseScript(strings.NewReader(script))
	require.NoError(t, err)

	return ops
}

func TestParseScript(t *testing.T) {
	t.Parallel()

	ops := mustParse(t, "open; push 10; push -20\n\npop # top\nRESIZE 3\nioctl 2 0\nstat\nclose\n")
	require.Len(t, ops, 8)

	assert.Equal(t, "open", ops[0].Name)
	assert.Equal(t, int32(10), ops[1].Value)
	assert.Equal(t, int32(-20), ops[2].Value)
	assert.Equal(t, 3, ops[3].Line)
	assert.Equal(t, "resize", ops[4].Name)
	assert.Equal(t, []uint64{3}, ops[4].Args)
	assert.Equal(t, []uint64{2, 0}, ops[5].Args)
	assert.Equal(t, "ioctl 2 0", ops[5].String())
	assert.Equal(t, "push -20", ops[2].String())
}

func TestParseScript_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		script string
	}{
		{name: "unknown op", script: "jump"},
		{name: "missing push value", script: "push"},
		{name: "non-numeric", script: "push x"},
		{name: "value out of range", script: "push 4294967296"},
		{name: "negative resize", script: "resize -1"},
		{name: "extra argument", script: "pop 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := commands.ParseScript(strings.NewReader(tt.script))
			require.ErrorIs(t, err, commands.ErrScriptSyntax)
		})
	}
}

func TestRunScript_PushPopUntilEmpty(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)
	ops := mustParse(t, "open; push 10; push 20; pop; pop; pop; close")

	results := commands.RunScript(context.Background(), scope, ops, false)
	require.Len(t, results, len(ops))

	assert.Equal(t, "20", results[3].Result)
	assert.Equal(t, "10", results[4].Result)
	require.ErrorIs(t, results[5].Err, stack.ErrEmpty)
	require.NoError(t, results[6].Err)

	assert.Equal(t, device.StateReady, results[2].Shape.State)
	assert.Equal(t, 2, results[2].Shape.Len)
	assert.Equal(t, device.StateUninitialized, results[6].Shape.State)
}

func TestRunScript_ResizeTruncates(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)
	ops := mustParse(t, "open; push 1; push 2; push 3; push 4; push 5; resize 8; push 5; resize 3; resize 0; ioctl 9 1")

	results := commands.RunScript(context.Background(), scope, ops, false)

	require.ErrorIs(t, results[5].Err, stack.ErrExhausted)
	require.NoError(t, results[6].Err)
	require.NoError(t, results[8].Err)
	assert.Equal(t, 3, results[8].Shape.Len)
	assert.Equal(t, 3, results[8].Shape.Cap)
	require.ErrorIs(t, results[9].Err, stack.ErrInvalidSize)
	require.ErrorIs(t, results[10].Err, stack.ErrUnsupportedCommand)
}

func TestRunScript_NoSession(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)

	results := commands.RunScript(context.Background(), scope, mustParse(t, "push 1; open; close; pop"), false)
	require.Len(t, results, 4)
	require.ErrorIs(t, results[0].Err, commands.ErrNoOpenSession)
	require.ErrorIs(t, results[3].Err, commands.ErrNoOpenSession)
}

func TestRunScript_FailFast(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)

	results := commands.RunScript(context.Background(), scope, mustParse(t, "open; pop; push 1; pop"), true)
	require.Len(t, results, 2)
	require.ErrorIs(t, results[1].Err, stack.ErrEmpty)
}

func TestRunScript_ReopenStartsFresh(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)

	results := commands.RunScript(context.Background(), scope, mustParse(t, "open; push 1; open; pop"), false)
	require.Len(t, results, 4)
	require.ErrorIs(t, results[3].Err, stack.ErrEmpty)
}

func TestRenderSteps(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)
	results := commands.RunScript(context.Background(), scope, mustParse(t, "open; push 42; pop; pop"), false)

	var buf bytes.Buffer

	commands.RenderSteps(&buf, results)

	out := buf.String()
	assert.Contains(t, out, "push 42")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "empty (invalid argument)")
	assert.Contains(t, out, "4 steps")
	assert.Contains(t, out, "1 failed")
}

func TestRunBench(t *testing.T) {
	t.Parallel()

	t.Run("session isolation never fails", func(t *testing.T) {
		t.Parallel()

		scope := newTestScope(t, device.IsolationSession)

		res, err := commands.RunBench(context.Background(), scope, commands.BenchOptions{Sessions: 4, Ops: 100})
		require.NoError(t, err)
		assert.Equal(t, uint64(200), res.Pushes)
		assert.Equal(t, uint64(200), res.Pops)
		assert.Zero(t, res.Failures)
		assert.Empty(t, scope.Devices())
	})

	t.Run("global isolation counts teardown failures", func(t *testing.T) {
		t.Parallel()

		scope := newTestScope(t, device.IsolationGlobal)

		res, err := commands.RunBench(context.Background(), scope, commands.BenchOptions{Sessions: 8, Ops: 200})
		require.NoError(t, err)
		assert.Equal(t, uint64(8*200), res.Pushes+res.Pops+res.Failures)
		assert.Equal(t, device.StateUninitialized, scope.Devices()[0].Stat().State)
	})

	t.Run("invalid options", func(t *testing.T) {
		t.Parallel()

		scope := newTestScope(t, device.IsolationGlobal)

		_, err := commands.RunBench(context.Background(), scope, commands.BenchOptions{})
		require.ErrorIs(t, err, commands.ErrInvalidBench)
	})
}

func TestWriteBenchReport(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	commands.WriteBenchReport(&buf, commands.BenchOptions{Sessions: 2, Ops: 3000}, commands.BenchResult{
		Elapsed:  time.Second,
		Pushes:   3000,
		Pops:     2500,
		Failures: 500,
	})

	out := buf.String()
	assert.Contains(t, out, "operations: 6,000 (3,000 pushes, 2,500 pops, 500 failed)")
	assert.Contains(t, out, "throughput: 6,000 ops/s")
	assert.Contains(t, out, "wire bytes: 21 KiB")
}

func TestRunScript_Int32Extremes(t *testing.T) {
	t.Parallel()

	scope := newTestScope(t, device.IsolationGlobal)

	results := commands.RunScript(context.Background(), scope,
		mustParse(t, "open; push -2147483648; push 2147483647; pop; pop"), false)
	require.Len(t, results, 5)

	assert.Equal(t, "2147483647", results[3].Result)
	assert.Equal(t, "-2147483648", results[4].Result)
}
