package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

// Script operations.
const (
	opOpen   = "open"
	opClose  = "close"
	opPush   = "push"
	opPop    = "pop"
	opResize = "resize"
	opIoctl  = "ioctl"
	opStat   = "stat"
)

var (
	// ErrScriptSyntax reports a line that is not a script operation.
	ErrScriptSyntax = errors.New("script syntax error")
	// ErrNoOpenSession reports an operation issued before open.
	ErrNoOpenSession = errors.New("no open session")
	// ErrScriptFailed reports a script with at least one failed step.
	ErrScriptFailed = errors.New("script step failed")
)

// ScriptOp is one parsed script operation.
type ScriptOp struct {
	Name string
	Args []uint64
	// Value is the signed operand of push.
	Value int32
	Line  int
}

// String renders the op as it would appear in a script.
func (op ScriptOp) String() string {
	switch op.Name {
	case opPush:
		return fmt.Sprintf("%s %d", op.Name, op.Value)
	case opResize:
		return fmt.Sprintf("%s %d", op.Name, op.Args[0])
	case opIoctl:
		return fmt.Sprintf("%s %d %d", op.Name, op.Args[0], op.Args[1])
	default:
		return op.Name
	}
}

// StepResult is the outcome of one executed operation.
type StepResult struct {
	Op     ScriptOp
	Result string
	Err    error
	Shape  device.Shape
}

// ParseScript reads operations separated by newlines or semicolons. Blank
// lines and text after '#' are ignored.
func ParseScript(r io.Reader) ([]ScriptOp, error) {
	var ops []ScriptOp

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line, _, _ := strings.Cut(scanner.Text(), "#")

		for stmt := range strings.SplitSeq(line, ";") {
			fields := strings.Fields(stmt)
			if len(fields) == 0 {
				continue
			}

			op, err := parseOp(fields, lineNo)
			if err != nil {
				return nil, err
			}

			ops = append(ops, op)
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}

	return ops, nil
}

func parseOp(fields []string, lineNo int) (ScriptOp, error) {
	op := ScriptOp{Name: strings.ToLower(fields[0]), Line: lineNo}
	args := fields[1:]

	wantArgs := map[string]int{
		opOpen: 0, opClose: 0, opPop: 0, opStat: 0,
		opPush: 1, opResize: 1, opIoctl: 2,
	}

	want, known := wantArgs[op.Name]
	if !known {
		return op, fmt.Errorf("%w: line %d: unknown operation %q", ErrScriptSyntax, lineNo, fields[0])
	}

	if len(args) != want {
		return op, fmt.Errorf("%w: line %d: %s takes %d argument(s)", ErrScriptSyntax, lineNo, op.Name, want)
	}

	if op.Name == opPush {
		v, err := strconv.ParseInt(args[0], 0, 32)
		if err != nil {
			return op, fmt.Errorf("%w: line %d: %w", ErrScriptSyntax, lineNo, err)
		}

		op.Value = int32(v)

		return op, nil
	}

	for _, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return op, fmt.Errorf("%w: line %d: %w", ErrScriptSyntax, lineNo, err)
		}

		op.Args = append(op.Args, v)
	}

	return op, nil
}

// RunScript executes ops against devices from scope, one session at a time.
// Failed steps are recorded and execution continues unless failFast is set.
// A session still open at the end is closed.
func RunScript(ctx context.Context, scope *device.Scope, ops []ScriptOp, failFast bool) []StepResult {
	var (
		file    *chardev.File
		results = make([]StepResult, 0, len(ops))
	)

	for _, op := range ops {
		res := StepResult{Op: op}

		var dev *device.Device

		res.Result, dev, res.Err = runOp(ctx, scope, &file, op)
		if dev != nil {
			res.Shape = dev.Stat().Shape
		}

		results = append(results, res)

		if res.Err != nil && failFast {
			break
		}
	}

	if file != nil {
		_ = file.CloseContext(ctx)
	}

	return results
}

func runOp(ctx context.Context, scope *device.Scope, file **chardev.File, op ScriptOp) (string, *device.Device, error) {
	if op.Name == opOpen {
		if *file != nil {
			_ = (*file).CloseContext(ctx)
		}

		opened, err := chardev.OpenScoped(ctx, scope)
		if err != nil {
			*file = nil

			return "", nil, err
		}

		*file = opened

		return "session begun", opened.Device(), nil
	}

	if *file == nil {
		return "", nil, ErrNoOpenSession
	}

	current := *file
	dev := current.Device()

	switch op.Name {
	case opClose:
		*file = nil

		return "session ended", dev, current.CloseContext(ctx)
	case opPush:
		_, err := current.WriteContext(ctx, chardev.AppendValue(nil, op.Value))

		return strconv.FormatInt(int64(op.Value), 10), dev, err
	case opPop:
		buf := make([]byte, chardev.ValueSize)

		_, err := current.ReadContext(ctx, buf)
		if err != nil {
			return "", dev, err
		}

		v, err := chardev.DecodeValue(buf)

		return strconv.FormatInt(int64(v), 10), dev, err
	case opResize:
		return fmt.Sprintf("capacity %d", op.Args[0]), dev, current.Ioctl(ctx, device.CmdResize, op.Args[0])
	case opIoctl:
		return fmt.Sprintf("cmd %d", op.Args[0]), dev, current.Ioctl(ctx, device.Command(op.Args[0]), op.Args[1])
	default:
		stats := dev.Stat()

		return fmt.Sprintf("opens %d, releases %d", stats.Opens, stats.Releases), dev, nil
	}
}

// RenderSteps writes the step results as a table.
func RenderSteps(w io.Writer, results []StepResult) {
	okColor := color.New(color.FgGreen)
	errColor := color.New(color.FgRed)

	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Op", "Result", "Status", "State", "Len", "Cap"})

	failed := 0

	for i, res := range results {
		status := okColor.Sprint("ok")
		if res.Err != nil {
			failed++
			status = errColor.Sprintf("%s (%s)", stepKind(res.Err), chardev.Errno(res.Err).Error())
		}

		tbl.AppendRow(table.Row{
			i + 1, res.Op.String(), res.Result, status,
			res.Shape.State.String(), res.Shape.Len, res.Shape.Cap,
		})
	}

	tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d steps", len(results)), "", fmt.Sprintf("%d failed", failed)})
	tbl.Render()
}

func stepKind(err error) string {
	switch {
	case errors.Is(err, ErrNoOpenSession):
		return "no_session"
	case errors.Is(err, chardev.ErrCopyFault):
		return "copy_fault"
	case errors.Is(err, chardev.ErrFileClosed):
		return "file_closed"
	default:
		return device.Kind(err)
	}
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	var (
		inline   string
		failFast bool
	)

	cmd := &cobra.Command{
		Use:   "exec [script]",
		Short: "Run a script of device operations against an in-process device",
		Long: `Run a script of device operations and print each step's outcome.

Operations, one per line or separated by ';':
  open            begin a session
  push <n>        push a signed 32-bit value
  pop             pop the top value
  resize <n>      change the stack capacity
  ioctl <cmd> <n> issue a raw control command
  stat            report device counters
  close           end the session

The script is read from the file argument, from --eval, or from stdin.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			ops, err := readScript(cobraCmd, args, inline)
			if err != nil {
				return err
			}

			env, err := newAppEnv(cobraCmd, observability.ModeCLI, nil)
			if err != nil {
				return err
			}

			ctx := cobraCmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			results := RunScript(ctx, env.scope, ops, failFast)
			RenderSteps(cobraCmd.OutOrStdout(), results)

			closeErr := env.close(context.Background())

			if failFast && len(results) > 0 && results[len(results)-1].Err != nil {
				return errors.Join(fmt.Errorf("%w: %w", ErrScriptFailed, results[len(results)-1].Err), closeErr)
			}

			return closeErr
		},
	}

	cmd.Flags().StringVarP(&inline, "eval", "e", "", "Script text to run instead of a file")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failed step and exit non-zero")

	return cmd
}

func readScript(cmd *cobra.Command, args []string, inline string) ([]ScriptOp, error) {
	switch {
	case inline != "":
		return ParseScript(strings.NewReader(inline))
	case len(args) == 1:
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open script: %w", err)
		}
		defer f.Close()

		return ParseScript(f)
	default:
		return ParseScript(cmd.InOrStdin())
	}
}
