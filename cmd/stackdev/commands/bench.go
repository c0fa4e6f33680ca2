package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/config"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
	"github.com/Sumatoshi-tech/stackdev/pkg/stack"
)

const (
	defaultBenchSessions = 8
	defaultBenchOps      = 10000
)

// ErrInvalidBench reports non-positive bench parameters.
var ErrInvalidBench = errors.New("sessions and ops must be positive")

// BenchOptions configures a bench run.
type BenchOptions struct {
	Sessions int
	Ops      int
}

// BenchResult summarizes a bench run. Expected failures such as Empty,
// Exhausted or NotInitialized after another session tore the shared stack
// down are counted, not fatal.
type BenchResult struct {
	Elapsed  time.Duration
	Pushes   uint64
	Pops     uint64
	Failures uint64
}

// Throughput returns completed operations per second.
func (r BenchResult) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}

	return float64(r.Pushes+r.Pops+r.Failures) / r.Elapsed.Seconds()
}

// RunBench starts opts.Sessions concurrent sessions on scope, each issuing
// opts.Ops alternating push and pop calls.
func RunBench(ctx context.Context, scope *device.Scope, opts BenchOptions) (BenchResult, error) {
	if opts.Sessions <= 0 || opts.Ops <= 0 {
		return BenchResult{}, ErrInvalidBench
	}

	var pushes, pops, failures atomic.Uint64

	group, groupCtx := errgroup.WithContext(ctx)
	start := time.Now()

	for worker := range opts.Sessions {
		group.Go(func() error {
			file, err := chardev.OpenScoped(groupCtx, scope)
			if err != nil {
				return fmt.Errorf("session %d: %w", worker, err)
			}

			buf := make([]byte, chardev.ValueSize)

			for i := range opts.Ops {
				if groupCtx.Err() != nil {
					break
				}

				var opErr error

				if i%2 == 0 {
					_, opErr = file.WriteContext(groupCtx, chardev.AppendValue(buf[:0], int32(i)))
					if opErr == nil {
						pushes.Add(1)
					}
				} else {
					_, opErr = file.ReadContext(groupCtx, buf)
					if opErr == nil {
						pops.Add(1)
					}
				}

				if opErr != nil {
					if !expectedBenchErr(opErr) {
						_ = file.CloseContext(groupCtx)

						return fmt.Errorf("session %d op %d: %w", worker, i, opErr)
					}

					failures.Add(1)
				}
			}

			return file.CloseContext(groupCtx)
		})
	}

	err := group.Wait()

	return BenchResult{
		Elapsed:  time.Since(start),
		Pushes:   pushes.Load(),
		Pops:     pops.Load(),
		Failures: failures.Load(),
	}, err
}

// expectedBenchErr reports errors that shared-stack contention produces.
func expectedBenchErr(err error) bool {
	return errors.Is(err, stack.ErrEmpty) ||
		errors.Is(err, stack.ErrExhausted) ||
		errors.Is(err, stack.ErrNotInitialized)
}

// WriteBenchReport writes a human-readable summary of res.
func WriteBenchReport(w io.Writer, opts BenchOptions, res BenchResult) {
	total := res.Pushes + res.Pops + res.Failures

	fmt.Fprintf(w, "sessions:   %d\n", opts.Sessions)
	fmt.Fprintf(w, "operations: %s (%s pushes, %s pops, %s failed)\n",
		humanize.Comma(int64(total)), humanize.Comma(int64(res.Pushes)),
		humanize.Comma(int64(res.Pops)), humanize.Comma(int64(res.Failures)))
	fmt.Fprintf(w, "elapsed:    %s\n", res.Elapsed.Round(time.Microsecond))
	fmt.Fprintf(w, "throughput: %s ops/s\n", humanize.CommafWithDigits(res.Throughput(), 0))
	fmt.Fprintf(w, "wire bytes: %s\n", humanize.IBytes((res.Pushes+res.Pops)*chardev.ValueSize))
}

// NewBenchCommand creates the bench command.
func NewBenchCommand() *cobra.Command {
	var (
		opts      BenchOptions
		isolation string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Hammer an in-process device with concurrent sessions",
		Long: `Run concurrent sessions that alternate push and pop on an in-process
device and report throughput.

In global isolation every session shares one stack, so a session ending
tears the stack down for the others; their resulting failures are counted.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			env, err := newAppEnv(cobraCmd, observability.ModeCLI, func(cfg *config.Config) {
				if isolation != "" {
					cfg.Stack.Isolation = isolation
				}
			})
			if err != nil {
				return err
			}

			ctx := cobraCmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			res, runErr := RunBench(ctx, env.scope, opts)
			if runErr == nil {
				WriteBenchReport(cobraCmd.OutOrStdout(), opts, res)
			}

			return errors.Join(runErr, env.close(context.Background()))
		},
	}

	cmd.Flags().IntVar(&opts.Sessions, "sessions", defaultBenchSessions, "Number of concurrent sessions")
	cmd.Flags().IntVar(&opts.Ops, "ops", defaultBenchOps, "Operations per session")
	cmd.Flags().StringVar(&isolation, "isolation", "", "Override stack.isolation (global or session)")

	return cmd
}
