package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stackdev/pkg/config"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/fusedev"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

// NewMountCommand creates the mount command.
func NewMountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mount [mountpoint]",
		Short: "Mount the stack device as a FUSE device node",
		Long: `Mount the stack device at a directory holding two files:

  stack  open begins a session, each read pops one little-endian int32,
         each write pushes one, and close ends the session
  ctl    write "resize <n>" to change capacity, read for device state

The mountpoint argument overrides fuse.mountpoint. Runs until interrupted.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			env, err := newAppEnv(cobraCmd, observability.ModeMount, func(cfg *config.Config) {
				cfg.FUSE.Enabled = true
				cfg.Server.Enabled = false

				if len(args) == 1 {
					cfg.FUSE.Mountpoint = args[0]
				}
			})
			if err != nil {
				return err
			}

			return runMount(cobraCmd.Context(), env)
		},
	}

	return cmd
}

func runMount(parent context.Context, env *appEnv) error {
	logger := env.providers.Logger

	if parent == nil {
		parent = context.Background()
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var diag *observability.DiagnosticsServer

	if addr := env.cfg.Telemetry.DiagnosticsAddr; addr != "" {
		var err error

		diag, err = observability.NewDiagnosticsServer(addr, env.providers.MetricsHandler, logger, scopeReady(env.scope))
		if err != nil {
			return errors.Join(err, env.close(context.Background()))
		}

		logger.InfoContext(ctx, "diagnostics listening", "addr", diag.Addr())
	}

	dev, err := env.scope.Acquire()
	if err != nil {
		return errors.Join(err, closeDiagnostics(diag), env.close(context.Background()))
	}

	node, err := fusedev.Mount(env.cfg.FUSE.Mountpoint, env.cfg.FUSE.FSName, dev, logger)
	if err != nil {
		return errors.Join(err, closeDiagnostics(diag), env.close(context.Background()))
	}

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- node.Serve(ctx)
	}()

	var runErr error

	select {
	case <-ctx.Done():
		logger.Info("shutting down")

		runErr = errors.Join(node.Unmount(), <-serveErr)
	case runErr = <-serveErr:
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, closeDiagnostics(diag), env.close(closeCtx))
}

// scopeReady reports whether the scope still hands out devices.
func scopeReady(scope *device.Scope) observability.ReadyCheck {
	return func(_ context.Context) error {
		for _, dev := range scope.Devices() {
			if dev.Stat().Closed {
				return device.ErrClosed
			}
		}

		return nil
	}
}

func closeDiagnostics(diag *observability.DiagnosticsServer) error {
	if diag == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return diag.Close(ctx)
}
