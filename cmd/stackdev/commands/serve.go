package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/stackdev/pkg/config"
	"github.com/Sumatoshi-tech/stackdev/pkg/fusedev"
	"github.com/Sumatoshi-tech/stackdev/pkg/httpapi"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

// shutdownTimeout bounds graceful shutdown of every front end.
const shutdownTimeout = 10 * time.Second

// ErrNoFrontEnd reports a serve run with both HTTP and FUSE disabled.
var ErrNoFrontEnd = errors.New("nothing to serve: server and fuse are both disabled")

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	var (
		addr       string
		mountpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the stack device over HTTP",
		Long: `Serve the stack device over the HTTP API and, when fuse is enabled,
as a FUSE device node.

Sessions are created with POST /v1/sessions. Every session end tears down
the stack shared by all sessions in global isolation mode.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			env, err := newAppEnv(cobraCmd, observability.ModeServe, func(cfg *config.Config) {
				applyServeFlags(cfg, addr, mountpoint)
			})
			if err != nil {
				return err
			}

			return runServe(cobraCmd.Context(), env)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides server.host and server.port)")
	cmd.Flags().StringVar(&mountpoint, "mount", "", "Also mount the device node at this directory")

	return cmd
}

func applyServeFlags(cfg *config.Config, addr, mountpoint string) {
	if addr != "" {
		host, port, err := net.SplitHostPort(addr)
		if err == nil {
			cfg.Server.Host = host

			portNum, convErr := strconv.Atoi(port)
			if convErr == nil {
				cfg.Server.Port = portNum
			}
		}

		cfg.Server.Enabled = true
	}

	if mountpoint != "" {
		cfg.FUSE.Enabled = true
		cfg.FUSE.Mountpoint = mountpoint
	}
}

func runServe(parent context.Context, env *appEnv) error {
	logger := env.providers.Logger

	if !env.cfg.Server.Enabled && !env.cfg.FUSE.Enabled {
		return errors.Join(ErrNoFrontEnd, env.close(context.Background()))
	}

	if parent == nil {
		parent = context.Background()
	}

	sigCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A front end that stops on its own ends the whole run.
	ctx, cancelRun := context.WithCancel(sigCtx)
	defer cancelRun()

	group, groupCtx := errgroup.WithContext(ctx)

	var (
		api     *httpapi.Server
		httpSrv *http.Server
		node    *fusedev.Server
	)

	if env.cfg.Server.Enabled {
		api = httpapi.New(env.scope, httpapi.Options{
			Logger:         logger,
			Tracer:         env.providers.Tracer,
			RED:            env.red,
			MetricsHandler: env.providers.MetricsHandler,
			CORSOrigins:    env.cfg.Server.CORSOrigins,
		})

		httpSrv = &http.Server{
			Addr:              env.cfg.Server.Addr(),
			Handler:           api.Handler(),
			ReadTimeout:       env.cfg.Server.ReadTimeout,
			ReadHeaderTimeout: env.cfg.Server.ReadTimeout,
			WriteTimeout:      env.cfg.Server.WriteTimeout,
			IdleTimeout:       env.cfg.Server.IdleTimeout,
		}

		group.Go(func() error {
			defer cancelRun()

			logger.InfoContext(groupCtx, "http api listening", "addr", httpSrv.Addr)

			serveErr := httpSrv.ListenAndServe()
			if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				return fmt.Errorf("http api: %w", serveErr)
			}

			return nil
		})
	}

	if env.cfg.FUSE.Enabled {
		dev, err := env.scope.Acquire()
		if err != nil {
			return errors.Join(err, abortServe(httpSrv, group), env.close(context.Background()))
		}

		node, err = fusedev.Mount(env.cfg.FUSE.Mountpoint, env.cfg.FUSE.FSName, dev, logger)
		if err != nil {
			return errors.Join(err, abortServe(httpSrv, group), env.close(context.Background()))
		}

		group.Go(func() error {
			defer cancelRun()

			return node.Serve(groupCtx)
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error

		if httpSrv != nil {
			errs = append(errs, httpSrv.Shutdown(shutdownCtx), api.Close(shutdownCtx))
		}

		if node != nil {
			errs = append(errs, node.Unmount())
		}

		return errors.Join(errs...)
	})

	runErr := group.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return errors.Join(runErr, env.close(closeCtx))
}

// abortServe stops an already started HTTP front end after a later front
// end failed to start.
func abortServe(httpSrv *http.Server, group *errgroup.Group) error {
	if httpSrv != nil {
		_ = httpSrv.Close()
	}

	return group.Wait()
}
