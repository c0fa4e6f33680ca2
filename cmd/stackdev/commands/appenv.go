// Package commands implements the stackdev CLI subcommands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stackdev/pkg/config"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
	"github.com/Sumatoshi-tech/stackdev/pkg/version"
)

// configFlag is the persistent root flag naming the configuration file.
const configFlag = "config"

// appEnv bundles what every long-running mode needs: the loaded
// configuration, telemetry providers and the device scope.
type appEnv struct {
	cfg       *config.Config
	providers observability.Providers
	red       *observability.REDMetrics
	scope     *device.Scope
}

// configPath returns the --config value, or "" when the flag is absent.
func configPath(cmd *cobra.Command) string {
	flag := cmd.Flag(configFlag)
	if flag == nil {
		return ""
	}

	return flag.Value.String()
}

// newAppEnv loads configuration and wires telemetry and the device scope
// for mode. The caller must call close.
func newAppEnv(cmd *cobra.Command, mode observability.AppMode, tweak func(*config.Config)) (*appEnv, error) {
	cfg, err := config.LoadConfig(configPath(cmd))
	if err != nil {
		return nil, err
	}

	if tweak != nil {
		tweak(cfg)

		err = config.Validate(cfg)
		if err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	return buildAppEnv(cfg, mode)
}

func buildAppEnv(cfg *config.Config, mode observability.AppMode) (*appEnv, error) {
	providers, err := observability.Init(cfg.Observability(mode, version.Version))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	rt := &appEnv{cfg: cfg, providers: providers}

	rt.red, err = observability.NewREDMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	factory, err := deviceFactory(cfg, providers)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	rt.scope, err = device.NewScope(cfg.Stack.IsolationMode(), factory)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	return rt, nil
}

// deviceFactory builds devices sized by the stack section. Every device
// draws from one allocator so memory_limit bounds the whole process.
func deviceFactory(cfg *config.Config, providers observability.Providers) (device.Factory, error) {
	alloc, err := cfg.Stack.NewAllocator()
	if err != nil {
		return nil, err
	}

	recorder, err := device.NewMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("create device metrics: %w", err)
	}

	var seq atomic.Uint64

	return func() (*device.Device, error) {
		name := fmt.Sprintf("stack%d", seq.Add(1)-1)

		return device.New(
			device.WithName(name),
			device.WithDefaultCapacity(cfg.Stack.DefaultCapacity),
			device.WithMaxCapacity(cfg.Stack.MaxCapacity),
			device.WithAllocator(alloc),
			device.WithLogger(providers.Logger),
			device.WithRecorder(recorder),
			device.WithTracer(providers.Tracer),
		)
	}, nil
}

// close tears down every device, then flushes telemetry.
func (rt *appEnv) close(ctx context.Context) error {
	scopeErr := rt.scope.Shutdown()
	if scopeErr != nil {
		rt.providers.Logger.WarnContext(ctx, "device teardown failed", "error", scopeErr)
	}

	shutdownErr := rt.providers.Shutdown(ctx)

	return errors.Join(scopeErr, shutdownErr)
}
