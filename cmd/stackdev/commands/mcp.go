package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stackdev/pkg/config"
	"github.com/Sumatoshi-tech/stackdev/pkg/mcp"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
	"github.com/Sumatoshi-tech/stackdev/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The whole server run is one device session. The server exposes the stack
as tools that AI agents can discover and invoke:
  - stack_push: Push a 32-bit value
  - stack_pop: Pop the most recently pushed value
  - stack_resize: Change the stack capacity
  - stack_stat: Report device state and counters`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			env, err := newAppEnv(cobraCmd, observability.ModeMCP, func(cfg *config.Config) {
				applyMCPLogging(cfg, debug)
			})
			if err != nil {
				return err
			}

			defer func() {
				closeErr := env.close(context.Background())
				if closeErr != nil {
					env.providers.Logger.Warn("shutdown failed", "error", closeErr)
				}
			}()

			deps := mcp.ServerDeps{
				Scope:   env.scope,
				Version: version.Version,
				Logger:  env.providers.Logger,
				Metrics: env.red,
				Tracer:  env.providers.Tracer,
			}

			srv := mcp.NewServer(deps)

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

// applyMCPLogging keeps stdout free for the protocol: logs go to stderr as
// JSON, and the HTTP and FUSE front ends stay off.
func applyMCPLogging(cfg *config.Config, debug bool) {
	cfg.Logging.Format = "json"
	cfg.Server.Enabled = false
	cfg.FUSE.Enabled = false

	if debug {
		cfg.Logging.Level = "debug"
		cfg.Telemetry.DebugTrace = true
	}
}
