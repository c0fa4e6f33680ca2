package commands

import "github.com/spf13/cobra"

// NewRootCommand creates the stackdev root command with every subcommand.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stackdev",
		Short: "stackdev - a bounded int32 stack device",
		Long: `stackdev models a character device holding a bounded LIFO stack of
32-bit integers. Sessions open the device, push and pop 4-byte values and
resize it through a control command.

Commands:
  serve     HTTP API (and optional FUSE node)
  mount     FUSE device node
  mcp       MCP stdio server
  exec      Run an operation script in-process
  bench     Concurrent session benchmark
  config    Show or validate configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(configFlag, "", "config file (default searches ./stackdev.yaml, ~/.config/stackdev, /etc/stackdev)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMountCommand())
	rootCmd.AddCommand(NewMCPCommand())
	rootCmd.AddCommand(NewExecCommand())
	rootCmd.AddCommand(NewBenchCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
