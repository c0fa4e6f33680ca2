package commands

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/stackdev/pkg/config"
)

var (
	// ErrConfigInvalid reports a configuration file that fails schema checks.
	ErrConfigInvalid = errors.New("configuration file is invalid")
	// ErrNoConfigFile reports validate run without a file to check.
	ErrNoConfigFile = errors.New("no configuration file given")
)

// NewConfigCommand creates the config command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigValidateCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration as YAML",
		Long:          "Print the configuration after defaults, the config file, .env and STACKDEV_ variables are merged.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath(cobraCmd))
			if err != nil {
				return err
			}

			return config.WriteYAML(cobraCmd.OutOrStdout(), cfg)
		},
	}
}

func newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "validate [file]",
		Short:         "Check a configuration file against the schema",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			path := configPath(cobraCmd)
			if len(args) == 1 {
				path = args[0]
			}

			if path == "" {
				return ErrNoConfigFile
			}

			issues, err := config.ValidateFile(path)
			if err != nil {
				return err
			}

			out := cobraCmd.OutOrStdout()

			if len(issues) == 0 {
				color.New(color.FgGreen).Fprintf(out, "%s is valid\n", path)

				return nil
			}

			color.New(color.FgRed).Fprintf(out, "%s failed validation\n", path)

			for _, issue := range issues {
				color.New(color.FgYellow).Fprintf(out, "  - %s: %s\n", issue.Field, issue.Description)
			}

			return fmt.Errorf("%w: %d issue(s)", ErrConfigInvalid, len(issues))
		},
	}
}
