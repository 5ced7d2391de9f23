package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/SorraTheOrc/SorraAgents-sub001/internal/config"
)

// ConfigOptions holds flags for the config subcommands.
type ConfigOptions struct {
	*RootOptions
	Force bool
}

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or initialise configuration",
		Long: `Show or initialise the AMPA configuration.

Settings come from built-in defaults, then the config file (--config, or
.ampa/config.yaml when present), then AMPA_* environment variables such as
AMPA_JOB_COOLDOWN=2h.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(opts, cmd)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented configuration template",
		Example: `  ampa config init
  ampa config init --config ./ampa.yaml --force`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(opts, cmd)
		},
	}
	initCmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func runConfigShow(opts *ConfigOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	out, err := cfg.Render()
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render config", err)
	}

	if opts.Format == "json" {
		// Re-decode the YAML so JSON keys and duration strings match the file.
		var doc map[string]any
		if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
			return WrapExitError(ExitFailure, "failed to render config", err)
		}
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(doc)
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func runConfigInit(opts *ConfigOptions, cmd *cobra.Command) error {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultPath()
	}

	if _, err := os.Stat(path); err == nil && !opts.Force {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", path))
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return WrapExitError(ExitCommandError, "failed to check config path", err)
	}

	if err := config.WriteDefault(path); err != nil {
		return WrapExitError(ExitFailure, "failed to write config", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(map[string]string{"path": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
