package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Robogera/kinematics/pkg/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigValidateCommand(a))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var target string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration to a file",
		Annotations: map[string]string{"skip_config": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("Can't create config directory %s: %w", dir, err)
			}
			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("%s (use --overwrite to replace it): %w", target, ERR_OUTPUT_EXISTS)
				}
			}
			if err := config.CreateDefault(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&target, "path", "p", "config.toml", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// loading already validated it
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration valid: %s\n", a.cfg_path)
			return nil
		},
	}
}
