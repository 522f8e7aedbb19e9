// Package config provides CLI commands for configuration management.
package config

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/klytics/rosterbot/internal/app"
	"github.com/klytics/rosterbot/internal/config"
	"github.com/klytics/rosterbot/internal/output"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rosterbot configuration",
		Long: `View and modify rosterbot settings.

Settings come from ./rosterbot.yaml or ~/.rosterbot/config.yaml, then from
ROSTER_* environment variables (data.path → ROSTER_DATA_PATH). A .env file in
the working directory is loaded first.`,
	}

	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

func newShowCommand() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(cmd); err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				return output.FprintJSON(out, "config show", viper.AllSettings())
			}
			if asYAML {
				y, err := config.ShowYAML()
				if err != nil {
					return err
				}
				fmt.Fprint(out, y)
				return nil
			}
			fmt.Fprint(out, config.ShowConfig())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print every effective setting as YAML")
	return cmd
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(cmd); err != nil {
				return err
			}
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			path := config.FileUsed()
			if path == "" {
				path = config.ConfigPath()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s (%s)\n", args[0], args[1], path)
			return nil
		},
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(cmd); err != nil {
				return err
			}
			val := config.Get(args[0])
			if val == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (not set)\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], val)
			}
			return nil
		},
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(cmd); err != nil {
				return err
			}
			path := config.FileUsed()
			if path == "" {
				path = config.ConfigPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(cmd); err != nil {
				return err
			}
			issues := config.Validate()
			out := cmd.OutOrStdout()

			if jsonFlag, _ := cmd.Flags().GetBool("json"); jsonFlag {
				return output.FprintJSON(out, "config validate", issues)
			}

			errors := 0
			warnings := 0
			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					errors++
				case "warning":
					warnings++
				}
			}

			if errors == 0 && warnings == 0 {
				color.New(color.FgGreen).Fprintln(out, "Configuration is valid")
			} else {
				fmt.Fprintf(out, "Config validation: %d errors, %d warnings\n\n", errors, warnings)
			}

			for _, issue := range issues {
				switch issue.Severity {
				case "error":
					color.New(color.FgRed).Fprintf(out, "  %s: %s\n", issue.Key, issue.Message)
				case "warning":
					color.New(color.FgYellow).Fprintf(out, "  %s: %s\n", issue.Key, issue.Message)
				case "info":
					color.New(color.FgGreen).Fprintf(out, "  %s: %s\n", issue.Key, issue.Message)
				}
				if issue.Fix != "" {
					fmt.Fprintf(out, "   Fix: %s\n", issue.Fix)
				}
			}
			if errors > 0 {
				return fmt.Errorf("%d configuration error(s)", errors)
			}
			return nil
		},
	}
}
