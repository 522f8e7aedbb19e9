// Package cmd contains all CLI commands for the rosterbot binary.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdaudit "github.com/klytics/rosterbot/cmd/audit"
	"github.com/klytics/rosterbot/cmd/completion"
	cmdconfig "github.com/klytics/rosterbot/cmd/config"
	"github.com/klytics/rosterbot/cmd/console"
	"github.com/klytics/rosterbot/cmd/doctor"
	"github.com/klytics/rosterbot/cmd/query"
	"github.com/klytics/rosterbot/cmd/serve"
	"github.com/klytics/rosterbot/cmd/version"
)

var (
	configFile string
	jsonOutput bool
	verbose    bool
	noColor    bool
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rosterbot",
		Short: "WhatsApp bot answering questions about an attendee spreadsheet",
		Long: `rosterbot answers WhatsApp commands from an .xlsx roster of attendees
(name, phone, role, trip, hotel, room) and lets a chat member replace the
roster by uploading a new workbook and confirming it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./rosterbot.yaml or ~/.rosterbot/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")

	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(console.NewCommand())
	rootCmd.AddCommand(query.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
