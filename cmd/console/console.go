// Package console provides the "rosterbot console" command: the bot driven
// from the terminal instead of WhatsApp.
package console

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/rosterbot/internal/app"
	"github.com/klytics/rosterbot/internal/transport"
)

// NewCommand returns the console command.
func NewCommand() *cobra.Command {
	var (
		user  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the bot from the terminal",
		Long: `Run the bot against a local readline session. Every line is handled as a
chat message; "/upload <path>" sends a workbook as a document so the
replacement workflow can be tried without a phone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cmd)
			if err != nil {
				return err
			}
			if !watch {
				cfg.Data.Watch = false
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, cancel := signal.NotifyContext(parent, os.Interrupt)
			defer cancel()

			a, err := app.New(cfg)
			if err != nil {
				return err
			}

			home, _ := os.UserHomeDir()
			client := transport.NewConsoleClient(transport.ConsoleConfig{
				HistoryFile: filepath.Join(home, ".rosterbot", "console_history"),
				User:        user,
			})
			ctrl, err := a.Controller(func() (transport.Client, error) { return client, nil }, nil, false)
			if err != nil {
				return err
			}
			watcher, err := a.Watcher()
			if err != nil {
				return err
			}

			color.New(color.FgCyan, color.Bold).Printf("rosterbot console: %d records loaded\n", a.Store.Len())
			fmt.Println("Type !help for bot commands, /help for console commands, /quit to leave.")

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				select {
				case <-client.Done():
					cancel()
				case <-ctx.Done():
				}
				return nil
			})
			g.Go(func() error { return ctrl.Run(ctx) })
			if watcher != nil {
				g.Go(func() error { return watcher.Start(ctx) })
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&user, "as", transport.DefaultConsoleUser, "Sender id attached to typed messages")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reload the dataset when the file changes on disk")
	return cmd
}
