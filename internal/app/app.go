// Package app assembles the roster, dispatcher, replacement workflow and
// session controller from configuration. The serve and console commands
// differ only in the transport they plug in.
package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/klytics/rosterbot/internal/audit"
	"github.com/klytics/rosterbot/internal/bot"
	"github.com/klytics/rosterbot/internal/commands"
	"github.com/klytics/rosterbot/internal/config"
	"github.com/klytics/rosterbot/internal/logging"
	"github.com/klytics/rosterbot/internal/roster"
	"github.com/klytics/rosterbot/internal/transport"
	"github.com/klytics/rosterbot/internal/watch"
)

// LoadConfig loads configuration using the command's --config flag and
// installs the logger. --verbose forces debug level.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logging.Setup(level, cfg.Log.Format)
	if used := config.FileUsed(); used != "" {
		slog.Debug("config loaded", "file", used)
	}
	return cfg, nil
}

// App holds the long-lived components shared by every transport.
type App struct {
	Config     *config.Config
	Store      *roster.Store
	Dispatcher *commands.Dispatcher
	Replacer   *bot.Replacer
	Audit      *audit.Logger
}

// New builds the components and loads the dataset. A dataset that cannot be
// loaded leaves the table empty; !reload or the watcher can recover later.
// Upload settings that would stage onto the live dataset are an error.
func New(cfg *config.Config) (*App, error) {
	store := roster.New(cfg.Data.Path, cfg.Data.Sheet)
	replacer, err := bot.NewReplacer(cfg.Data.Path, cfg.Upload.TempDir, cfg.Upload.Filename, store)
	if err != nil {
		return nil, err
	}
	if err := store.Load(); err != nil {
		slog.Warn("starting with an empty table", "path", cfg.Data.Path, "error", err)
	}

	return &App{
		Config: cfg,
		Store:  store,
		Dispatcher: commands.New(store, commands.Options{
			SearchPrefixes: cfg.Bot.SearchPrefixes,
			Fields:         cfg.Fields,
			ConfirmCommand: cfg.Upload.ConfirmCommand,
		}),
		Replacer: replacer,
		Audit:    audit.NewLogger(cfg.Audit.Path, cfg.Audit.Enabled),
	}, nil
}

// Controller returns a session controller driving clients from factory.
// pairing may be nil when the transport never asks for a QR code.
func (a *App) Controller(factory transport.Factory, pairing bot.Publisher, rebuildOnExit bool) (*bot.Controller, error) {
	opts := bot.Options{
		Factory:        factory,
		Dispatcher:     a.Dispatcher,
		Replacer:       a.Replacer,
		Store:          a.Store,
		Audit:          a.Audit,
		ConfirmCommand: a.Config.Upload.ConfirmCommand,
		Welcome:        a.Config.Bot.Welcome,
		RebuildOnExit:  rebuildOnExit,
	}
	if pairing != nil {
		opts.Pairing = pairing
	}
	ctrl, err := bot.New(opts)
	if err != nil {
		return nil, fmt.Errorf("could not create controller: %w", err)
	}
	return ctrl, nil
}

// Watcher returns a watcher that reloads the store when the live file changes
// on disk, or nil when data.watch is off.
func (a *App) Watcher() (*watch.Watcher, error) {
	if !a.Config.Data.Watch {
		return nil, nil
	}
	return watch.New(a.Config.Data.Path, a.Config.Data.Debounce, func(string) error {
		return a.Store.Reload()
	})
}
