// Package serve provides the "rosterbot serve" command: the WhatsApp session,
// the status web server and the dataset watcher in one process.
package serve

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/rosterbot/cmd/version"
	"github.com/klytics/rosterbot/internal/app"
	"github.com/klytics/rosterbot/internal/config"
	"github.com/klytics/rosterbot/internal/pairing"
	"github.com/klytics/rosterbot/internal/transport"
	"github.com/klytics/rosterbot/internal/web"
)

// NewCommand returns the serve command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WhatsApp bot and its status server",
		Long: `Start the whatsapp-web.js bridge, answer commands from the roster and
serve the status page on the configured port. On first start the pairing QR
code is printed to the terminal and published as /qrcode.png.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}

	publisher := &pairing.Publisher{
		PublicDir: cfg.Server.PublicDir,
		BaseURL:   pairing.BaseURL(cfg.Server.ExternalURL, cfg.Server.Port),
		Out:       os.Stdout,
	}
	factory := func() (transport.Client, error) {
		client, err := transport.NewNodeClient(transport.NodeConfig{
			Node:       cfg.Bridge.Node,
			BridgePath: cfg.Bridge.Path,
			SessionDir: cfg.Bridge.SessionDir,
			ClientID:   cfg.Bridge.ClientID,
			Headless:   cfg.Bridge.Headless,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("using WhatsApp bridge", "script", client.Script())
		return client, nil
	}

	ctrl, err := a.Controller(factory, publisher, true)
	if err != nil {
		return err
	}
	watcher, err := a.Watcher()
	if err != nil {
		return err
	}
	srv := web.NewServer(cfg.Addr(), cfg.Server.PublicDir, ctrl, version.Version)
	if watcher != nil {
		srv.WithWatcher(watcher)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(ctx) })
	g.Go(func() error { return srv.Start(ctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Start(ctx) })
	}

	slog.Info("rosterbot started", "version", version.Version, "addr", cfg.Addr(), "records", a.Store.Len())
	err = g.Wait()
	slog.Info("rosterbot stopped")
	return err
}
