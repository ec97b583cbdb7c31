package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/ccbridge/internal/bridge"
	"github.com/steveyegge/ccbridge/internal/config"
	"github.com/steveyegge/ccbridge/internal/daemon"
	"github.com/steveyegge/ccbridge/internal/dashboard"
	"github.com/steveyegge/ccbridge/internal/logging"
	"github.com/steveyegge/ccbridge/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch the view and import continuously",
	Long: `Run the importer whenever the ClearCase view shows activity,
debounced so a burst of checkins becomes one import, with a fallback
poll for changes the watcher misses.

With --dashboard (or dashboard-addr in the config) a web dashboard
streams sync events over a websocket.`,
	Run: func(cmd *cobra.Command, args []string) {
		dashAddr, _ := cmd.Flags().GetString("dashboard")

		var server *dashboard.Server
		app, err := openApp(func(cfg *config.Config, opts *bridge.Options) {
			addr := firstNonEmpty(dashAddr, cfg.DashboardAddr)
			if addr == "" {
				return
			}
			server = dashboard.NewServer(addr, logging.New(opts.Logger.Writer(), "dashboard"))
			opts.Events = server
		})
		if err != nil {
			fatal("%v", err)
		}
		defer app.Close()

		if server != nil {
			if err := server.Start(); err != nil {
				fatal("dashboard: %v", err)
			}
			defer server.Stop()
			fmt.Printf("%s dashboard on http://%s\n", ui.RenderAccent(ui.IconInfo), server.Addr())
		}

		cfg := daemon.DefaultConfig()
		cfg.ViewDir = app.cfg.View
		if app.cfg.PollInterval > 0 {
			cfg.PollInterval = app.cfg.PollInterval
		}
		if app.cfg.Debounce > 0 {
			cfg.Debounce = app.cfg.Debounce
		}
		cfg.Logger = logging.New(app.logs, "daemon")

		d, err := daemon.New(cfg, func(ctx context.Context) error {
			_, err := app.bridge.ImportHistory(ctx, app.cfg.Branch, bridge.ImportOptions{})
			if errors.Is(err, bridge.ErrDiverged) {
				cfg.Logger.Printf("branch diverged, imports suspended until rebase or reset")
				return nil
			}
			return err
		})
		if err != nil {
			fatal("%v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("%s watching %s\n", ui.RenderPass(ui.IconPass), app.cfg.View)
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fatal("%v", err)
		}
	},
}

func init() {
	daemonCmd.Flags().String("dashboard", "", "serve the event dashboard on this address (e.g. localhost:8420)")
	rootCmd.AddCommand(daemonCmd)
}
