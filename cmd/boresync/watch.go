package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/daemon"
	"github.com/boresync/boresync/internal/dashboard"
	"github.com/boresync/boresync/internal/hybrid"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the reconciliation daemon (foreground)",
	Long: `Watch the project trees and keep the database caught up.

The daemon recovers interrupted operations, runs one full
reconciliation, then reconciles projects as their documents change,
with a periodic full pass as a safety net.

With --dashboard, a WebSocket server broadcasts status changes and
reconciliation events to connected clients while the daemon runs.

Example usage:
  boresync watch
  boresync watch --dashboard`,
	RunE: func(cmd *cobra.Command, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var notifier hybrid.Notifier
		var server *dashboard.Server
		if withDashboard {
			server = dashboard.NewServer(&dashboard.Config{
				Addr:   cfg.DashboardAddr,
				Logger: cfg.NewLogger("[dashboard] "),
			})
			if err := server.Start(); err != nil {
				return fmt.Errorf("failed to start dashboard: %w", err)
			}
			defer server.Stop()
			notifier = dashboard.NewHandler(server, cfg.NewLogger("[dashboard] "))
			fmt.Printf("Dashboard: ws://%s/ws\n", server.GetAddr())
		}

		store, database, orch, err := openWorkspace(cmd.Context(), cfg, notifier)
		if err != nil {
			return err
		}
		defer database.Close()

		d, err := daemon.New(orch, store, &daemon.Config{
			ResyncInterval:   cfg.Watch.ResyncInterval,
			DebounceInterval: cfg.Watch.Debounce,
			Logger:           cfg.NewLogger("[daemon] "),
		})
		if err != nil {
			return err
		}

		fmt.Printf("Watching %s\n", cfg.Root)
		fmt.Println("Press Ctrl+C to stop")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		return d.Start(ctx)
	},
}

func init() {
	watchCmd.Flags().Bool("dashboard", false, "also serve the WebSocket dashboard")
	rootCmd.AddCommand(watchCmd)
}
