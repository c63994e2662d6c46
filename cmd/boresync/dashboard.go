package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the WebSocket dashboard server (standalone)",
	Long: `Start the WebSocket dashboard server without the daemon.

Clients connected to /ws receive JSON messages:
- hole_status: a hole changed status
- project_created: a new project was created
- sync_complete: a reconciliation pass finished
- stats: aggregate hole statistics

Standalone the server only emits what other processes broadcast to it;
run 'boresync watch --dashboard' for the integrated setup.

Example usage:
  boresync dashboard
  boresync dashboard --addr :9000

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.DashboardAddr
		}

		server := dashboard.NewServer(&dashboard.Config{
			Addr:   addr,
			Logger: cfg.NewLogger("[dashboard] "),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
		fmt.Printf("Health check: http://%s/health\n", server.GetAddr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		return server.Stop()
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "", "listen address (default from config)")
	rootCmd.AddCommand(dashboardCmd)
}
