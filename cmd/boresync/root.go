package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/config"
	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/hybrid"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "boresync",
	Short: "Hybrid storage for hole inspection data",
	Long: `boresync keeps hole inspection data consistent across two stores:
a SQLite database for fast queries and a mirrored directory tree of
JSON documents and CSV measurement files for tool interoperability.

Projects are created in both stores, measurement batches land in both,
and the sync commands reconcile them after crashes or out-of-band
edits.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ./boresync.yaml or ~/.boresync/boresync.yaml)")
}

// loadConfig resolves the effective configuration for a command run.
func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}

// openWorkspace builds the store pair and orchestrator from the
// configuration. The caller must close the returned database.
func openWorkspace(ctx context.Context, cfg *config.Config, notifier hybrid.Notifier) (*fsstore.Store, *db.DB, *hybrid.Orchestrator, error) {
	logger := cfg.NewLogger("[boresync] ")

	store := fsstore.New(cfg.Root, logger)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.DBPath, err)
	}
	if err := database.InitSchema(ctx); err != nil {
		_ = database.Close()
		return nil, nil, nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	orch := hybrid.New(store, database, logger, notifier)
	return store, database, orch, nil
}
