package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync [project-id]",
	Short: "Reconcile the database and the directory tree",
	Long: `Reconcile a project's two stores.

By default both passes run: filesystem-to-database first, then
database-to-filesystem. Fields modified in both stores since the last
reconciliation converge on the database's value. With no project ID,
every project found on disk is reconciled.

Example usage:
  boresync sync panel_a_20250314_090000
  boresync sync --direction fs-to-db panel_a_20250314_090000
  boresync sync --recover`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		doRecover, _ := cmd.Flags().GetBool("recover")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		if doRecover {
			resolved, err := orch.RecoverPending(cmd.Context())
			if err != nil {
				return fmt.Errorf("recovery failed: %w", err)
			}
			fmt.Printf("Resolved %d interrupted operations\n", resolved)
		}

		var projects []string
		if len(args) == 1 {
			projects = args
		} else {
			projects, err = store.ListProjects()
			if err != nil {
				return err
			}
		}

		for _, projectID := range projects {
			switch direction {
			case "both":
				err = orch.EnsureConsistency(cmd.Context(), projectID)
			case "fs-to-db":
				err = orch.SyncFilesystemToDatabase(cmd.Context(), projectID)
			case "db-to-fs":
				err = orch.SyncDatabaseToFilesystem(cmd.Context(), projectID)
			default:
				return fmt.Errorf("unknown direction %q (want both, fs-to-db or db-to-fs)", direction)
			}
			if err != nil {
				return fmt.Errorf("sync of %s failed: %w", projectID, err)
			}
			fmt.Printf("Synced %s\n", projectID)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().String("direction", "both", "sync direction: both, fs-to-db or db-to-fs")
	syncCmd.Flags().Bool("recover", false, "resolve journaled operations interrupted by a crash first")
	rootCmd.AddCommand(syncCmd)
}
