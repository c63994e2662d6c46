package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <project-id>",
	Short: "Show a project's merged state from both stores",
	Long: `Display the merged view of one project.

Aggregates come from the database when its record exists, otherwise
from a scan of the hole status documents. The data sources line shows
which stores contributed, so a missing store is visible at a glance.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		summary, err := orch.GetProjectSummary(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		}

		fmt.Printf("Project %s\n", summary.ProjectID)
		fmt.Printf("  Name:       %s\n", summary.Name)
		fmt.Printf("  Status:     %s\n", summary.Status)
		if summary.Description != "" {
			fmt.Printf("  Notes:      %s\n", summary.Description)
		}
		fmt.Printf("  Source:     %s\n", summary.SourceFile)
		fmt.Printf("  Path:       %s\n", summary.ProjectPath)
		fmt.Printf("  Holes:      %d total, %d completed, %d pending, %d error\n",
			summary.TotalHoles, summary.CompletedHoles, summary.PendingHoles, summary.ErrorHoles)
		fmt.Printf("  Completion: %.1f%%\n", summary.CompletionRate*100)
		fmt.Printf("  Sources:    database=%v filesystem=%v\n",
			summary.DataSources.Database, summary.DataSources.Filesystem)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects known to either store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, database, _, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		seen := map[string]bool{}

		workpieces, err := database.ListWorkpieces(cmd.Context())
		if err != nil {
			return err
		}
		for _, w := range workpieces {
			seen[w.WorkpieceID] = true
			fmt.Printf("%-40s %-10s %4d holes  [db", w.WorkpieceID, w.Status, w.HoleCount)
			if store.ProjectExists(w.WorkpieceID) {
				fmt.Printf("+fs")
			}
			fmt.Println("]")
		}

		onDisk, err := store.ListProjects()
		if err != nil {
			return err
		}
		for _, projectID := range onDisk {
			if seen[projectID] {
				continue
			}
			fmt.Printf("%-40s %-10s            [fs only]\n", projectID, "?")
		}
		return nil
	},
}

func init() {
	summaryCmd.Flags().Bool("json", false, "emit the summary as JSON")
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(listCmd)
}
