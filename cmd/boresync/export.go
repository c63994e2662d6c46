package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Write a project's merged state to a JSONL archive",
	Long: `Export one project to a JSONL archive file.

The archive holds a project summary record followed by one record per
hole with its documents and every measurement row. Holes whose
documents cannot be read are reported and skipped.

Example usage:
  boresync export panel_a_20250314_090000 --output panel_a.jsonl
  boresync export panel_a_20250314_090000 --output panel_a.jsonl --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		exporter := export.New(orch, store, cfg.NewLogger("[export] "))
		result, err := exporter.Export(cmd.Context(), export.Options{
			ProjectID: args[0],
			Output:    output,
			DryRun:    dryRun,
		})
		if err != nil {
			return err
		}

		verb := "Exported"
		if dryRun {
			verb = "Would export"
		}
		fmt.Printf("%s %d holes, %d measurement rows (%d lines)\n",
			verb, result.HolesExported, result.MeasurementRows, result.LinesWritten)
		for _, e := range result.Errors {
			fmt.Printf("  skipped %s\n", e)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "", "archive file path")
	exportCmd.Flags().Bool("dry-run", false, "count records without writing")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}
