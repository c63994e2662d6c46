package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/schema"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Measurement session operations on single holes",
}

var measureStartCmd = &cobra.Command{
	Use:   "start <project-id> <hole-id>",
	Short: "Transition a hole into the measuring state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		operator, _ := cmd.Flags().GetString("operator")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := orch.StartMeasurement(cmd.Context(), args[0], args[1], operator); err != nil {
			return err
		}
		fmt.Printf("Hole %s/%s is now measuring\n", args[0], args[1])
		return nil
	},
}

var measureBatchCmd = &cobra.Command{
	Use:   "batch <project-id> <hole-id>",
	Short: "Persist a batch of measurement samples to both stores",
	Long: `Save one batch of samples read from a JSON file:

  [
    {"timestamp": "2025-03-14T09:00:00Z", "depth": 0.0,
     "diameter": 8.02, "operator": "op1"},
    ...
  ]

The batch lands as one new CSV file on disk and matching rows in the
database, with qualification computed against the hole's target
diameter and tolerance. Invalid rows are skipped and reported.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		operator, _ := cmd.Flags().GetString("operator")

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read batch file: %w", err)
		}
		var rows []schema.MeasurementRow
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("failed to parse batch file: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		result, err := orch.SaveMeasurementBatch(cmd.Context(), args[0], args[1], rows, operator)
		if err != nil {
			return err
		}

		fmt.Printf("Saved %d rows", result.Saved)
		if result.Skipped > 0 {
			fmt.Printf(", skipped %d", result.Skipped)
		}
		fmt.Println()
		for _, reason := range result.Reasons {
			fmt.Printf("  %s\n", reason)
		}
		return nil
	},
}

var measureStatusCmd = &cobra.Command{
	Use:   "status <project-id> <hole-id> <new-status>",
	Short: "Move a hole to a new lifecycle status",
	Long: `Update a hole's status in both stores.

The lifecycle runs pending -> measuring -> completed/error/skipped and
never backwards; an invalid transition is rejected before either store
is touched.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		reason, _ := cmd.Flags().GetString("reason")
		operator, _ := cmd.Flags().GetString("operator")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := orch.UpdateHoleStatus(cmd.Context(), args[0], args[1], args[2], reason, operator); err != nil {
			return err
		}
		fmt.Printf("Hole %s/%s is now %s\n", args[0], args[1], args[2])
		return nil
	},
}

var measureShowCmd = &cobra.Command{
	Use:   "show <project-id> <hole-id>",
	Short: "Show everything both stores know about one hole",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, database, orch, err := openWorkspace(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		defer database.Close()

		data, err := orch.GetHoleCompleteData(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	},
}

func init() {
	measureStartCmd.Flags().String("operator", "", "operator identifier")
	measureBatchCmd.Flags().String("file", "", "JSON file with measurement rows")
	measureBatchCmd.Flags().String("operator", "", "operator identifier applied to rows without one")
	_ = measureBatchCmd.MarkFlagRequired("file")
	measureStatusCmd.Flags().String("reason", "", "reason recorded in the status history")
	measureStatusCmd.Flags().String("operator", "", "operator identifier")

	measureCmd.AddCommand(measureStartCmd)
	measureCmd.AddCommand(measureBatchCmd)
	measureCmd.AddCommand(measureStatusCmd)
	measureCmd.AddCommand(measureShowCmd)
	rootCmd.AddCommand(measureCmd)
}
