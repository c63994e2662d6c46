package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/schema"
)

var createCmd = &cobra.Command{
	Use:   "create <source-file>",
	Short: "Create a project in both stores from a hole spec file",
	Long: `Create an inspection project from extracted hole specifications.

The spec file is a JSON array of holes:

  [
    {"hole_id": "H001", "position": {"x": 10.0, "y": 5.0},
     "diameter": 8.0, "depth": 20.0},
    ...
  ]

Invalid specs are skipped and reported; the project is created with the
valid ones. The source file path is recorded as provenance but not
parsed.

Example usage:
  boresync create panel.dxf --name "Panel A" --specs holes.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		specsPath, _ := cmd.Flags().GetString("specs")

		data, err := os.ReadFile(specsPath)
		if err != nil {
			return fmt.Errorf("failed to read spec file: %w", err)
		}
		var specs []schema.HoleSpec
		if err := json.Unmarshal(data, &specs); err != nil {
			return fmt.Errorf("failed to parse spec file: %w", err)
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

		result, err := orch.CreateProjectFromSource(cmd.Context(), args[0], name, specs)
		if err != nil {
			return err
		}

		fmt.Printf("Created project %s\n", result.ProjectID)
		fmt.Printf("  Path:    %s\n", result.ProjectPath)
		fmt.Printf("  Holes:   %d\n", len(result.Created))
		if len(result.Skipped) > 0 {
			fmt.Printf("  Skipped: %d\n", len(result.Skipped))
			for _, s := range result.Skipped {
				fmt.Printf("    %s: %v\n", s.Spec.HoleID, s.Reasons)
			}
		}
		return nil
	},
}

func init() {
	createCmd.Flags().String("name", "", "project display name")
	createCmd.Flags().String("specs", "", "JSON file with hole specifications")
	_ = createCmd.MarkFlagRequired("name")
	_ = createCmd.MarkFlagRequired("specs")
	rootCmd.AddCommand(createCmd)
}
