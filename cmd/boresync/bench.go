package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boresync/boresync/internal/loadtest"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run a load test against a synthetic project",
	Long: `Run a load test simulating concurrent measurement stations.

A synthetic project is created in a scratch directory, then the given
number of stations write sample batches concurrently while monitors
poll the merged project summary. Latency percentiles are printed for
both paths.

Examples:
  # Default: 500 holes, 20 stations, 10 batches each
  boresync bench

  # Heavier write load
  boresync bench --holes 2000 --stations 50 --batches 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		holes, _ := cmd.Flags().GetInt("holes")
		stations, _ := cmd.Flags().GetInt("stations")
		batches, _ := cmd.Flags().GetInt("batches")
		rows, _ := cmd.Flags().GetInt("rows")
		monitors, _ := cmd.Flags().GetInt("monitors")
		dir, _ := cmd.Flags().GetString("dir")

		if holes <= 0 || stations <= 0 || batches <= 0 || rows <= 0 {
			return fmt.Errorf("--holes, --stations, --batches and --rows must be positive")
		}

		if dir == "" {
			var err error
			dir, err = os.MkdirTemp("", "boresync-bench-")
			if err != nil {
				return fmt.Errorf("failed to create scratch directory: %w", err)
			}
			defer os.RemoveAll(dir)
		}

		fmt.Printf("Building synthetic project: %d holes in %s\n", holes, dir)
		te, err := loadtest.CreateTestEnvironment(dir, holes)
		if err != nil {
			return err
		}
		defer te.Close()

		fmt.Printf("\nWrite path: %d stations x %d batches x %d rows\n", stations, batches, rows)
		writeStats, err := te.RunConcurrentBatches(stations, batches, rows)
		if err != nil {
			return err
		}
		writeStats.PrintStats()

		if monitors > 0 {
			fmt.Printf("\nRead path: %d monitors x %d summary queries\n", monitors, batches)
			readStats, err := te.RunConcurrentSummaries(monitors, batches)
			if err != nil {
				return err
			}
			readStats.PrintStats()
		}

		return nil
	},
}

func init() {
	benchCmd.Flags().Int("holes", 500, "holes in the synthetic project")
	benchCmd.Flags().Int("stations", 20, "concurrent measurement stations")
	benchCmd.Flags().Int("batches", 10, "batches per station")
	benchCmd.Flags().Int("rows", 10, "rows per batch")
	benchCmd.Flags().Int("monitors", 10, "concurrent summary readers (0 disables)")
	benchCmd.Flags().String("dir", "", "scratch directory (default: temp dir, removed afterwards)")
	rootCmd.AddCommand(benchCmd)
}
