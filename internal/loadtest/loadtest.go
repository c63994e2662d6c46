// Package loadtest provides load testing utilities for the consistency
// layer.
//
// It builds a synthetic inspection project and simulates concurrent
// measurement stations writing sample batches while monitors read merged
// summaries, reporting latency percentiles for both paths.
package loadtest

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/hybrid"
	"github.com/boresync/boresync/internal/schema"
)

// TestEnvironment is a populated workspace for load testing.
type TestEnvironment struct {
	Orch      *hybrid.Orchestrator
	Store     *fsstore.Store
	DB        *db.DB
	ProjectID string
	HoleIDs   []string
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min       time.Duration
	Max       time.Duration
	Mean      time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	TotalOps  int
	Errors    int
	Durations []time.Duration
}

// CreateTestEnvironment builds a workspace under dir with one project of
// numHoles synthetic holes. Hole geometry is generated from a fixed seed
// so runs are reproducible.
func CreateTestEnvironment(dir string, numHoles int) (*TestEnvironment, error) {
	logger := log.New(os.Stderr, "[loadtest] ", log.LstdFlags)

	store := fsstore.New(filepath.Join(dir, "data"), logger)

	database, err := db.Open(filepath.Join(dir, "loadtest.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Tuned up for many concurrent stations.
	database.RawDB().SetMaxOpenConns(50)
	database.RawDB().SetMaxIdleConns(20)
	database.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := database.InitSchema(context.Background()); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	orch := hybrid.New(store, database, logger, nil)

	specs := generateSpecs(numHoles)
	result, err := orch.CreateProjectFromSource(context.Background(),
		"/loadtest/synthetic.dxf", "LoadTest", specs)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if len(result.Created) != numHoles {
		_ = database.Close()
		return nil, fmt.Errorf("expected %d holes, created %d", numHoles, len(result.Created))
	}

	return &TestEnvironment{
		Orch:      orch,
		Store:     store,
		DB:        database,
		ProjectID: result.ProjectID,
		HoleIDs:   result.Created,
	}, nil
}

// Close closes the environment's database connection.
func (te *TestEnvironment) Close() error {
	if te.DB != nil {
		return te.DB.Close()
	}
	return nil
}

// generateSpecs creates numHoles specs laid out on a grid with jittered
// diameters, from a fixed seed for reproducibility.
func generateSpecs(numHoles int) []schema.HoleSpec {
	rng := rand.New(rand.NewSource(42))
	specs := make([]schema.HoleSpec, 0, numHoles)

	for i := 0; i < numHoles; i++ {
		diameter := 6.0 + rng.Float64()*4.0
		specs = append(specs, schema.HoleSpec{
			HoleID:   fmt.Sprintf("H%05d", i+1),
			Position: schema.SpecPositionAt(float64(i%50) * 12.5, float64(i/50) * 12.5),
			Diameter: diameter,
			Depth:    10.0 + rng.Float64()*20.0,
		})
	}

	return specs
}

// generateRows creates one batch of sample rows around the target
// diameter.
func generateRows(rng *rand.Rand, rowsPerBatch int, diameter float64) []schema.MeasurementRow {
	rows := make([]schema.MeasurementRow, 0, rowsPerBatch)
	now := time.Now()
	for i := 0; i < rowsPerBatch; i++ {
		ts := now.Add(time.Duration(i) * time.Millisecond)
		rows = append(rows, schema.MeasurementRow{
			Timestamp: &ts,
			Depth:     float64(i) * 0.5,
			Diameter:  diameter + (rng.Float64()-0.5)*0.1,
			Operator:  "loadtest",
		})
	}
	return rows
}

// RunConcurrentBatches simulates numStations measurement stations, each
// writing batchesPerStation batches of rowsPerBatch samples. Stations
// walk the hole list at staggered offsets, so some holes see writes from
// several stations at once.
func (te *TestEnvironment) RunConcurrentBatches(numStations, batchesPerStation, rowsPerBatch int) (*LatencyStats, error) {
	if len(te.HoleIDs) == 0 {
		return nil, fmt.Errorf("environment has no holes")
	}

	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numStations)
	errorsChan := make(chan error, numStations)

	for i := 0; i < numStations; i++ {
		wg.Add(1)
		go func(stationID int) {
			defer wg.Done()

			rng := rand.New(rand.NewSource(int64(stationID)))
			durations := make([]time.Duration, 0, batchesPerStation)
			ctx := context.Background()

			for j := 0; j < batchesPerStation; j++ {
				holeID := te.HoleIDs[(stationID+j*numStations)%len(te.HoleIDs)]

				info, err := te.Store.LoadInfo(te.ProjectID, holeID)
				if err != nil {
					errorsChan <- fmt.Errorf("station %d: failed to load %s: %w", stationID, holeID, err)
					return
				}
				rows := generateRows(rng, rowsPerBatch, info.Diameter)

				start := time.Now()
				_, err = te.Orch.SaveMeasurementBatch(ctx, te.ProjectID, holeID, rows, "loadtest")
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("station %d batch %d failed: %w", stationID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	return collectStats(resultsChan, errorsChan)
}

// RunConcurrentSummaries simulates numMonitors dashboards polling the
// merged project summary.
func (te *TestEnvironment) RunConcurrentSummaries(numMonitors, queriesPerMonitor int) (*LatencyStats, error) {
	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numMonitors)
	errorsChan := make(chan error, numMonitors)

	for i := 0; i < numMonitors; i++ {
		wg.Add(1)
		go func(monitorID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerMonitor)
			ctx := context.Background()

			for j := 0; j < queriesPerMonitor; j++ {
				start := time.Now()
				_, err := te.Orch.GetProjectSummary(ctx, te.ProjectID)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("monitor %d query %d failed: %w", monitorID, j, err)
					return
				}
			}

			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	return collectStats(resultsChan, errorsChan)
}

// collectStats drains the worker channels into aggregate statistics.
func collectStats(resultsChan chan []time.Duration, errorsChan chan error) (*LatencyStats, error) {
	errorCount := 0
	for err := range errorsChan {
		if err != nil {
			errorCount++
			fmt.Printf("Error: %v\n", err)
		}
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}

	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful operations completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	mean := sum / time.Duration(len(durations))

	p50 := sorted[len(sorted)*50/100]
	p95 := sorted[len(sorted)*95/100]
	p99 := sorted[len(sorted)*99/100]

	return &LatencyStats{
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Mean:      mean,
		P50:       p50,
		P95:       p95,
		P99:       p99,
		TotalOps:  len(durations),
		Durations: sorted,
	}
}

// PrintStats formats and prints latency statistics.
func (s *LatencyStats) PrintStats() {
	fmt.Printf("Latency Statistics:\n")
	fmt.Printf("  Total Ops: %d\n", s.TotalOps)
	fmt.Printf("  Errors:    %d\n", s.Errors)
	fmt.Printf("  Min:       %v\n", s.Min)
	fmt.Printf("  P50:       %v\n", s.P50)
	fmt.Printf("  Mean:      %v\n", s.Mean)
	fmt.Printf("  P95:       %v\n", s.P95)
	fmt.Printf("  P99:       %v\n", s.P99)
	fmt.Printf("  Max:       %v\n", s.Max)
}
