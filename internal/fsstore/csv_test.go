package fsstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/boresync/boresync/internal/schema"
)

func TestMeasurementBatchRoundTrip(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	rows := []schema.MeasurementRow{
		{Timestamp: &ts, Depth: 0, Diameter: 8.01, Operator: "op-1"},
		{Depth: 5.5, Diameter: 8.03},
		{Depth: 11.25, Diameter: 7.98, Operator: "op-1"},
	}

	if err := s.SaveMeasurementBatch(projectID, "HA", rows, ""); err != nil {
		t.Fatalf("SaveMeasurementBatch failed: %v", err)
	}

	got, err := s.LoadAllMeasurements(projectID, "HA")
	if err != nil {
		t.Fatalf("LoadAllMeasurements failed: %v", err)
	}
	if len(got) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(got))
	}

	for i := range rows {
		if got[i].Depth != rows[i].Depth || got[i].Diameter != rows[i].Diameter {
			t.Errorf("row %d mismatch: got %+v, want %+v", i, got[i], rows[i])
		}
		if got[i].Operator != rows[i].Operator {
			t.Errorf("row %d operator mismatch: got %q, want %q", i, got[i].Operator, rows[i].Operator)
		}
	}
	if got[0].Timestamp == nil || !got[0].Timestamp.Equal(ts) {
		t.Errorf("row 0 timestamp mismatch: %v", got[0].Timestamp)
	}
	if got[1].Timestamp != nil {
		t.Errorf("row 1 should have no timestamp, got %v", got[1].Timestamp)
	}
}

func TestEachBatchCreatesNewFile(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	batch := []schema.MeasurementRow{
		{Depth: 1, Diameter: 8.0},
		{Depth: 2, Diameter: 8.1},
	}

	if err := s.SaveMeasurementBatch(projectID, "HA", batch, "measurement_a.csv"); err != nil {
		t.Fatalf("first batch failed: %v", err)
	}
	if err := s.SaveMeasurementBatch(projectID, "HA", batch, "measurement_b.csv"); err != nil {
		t.Fatalf("second batch failed: %v", err)
	}

	count, err := s.MeasurementFileCount(projectID, "HA")
	if err != nil {
		t.Fatalf("MeasurementFileCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 files, got %d", count)
	}

	rows, err := s.LoadAllMeasurements(projectID, "HA")
	if err != nil {
		t.Fatalf("LoadAllMeasurements failed: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("expected 4 concatenated rows, got %d", len(rows))
	}
}

func TestLoadAllMeasurementsMinimalHeader(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	// Legacy tooling writes files with only the mandatory columns.
	dir := s.MeasurementsDir(projectID, "HA")
	legacy := "depth,diameter\n1.5,8.02\n3,7.99\n"
	if err := os.WriteFile(filepath.Join(dir, "measurement_legacy.csv"), []byte(legacy), 0644); err != nil {
		t.Fatalf("failed to write legacy file: %v", err)
	}

	rows, err := s.LoadAllMeasurements(projectID, "HA")
	if err != nil {
		t.Fatalf("LoadAllMeasurements failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Depth != 1.5 || rows[0].Diameter != 8.02 {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
}

func TestLoadAllMeasurementsEmptyHole(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	rows, err := s.LoadAllMeasurements(projectID, "HA")
	if err != nil {
		t.Fatalf("LoadAllMeasurements failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestLoadAllMeasurementsRejectsMissingColumn(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	dir := s.MeasurementsDir(projectID, "HA")
	if err := os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("depth\n1.5\n"), 0644); err != nil {
		t.Fatalf("failed to write bad file: %v", err)
	}

	if _, err := s.LoadAllMeasurements(projectID, "HA"); err == nil {
		t.Fatal("expected missing diameter column to fail")
	}
}

func TestLoadAllMeasurementsRejectsShortRow(t *testing.T) {
	s := setupStore(t)
	projectID := createTestProject(t, s, 1)

	// Full header, but the data row stops before the diameter column.
	dir := s.MeasurementsDir(projectID, "HA")
	short := "timestamp,depth,diameter,operator\n,1.0\n"
	if err := os.WriteFile(filepath.Join(dir, "short.csv"), []byte(short), 0644); err != nil {
		t.Fatalf("failed to write short-row file: %v", err)
	}

	if _, err := s.LoadAllMeasurements(projectID, "HA"); err == nil {
		t.Fatal("expected short data row to fail")
	}
}
