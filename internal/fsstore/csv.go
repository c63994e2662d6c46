package fsstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/boresync/boresync/internal/schema"
)

// csvHeader is the column layout of every measurement file. depth and
// diameter are mandatory per row; timestamp and operator may be empty.
var csvHeader = []string{"timestamp", "depth", "diameter", "operator"}

// measurementFilename builds the timestamped name for a new batch file.
// Millisecond precision keeps rapid consecutive batches from colliding.
func measurementFilename(now time.Time) string {
	return fmt.Sprintf("measurement_%s.csv", now.Format("20060102_150405.000"))
}

// SaveMeasurementBatch writes one batch of rows as a new CSV file in the
// hole's CCIDM directory. Every call creates a new file; existing files
// are never appended to or merged. If filename is empty a timestamped
// name is generated.
func (s *Store) SaveMeasurementBatch(projectID, holeID string, rows []schema.MeasurementRow, filename string) error {
	dir := s.MeasurementsDir(projectID, holeID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create measurements directory: %w", err)
	}

	var f *os.File
	var path string
	if filename != "" {
		path = filepath.Join(dir, filename)
		var err error
		f, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create measurement file %s: %w", path, err)
		}
	} else {
		// Two batches can land within the same millisecond; O_EXCL plus a
		// numeric suffix keeps each batch in its own file.
		base := measurementFilename(time.Now())
		for attempt := 0; ; attempt++ {
			name := base
			if attempt > 0 {
				name = strings.TrimSuffix(base, ".csv") + fmt.Sprintf("_%d.csv", attempt)
			}
			path = filepath.Join(dir, name)
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
			if err == nil {
				filename = name
				break
			}
			if !os.IsExist(err) {
				return fmt.Errorf("failed to create measurement file %s: %w", path, err)
			}
		}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i, row := range rows {
		record := []string{
			"",
			strconv.FormatFloat(row.Depth, 'g', -1, 64),
			strconv.FormatFloat(row.Diameter, 'g', -1, 64),
			row.Operator,
		}
		if row.Timestamp != nil {
			record[0] = row.Timestamp.Format(time.RFC3339Nano)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush measurement file %s: %w", path, err)
	}

	s.logger.Printf("Wrote %d measurements to %s/%s/%s", len(rows), projectID, holeID, filename)
	return nil
}

// LoadAllMeasurements parses every CSV file in the hole's CCIDM directory
// (sorted by filename) and concatenates the rows. Callers must
// de-duplicate if the same logical session was written twice.
func (s *Store) LoadAllMeasurements(projectID, holeID string) ([]schema.MeasurementRow, error) {
	dir := s.MeasurementsDir(projectID, holeID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read measurements directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	var rows []schema.MeasurementRow
	for _, name := range files {
		fileRows, err := readMeasurementFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read measurement file %s: %w", name, err)
		}
		rows = append(rows, fileRows...)
	}

	return rows, nil
}

// MeasurementFileCount returns the number of CSV batch files for a hole.
func (s *Store) MeasurementFileCount(projectID, holeID string) (int, error) {
	entries, err := os.ReadDir(s.MeasurementsDir(projectID, holeID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read measurements directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".csv") {
			count++
		}
	}
	return count, nil
}

// readMeasurementFile parses one CSV file. Columns are resolved by header
// name so files with only the minimal depth,diameter layout still parse.
func readMeasurementFile(path string) ([]schema.MeasurementRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header row")
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	depthIdx, ok := cols["depth"]
	if !ok {
		return nil, fmt.Errorf("missing required column: depth")
	}
	diameterIdx, ok := cols["diameter"]
	if !ok {
		return nil, fmt.Errorf("missing required column: diameter")
	}
	timestampIdx, hasTimestamp := cols["timestamp"]
	operatorIdx, hasOperator := cols["operator"]

	var rows []schema.MeasurementRow
	for lineNum, record := range records[1:] {
		if depthIdx >= len(record) || diameterIdx >= len(record) {
			return nil, fmt.Errorf("line %d: too few columns (got %d)", lineNum+2, len(record))
		}
		depth, err := strconv.ParseFloat(strings.TrimSpace(record[depthIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad depth: %w", lineNum+2, err)
		}
		diameter, err := strconv.ParseFloat(strings.TrimSpace(record[diameterIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad diameter: %w", lineNum+2, err)
		}

		row := schema.MeasurementRow{Depth: depth, Diameter: diameter}

		if hasTimestamp && timestampIdx < len(record) {
			raw := strings.TrimSpace(record[timestampIdx])
			if raw != "" {
				ts, err := time.Parse(time.RFC3339Nano, raw)
				if err != nil {
					return nil, fmt.Errorf("line %d: bad timestamp: %w", lineNum+2, err)
				}
				row.Timestamp = &ts
			}
		}
		if hasOperator && operatorIdx < len(record) {
			row.Operator = strings.TrimSpace(record[operatorIdx])
		}

		rows = append(rows, row)
	}

	return rows, nil
}
