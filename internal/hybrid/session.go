package hybrid

import (
	"context"
	"fmt"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/schema"
)

// The session API is what the real-time acquisition consumer calls: start
// a measurement session on one hole, persist incoming sample batches,
// update status, and load merged historical data. All types returned are
// plain data structures.

// StartMeasurement transitions a hole into the measuring state in both
// stores and marks the owning project active.
func (o *Orchestrator) StartMeasurement(ctx context.Context, projectID, holeID, operator string) error {
	return o.UpdateHoleStatus(ctx, projectID, holeID, schema.HoleStatusMeasuring,
		"measurement session started", operator)
}

// UpdateHoleStatus moves a hole to a new status in both stores, enforcing
// the one-directional lifecycle: any transition backwards (or between
// distinct terminal statuses) returns ErrInvalidTransition. The
// filesystem history gains one entry; the database row's status column is
// set; the workpiece's completed count is refreshed.
func (o *Orchestrator) UpdateHoleStatus(ctx context.Context, projectID, holeID, newStatus, reason, operator string) error {
	if !schema.IsHoleStatus(newStatus) {
		return fmt.Errorf("unknown hole status %q", newStatus)
	}

	lock := o.holeLock(projectID, holeID)
	lock.Lock()
	defer lock.Unlock()

	status, err := o.fs.LoadStatus(projectID, holeID)
	if err != nil {
		return err
	}
	if !schema.CanTransition(status.CurrentStatus, newStatus) {
		return fmt.Errorf("%w: %s -> %s for hole %s",
			ErrInvalidTransition, status.CurrentStatus, newStatus, holeID)
	}
	if status.CurrentStatus == newStatus {
		return nil
	}

	if err := o.fs.UpdateStatus(projectID, holeID, newStatus, reason, operator); err != nil {
		return err
	}

	// Database write is best-effort when the row is missing; the next
	// fs->db sync adopts the hole.
	workpiece, err := o.db.GetWorkpiece(ctx, projectID)
	if err != nil {
		if !db.IsNotFound(err) {
			return err
		}
		o.logger.Printf("WARNING: status of %s/%s updated on disk only, no database row", projectID, holeID)
	} else {
		hole, err := o.db.GetHole(ctx, workpiece.ID, holeID)
		if err != nil {
			if !db.IsNotFound(err) {
				return err
			}
			o.logger.Printf("WARNING: status of %s/%s updated on disk only, no database row", projectID, holeID)
		} else {
			if err := o.db.UpdateHoleStatus(ctx, hole.ID, newStatus); err != nil {
				return err
			}
			if err := o.refreshWorkpieceCounts(ctx, workpiece); err != nil {
				return err
			}
		}
	}

	o.notifier.HoleStatusChanged(projectID, holeID, newStatus, reason)
	return nil
}

// BatchResult reports what a SaveMeasurementBatch call persisted.
type BatchResult struct {
	Saved   int      `json:"saved"`
	Skipped int      `json:"skipped"`
	Reasons []string `json:"reasons,omitempty"`
}

// SaveMeasurementBatch persists one batch of samples: a new CSV file on
// the filesystem, matching measurement rows in the database (with
// qualification derived from the hole's target diameter and tolerance),
// and refreshed statistics in the status document. Invalid rows are
// skipped and reported, valid rows are kept.
func (o *Orchestrator) SaveMeasurementBatch(ctx context.Context, projectID, holeID string, rows []schema.MeasurementRow, operator string) (*BatchResult, error) {
	result := &BatchResult{}

	var valid []schema.MeasurementRow
	for i := range rows {
		if ok, problems := schema.ValidateMeasurementRow(&rows[i]); !ok {
			result.Skipped++
			result.Reasons = append(result.Reasons, fmt.Sprintf("row %d: %v", i, problems))
			continue
		}
		row := rows[i]
		if row.Operator == "" {
			row.Operator = operator
		}
		valid = append(valid, row)
	}
	if len(valid) == 0 {
		return result, fmt.Errorf("no valid rows in batch of %d", len(rows))
	}

	info, err := o.fs.LoadInfo(projectID, holeID)
	if err != nil {
		return result, err
	}
	targetDiameter := info.Diameter
	tolerance := info.Properties.Tolerance

	// The database values win when a row exists; they are the authority
	// for diameter and tolerance.
	var holeRow *db.Hole
	if workpiece, err := o.db.GetWorkpiece(ctx, projectID); err == nil {
		if hole, err := o.db.GetHole(ctx, workpiece.ID, holeID); err == nil {
			holeRow = hole
			targetDiameter = hole.TargetDiameter
			tolerance = hole.Tolerance
		}
	}

	if err := o.fs.SaveMeasurementBatch(projectID, holeID, valid, ""); err != nil {
		return result, err
	}
	result.Saved = len(valid)

	measurements := make([]db.Measurement, 0, len(valid))
	qualifiedCount := 0
	for _, row := range valid {
		qualified, deviation := row.Qualify(targetDiameter, tolerance)
		if qualified {
			qualifiedCount++
		}
		m := db.Measurement{
			Depth:       row.Depth,
			Diameter:    row.Diameter,
			Operator:    row.Operator,
			IsQualified: qualified,
			Deviation:   deviation,
		}
		if row.Timestamp != nil {
			m.Timestamp = *row.Timestamp
		}
		measurements = append(measurements, m)
	}

	if holeRow != nil {
		if err := o.db.InsertMeasurements(ctx, holeRow.ID, measurements); err != nil {
			// The CSV write already happened; the caller retries or runs
			// EnsureConsistency, both of which are safe.
			return result, fmt.Errorf("measurements written to disk but not database: %w", err)
		}
	} else {
		o.logger.Printf("WARNING: measurements for %s/%s written to disk only, no database row", projectID, holeID)
	}

	lock := o.holeLock(projectID, holeID)
	lock.Lock()
	defer lock.Unlock()

	status, err := o.fs.LoadStatus(projectID, holeID)
	if err != nil {
		return result, err
	}
	status.Statistics.TotalMeasurements += len(valid)
	status.Statistics.SuccessfulMeasurements += qualifiedCount
	status.Statistics.FailedMeasurements += len(valid) - qualifiedCount
	if err := o.fs.SaveStatus(projectID, holeID, status); err != nil {
		return result, err
	}

	return result, nil
}

// HoleData is the merged per-hole read-model returned to the real-time
// consumer.
type HoleData struct {
	ProjectID    string                  `json:"project_id"`
	HoleID       string                  `json:"hole_id"`
	Info         *schema.HoleInfo        `json:"info,omitempty"`
	Status       *schema.HoleStatus      `json:"status,omitempty"`
	Measurements []schema.MeasurementRow `json:"measurements"`
	DataSources  DataSources             `json:"data_sources"`

	// Database-derived fields, zero-valued when the row is absent.
	MeasurementCount int     `json:"measurement_count"`
	TargetDiameter   float64 `json:"target_diameter"`
	Tolerance        float64 `json:"tolerance"`
}

// GetHoleCompleteData loads everything known about one hole from both
// stores: info and status documents, every CSV row, and the database
// row's aggregates. Neither store's absence is fatal.
func (o *Orchestrator) GetHoleCompleteData(ctx context.Context, projectID, holeID string) (*HoleData, error) {
	data := &HoleData{ProjectID: projectID, HoleID: holeID}

	if o.fs.HoleExists(projectID, holeID) {
		data.DataSources.Filesystem = true

		if info, err := o.fs.LoadInfo(projectID, holeID); err == nil {
			data.Info = info
			data.TargetDiameter = info.Diameter
			data.Tolerance = info.Properties.Tolerance
		}
		if status, err := o.fs.LoadStatus(projectID, holeID); err == nil {
			data.Status = status
		}
		rows, err := o.fs.LoadAllMeasurements(projectID, holeID)
		if err != nil {
			return nil, err
		}
		data.Measurements = rows
	}

	if hole, err := o.db.FindHole(ctx, holeID, projectID); err == nil {
		data.DataSources.Database = true
		data.MeasurementCount = hole.MeasurementCount
		data.TargetDiameter = hole.TargetDiameter
		data.Tolerance = hole.Tolerance
	} else if !db.IsNotFound(err) {
		return nil, err
	}

	if !data.DataSources.Database && !data.DataSources.Filesystem {
		return nil, fmt.Errorf("hole %s/%s exists in neither store", projectID, holeID)
	}

	return data, nil
}
