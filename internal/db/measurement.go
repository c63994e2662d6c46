package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Measurement is one immutable probe sample row. IsQualified and
// Deviation are derived from the owning hole's target diameter and
// tolerance at insert time and never recomputed.
type Measurement struct {
	ID          int64
	HoleID      int64
	Timestamp   time.Time
	Depth       float64
	Diameter    float64
	Operator    string
	IsQualified bool
	Deviation   float64
}

// InsertMeasurements inserts a batch of measurements for one hole and
// refreshes the hole's measurement_count and last_measurement_at, all in
// a single transaction. The count is recomputed from the table rather
// than incremented, so a retried batch cannot drift it.
func (db *DB) InsertMeasurements(ctx context.Context, holeRowID int64, measurements []Measurement) error {
	if len(measurements) == 0 {
		return nil
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO measurements (
				hole_id, timestamp, depth, diameter, operator,
				is_qualified, deviation
			) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare measurement insert: %w", err)
		}
		defer stmt.Close()

		var latest time.Time
		for i, m := range measurements {
			ts := m.Timestamp
			if ts.IsZero() {
				ts = time.Now()
			}
			if ts.After(latest) {
				latest = ts
			}

			qualified := 0
			if m.IsQualified {
				qualified = 1
			}

			if _, err := stmt.ExecContext(ctx,
				holeRowID, ts.Format(time.RFC3339Nano), m.Depth, m.Diameter,
				m.Operator, qualified, m.Deviation,
			); err != nil {
				return fmt.Errorf("failed to insert measurement %d: %w", i, err)
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE holes SET
				measurement_count = (SELECT COUNT(*) FROM measurements WHERE hole_id = ?),
				last_measurement_at = ?,
				updated_at = ?
			WHERE id = ?`,
			holeRowID,
			latest.Format(time.RFC3339Nano),
			time.Now().Format(time.RFC3339Nano),
			holeRowID,
		)
		if err != nil {
			return fmt.Errorf("failed to refresh hole measurement stats: %w", err)
		}
		return nil
	})
}

// CountMeasurements returns the number of measurement rows for a hole.
func (db *DB) CountMeasurements(ctx context.Context, holeRowID int64) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM measurements WHERE hole_id = ?`, holeRowID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}

// ListMeasurements returns all measurements for a hole ordered by
// timestamp.
func (db *DB) ListMeasurements(ctx context.Context, holeRowID int64) ([]*Measurement, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, hole_id, timestamp, depth, diameter,
		       COALESCE(operator, ''), is_qualified, deviation
		FROM measurements
		WHERE hole_id = ?
		ORDER BY timestamp ASC, id ASC`, holeRowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var measurements []*Measurement
	for rows.Next() {
		var (
			m         Measurement
			timestamp string
			qualified int
		)
		if err := rows.Scan(
			&m.ID, &m.HoleID, &timestamp, &m.Depth, &m.Diameter,
			&m.Operator, &qualified, &m.Deviation,
		); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}

		if t, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
			m.Timestamp = t
		}
		m.IsQualified = qualified != 0

		measurements = append(measurements, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating measurements: %w", err)
	}
	return measurements, nil
}

// QualificationStats summarizes pass/fail counts for one hole.
type QualificationStats struct {
	Total     int
	Qualified int
	Failed    int
}

// GetQualificationStats aggregates qualification outcomes for a hole.
func (db *DB) GetQualificationStats(ctx context.Context, holeRowID int64) (*QualificationStats, error) {
	var stats QualificationStats
	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(is_qualified), 0),
		       COALESCE(SUM(1 - is_qualified), 0)
		FROM measurements WHERE hole_id = ?`, holeRowID).
		Scan(&stats.Total, &stats.Qualified, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate qualification stats: %w", err)
	}
	return &stats, nil
}
