package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Hole is one drilled hole row, scoped to a workpiece. HoleID is unique
// within its workpiece, not globally.
type Hole struct {
	ID                int64
	HoleID            string
	WorkpieceID       int64
	PositionX         float64
	PositionY         float64
	TargetDiameter    float64
	Tolerance         float64
	Depth             float64
	FileSystemPath    string
	Status            string
	LastMeasurementAt *time.Time
	MeasurementCount  int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

const holeColumns = `id, hole_id, workpiece_id, position_x, position_y,
	target_diameter, tolerance, depth, COALESCE(file_system_path, ''),
	status, last_measurement_at, measurement_count, created_at, updated_at`

// InsertHoleTx inserts a hole row inside an existing transaction.
func (db *DB) InsertHoleTx(ctx context.Context, tx *sql.Tx, h *Hole) (int64, error) {
	now := time.Now()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}
	h.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `
		INSERT INTO holes (
			hole_id, workpiece_id, position_x, position_y,
			target_diameter, tolerance, depth, file_system_path,
			status, last_measurement_at, measurement_count,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.HoleID, h.WorkpieceID, h.PositionX, h.PositionY,
		h.TargetDiameter, h.Tolerance, h.Depth, h.FileSystemPath,
		h.Status, timeToNullString(h.LastMeasurementAt), h.MeasurementCount,
		h.CreatedAt.Format(time.RFC3339Nano), h.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert hole %s: %w", h.HoleID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read hole row ID: %w", err)
	}
	h.ID = id
	return id, nil
}

// InsertHole inserts a single hole row in its own transaction.
func (db *DB) InsertHole(ctx context.Context, h *Hole) (int64, error) {
	var id int64
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = db.InsertHoleTx(ctx, tx, h)
		return err
	})
	return id, err
}

// GetHole retrieves a hole by workpiece row ID and hole ID.
// Returns ErrNotFound if no row matches.
func (db *DB) GetHole(ctx context.Context, workpieceRowID int64, holeID string) (*Hole, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+holeColumns+` FROM holes WHERE workpiece_id = ? AND hole_id = ?`,
		workpieceRowID, holeID)

	h, err := scanHole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("hole %s: %w", holeID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get hole %s: %w", holeID, err)
	}
	return h, nil
}

// FindHole looks a hole up by its hole ID, optionally scoped to one
// workpiece natural key. With an empty workpieceID the most recently
// inserted matching hole across all workpieces wins. The surrogate key
// orders insertions reliably; created_at strings do not, since
// RFC3339Nano trims trailing zeros.
func (db *DB) FindHole(ctx context.Context, holeID, workpieceID string) (*Hole, error) {
	query := `SELECT ` + qualifiedHoleColumns + `
		FROM holes h
		JOIN workpieces w ON w.id = h.workpiece_id
		WHERE h.hole_id = ?`
	args := []interface{}{holeID}

	if workpieceID != "" {
		query += ` AND w.workpiece_id = ?`
		args = append(args, workpieceID)
	}
	query += ` ORDER BY h.id DESC LIMIT 1`

	row := db.conn.QueryRowContext(ctx, query, args...)
	h, err := scanHole(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("hole %s: %w", holeID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find hole %s: %w", holeID, err)
	}
	return h, nil
}

const qualifiedHoleColumns = `h.id, h.hole_id, h.workpiece_id, h.position_x, h.position_y,
	h.target_diameter, h.tolerance, h.depth, COALESCE(h.file_system_path, ''),
	h.status, h.last_measurement_at, h.measurement_count, h.created_at, h.updated_at`

// ListHoles returns all holes of a workpiece ordered by hole ID.
func (db *DB) ListHoles(ctx context.Context, workpieceRowID int64) ([]*Hole, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+holeColumns+` FROM holes WHERE workpiece_id = ? ORDER BY hole_id ASC`,
		workpieceRowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holes: %w", err)
	}
	defer rows.Close()

	var holes []*Hole
	for rows.Next() {
		h, err := scanHole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hole: %w", err)
		}
		holes = append(holes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holes: %w", err)
	}
	return holes, nil
}

// CountHolesByStatus returns per-status hole counts for a workpiece.
func (db *DB) CountHolesByStatus(ctx context.Context, workpieceRowID int64) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM holes WHERE workpiece_id = ? GROUP BY status`,
		workpieceRowID)
	if err != nil {
		return nil, fmt.Errorf("failed to count holes by status: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return counts, nil
}

// UpdateHole rewrites all mutable columns of a hole row, matched by
// surrogate key.
func (db *DB) UpdateHole(ctx context.Context, h *Hole) error {
	h.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE holes SET
			position_x = ?, position_y = ?, target_diameter = ?,
			tolerance = ?, depth = ?, file_system_path = ?, status = ?,
			last_measurement_at = ?, measurement_count = ?, updated_at = ?
		WHERE id = ?`,
		h.PositionX, h.PositionY, h.TargetDiameter,
		h.Tolerance, h.Depth, h.FileSystemPath, h.Status,
		timeToNullString(h.LastMeasurementAt), h.MeasurementCount,
		h.UpdatedAt.Format(time.RFC3339Nano), h.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update hole %s: %w", h.HoleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("hole %s: %w", h.HoleID, ErrNotFound)
	}
	return nil
}

// UpdateHolePath updates only the filesystem-owned path column. Used by
// the filesystem-to-database sync for rows that already exist.
func (db *DB) UpdateHolePath(ctx context.Context, holeRowID int64, path string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE holes SET file_system_path = ?, updated_at = ? WHERE id = ?`,
		path, time.Now().Format(time.RFC3339Nano), holeRowID)
	if err != nil {
		return fmt.Errorf("failed to update hole path: %w", err)
	}
	return nil
}

// UpdateHoleStatus sets the status column of one hole row.
func (db *DB) UpdateHoleStatus(ctx context.Context, holeRowID int64, status string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE holes SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().Format(time.RFC3339Nano), holeRowID)
	if err != nil {
		return fmt.Errorf("failed to update hole status: %w", err)
	}
	return nil
}

// DeleteHole removes a hole row.
func (db *DB) DeleteHole(ctx context.Context, holeRowID int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM holes WHERE id = ?`, holeRowID)
	if err != nil {
		return fmt.Errorf("failed to delete hole: %w", err)
	}
	return nil
}

func scanHole(s scanner) (*Hole, error) {
	var (
		h                    Hole
		lastMeasurement      sql.NullString
		createdAt, updatedAt string
	)
	err := s.Scan(
		&h.ID, &h.HoleID, &h.WorkpieceID, &h.PositionX, &h.PositionY,
		&h.TargetDiameter, &h.Tolerance, &h.Depth, &h.FileSystemPath,
		&h.Status, &lastMeasurement, &h.MeasurementCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.LastMeasurementAt = nullStringToTime(lastMeasurement)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		h.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		h.UpdatedAt = t
	}
	return &h, nil
}
