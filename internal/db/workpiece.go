package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Workpiece is one inspection project row. WorkpieceID is the natural key
// shared with the filesystem store's project ID.
type Workpiece struct {
	ID              int64
	WorkpieceID     string
	Name            string
	Type            string
	Material        string
	DXFFilePath     string
	ProjectDataPath string
	HoleCount       int
	CompletedHoles  int
	Status          string
	Description     string
	Version         string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const workpieceColumns = `id, workpiece_id, name, type, material, dxf_file_path,
	project_data_path, hole_count, completed_holes, status,
	COALESCE(description, ''), COALESCE(version, ''), created_at, updated_at`

// InsertWorkpieceTx inserts a workpiece row inside an existing
// transaction and returns its surrogate key.
func (db *DB) InsertWorkpieceTx(ctx context.Context, tx *sql.Tx, w *Workpiece) (int64, error) {
	now := time.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	res, err := tx.ExecContext(ctx, `
		INSERT INTO workpieces (
			workpiece_id, name, type, material, dxf_file_path,
			project_data_path, hole_count, completed_holes, status,
			description, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.WorkpieceID, w.Name, w.Type, w.Material, w.DXFFilePath,
		w.ProjectDataPath, w.HoleCount, w.CompletedHoles, w.Status,
		w.Description, w.Version,
		w.CreatedAt.Format(time.RFC3339Nano), w.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert workpiece %s: %w", w.WorkpieceID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read workpiece row ID: %w", err)
	}
	w.ID = id
	return id, nil
}

// GetWorkpiece retrieves a workpiece by its natural key.
// Returns ErrNotFound if no row matches.
func (db *DB) GetWorkpiece(ctx context.Context, workpieceID string) (*Workpiece, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+workpieceColumns+` FROM workpieces WHERE workpiece_id = ?`, workpieceID)

	w, err := scanWorkpiece(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("workpiece %s: %w", workpieceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workpiece %s: %w", workpieceID, err)
	}
	return w, nil
}

// ListWorkpieces returns all workpiece rows ordered by creation time.
func (db *DB) ListWorkpieces(ctx context.Context) ([]*Workpiece, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+workpieceColumns+` FROM workpieces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workpieces: %w", err)
	}
	defer rows.Close()

	var workpieces []*Workpiece
	for rows.Next() {
		w, err := scanWorkpiece(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workpiece: %w", err)
		}
		workpieces = append(workpieces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workpieces: %w", err)
	}
	return workpieces, nil
}

// UpdateWorkpiece rewrites all mutable columns of a workpiece row,
// matched by natural key.
func (db *DB) UpdateWorkpiece(ctx context.Context, w *Workpiece) error {
	w.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx, `
		UPDATE workpieces SET
			name = ?, type = ?, material = ?, dxf_file_path = ?,
			project_data_path = ?, hole_count = ?, completed_holes = ?,
			status = ?, description = ?, version = ?, updated_at = ?
		WHERE workpiece_id = ?`,
		w.Name, w.Type, w.Material, w.DXFFilePath,
		w.ProjectDataPath, w.HoleCount, w.CompletedHoles,
		w.Status, w.Description, w.Version,
		w.UpdatedAt.Format(time.RFC3339Nano), w.WorkpieceID,
	)
	if err != nil {
		return fmt.Errorf("failed to update workpiece %s: %w", w.WorkpieceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("workpiece %s: %w", w.WorkpieceID, ErrNotFound)
	}
	return nil
}

// UpdateWorkpiecePaths updates only the filesystem-owned path columns of
// an existing row. Used by the filesystem-to-database sync, which must
// not touch database-owned fields.
func (db *DB) UpdateWorkpiecePaths(ctx context.Context, workpieceID, dxfPath, dataPath string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE workpieces SET dxf_file_path = ?, project_data_path = ?, updated_at = ?
		WHERE workpiece_id = ?`,
		dxfPath, dataPath, time.Now().Format(time.RFC3339Nano), workpieceID)
	if err != nil {
		return fmt.Errorf("failed to update workpiece paths for %s: %w", workpieceID, err)
	}
	return nil
}

// UpdateWorkpieceCounts sets the aggregate hole counters, which the
// database owns.
func (db *DB) UpdateWorkpieceCounts(ctx context.Context, workpieceID string, holeCount, completedHoles int) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE workpieces SET hole_count = ?, completed_holes = ?, updated_at = ?
		WHERE workpiece_id = ?`,
		holeCount, completedHoles, time.Now().Format(time.RFC3339Nano), workpieceID)
	if err != nil {
		return fmt.Errorf("failed to update workpiece counts for %s: %w", workpieceID, err)
	}
	return nil
}

// DeleteWorkpiece removes a workpiece row. Holes and measurements are
// left to explicit operator tooling; this layer never cascades deletes.
func (db *DB) DeleteWorkpiece(ctx context.Context, workpieceID string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM workpieces WHERE workpiece_id = ?`, workpieceID)
	if err != nil {
		return fmt.Errorf("failed to delete workpiece %s: %w", workpieceID, err)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for the scan helpers.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkpiece(s scanner) (*Workpiece, error) {
	var (
		w                    Workpiece
		createdAt, updatedAt string
	)
	err := s.Scan(
		&w.ID, &w.WorkpieceID, &w.Name, &w.Type, &w.Material,
		&w.DXFFilePath, &w.ProjectDataPath, &w.HoleCount, &w.CompletedHoles,
		&w.Status, &w.Description, &w.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		w.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		w.UpdatedAt = t
	}
	return &w, nil
}
