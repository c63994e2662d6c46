package hybrid

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/schema"
)

// Field ownership drives both sync directions. The database owns
// aggregate counts, status, description and version at project level, and
// position/diameter/tolerance/depth/status/measurement-count at hole
// level. The filesystem owns the path layout, hole existence on disk, and
// the info-document metadata that has no database column. Each sync pass
// overwrites, in its target, the fields the target does not own, and
// never deletes anything.

// SyncFilesystemToDatabase propagates filesystem-owned state into the
// database. Workpiece and hole rows missing from the database are
// inserted from the on-disk documents; existing rows only get their
// path columns refreshed. Holes present in the database but absent on
// disk are left untouched. Unreadable hole documents are logged and
// skipped so one corrupt file cannot block the rest of the project.
func (o *Orchestrator) SyncFilesystemToDatabase(ctx context.Context, projectID string) error {
	start := time.Now()

	meta, err := o.fs.GetMetadata(projectID)
	if err != nil {
		return fmt.Errorf("failed to read project metadata: %w", err)
	}

	workpiece, err := o.db.GetWorkpiece(ctx, projectID)
	if db.IsNotFound(err) {
		workpiece, err = o.insertWorkpieceFromMeta(ctx, meta)
	}
	if err != nil {
		return err
	}

	if workpiece.DXFFilePath != meta.SourceFile || workpiece.ProjectDataPath != meta.ProjectPath {
		if err := o.db.UpdateWorkpiecePaths(ctx, projectID, meta.SourceFile, meta.ProjectPath); err != nil {
			return err
		}
	}

	holeIDs, err := o.fs.ListHoles(projectID)
	if err != nil {
		return err
	}

	existing, err := o.db.ListHoles(ctx, workpiece.ID)
	if err != nil {
		return err
	}
	byID := make(map[string]*db.Hole, len(existing))
	for _, h := range existing {
		byID[h.HoleID] = h
	}

	synced := 0
	for _, holeID := range holeIDs {
		info, err := o.fs.LoadInfo(projectID, holeID)
		if err != nil {
			o.logger.Printf("WARNING: skipping hole %s, unreadable info: %v", holeID, err)
			continue
		}

		holeDir := o.fs.HoleDir(projectID, holeID)
		if row, ok := byID[holeID]; ok {
			if row.FileSystemPath != holeDir {
				if err := o.db.UpdateHolePath(ctx, row.ID, holeDir); err != nil {
					return err
				}
				synced++
			}
			continue
		}

		// Hole exists on disk only: adopt it wholesale, status included.
		status := info.Status
		if rec, err := o.fs.LoadStatus(projectID, holeID); err == nil {
			status = rec.CurrentStatus
		}

		if _, err := o.db.InsertHole(ctx, &db.Hole{
			HoleID:         holeID,
			WorkpieceID:    workpiece.ID,
			PositionX:      info.Position.X,
			PositionY:      info.Position.Y,
			TargetDiameter: info.Diameter,
			Tolerance:      info.Properties.Tolerance,
			Depth:          info.Depth,
			FileSystemPath: holeDir,
			Status:         status,
		}); err != nil {
			return err
		}
		synced++
	}

	// Refresh the database-owned aggregates from its own hole rows once
	// the inserts have landed.
	if err := o.refreshWorkpieceCounts(ctx, workpiece); err != nil {
		return err
	}

	o.logger.Printf("Synced fs->db for %s: %d holes touched in %s",
		projectID, synced, time.Since(start).Round(time.Millisecond))
	o.notifier.SyncCompleted(projectID, "fs_to_db", synced, time.Since(start))
	return nil
}

// insertWorkpieceFromMeta creates the database row for a project that so
// far exists only on disk, taking all fields from the metadata document.
func (o *Orchestrator) insertWorkpieceFromMeta(ctx context.Context, meta *schema.ProjectMeta) (*db.Workpiece, error) {
	workpiece := &db.Workpiece{
		WorkpieceID:     meta.ProjectID,
		Name:            meta.Name,
		DXFFilePath:     meta.SourceFile,
		ProjectDataPath: meta.ProjectPath,
		HoleCount:       meta.TotalHoles,
		CompletedHoles:  meta.CompletedHoles,
		Status:          meta.Status,
		Description:     meta.Description,
		Version:         meta.Version,
	}
	err := o.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := o.db.InsertWorkpieceTx(ctx, tx, workpiece)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert workpiece %s: %w", meta.ProjectID, err)
	}
	return workpiece, nil
}

// refreshWorkpieceCounts recomputes hole_count and completed_holes from
// the hole rows. Skips the write when nothing changed so a repeated sync
// is a no-op.
func (o *Orchestrator) refreshWorkpieceCounts(ctx context.Context, workpiece *db.Workpiece) error {
	counts, err := o.db.CountHolesByStatus(ctx, workpiece.ID)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	completed := counts[schema.HoleStatusCompleted]

	if workpiece.HoleCount == total && workpiece.CompletedHoles == completed {
		return nil
	}
	workpiece.HoleCount = total
	workpiece.CompletedHoles = completed
	return o.db.UpdateWorkpieceCounts(ctx, workpiece.WorkpieceID, total, completed)
}

// SyncDatabaseToFilesystem propagates database-owned state onto the
// filesystem. Every database-owned field is overwritten in the target
// documents; this is a full overwrite, not a field-level merge. Holes
// that exist only in the database are materialized on disk. Writes are
// skipped when the target already matches, which makes a repeated sync a
// no-op.
func (o *Orchestrator) SyncDatabaseToFilesystem(ctx context.Context, projectID string) error {
	start := time.Now()

	workpiece, err := o.db.GetWorkpiece(ctx, projectID)
	if err != nil {
		return fmt.Errorf("database has no record of project %s: %w", projectID, err)
	}

	meta, err := o.fs.GetMetadata(projectID)
	if err != nil {
		return fmt.Errorf("failed to read project metadata: %w", err)
	}

	if meta.TotalHoles != workpiece.HoleCount ||
		meta.CompletedHoles != workpiece.CompletedHoles ||
		meta.Status != workpiece.Status ||
		meta.Description != workpiece.Description ||
		meta.Version != workpiece.Version {
		meta.TotalHoles = workpiece.HoleCount
		meta.CompletedHoles = workpiece.CompletedHoles
		meta.Status = workpiece.Status
		meta.Description = workpiece.Description
		meta.Version = workpiece.Version
		if err := o.fs.SaveMetadata(projectID, meta); err != nil {
			return err
		}
	}

	holes, err := o.db.ListHoles(ctx, workpiece.ID)
	if err != nil {
		return err
	}

	synced := 0
	for _, hole := range holes {
		changed, err := o.syncHoleToFilesystem(projectID, hole)
		if err != nil {
			return fmt.Errorf("failed to sync hole %s to filesystem: %w", hole.HoleID, err)
		}
		if changed {
			synced++
		}
	}

	o.logger.Printf("Synced db->fs for %s: %d holes touched in %s",
		projectID, synced, time.Since(start).Round(time.Millisecond))
	o.notifier.SyncCompleted(projectID, "db_to_fs", synced, time.Since(start))
	return nil
}

// syncHoleToFilesystem overwrites one hole's database-owned fields on
// disk, creating the hole directory if the database is the only store
// that knows the hole. Reports whether anything was written.
func (o *Orchestrator) syncHoleToFilesystem(projectID string, hole *db.Hole) (bool, error) {
	lock := o.holeLock(projectID, hole.HoleID)
	lock.Lock()
	defer lock.Unlock()

	if !o.fs.HoleExists(projectID, hole.HoleID) {
		info := schema.NewHoleInfo(&schema.HoleSpec{
			HoleID:    hole.HoleID,
			Position:  schema.SpecPositionAt(hole.PositionX, hole.PositionY),
			Diameter:  hole.TargetDiameter,
			Depth:     hole.Depth,
			Tolerance: &hole.Tolerance,
		})
		info.Status = hole.Status
		if err := o.fs.CreateHoleDirectory(projectID, hole.HoleID, info); err != nil {
			return false, err
		}
		if hole.Status != schema.HoleStatusPending {
			if err := o.fs.UpdateStatus(projectID, hole.HoleID, hole.Status, "sync from database", ""); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	changed := false

	info, err := o.fs.LoadInfo(projectID, hole.HoleID)
	if err != nil {
		return false, err
	}
	if info.Position.X != hole.PositionX || info.Position.Y != hole.PositionY ||
		info.Diameter != hole.TargetDiameter || info.Depth != hole.Depth ||
		info.Properties.Tolerance != hole.Tolerance || info.Status != hole.Status {
		info.Position = schema.Position{X: hole.PositionX, Y: hole.PositionY}
		info.Diameter = hole.TargetDiameter
		info.Depth = hole.Depth
		info.Properties.Tolerance = hole.Tolerance
		info.Status = hole.Status
		if err := o.fs.SaveInfo(projectID, hole.HoleID, info); err != nil {
			return false, err
		}
		changed = true
	}

	status, err := o.fs.LoadStatus(projectID, hole.HoleID)
	if err != nil {
		return false, err
	}
	if status.CurrentStatus != hole.Status {
		// History is append-only: the overwrite shows up as exactly one
		// new entry, never as a rewrite.
		status.Append(hole.Status, "sync from database", "")
		if err := o.fs.SaveStatus(projectID, hole.HoleID, status); err != nil {
			return false, err
		}
		o.notifier.HoleStatusChanged(projectID, hole.HoleID, hole.Status, "sync from database")
		changed = true
	}

	return changed, nil
}

// EnsureConsistency reconciles both stores: filesystem-to-database first,
// then database-to-filesystem, always in that order. Because each pass
// fully overwrites the fields its target does not own, a field modified
// in both stores ends up reflecting the database, which is read last.
// A failed pass leaves state between the two stores; callers should
// retry until it reports success. Safe to repeat: with no intervening
// writes the second run changes nothing.
func (o *Orchestrator) EnsureConsistency(ctx context.Context, projectID string) error {
	if err := o.SyncFilesystemToDatabase(ctx, projectID); err != nil {
		return fmt.Errorf("fs->db pass failed: %w", err)
	}
	if err := o.SyncDatabaseToFilesystem(ctx, projectID); err != nil {
		return fmt.Errorf("db->fs pass failed: %w", err)
	}
	return nil
}
