package hybrid

import (
	"context"
	"os"
	"testing"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/schema"
)

func TestSyncAdoptsDiskOnlyProject(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	// Build the tree directly, bypassing the orchestrator, as if another
	// tool had written it.
	projectID, _, err := fs.CreateProject("/data/plate.dxf", "Plate")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	for _, spec := range testSpecs(2) {
		if err := fs.CreateHoleDirectory(projectID, spec.HoleID, schema.NewHoleInfo(&spec)); err != nil {
			t.Fatalf("CreateHoleDirectory failed: %v", err)
		}
	}
	if err := fs.UpdateStatus(projectID, "H001", schema.HoleStatusCompleted, "done", "op1"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	if err := o.SyncFilesystemToDatabase(ctx, projectID); err != nil {
		t.Fatalf("SyncFilesystemToDatabase failed: %v", err)
	}

	workpiece, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("workpiece not adopted: %v", err)
	}
	if workpiece.HoleCount != 2 || workpiece.CompletedHoles != 1 {
		t.Errorf("expected counts 2/1, got %d/%d", workpiece.HoleCount, workpiece.CompletedHoles)
	}

	hole, err := database.GetHole(ctx, workpiece.ID, "H001")
	if err != nil {
		t.Fatalf("hole not adopted: %v", err)
	}
	// Disk-only holes are adopted wholesale, status included.
	if hole.Status != schema.HoleStatusCompleted {
		t.Errorf("adopted hole should carry disk status, got %q", hole.Status)
	}
	if hole.PositionX != 0 || hole.TargetDiameter != 8.0 {
		t.Errorf("adopted hole geometry wrong: %+v", hole)
	}
}

func TestSyncDatabaseWinsConflict(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(1))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}
	projectID := result.ProjectID

	// Concurrent divergence: the database says completed, the disk says
	// error.
	workpiece, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("GetWorkpiece failed: %v", err)
	}
	hole, err := database.GetHole(ctx, workpiece.ID, "H001")
	if err != nil {
		t.Fatalf("GetHole failed: %v", err)
	}
	if err := database.UpdateHoleStatus(ctx, hole.ID, schema.HoleStatusCompleted); err != nil {
		t.Fatalf("UpdateHoleStatus failed: %v", err)
	}
	if err := fs.UpdateStatus(projectID, "H001", schema.HoleStatusError, "probe fault", "op1"); err != nil {
		t.Fatalf("fs UpdateStatus failed: %v", err)
	}

	before, err := fs.LoadStatus(projectID, "H001")
	if err != nil {
		t.Fatalf("LoadStatus failed: %v", err)
	}
	historyBefore := len(before.StatusHistory)

	if err := o.EnsureConsistency(ctx, projectID); err != nil {
		t.Fatalf("EnsureConsistency failed: %v", err)
	}

	// Both stores converge on the database's value.
	hole, err = database.GetHole(ctx, workpiece.ID, "H001")
	if err != nil {
		t.Fatalf("GetHole after sync failed: %v", err)
	}
	if hole.Status != schema.HoleStatusCompleted {
		t.Errorf("database status changed by sync: %q", hole.Status)
	}

	after, err := fs.LoadStatus(projectID, "H001")
	if err != nil {
		t.Fatalf("LoadStatus after sync failed: %v", err)
	}
	if after.CurrentStatus != schema.HoleStatusCompleted {
		t.Errorf("filesystem should converge on completed, got %q", after.CurrentStatus)
	}
	// The overwrite appends exactly one history entry, the old entries
	// survive.
	if len(after.StatusHistory) != historyBefore+1 {
		t.Errorf("expected %d history entries, got %d", historyBefore+1, len(after.StatusHistory))
	}
}

func TestEnsureConsistencyIdempotent(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(2))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}
	projectID := result.ProjectID

	if err := o.UpdateHoleStatus(ctx, projectID, "H001", schema.HoleStatusCompleted, "done", "op1"); err != nil {
		t.Fatalf("UpdateHoleStatus failed: %v", err)
	}

	if err := o.EnsureConsistency(ctx, projectID); err != nil {
		t.Fatalf("first EnsureConsistency failed: %v", err)
	}

	snapshot := func() map[string][]byte {
		files := map[string][]byte{}
		for _, path := range []string{
			fs.MetadataPath(projectID),
			fs.InfoPath(projectID, "H001"),
			fs.StatusPath(projectID, "H001"),
			fs.InfoPath(projectID, "H002"),
			fs.StatusPath(projectID, "H002"),
		} {
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("failed to read %s: %v", path, err)
			}
			files[path] = data
		}
		return files
	}

	before := snapshot()
	workpieceBefore, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("GetWorkpiece failed: %v", err)
	}

	if err := o.EnsureConsistency(ctx, projectID); err != nil {
		t.Fatalf("second EnsureConsistency failed: %v", err)
	}

	after := snapshot()
	for path, data := range before {
		if string(after[path]) != string(data) {
			t.Errorf("repeated sync rewrote %s", path)
		}
	}

	workpieceAfter, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("GetWorkpiece after sync failed: %v", err)
	}
	if workpieceAfter.HoleCount != workpieceBefore.HoleCount ||
		workpieceAfter.CompletedHoles != workpieceBefore.CompletedHoles {
		t.Errorf("repeated sync changed counts: %d/%d -> %d/%d",
			workpieceBefore.HoleCount, workpieceBefore.CompletedHoles,
			workpieceAfter.HoleCount, workpieceAfter.CompletedHoles)
	}
}

func TestSyncMaterializesDatabaseOnlyHole(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(1))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}
	projectID := result.ProjectID

	workpiece, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("GetWorkpiece failed: %v", err)
	}

	// A hole row inserted out of band, no directory behind it.
	if _, err := database.InsertHole(ctx, &db.Hole{
		HoleID:         "H777",
		WorkpieceID:    workpiece.ID,
		PositionX:      30,
		PositionY:      15,
		TargetDiameter: 6.5,
		Tolerance:      0.05,
		Depth:          12,
		Status:         schema.HoleStatusMeasuring,
	}); err != nil {
		t.Fatalf("InsertHole failed: %v", err)
	}

	if err := o.SyncDatabaseToFilesystem(ctx, projectID); err != nil {
		t.Fatalf("SyncDatabaseToFilesystem failed: %v", err)
	}

	if !fs.HoleExists(projectID, "H777") {
		t.Fatal("database-only hole was not materialized on disk")
	}
	info, err := fs.LoadInfo(projectID, "H777")
	if err != nil {
		t.Fatalf("LoadInfo failed: %v", err)
	}
	if info.Diameter != 6.5 || info.Status != schema.HoleStatusMeasuring {
		t.Errorf("materialized info wrong: %+v", info)
	}
	status, err := fs.LoadStatus(projectID, "H777")
	if err != nil {
		t.Fatalf("LoadStatus failed: %v", err)
	}
	if status.CurrentStatus != schema.HoleStatusMeasuring {
		t.Errorf("materialized status wrong: %q", status.CurrentStatus)
	}
}
