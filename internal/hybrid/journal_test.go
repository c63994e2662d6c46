package hybrid

import (
	"context"
	"testing"

	"github.com/boresync/boresync/internal/schema"
)

func TestRecoverPendingAdoptsOrphanedTree(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	// Simulate a crash between the filesystem step and the database
	// commit: a full tree, a journal entry with only the fs step, no rows.
	projectID, _, err := fs.CreateProject("/data/crash.dxf", "Crash")
	if err != nil {
		t.Fatalf("CreateProject failed: %v", err)
	}
	for _, spec := range testSpecs(2) {
		if err := fs.CreateHoleDirectory(projectID, spec.HoleID, schema.NewHoleInfo(&spec)); err != nil {
			t.Fatalf("CreateHoleDirectory failed: %v", err)
		}
	}
	if err := o.journal.begin("create_project", projectID, "/data/crash.dxf"); err != nil {
		t.Fatalf("journal.begin failed: %v", err)
	}
	if err := o.journal.mark(projectID, stepFSCreated); err != nil {
		t.Fatalf("journal.mark failed: %v", err)
	}

	resolved, err := o.RecoverPending(ctx)
	if err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved entry, got %d", resolved)
	}

	workpiece, err := database.GetWorkpiece(ctx, projectID)
	if err != nil {
		t.Fatalf("orphaned project not adopted: %v", err)
	}
	if workpiece.HoleCount != 2 {
		t.Errorf("expected 2 holes after recovery, got %d", workpiece.HoleCount)
	}

	pending, err := o.journal.pending()
	if err != nil {
		t.Fatalf("journal.pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("journal should be empty after recovery, got %d entries", len(pending))
	}
}

func TestRecoverPendingRetiresStaleEntries(t *testing.T) {
	o, _, _ := setupOrchestrator(t)
	ctx := context.Background()

	// Entry fully committed before the crash: nothing to do.
	if err := o.journal.begin("create_project", "done_project", "/data/a.dxf"); err != nil {
		t.Fatalf("journal.begin failed: %v", err)
	}
	if err := o.journal.mark("done_project", stepFSCreated); err != nil {
		t.Fatalf("journal.mark failed: %v", err)
	}
	if err := o.journal.mark("done_project", stepDBCommitted); err != nil {
		t.Fatalf("journal.mark failed: %v", err)
	}

	// Entry whose tree never materialized.
	if err := o.journal.begin("create_project", "ghost_project", "/data/b.dxf"); err != nil {
		t.Fatalf("journal.begin failed: %v", err)
	}
	if err := o.journal.mark("ghost_project", stepFSCreated); err != nil {
		t.Fatalf("journal.mark failed: %v", err)
	}

	resolved, err := o.RecoverPending(ctx)
	if err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}
	if resolved != 2 {
		t.Errorf("expected 2 resolved entries, got %d", resolved)
	}

	pending, err := o.journal.pending()
	if err != nil {
		t.Fatalf("journal.pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("journal should be empty, got %d entries", len(pending))
	}
}

func TestRecoverPendingNoJournal(t *testing.T) {
	o, _, _ := setupOrchestrator(t)

	resolved, err := o.RecoverPending(context.Background())
	if err != nil {
		t.Fatalf("RecoverPending on empty journal failed: %v", err)
	}
	if resolved != 0 {
		t.Errorf("expected 0 resolved entries, got %d", resolved)
	}
}
