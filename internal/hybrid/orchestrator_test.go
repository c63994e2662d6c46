package hybrid

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/schema"
)

// setupOrchestrator wires a temp filesystem store and database together.
func setupOrchestrator(t *testing.T) (*Orchestrator, *fsstore.Store, *db.DB) {
	t.Helper()

	tmpDir := t.TempDir()
	logger := log.New(os.Stderr, "[test] ", 0)

	fs := fsstore.New(filepath.Join(tmpDir, "data"), logger)

	database, err := db.Open(filepath.Join(tmpDir, "boresync.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.InitSchema(context.Background()); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return New(fs, database, logger, nil), fs, database
}

// testSpecs returns n valid hole specs named H001, H002, ...
func testSpecs(n int) []schema.HoleSpec {
	specs := make([]schema.HoleSpec, 0, n)
	for i := 0; i < n; i++ {
		specs = append(specs, schema.HoleSpec{
			HoleID:   holeName(i),
			Position: schema.SpecPositionAt(float64(i*10), float64(i*5)),
			Diameter: 8.0,
			Depth:    20.0,
		})
	}
	return specs
}

func holeName(i int) string {
	return string([]byte{'H', '0', '0', byte('1' + i)})
}

func TestCreateProjectBothStores(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(3))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}
	if len(result.Created) != 3 || len(result.Skipped) != 0 {
		t.Fatalf("expected 3 created, 0 skipped, got %d/%d", len(result.Created), len(result.Skipped))
	}

	// Creation invariant: DB hole rows == disk hole directories == valid specs.
	workpiece, err := database.GetWorkpiece(ctx, result.ProjectID)
	if err != nil {
		t.Fatalf("GetWorkpiece failed: %v", err)
	}
	if workpiece.HoleCount != 3 {
		t.Errorf("expected hole_count 3, got %d", workpiece.HoleCount)
	}
	holes, err := database.ListHoles(ctx, workpiece.ID)
	if err != nil {
		t.Fatalf("ListHoles failed: %v", err)
	}
	dirs, err := fs.ListHoles(result.ProjectID)
	if err != nil {
		t.Fatalf("fs ListHoles failed: %v", err)
	}
	if len(holes) != 3 || len(dirs) != 3 {
		t.Errorf("expected 3 rows and 3 directories, got %d/%d", len(holes), len(dirs))
	}

	for _, h := range holes {
		if h.FileSystemPath != fs.HoleDir(result.ProjectID, h.HoleID) {
			t.Errorf("hole %s has wrong path %q", h.HoleID, h.FileSystemPath)
		}
		if h.Status != schema.HoleStatusPending {
			t.Errorf("hole %s should start pending, got %q", h.HoleID, h.Status)
		}
	}

	// No journal entries left behind after a clean create.
	pending, err := o.journal.pending()
	if err != nil {
		t.Fatalf("journal.pending failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending journal entries, got %d", len(pending))
	}
}

func TestCreateProjectSkipsInvalidSpecs(t *testing.T) {
	o, _, database := setupOrchestrator(t)
	ctx := context.Background()

	specs := testSpecs(3)
	specs = append(specs, schema.HoleSpec{
		HoleID:   "H999",
		Diameter: 8.0, // position missing
		Depth:    20.0,
	})

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", specs)
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}
	if len(result.Created) != 3 {
		t.Errorf("expected 3 created, got %d", len(result.Created))
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("expected 1 skipped, got %d", len(result.Skipped))
	}
	if result.Skipped[0].Spec.HoleID != "H999" || len(result.Skipped[0].Reasons) == 0 {
		t.Errorf("skip record incomplete: %+v", result.Skipped[0])
	}

	workpiece, err := database.GetWorkpiece(ctx, result.ProjectID)
	if err != nil {
		t.Fatalf("GetWorkpiece failed: %v", err)
	}
	if workpiece.HoleCount != 3 {
		t.Errorf("expected hole_count 3 in database, got %d", workpiece.HoleCount)
	}

	meta, err := o.fs.GetMetadata(result.ProjectID)
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta.TotalHoles != 3 {
		t.Errorf("expected total_holes 3 on disk, got %d", meta.TotalHoles)
	}
}

func TestCreateProjectCompensatesOnDatabaseFailure(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	// A closed database makes the transaction fail after the filesystem
	// tree was already created.
	if err := database.Close(); err != nil {
		t.Fatalf("failed to close database: %v", err)
	}

	_, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(2))
	if err == nil {
		t.Fatal("expected creation to fail with closed database")
	}

	projects, listErr := fs.ListProjects()
	if listErr != nil {
		t.Fatalf("ListProjects failed: %v", listErr)
	}
	if len(projects) != 0 {
		t.Errorf("compensation should have deleted the tree, found %v", projects)
	}

	pending, jErr := o.journal.pending()
	if jErr != nil {
		t.Fatalf("journal.pending failed: %v", jErr)
	}
	if len(pending) != 0 {
		t.Errorf("journal entry should be retired after compensation, got %d", len(pending))
	}
}

func TestGetHoleDataPath(t *testing.T) {
	o, fs, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(1))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}

	path, err := o.GetHoleDataPath(ctx, "H001", result.ProjectID)
	if err != nil {
		t.Fatalf("GetHoleDataPath failed: %v", err)
	}
	if path != fs.HoleDir(result.ProjectID, "H001") {
		t.Errorf("unexpected path %q", path)
	}

	// Database row gone: falls back to direct filesystem resolution.
	if err := database.DeleteWorkpiece(ctx, result.ProjectID); err != nil {
		t.Fatalf("DeleteWorkpiece failed: %v", err)
	}
	workpiece, err := database.GetWorkpiece(ctx, result.ProjectID)
	if err == nil {
		t.Fatalf("workpiece should be gone, got %+v", workpiece)
	}

	path, err = o.GetHoleDataPath(ctx, "H001", "")
	if err != nil {
		t.Fatalf("fallback GetHoleDataPath failed: %v", err)
	}
	if path != fs.HoleDir(result.ProjectID, "H001") {
		t.Errorf("unexpected fallback path %q", path)
	}

	if _, err := o.GetHoleDataPath(ctx, "H404", ""); err == nil {
		t.Error("expected unknown hole to fail")
	}
}

func TestGetProjectSummaryProvenance(t *testing.T) {
	o, _, database := setupOrchestrator(t)
	ctx := context.Background()

	result, err := o.CreateProjectFromSource(ctx, "/data/panel.dxf", "Panel", testSpecs(2))
	if err != nil {
		t.Fatalf("CreateProjectFromSource failed: %v", err)
	}

	summary, err := o.GetProjectSummary(ctx, result.ProjectID)
	if err != nil {
		t.Fatalf("GetProjectSummary failed: %v", err)
	}
	if !summary.DataSources.Database || !summary.DataSources.Filesystem {
		t.Errorf("expected both sources, got %+v", summary.DataSources)
	}
	if summary.TotalHoles != 2 {
		t.Errorf("expected 2 holes, got %d", summary.TotalHoles)
	}

	// Database row deleted: summary still works from the directory scan
	// and reports the degradation.
	if err := database.DeleteWorkpiece(ctx, result.ProjectID); err != nil {
		t.Fatalf("DeleteWorkpiece failed: %v", err)
	}

	summary, err = o.GetProjectSummary(ctx, result.ProjectID)
	if err != nil {
		t.Fatalf("GetProjectSummary without database row failed: %v", err)
	}
	if summary.DataSources.Database {
		t.Error("database flag should be false")
	}
	if !summary.DataSources.Filesystem {
		t.Error("filesystem flag should be true")
	}
	if summary.TotalHoles != 2 || summary.PendingHoles != 2 {
		t.Errorf("filesystem statistics wrong: %+v", summary)
	}

	if _, err := o.GetProjectSummary(ctx, "no_such_project"); err == nil {
		t.Error("expected summary of missing project to fail")
	}
}
