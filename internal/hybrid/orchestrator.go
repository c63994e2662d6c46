// Package hybrid is the consistency layer between the relational store
// and the mirrored directory tree. It composes the fsstore and db
// packages into create/sync/query operations that present one consistent
// view to callers.
//
// There is no transactional bridge between the two stores. Creation is
// compensated (a failed database commit deletes the tree it mirrored),
// syncs are one-directional and additive, and a write-ahead journal lets
// a crash between the two stores be detected and resolved on the next
// startup. Conflicts resolve by store-granularity last-writer-wins: each
// sync pass fully overwrites the fields its target does not own, and
// EnsureConsistency always runs filesystem-to-database first, so the
// database wins when both stores changed the same owned field.
package hybrid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/boresync/boresync/internal/db"
	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/schema"
)

// ErrInvalidTransition is returned when a status update would move a hole
// backwards along its lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// Orchestrator coordinates the filesystem and database stores.
type Orchestrator struct {
	fs       *fsstore.Store
	db       *db.DB
	journal  *journal
	logger   *log.Logger
	notifier Notifier

	// Per-hole mutexes serialize status read-modify-write cycles within
	// this process. Cross-process writers are out of scope.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Orchestrator over the given stores. If logger is nil a
// default stderr logger is used; if notifier is nil notifications are
// discarded. Callers should run RecoverPending once at startup to resolve
// operations interrupted by a crash.
func New(fs *fsstore.Store, database *db.DB, logger *log.Logger, notifier Notifier) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[hybrid] ", log.LstdFlags)
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Orchestrator{
		fs:       fs,
		db:       database,
		journal:  newJournal(fs.Root()),
		logger:   logger,
		notifier: notifier,
		locks:    map[string]*sync.Mutex{},
	}
}

// holeLock returns the mutex guarding one hole's read-modify-write cycle.
func (o *Orchestrator) holeLock(projectID, holeID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()

	key := projectID + "/" + holeID
	lock, ok := o.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[key] = lock
	}
	return lock
}

// SkippedSpec records one hole spec that failed validation and why.
type SkippedSpec struct {
	Spec    schema.HoleSpec `json:"spec"`
	Reasons []string        `json:"reasons"`
}

// CreateResult reports what a CreateProjectFromSource call actually did.
// Nothing is silent: every invalid spec appears in Skipped with its
// validation problems.
type CreateResult struct {
	ProjectID   string        `json:"project_id"`
	ProjectPath string        `json:"project_path"`
	Created     []string      `json:"created"`
	Skipped     []SkippedSpec `json:"skipped,omitempty"`
}

// CreateProjectFromSource creates a project in both stores:
//
//  1. create the filesystem project tree
//  2. validate each hole spec; invalid specs are skipped and recorded
//  3. create a filesystem hole directory per valid spec
//  4. insert the workpiece row plus one hole row per created directory,
//     in a single transaction
//
// A database failure after step 3 deletes the filesystem tree as
// compensation (best effort). A crash between steps 3 and 4 leaves the
// tree orphaned; the journal entry written along the way lets
// RecoverPending resolve it on the next startup.
func (o *Orchestrator) CreateProjectFromSource(ctx context.Context, sourcePath, name string, specs []schema.HoleSpec) (*CreateResult, error) {
	projectID, projectPath, err := o.fs.CreateProject(sourcePath, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create project tree: %w", err)
	}

	if err := o.journal.begin("create_project", projectID, sourcePath); err != nil {
		// The journal is an aid, not a gate; creation proceeds without it.
		o.logger.Printf("WARNING: failed to journal create of %s: %v", projectID, err)
	}

	result := &CreateResult{ProjectID: projectID, ProjectPath: projectPath}

	var infos []*schema.HoleInfo
	for i := range specs {
		spec := &specs[i]
		if ok, problems := schema.ValidateHoleSpec(spec); !ok {
			o.logger.Printf("Skipping invalid hole spec %q: %v", spec.HoleID, problems)
			result.Skipped = append(result.Skipped, SkippedSpec{Spec: *spec, Reasons: problems})
			continue
		}

		info := schema.NewHoleInfo(spec)
		if err := o.fs.CreateHoleDirectory(projectID, spec.HoleID, info); err != nil {
			// I/O failure aborts the whole operation; validation failures
			// do not.
			o.compensateCreate(projectID)
			return nil, fmt.Errorf("failed to create hole directory %s: %w", spec.HoleID, err)
		}

		infos = append(infos, info)
		result.Created = append(result.Created, spec.HoleID)
	}

	if err := o.fs.UpdateMetadata(projectID, map[string]interface{}{
		"total_holes": len(result.Created),
	}); err != nil {
		o.compensateCreate(projectID)
		return nil, fmt.Errorf("failed to record hole count: %w", err)
	}

	if err := o.journal.mark(projectID, stepFSCreated); err != nil {
		o.logger.Printf("WARNING: failed to journal fs step of %s: %v", projectID, err)
	}

	err = o.db.WithTx(ctx, func(tx *sql.Tx) error {
		workpieceRowID, err := o.db.InsertWorkpieceTx(ctx, tx, &db.Workpiece{
			WorkpieceID:     projectID,
			Name:            name,
			DXFFilePath:     sourcePath,
			ProjectDataPath: projectPath,
			HoleCount:       len(result.Created),
			Status:          schema.ProjectStatusActive,
			Version:         schema.SchemaVersion,
		})
		if err != nil {
			return err
		}

		for _, info := range infos {
			_, err := o.db.InsertHoleTx(ctx, tx, &db.Hole{
				HoleID:         info.HoleID,
				WorkpieceID:    workpieceRowID,
				PositionX:      info.Position.X,
				PositionY:      info.Position.Y,
				TargetDiameter: info.Diameter,
				Tolerance:      info.Properties.Tolerance,
				Depth:          info.Depth,
				FileSystemPath: o.fs.HoleDir(projectID, info.HoleID),
				Status:         info.Status,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		o.compensateCreate(projectID)
		return nil, fmt.Errorf("database creation failed for %s: %w", projectID, err)
	}

	if err := o.journal.mark(projectID, stepDBCommitted); err != nil {
		o.logger.Printf("WARNING: failed to journal db step of %s: %v", projectID, err)
	}
	if err := o.journal.retire(projectID); err != nil {
		o.logger.Printf("WARNING: failed to retire journal entry %s: %v", projectID, err)
	}

	o.logger.Printf("Created project %s: %d holes, %d skipped",
		projectID, len(result.Created), len(result.Skipped))
	o.notifier.ProjectCreated(projectID, len(result.Created), len(result.Skipped))

	return result, nil
}

// compensateCreate deletes the filesystem tree of a failed create. A
// second failure here is only logged; the journal entry stays behind so
// recovery can look at the leftovers.
func (o *Orchestrator) compensateCreate(projectID string) {
	if err := o.fs.DeleteProject(projectID); err != nil {
		o.logger.Printf("WARNING: compensation failed for %s, tree left on disk: %v", projectID, err)
		return
	}
	if err := o.journal.retire(projectID); err != nil {
		o.logger.Printf("WARNING: failed to retire journal entry %s: %v", projectID, err)
	}
}

// GetHoleDataPath resolves the directory of a hole's data. The database
// is consulted first (exact hole match, optionally scoped to a project);
// if the row is absent or its path is empty, the path is resolved
// directly against the filesystem tree.
func (o *Orchestrator) GetHoleDataPath(ctx context.Context, holeID, projectID string) (string, error) {
	hole, err := o.db.FindHole(ctx, holeID, projectID)
	if err == nil && hole.FileSystemPath != "" {
		return hole.FileSystemPath, nil
	}
	if err != nil && !db.IsNotFound(err) {
		return "", err
	}

	if projectID != "" {
		if o.fs.HoleExists(projectID, holeID) {
			return o.fs.HoleDir(projectID, holeID), nil
		}
		return "", fmt.Errorf("hole %s not found in project %s", holeID, projectID)
	}

	projects, err := o.fs.ListProjects()
	if err != nil {
		return "", err
	}
	for _, pid := range projects {
		if o.fs.HoleExists(pid, holeID) {
			return o.fs.HoleDir(pid, holeID), nil
		}
	}
	return "", fmt.Errorf("hole %s not found in any store", holeID)
}
