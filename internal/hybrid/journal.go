package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// The journal is a write-ahead record of multi-store operations. There is
// no transaction spanning the database and the directory tree, so a crash
// between the filesystem step and the database commit leaves an orphaned
// tree. Each create operation journals its completed sub-steps to
// <root>/.journal/<projectID>.json; recovery scans for entries whose
// database step never happened and re-drives the additive
// filesystem-to-database sync for them.
//
// The journal lives on the filesystem, not in the database, because the
// database is the component whose failure it has to survive.

const (
	journalDirName = ".journal"

	stepFSCreated   = "fs_created"
	stepDBCommitted = "db_committed"
)

// journalStep is one completed sub-step of a journaled operation.
type journalStep struct {
	Step string    `json:"step"`
	At   time.Time `json:"at"`
}

// journalEntry records one in-flight create operation.
type journalEntry struct {
	Operation  string        `json:"operation"`
	ProjectID  string        `json:"project_id"`
	SourceFile string        `json:"source_file"`
	StartedAt  time.Time     `json:"started_at"`
	Steps      []journalStep `json:"steps"`
}

// hasStep reports whether the entry recorded the given sub-step.
func (e *journalEntry) hasStep(step string) bool {
	for _, s := range e.Steps {
		if s.Step == step {
			return true
		}
	}
	return false
}

// journal manages the write-ahead files under one store root.
type journal struct {
	dir string
}

func newJournal(root string) *journal {
	return &journal{dir: filepath.Join(root, journalDirName)}
}

func (j *journal) path(projectID string) string {
	return filepath.Join(j.dir, projectID+".json")
}

// begin records the start of a create operation.
func (j *journal) begin(operation, projectID, sourceFile string) error {
	if err := os.MkdirAll(j.dir, 0755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}
	entry := &journalEntry{
		Operation:  operation,
		ProjectID:  projectID,
		SourceFile: sourceFile,
		StartedAt:  time.Now(),
	}
	return j.write(entry)
}

// mark appends a completed sub-step to an operation's entry.
func (j *journal) mark(projectID, step string) error {
	entry, err := j.read(projectID)
	if err != nil {
		return err
	}
	entry.Steps = append(entry.Steps, journalStep{Step: step, At: time.Now()})
	return j.write(entry)
}

// retire removes an operation's journal file once the operation is fully
// resolved (committed, compensated, or recovered).
func (j *journal) retire(projectID string) error {
	if err := os.Remove(j.path(projectID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to retire journal entry %s: %w", projectID, err)
	}
	return nil
}

func (j *journal) read(projectID string) (*journalEntry, error) {
	data, err := os.ReadFile(j.path(projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entry %s: %w", projectID, err)
	}
	var entry journalEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse journal entry %s: %w", projectID, err)
	}
	return &entry, nil
}

func (j *journal) write(entry *journalEntry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if err := os.WriteFile(j.path(entry.ProjectID), data, 0644); err != nil {
		return fmt.Errorf("failed to write journal entry %s: %w", entry.ProjectID, err)
	}
	return nil
}

// pending returns every unretired journal entry.
func (j *journal) pending() ([]*journalEntry, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var result []*journalEntry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		projectID := strings.TrimSuffix(e.Name(), ".json")
		entry, err := j.read(projectID)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, nil
}

// RecoverPending resolves journal entries left behind by a crash. A
// create that journaled its filesystem step but never its database commit
// has an orphaned tree; the additive filesystem-to-database sync adopts
// it. Entries whose tree no longer exists are simply retired. Returns the
// number of entries resolved.
func (o *Orchestrator) RecoverPending(ctx context.Context) (int, error) {
	entries, err := o.journal.pending()
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, entry := range entries {
		if entry.hasStep(stepDBCommitted) || !entry.hasStep(stepFSCreated) {
			// Committed entries are stale leftovers; entries without a
			// filesystem step never got far enough to leave anything.
			if err := o.journal.retire(entry.ProjectID); err != nil {
				return resolved, err
			}
			resolved++
			continue
		}

		if !o.fs.ProjectExists(entry.ProjectID) {
			o.logger.Printf("Journal entry %s has no tree on disk, retiring", entry.ProjectID)
			if err := o.journal.retire(entry.ProjectID); err != nil {
				return resolved, err
			}
			resolved++
			continue
		}

		o.logger.Printf("Recovering orphaned project %s (fs created, db never committed)", entry.ProjectID)
		if err := o.SyncFilesystemToDatabase(ctx, entry.ProjectID); err != nil {
			return resolved, fmt.Errorf("failed to recover project %s: %w", entry.ProjectID, err)
		}
		if err := o.journal.retire(entry.ProjectID); err != nil {
			return resolved, err
		}
		resolved++
	}

	return resolved, nil
}
