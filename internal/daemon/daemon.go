// Package daemon provides the background watcher that keeps the
// relational store caught up with the directory tree.
//
// The daemon:
// 1. Runs one full reconciliation pass on startup
// 2. Watches the project trees for document changes
// 3. Debounces rapid writes and reconciles the affected projects
// 4. Periodically re-runs the full reconciliation as a safety net
package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/boresync/boresync/internal/fsstore"
	"github.com/boresync/boresync/internal/hybrid"
)

// Config holds configuration for the daemon.
type Config struct {
	// ResyncInterval is how often the full reconciliation runs even when
	// no file events arrived.
	ResyncInterval time.Duration

	// DebounceInterval is how long to wait before reconciling a project
	// after a file change. This batches rapid writes together.
	DebounceInterval time.Duration

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ResyncInterval:   30 * time.Second,
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon watches the store root and drives reconciliation.
type Daemon struct {
	orch   *hybrid.Orchestrator
	store  *fsstore.Store
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // projectID -> last event
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon over the given orchestrator and store.
// Use Start() to begin watching and reconciling.
func New(orch *hybrid.Orchestrator, store *fsstore.Store, config *Config) (*Daemon, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		orch:        orch,
		store:       store,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon recovers interrupted operations, runs one full
// reconciliation, then watches for document changes until ctx is
// cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if recovered, err := d.orch.RecoverPending(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	} else if recovered > 0 {
		d.config.Logger.Printf("Recovered %d interrupted operations", recovered)
	}

	if err := d.fullResync(); err != nil {
		return fmt.Errorf("initial reconciliation failed: %w", err)
	}

	if err := d.addWatchTree(d.store.Root()); err != nil {
		return fmt.Errorf("failed to watch store root: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", d.store.Root())

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.periodicResync()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// fullResync reconciles every project found on disk.
func (d *Daemon) fullResync() error {
	projects, err := d.store.ListProjects()
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	d.config.Logger.Printf("Reconciling %d projects", len(projects))
	for _, projectID := range projects {
		if err := d.orch.EnsureConsistency(d.ctx, projectID); err != nil {
			d.config.Logger.Printf("Warning: reconciliation of %s failed: %v", projectID, err)
		}
	}
	return nil
}

// addWatchTree registers the directory and every subdirectory with the
// watcher. fsnotify watches are not recursive.
func (d *Daemon) addWatchTree(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if entry.Name() == fsstore.CCIDMDir {
			// Measurement CSVs arrive through the orchestrator, which
			// already updates both stores; watching them would only
			// trigger redundant reconciliations.
			return filepath.SkipDir
		}
		return d.watcher.Add(path)
	})
}

// watchFileEvents monitors filesystem events and queues the affected
// projects.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// A new directory needs its own watch before events from
			// inside it can arrive.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := d.addWatchTree(event.Name); err != nil {
						d.config.Logger.Printf("Warning: failed to watch %s: %v", event.Name, err)
					}
				}
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !d.isDocumentEvent(event.Name) {
				continue
			}

			projectID, ok := d.projectIDFromPath(event.Name)
			if !ok {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(projectID)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// isDocumentEvent reports whether a path is a store document whose change
// warrants reconciliation. Journal files and CSVs are excluded.
func (d *Daemon) isDocumentEvent(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}
	rel, err := filepath.Rel(d.store.Root(), path)
	if err != nil || strings.HasPrefix(rel, ".") {
		return false
	}
	return true
}

// projectIDFromPath extracts the project directory name from a path
// inside the store root.
func (d *Daemon) projectIDFromPath(path string) (string, bool) {
	rel, err := filepath.Rel(d.store.Root(), path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if parts[0] == "" || strings.HasPrefix(parts[0], ".") {
		return "", false
	}
	return parts[0], true
}

// queueChange marks a project as dirty, restarting its debounce window.
func (d *Daemon) queueChange(projectID string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[projectID] = time.Now()
}

// processChangeQueue reconciles dirty projects once their debounce window
// has passed.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges reconciles every project whose last event is
// older than the debounce window.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	var due []string
	now := time.Now()
	for projectID, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		due = append(due, projectID)
		delete(d.changeQueue, projectID)
	}
	d.changeQueueMu.Unlock()

	for _, projectID := range due {
		d.config.Logger.Printf("Reconciling changed project: %s", projectID)
		if !d.store.ProjectExists(projectID) {
			// Deleted tree; database rows stay until an operator removes
			// them.
			d.config.Logger.Printf("Project %s no longer on disk, skipping", projectID)
			continue
		}
		if err := d.orch.EnsureConsistency(d.ctx, projectID); err != nil {
			d.config.Logger.Printf("Error reconciling %s: %v", projectID, err)
			// Re-queue so the next tick retries.
			d.queueChange(projectID)
		}
	}
}

// periodicResync re-runs the full reconciliation on a timer.
func (d *Daemon) periodicResync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.fullResync(); err != nil {
				d.config.Logger.Printf("Error in periodic reconciliation: %v", err)
			}
		}
	}
}
