package hybrid

import "time"

// Notifier receives status callbacks from the orchestrator. It exists so
// surrounding tooling (dashboards, UIs) can observe state changes without
// the orchestrator knowing about them; implementations must not block.
type Notifier interface {
	// ProjectCreated fires after a successful CreateProjectFromSource.
	ProjectCreated(projectID string, created, skipped int)

	// HoleStatusChanged fires after a hole's status was updated in the
	// stores, including by the database-to-filesystem sync.
	HoleStatusChanged(projectID, holeID, status, reason string)

	// SyncCompleted fires after a one-directional sync pass finishes.
	// Direction is "fs_to_db" or "db_to_fs".
	SyncCompleted(projectID, direction string, holesSynced int, duration time.Duration)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ProjectCreated(string, int, int)               {}
func (NopNotifier) HoleStatusChanged(string, string, string, string) {}
func (NopNotifier) SyncCompleted(string, string, int, time.Duration) {}
