// Package dashboard event handling and message formatting.
package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Handler turns consistency-layer events into dashboard broadcasts. It
// satisfies the hybrid.Notifier interface, so it can be passed straight
// into the orchestrator.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
		stats: StatsData{
			HolesByStatus: make(map[string]int),
		},
	}
}

// ProjectCreated handles project creation events
func (h *Handler) ProjectCreated(projectID string, created, skipped int) {
	h.logger.Printf("Project created: %s (%d holes, %d skipped)", projectID, created, skipped)

	h.mu.Lock()
	h.stats.Projects++
	h.stats.HolesByStatus["pending"] += created
	h.mu.Unlock()

	data := ProjectCreatedData{
		ProjectID: projectID,
		Created:   created,
		Skipped:   skipped,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal project data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeProjectCreated,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.broadcastStats()
}

// HoleStatusChanged handles hole status change events
func (h *Handler) HoleStatusChanged(projectID, holeID, status, reason string) {
	h.logger.Printf("Hole status: %s/%s -> %s", projectID, holeID, status)

	h.mu.Lock()
	h.stats.HolesByStatus[status]++
	h.mu.Unlock()

	data := HoleStatusData{
		ProjectID: projectID,
		HoleID:    holeID,
		Status:    status,
		Reason:    reason,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal status data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeHoleStatus,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.broadcastStats()
}

// SyncCompleted handles reconciliation pass events
func (h *Handler) SyncCompleted(projectID, direction string, holesSynced int, duration time.Duration) {
	h.logger.Printf("Sync complete: %s %s, %d holes in %v", projectID, direction, holesSynced, duration)

	h.mu.Lock()
	h.stats.SyncPasses++
	h.mu.Unlock()

	data := SyncCompleteData{
		ProjectID:   projectID,
		Direction:   direction,
		HolesSynced: holesSynced,
		Duration:    duration,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal sync data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	dataJSON, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// GetStats returns a copy of the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()

	byStatus := make(map[string]int, len(h.stats.HolesByStatus))
	for k, v := range h.stats.HolesByStatus {
		byStatus[k] = v
	}
	return StatsData{
		Projects:      h.stats.Projects,
		HolesByStatus: byStatus,
		SyncPasses:    h.stats.SyncPasses,
	}
}
