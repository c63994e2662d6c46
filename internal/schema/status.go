package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StatusEntry is one append-only line in a hole's status history.
type StatusEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
	Operator  string    `json:"operator,omitempty"`
}

// StatusStatistics aggregates measurement outcomes for one hole.
type StatusStatistics struct {
	TotalMeasurements      int     `json:"total_measurements"`
	SuccessfulMeasurements int     `json:"successful_measurements"`
	FailedMeasurements     int     `json:"failed_measurements"`
	AverageMeasurementTime float64 `json:"average_measurement_time"`
}

// HoleStatus is the per-hole status document stored at
// holes/<holeID>/BISDM/status.json. History is append-only; the most
// recent entry's status always equals CurrentStatus.
type HoleStatus struct {
	CurrentStatus string           `json:"current_status"`
	StatusHistory []StatusEntry    `json:"status_history"`
	LastUpdated   time.Time        `json:"last_updated"`
	Statistics    StatusStatistics `json:"statistics"`
}

// NewHoleStatus returns the initial status record for a new hole:
// pending, with a single "initialized" history entry.
func NewHoleStatus() *HoleStatus {
	now := time.Now()
	return &HoleStatus{
		CurrentStatus: HoleStatusPending,
		StatusHistory: []StatusEntry{
			{Status: HoleStatusPending, Timestamp: now, Reason: "initialized"},
		},
		LastUpdated: now,
	}
}

// Append records a status change: one new history entry, CurrentStatus and
// LastUpdated refreshed. It does not validate the transition; callers that
// enforce the lifecycle do so before appending.
func (s *HoleStatus) Append(status, reason, operator string) {
	now := time.Now()
	s.StatusHistory = append(s.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: now,
		Reason:    reason,
		Operator:  operator,
	})
	s.CurrentStatus = status
	s.LastUpdated = now
}

// ReadHoleStatus reads and parses a status.json file.
func ReadHoleStatus(path string) (*HoleStatus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hole status %s: %w", path, err)
	}

	var status HoleStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse hole status %s: %w", path, err)
	}

	return &status, nil
}

// WriteHoleStatus writes a status record as pretty-printed JSON.
func WriteHoleStatus(path string, status *HoleStatus) error {
	if ok, problems := ValidateHoleStatus(status); !ok {
		return fmt.Errorf("cannot write invalid hole status: %v", problems)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hole status: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hole status %s: %w", path, err)
	}

	return nil
}
