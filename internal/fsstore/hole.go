package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/boresync/boresync/internal/schema"
)

// CreateHoleDirectory creates holes/<holeID>/{BISDM,CCIDM}, writes the
// validated info.json, and writes an initial pending status.json.
func (s *Store) CreateHoleDirectory(projectID, holeID string, info *schema.HoleInfo) error {
	if ok, problems := schema.ValidateHoleInfo(info); !ok {
		return fmt.Errorf("invalid hole info for %s: %v", holeID, problems)
	}

	holeDir := s.HoleDir(projectID, holeID)
	for _, sub := range []string{BISDMDir, CCIDMDir} {
		if err := os.MkdirAll(filepath.Join(holeDir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create hole directory %s/%s: %w", holeID, sub, err)
		}
	}

	if err := schema.WriteHoleInfo(s.InfoPath(projectID, holeID), info); err != nil {
		return err
	}

	if err := schema.WriteHoleStatus(s.StatusPath(projectID, holeID), schema.NewHoleStatus()); err != nil {
		return err
	}

	s.logger.Printf("Created hole directory %s/%s", projectID, holeID)
	return nil
}

// HoleExists reports whether the hole's BISDM/info.json is present.
func (s *Store) HoleExists(projectID, holeID string) bool {
	_, err := os.Stat(s.InfoPath(projectID, holeID))
	return err == nil
}

// LoadInfo reads a hole's info.json.
func (s *Store) LoadInfo(projectID, holeID string) (*schema.HoleInfo, error) {
	return schema.ReadHoleInfo(s.InfoPath(projectID, holeID))
}

// SaveInfo overwrites a hole's info.json, refreshing last_updated.
func (s *Store) SaveInfo(projectID, holeID string, info *schema.HoleInfo) error {
	info.Touch()
	return schema.WriteHoleInfo(s.InfoPath(projectID, holeID), info)
}

// LoadStatus reads a hole's status.json.
func (s *Store) LoadStatus(projectID, holeID string) (*schema.HoleStatus, error) {
	return schema.ReadHoleStatus(s.StatusPath(projectID, holeID))
}

// SaveStatus overwrites a hole's status.json. The record's own
// last_updated is trusted; callers append history entries via
// schema.HoleStatus.Append which refreshes it.
func (s *Store) SaveStatus(projectID, holeID string, status *schema.HoleStatus) error {
	return schema.WriteHoleStatus(s.StatusPath(projectID, holeID), status)
}

// UpdateStatus loads the current status record, appends one history entry
// for the new status, and writes it back. This is a whole-file
// read-modify-write; callers needing mutual exclusion hold it above this
// layer.
func (s *Store) UpdateStatus(projectID, holeID, newStatus, reason, operator string) error {
	if !schema.IsHoleStatus(newStatus) {
		return fmt.Errorf("unknown hole status %q", newStatus)
	}

	status, err := s.LoadStatus(projectID, holeID)
	if err != nil {
		return err
	}

	status.Append(newStatus, reason, operator)
	return s.SaveStatus(projectID, holeID, status)
}

// ListHoles returns the hole IDs present under holes/, sorted.
func (s *Store) ListHoles(projectID string) ([]string, error) {
	entries, err := os.ReadDir(s.HolesDir(projectID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read holes directory for %s: %w", projectID, err)
	}

	var holes []string
	for _, entry := range entries {
		if entry.IsDir() {
			holes = append(holes, entry.Name())
		}
	}

	sort.Strings(holes)
	return holes, nil
}
