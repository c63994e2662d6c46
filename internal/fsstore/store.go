// Package fsstore owns the on-disk project tree:
//
//	<root>/<projectID>/
//	  metadata.json
//	  holes/<holeID>/
//	    BISDM/info.json
//	    BISDM/status.json
//	    CCIDM/measurement_<timestamp>.csv
//
// The layout is an external contract consumed by legacy tooling and
// archival exports; nothing here may change it.
package fsstore

import (
	"log"
	"os"
	"path/filepath"
)

// Subdirectory names inside each hole directory. BISDM holds the basic
// info/status JSON documents, CCIDM holds measurement CSV logs.
const (
	BISDMDir = "BISDM"
	CCIDMDir = "CCIDM"

	metadataFile = "metadata.json"
	infoFile     = "info.json"
	statusFile   = "status.json"
	holesDirName = "holes"
)

// Store provides access to one project root directory.
type Store struct {
	root   string
	logger *log.Logger
}

// New creates a Store rooted at the given directory. If logger is nil, a
// default logger writing to stderr is used.
func New(root string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr, "[fsstore] ", log.LstdFlags)
	}
	return &Store{root: root, logger: logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// ProjectDir returns the directory for a project.
func (s *Store) ProjectDir(projectID string) string {
	return filepath.Join(s.root, projectID)
}

// MetadataPath returns the path of a project's metadata.json.
func (s *Store) MetadataPath(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), metadataFile)
}

// HolesDir returns the holes/ directory for a project.
func (s *Store) HolesDir(projectID string) string {
	return filepath.Join(s.ProjectDir(projectID), holesDirName)
}

// HoleDir returns the directory for one hole.
func (s *Store) HoleDir(projectID, holeID string) string {
	return filepath.Join(s.HolesDir(projectID), holeID)
}

// InfoPath returns the path of a hole's BISDM/info.json.
func (s *Store) InfoPath(projectID, holeID string) string {
	return filepath.Join(s.HoleDir(projectID, holeID), BISDMDir, infoFile)
}

// StatusPath returns the path of a hole's BISDM/status.json.
func (s *Store) StatusPath(projectID, holeID string) string {
	return filepath.Join(s.HoleDir(projectID, holeID), BISDMDir, statusFile)
}

// MeasurementsDir returns a hole's CCIDM directory.
func (s *Store) MeasurementsDir(projectID, holeID string) string {
	return filepath.Join(s.HoleDir(projectID, holeID), CCIDMDir)
}
