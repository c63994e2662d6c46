package fsstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boresync/boresync/internal/schema"
)

// ProjectStatistics aggregates hole statuses from a directory scan.
type ProjectStatistics struct {
	Total          int     `json:"total"`
	Completed      int     `json:"completed"`
	Pending        int     `json:"pending"`
	Error          int     `json:"error"`
	CompletionRate float64 `json:"completion_rate"`
}

// DeriveProjectID builds a project identifier from the source file's base
// name and a timestamp: lowercased, with runes outside [a-z0-9_-] mapped
// to underscores.
func DeriveProjectID(sourceFilePath string, now time.Time) string {
	base := filepath.Base(sourceFilePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.ToLower(base)

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	return fmt.Sprintf("%s_%s", b.String(), now.Format("20060102_150405"))
}

// CreateProject derives a project ID from the source file, creates the
// project directory with an empty holes/ subdirectory, and writes a
// validated metadata.json. Returns the new project ID and directory.
func (s *Store) CreateProject(sourceFilePath, name string) (string, string, error) {
	projectID := DeriveProjectID(sourceFilePath, time.Now())
	projectPath := s.ProjectDir(projectID)

	if _, err := os.Stat(projectPath); err == nil {
		return "", "", fmt.Errorf("project directory already exists: %s", projectPath)
	}

	if err := os.MkdirAll(s.HolesDir(projectID), 0755); err != nil {
		return "", "", fmt.Errorf("failed to create project directory: %w", err)
	}

	meta := schema.NewProjectMeta(projectID, name, sourceFilePath, projectPath)
	if err := schema.WriteProjectMeta(s.MetadataPath(projectID), meta); err != nil {
		// Roll the directory back so a failed create leaves nothing behind.
		_ = os.RemoveAll(projectPath)
		return "", "", err
	}

	s.logger.Printf("Created project %s at %s", projectID, projectPath)
	return projectID, projectPath, nil
}

// ProjectExists reports whether the project's directory and metadata file
// are both present.
func (s *Store) ProjectExists(projectID string) bool {
	_, err := os.Stat(s.MetadataPath(projectID))
	return err == nil
}

// GetMetadata reads a project's metadata.json.
func (s *Store) GetMetadata(projectID string) (*schema.ProjectMeta, error) {
	return schema.ReadProjectMeta(s.MetadataPath(projectID))
}

// SaveMetadata rewrites a project's metadata.json, bumping updated_at.
func (s *Store) SaveMetadata(projectID string, meta *schema.ProjectMeta) error {
	meta.Touch()
	return schema.WriteProjectMeta(s.MetadataPath(projectID), meta)
}

// UpdateMetadata merges the provided keys into the existing metadata.json
// and bumps updated_at. Keys not present in updates are left untouched.
// The merged document must still validate as project metadata.
func (s *Store) UpdateMetadata(projectID string, updates map[string]interface{}) error {
	path := s.MetadataPath(projectID)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read project metadata %s: %w", path, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse project metadata %s: %w", path, err)
	}

	for k, v := range updates {
		doc[k] = v
	}
	doc["updated_at"] = time.Now().Format(time.RFC3339Nano)

	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal merged metadata: %w", err)
	}

	var meta schema.ProjectMeta
	if err := json.Unmarshal(merged, &meta); err != nil {
		return fmt.Errorf("merged metadata is not valid: %w", err)
	}

	return schema.WriteProjectMeta(path, &meta)
}

// ComputeStatistics scans every hole's status.json and aggregates counts.
// This is an O(hole-count) directory scan with no caching; unreadable
// status files are logged and skipped.
func (s *Store) ComputeStatistics(projectID string) (*ProjectStatistics, error) {
	holes, err := s.ListHoles(projectID)
	if err != nil {
		return nil, err
	}

	stats := &ProjectStatistics{}
	for _, holeID := range holes {
		status, err := schema.ReadHoleStatus(s.StatusPath(projectID, holeID))
		if err != nil {
			s.logger.Printf("WARNING: skipping unreadable status for hole %s: %v", holeID, err)
			continue
		}

		stats.Total++
		switch status.CurrentStatus {
		case schema.HoleStatusCompleted:
			stats.Completed++
		case schema.HoleStatusError:
			stats.Error++
		case schema.HoleStatusPending:
			stats.Pending++
		}
	}

	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total)
	}

	return stats, nil
}

// ListProjects returns the IDs of every project under the root, sorted.
// A project is any directory containing a metadata.json.
func (s *Store) ListProjects() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}

	var projects []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if s.ProjectExists(entry.Name()) {
			projects = append(projects, entry.Name())
		}
	}

	sort.Strings(projects)
	return projects, nil
}

// DeleteProject removes a project's entire directory tree. Used as
// compensation when database creation fails after the filesystem side
// succeeded; never called during normal operation.
func (s *Store) DeleteProject(projectID string) error {
	if projectID == "" {
		return fmt.Errorf("refusing to delete with empty project ID")
	}
	if err := os.RemoveAll(s.ProjectDir(projectID)); err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	s.logger.Printf("Deleted project tree %s", projectID)
	return nil
}
