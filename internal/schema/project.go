// Package schema provides the canonical record types shared by the
// filesystem and database stores: project metadata, per-hole info and
// status documents, and measurement rows.
//
// Template constructors fill defaults; validators are pure functions that
// report problems instead of failing, so batch imports can salvage the
// valid subset of their input.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workpiece (project) lifecycle statuses.
const (
	ProjectStatusActive    = "active"
	ProjectStatusPaused    = "paused"
	ProjectStatusCompleted = "completed"
	ProjectStatusError     = "error"
	ProjectStatusArchived  = "archived"
)

// SchemaVersion is written into every new metadata.json.
const SchemaVersion = "1.0"

// ProjectMeta is the project-level metadata document stored at
// <root>/<projectID>/metadata.json.
type ProjectMeta struct {
	ProjectID      string    `json:"project_id"`
	Name           string    `json:"name"`
	SourceFile     string    `json:"source_file"`
	ProjectPath    string    `json:"project_path"`
	TotalHoles     int       `json:"total_holes"`
	CompletedHoles int       `json:"completed_holes"`
	Status         string    `json:"status"`
	Description    string    `json:"description,omitempty"`
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewProjectMeta returns a fully populated metadata record for a freshly
// created project. Status starts as "active".
func NewProjectMeta(projectID, name, sourceFile, projectPath string) *ProjectMeta {
	now := time.Now()
	return &ProjectMeta{
		ProjectID:   projectID,
		Name:        name,
		SourceFile:  sourceFile,
		ProjectPath: projectPath,
		Status:      ProjectStatusActive,
		Version:     SchemaVersion,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch sets UpdatedAt to the current time.
func (m *ProjectMeta) Touch() {
	m.UpdatedAt = time.Now()
}

// ReadProjectMeta reads and parses a metadata.json file.
func ReadProjectMeta(path string) (*ProjectMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project metadata %s: %w", path, err)
	}

	var meta ProjectMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse project metadata %s: %w", path, err)
	}

	return &meta, nil
}

// WriteProjectMeta writes a metadata record to the given path as
// pretty-printed JSON, creating parent directories as needed.
func WriteProjectMeta(path string, meta *ProjectMeta) error {
	if ok, problems := ValidateProjectMeta(meta); !ok {
		return fmt.Errorf("cannot write invalid project metadata: %v", problems)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata directory: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project metadata: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write project metadata %s: %w", path, err)
	}

	return nil
}
