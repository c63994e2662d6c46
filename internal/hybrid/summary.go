package hybrid

import (
	"context"
	"fmt"

	"github.com/boresync/boresync/internal/db"
)

// DataSources flags which stores contributed to a merged read-model, so
// a consumer can detect degraded state when one store is missing.
type DataSources struct {
	Database   bool `json:"database"`
	Filesystem bool `json:"filesystem"`
}

// ProjectSummary is the merged project read-model. Numeric aggregates
// prefer the database when its record exists; otherwise they fall back to
// the filesystem directory scan.
type ProjectSummary struct {
	ProjectID      string      `json:"project_id"`
	Name           string      `json:"name"`
	Status         string      `json:"status"`
	Description    string      `json:"description,omitempty"`
	ProjectPath    string      `json:"project_path"`
	SourceFile     string      `json:"source_file"`
	TotalHoles     int         `json:"total_holes"`
	CompletedHoles int         `json:"completed_holes"`
	PendingHoles   int         `json:"pending_holes"`
	ErrorHoles     int         `json:"error_holes"`
	CompletionRate float64     `json:"completion_rate"`
	DataSources    DataSources `json:"data_sources"`
}

// GetProjectSummary reads both stores independently and merges them into
// one summary. Neither store's absence is fatal; only a project missing
// from both is an error.
func (o *Orchestrator) GetProjectSummary(ctx context.Context, projectID string) (*ProjectSummary, error) {
	summary := &ProjectSummary{ProjectID: projectID}

	workpiece, err := o.db.GetWorkpiece(ctx, projectID)
	if err == nil {
		summary.DataSources.Database = true
	} else if !db.IsNotFound(err) {
		o.logger.Printf("WARNING: database read failed for %s: %v", projectID, err)
	}

	var fsStats bool
	if o.fs.ProjectExists(projectID) {
		summary.DataSources.Filesystem = true

		if meta, err := o.fs.GetMetadata(projectID); err == nil {
			summary.Name = meta.Name
			summary.Status = meta.Status
			summary.Description = meta.Description
			summary.ProjectPath = meta.ProjectPath
			summary.SourceFile = meta.SourceFile
		}

		if stats, err := o.fs.ComputeStatistics(projectID); err == nil {
			fsStats = true
			summary.TotalHoles = stats.Total
			summary.CompletedHoles = stats.Completed
			summary.PendingHoles = stats.Pending
			summary.ErrorHoles = stats.Error
			summary.CompletionRate = stats.CompletionRate
		}
	}

	if !summary.DataSources.Database && !summary.DataSources.Filesystem {
		return nil, fmt.Errorf("project %s exists in neither store", projectID)
	}

	// Database values win for everything it owns when its record exists.
	if workpiece != nil {
		summary.Name = workpiece.Name
		summary.Status = workpiece.Status
		summary.Description = workpiece.Description
		if summary.ProjectPath == "" {
			summary.ProjectPath = workpiece.ProjectDataPath
		}
		if summary.SourceFile == "" {
			summary.SourceFile = workpiece.DXFFilePath
		}

		summary.TotalHoles = workpiece.HoleCount
		summary.CompletedHoles = workpiece.CompletedHoles
		if counts, err := o.db.CountHolesByStatus(ctx, workpiece.ID); err == nil {
			summary.PendingHoles = counts["pending"]
			summary.ErrorHoles = counts["error"]
		}
		if summary.TotalHoles > 0 {
			summary.CompletionRate = float64(summary.CompletedHoles) / float64(summary.TotalHoles)
		}
	} else if !fsStats {
		o.logger.Printf("WARNING: summary for %s has no statistics from either store", projectID)
	}

	return summary, nil
}
