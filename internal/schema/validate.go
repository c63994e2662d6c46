package schema

import "fmt"

// Validators follow a soft-fail contract: they return (valid, problems)
// and never panic or return an error, so a batch caller can skip invalid
// records and keep the rest.

// ValidateHoleSpec checks a caller-supplied hole spec.
func ValidateHoleSpec(spec *HoleSpec) (bool, []string) {
	var problems []string

	if spec == nil {
		return false, []string{"spec is nil"}
	}
	if spec.HoleID == "" {
		problems = append(problems, "hole_id is required")
	}
	if spec.Position == nil || spec.Position.X == nil || spec.Position.Y == nil {
		problems = append(problems, "position is required and must contain both x and y")
	}
	if spec.Diameter <= 0 {
		problems = append(problems, fmt.Sprintf("diameter must be positive (got %g)", spec.Diameter))
	}
	if spec.Depth <= 0 {
		problems = append(problems, fmt.Sprintf("depth must be positive (got %g)", spec.Depth))
	}
	if spec.Tolerance != nil && *spec.Tolerance < 0 {
		problems = append(problems, fmt.Sprintf("tolerance must not be negative (got %g)", *spec.Tolerance))
	}

	return len(problems) == 0, problems
}

// ValidateProjectMeta checks a project metadata record.
func ValidateProjectMeta(meta *ProjectMeta) (bool, []string) {
	var problems []string

	if meta == nil {
		return false, []string{"metadata is nil"}
	}
	if meta.ProjectID == "" {
		problems = append(problems, "project_id is required")
	}
	if meta.Name == "" {
		problems = append(problems, "name is required")
	}
	if !IsProjectStatus(meta.Status) {
		problems = append(problems, fmt.Sprintf("unknown project status %q", meta.Status))
	}
	if meta.TotalHoles < 0 {
		problems = append(problems, fmt.Sprintf("total_holes must not be negative (got %d)", meta.TotalHoles))
	}
	if meta.CompletedHoles < 0 {
		problems = append(problems, fmt.Sprintf("completed_holes must not be negative (got %d)", meta.CompletedHoles))
	}
	if meta.Version == "" {
		problems = append(problems, "version is required")
	}
	if meta.CreatedAt.IsZero() {
		problems = append(problems, "created_at is required")
	}

	return len(problems) == 0, problems
}

// ValidateHoleInfo checks a hole info record.
func ValidateHoleInfo(info *HoleInfo) (bool, []string) {
	var problems []string

	if info == nil {
		return false, []string{"info is nil"}
	}
	if info.HoleID == "" {
		problems = append(problems, "hole_id is required")
	}
	if info.Diameter <= 0 {
		problems = append(problems, fmt.Sprintf("diameter must be positive (got %g)", info.Diameter))
	}
	if info.Depth <= 0 {
		problems = append(problems, fmt.Sprintf("depth must be positive (got %g)", info.Depth))
	}
	if info.Properties.Tolerance < 0 {
		problems = append(problems, fmt.Sprintf("tolerance must not be negative (got %g)", info.Properties.Tolerance))
	}
	if !IsHoleStatus(info.Status) {
		problems = append(problems, fmt.Sprintf("unknown hole status %q", info.Status))
	}
	if info.CreatedAt.IsZero() {
		problems = append(problems, "created_at is required")
	}

	return len(problems) == 0, problems
}

// ValidateHoleStatus checks a hole status record, including the invariant
// that the newest history entry matches current_status.
func ValidateHoleStatus(status *HoleStatus) (bool, []string) {
	var problems []string

	if status == nil {
		return false, []string{"status is nil"}
	}
	if !IsHoleStatus(status.CurrentStatus) {
		problems = append(problems, fmt.Sprintf("unknown hole status %q", status.CurrentStatus))
	}
	if len(status.StatusHistory) == 0 {
		problems = append(problems, "status_history must not be empty")
	} else {
		last := status.StatusHistory[len(status.StatusHistory)-1]
		if last.Status != status.CurrentStatus {
			problems = append(problems, fmt.Sprintf(
				"last history entry %q does not match current_status %q",
				last.Status, status.CurrentStatus))
		}
		for i, entry := range status.StatusHistory {
			if !IsHoleStatus(entry.Status) {
				problems = append(problems, fmt.Sprintf("history entry %d has unknown status %q", i, entry.Status))
			}
		}
	}

	return len(problems) == 0, problems
}

// ValidateMeasurementRow checks one measurement sample. Probe depth zero
// is legal (surface sample); a negative depth or non-positive diameter is
// not.
func ValidateMeasurementRow(row *MeasurementRow) (bool, []string) {
	var problems []string

	if row == nil {
		return false, []string{"row is nil"}
	}
	if row.Depth < 0 {
		problems = append(problems, fmt.Sprintf("depth must not be negative (got %g)", row.Depth))
	}
	if row.Diameter <= 0 {
		problems = append(problems, fmt.Sprintf("diameter must be positive (got %g)", row.Diameter))
	}

	return len(problems) == 0, problems
}
