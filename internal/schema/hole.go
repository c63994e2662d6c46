package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Hole lifecycle statuses. A hole moves one-directionally through
// pending -> measuring -> {completed, error, skipped}; in_progress is an
// alias level reachable from measuring.
const (
	HoleStatusPending    = "pending"
	HoleStatusMeasuring  = "measuring"
	HoleStatusInProgress = "in_progress"
	HoleStatusCompleted  = "completed"
	HoleStatusError      = "error"
	HoleStatusSkipped    = "skipped"
)

// DefaultTolerance is applied when a hole spec omits tolerance.
const DefaultTolerance = 0.1

// Position is a hole center in workpiece coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SpecPosition is the position as supplied in a hole spec. Pointer fields
// keep a missing axis distinguishable from coordinate zero, so validation
// can report a half-written position instead of defaulting it.
type SpecPosition struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

// SpecPositionAt builds a spec position with both axes set.
func SpecPositionAt(x, y float64) *SpecPosition {
	return &SpecPosition{X: &x, Y: &y}
}

// HoleSpec is the caller-supplied description of one hole to create.
// Tolerance is a pointer so zero tolerance is distinguishable from an
// omitted one.
type HoleSpec struct {
	HoleID    string        `json:"hole_id"`
	Position  *SpecPosition `json:"position"`
	Diameter  float64       `json:"diameter"`
	Depth     float64       `json:"depth"`
	Tolerance *float64      `json:"tolerance,omitempty"`
}

// HoleProperties carries auxiliary machining metadata that lives only in
// the filesystem store.
type HoleProperties struct {
	Material      string  `json:"material,omitempty"`
	SurfaceFinish string  `json:"surface_finish,omitempty"`
	Tolerance     float64 `json:"tolerance"`
	Critical      bool    `json:"critical"`
}

// DepthRange bounds the expected probe travel for a hole.
type DepthRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// HoleGeometry describes the nominal geometry recorded at creation.
type HoleGeometry struct {
	Type            string     `json:"type"`
	NominalDiameter float64    `json:"nominal_diameter"`
	DepthRange      DepthRange `json:"depth_range"`
}

// HoleInfo is the per-hole basic info document stored at
// holes/<holeID>/BISDM/info.json.
type HoleInfo struct {
	HoleID      string         `json:"hole_id"`
	Position    Position       `json:"position"`
	Diameter    float64        `json:"diameter"`
	Depth       float64        `json:"depth"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	LastUpdated time.Time      `json:"last_updated"`
	Properties  HoleProperties `json:"properties"`
	Geometry    HoleGeometry   `json:"geometry"`
}

// NewHoleInfo builds a canonical info record from a validated spec,
// filling defaults: tolerance 0.1, status pending, through-hole geometry
// with a probe range spanning the full depth.
func NewHoleInfo(spec *HoleSpec) *HoleInfo {
	now := time.Now()

	tolerance := DefaultTolerance
	if spec.Tolerance != nil {
		tolerance = *spec.Tolerance
	}

	var pos Position
	if spec.Position != nil {
		if spec.Position.X != nil {
			pos.X = *spec.Position.X
		}
		if spec.Position.Y != nil {
			pos.Y = *spec.Position.Y
		}
	}

	return &HoleInfo{
		HoleID:      spec.HoleID,
		Position:    pos,
		Diameter:    spec.Diameter,
		Depth:       spec.Depth,
		Status:      HoleStatusPending,
		CreatedAt:   now,
		LastUpdated: now,
		Properties: HoleProperties{
			Tolerance: tolerance,
		},
		Geometry: HoleGeometry{
			Type:            "through",
			NominalDiameter: spec.Diameter,
			DepthRange:      DepthRange{Min: 0, Max: spec.Depth},
		},
	}
}

// Touch sets LastUpdated to the current time.
func (i *HoleInfo) Touch() {
	i.LastUpdated = time.Now()
}

// ReadHoleInfo reads and parses an info.json file.
func ReadHoleInfo(path string) (*HoleInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hole info %s: %w", path, err)
	}

	var info HoleInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse hole info %s: %w", path, err)
	}

	return &info, nil
}

// WriteHoleInfo writes an info record as pretty-printed JSON.
func WriteHoleInfo(path string, info *HoleInfo) error {
	if ok, problems := ValidateHoleInfo(info); !ok {
		return fmt.Errorf("cannot write invalid hole info: %v", problems)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal hole info %s: %w", info.HoleID, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write hole info %s: %w", path, err)
	}

	return nil
}

// statusRank orders hole statuses along the one-directional lifecycle.
// measuring and in_progress share a rank (alias level); the terminal
// statuses share the final rank.
var statusRank = map[string]int{
	HoleStatusPending:    0,
	HoleStatusMeasuring:  1,
	HoleStatusInProgress: 1,
	HoleStatusCompleted:  2,
	HoleStatusError:      2,
	HoleStatusSkipped:    2,
}

// IsHoleStatus reports whether s is a known hole status value.
func IsHoleStatus(s string) bool {
	_, ok := statusRank[s]
	return ok
}

// IsProjectStatus reports whether s is a known workpiece status value.
func IsProjectStatus(s string) bool {
	switch s {
	case ProjectStatusActive, ProjectStatusPaused, ProjectStatusCompleted,
		ProjectStatusError, ProjectStatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a hole may move from one status to
// another. Forward moves and the measuring/in_progress alias swap are
// allowed; a repeat of the current status is a permitted no-op; anything
// moving backwards, or between distinct terminal statuses, is not.
func CanTransition(from, to string) bool {
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	if fromRank == 1 && toRank == 1 {
		return true
	}
	return toRank > fromRank
}
