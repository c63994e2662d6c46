package schema

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func validSpec(id string) *HoleSpec {
	return &HoleSpec{
		HoleID:   id,
		Position: SpecPositionAt(10.5, -3.2),
		Diameter: 8.0,
		Depth:    25.0,
	}
}

func TestNewHoleInfoDefaults(t *testing.T) {
	info := NewHoleInfo(validSpec("H001"))

	if info.Status != HoleStatusPending {
		t.Errorf("expected pending status, got %q", info.Status)
	}
	if info.Properties.Tolerance != DefaultTolerance {
		t.Errorf("expected default tolerance %g, got %g", DefaultTolerance, info.Properties.Tolerance)
	}
	if info.Geometry.NominalDiameter != 8.0 {
		t.Errorf("expected nominal diameter 8.0, got %g", info.Geometry.NominalDiameter)
	}
	if info.Geometry.DepthRange.Max != 25.0 {
		t.Errorf("expected depth range max 25.0, got %g", info.Geometry.DepthRange.Max)
	}
	if info.CreatedAt.IsZero() || info.LastUpdated.IsZero() {
		t.Error("timestamps must be populated")
	}
}

func TestNewHoleInfoExplicitTolerance(t *testing.T) {
	spec := validSpec("H002")
	tol := 0.0
	spec.Tolerance = &tol

	info := NewHoleInfo(spec)
	if info.Properties.Tolerance != 0 {
		t.Errorf("explicit zero tolerance must survive, got %g", info.Properties.Tolerance)
	}
}

func TestNewHoleStatus(t *testing.T) {
	status := NewHoleStatus()

	if status.CurrentStatus != HoleStatusPending {
		t.Errorf("expected pending, got %q", status.CurrentStatus)
	}
	if len(status.StatusHistory) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(status.StatusHistory))
	}
	if status.StatusHistory[0].Reason != "initialized" {
		t.Errorf("expected initialized reason, got %q", status.StatusHistory[0].Reason)
	}
	if ok, problems := ValidateHoleStatus(status); !ok {
		t.Errorf("fresh status must validate, got %v", problems)
	}
}

func TestHoleStatusAppend(t *testing.T) {
	status := NewHoleStatus()
	status.Append(HoleStatusMeasuring, "session start", "inspector-1")

	if status.CurrentStatus != HoleStatusMeasuring {
		t.Errorf("expected measuring, got %q", status.CurrentStatus)
	}
	if len(status.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(status.StatusHistory))
	}
	if ok, problems := ValidateHoleStatus(status); !ok {
		t.Errorf("appended status must validate, got %v", problems)
	}
}

func TestValidateHoleSpec(t *testing.T) {
	tests := []struct {
		name  string
		spec  *HoleSpec
		valid bool
	}{
		{"valid", validSpec("H001"), true},
		{"nil", nil, false},
		{"missing id", &HoleSpec{Position: SpecPositionAt(0, 0), Diameter: 1, Depth: 1}, false},
		{"missing position", &HoleSpec{HoleID: "H", Diameter: 1, Depth: 1}, false},
		{"missing y", &HoleSpec{HoleID: "H", Position: &SpecPosition{X: new(float64)}, Diameter: 1, Depth: 1}, false},
		{"zero diameter", &HoleSpec{HoleID: "H", Position: SpecPositionAt(0, 0), Depth: 1}, false},
		{"negative depth", &HoleSpec{HoleID: "H", Position: SpecPositionAt(0, 0), Diameter: 1, Depth: -1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, problems := ValidateHoleSpec(tt.spec)
			if valid != tt.valid {
				t.Errorf("expected valid=%v, got %v (problems: %v)", tt.valid, valid, problems)
			}
			if !valid && len(problems) == 0 {
				t.Error("invalid spec must report at least one problem")
			}
		})
	}
}

func TestValidateHoleSpecOneAxisPosition(t *testing.T) {
	// A half-written position in the source JSON must be reported, not
	// silently decoded with the missing axis at zero.
	raw := `{"hole_id":"H1","position":{"x":5},"diameter":8,"depth":20}`

	var spec HoleSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		t.Fatalf("failed to decode spec: %v", err)
	}

	valid, problems := ValidateHoleSpec(&spec)
	if valid {
		t.Error("one-axis position must not validate")
	}
	if len(problems) != 1 {
		t.Errorf("expected exactly one problem, got %v", problems)
	}
}

func TestValidateHoleSpecNegativeTolerance(t *testing.T) {
	spec := validSpec("H001")
	tol := -0.5
	spec.Tolerance = &tol

	if valid, _ := ValidateHoleSpec(spec); valid {
		t.Error("negative tolerance must not validate")
	}
}

func TestValidateHoleStatusBrokenInvariant(t *testing.T) {
	status := NewHoleStatus()
	status.CurrentStatus = HoleStatusCompleted // history still says pending

	valid, problems := ValidateHoleStatus(status)
	if valid {
		t.Error("mismatched current_status must not validate")
	}
	if len(problems) == 0 {
		t.Error("expected a reported problem")
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{HoleStatusPending, HoleStatusMeasuring, true},
		{HoleStatusMeasuring, HoleStatusInProgress, true},
		{HoleStatusInProgress, HoleStatusMeasuring, true},
		{HoleStatusMeasuring, HoleStatusCompleted, true},
		{HoleStatusPending, HoleStatusSkipped, true},
		{HoleStatusCompleted, HoleStatusCompleted, true},
		{HoleStatusCompleted, HoleStatusMeasuring, false},
		{HoleStatusCompleted, HoleStatusError, false},
		{HoleStatusMeasuring, HoleStatusPending, false},
		{"bogus", HoleStatusPending, false},
		{HoleStatusPending, "bogus", false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestQualify(t *testing.T) {
	row := &MeasurementRow{Depth: 5, Diameter: 8.05}

	qualified, deviation := row.Qualify(8.0, 0.1)
	if !qualified {
		t.Error("diameter within tolerance must qualify")
	}
	if deviation < 0.049 || deviation > 0.051 {
		t.Errorf("expected deviation ~0.05, got %g", deviation)
	}

	row.Diameter = 7.8
	qualified, deviation = row.Qualify(8.0, 0.1)
	if qualified {
		t.Error("diameter outside tolerance must not qualify")
	}
	if deviation > -0.19 || deviation < -0.21 {
		t.Errorf("expected deviation ~-0.2, got %g", deviation)
	}
}

func TestMeasurementRowJSONKeys(t *testing.T) {
	// Archive and API consumers see snake_case keys like every other
	// document field; absent optional columns are omitted.
	data, err := json.Marshal(&MeasurementRow{Depth: 1.5, Diameter: 8.02, Operator: "op-1"})
	if err != nil {
		t.Fatalf("failed to marshal row: %v", err)
	}
	want := `{"depth":1.5,"diameter":8.02,"operator":"op-1"}`
	if string(data) != want {
		t.Errorf("unexpected JSON: got %s, want %s", data, want)
	}
}

func TestProjectMetaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")

	meta := NewProjectMeta("plate_20240101_120000", "Plate A", "/data/plate.dxf", dir)
	meta.TotalHoles = 42

	if err := WriteProjectMeta(path, meta); err != nil {
		t.Fatalf("WriteProjectMeta failed: %v", err)
	}

	got, err := ReadProjectMeta(path)
	if err != nil {
		t.Fatalf("ReadProjectMeta failed: %v", err)
	}
	if got.ProjectID != meta.ProjectID || got.TotalHoles != 42 || got.Status != ProjectStatusActive {
		t.Errorf("round trip mismatch: %+v", got)
	}
}
