package schema

import "time"

// MeasurementRow is one probe sample as stored in a CCIDM CSV file.
// Depth and Diameter are mandatory; Timestamp and Operator are optional
// CSV columns and may be absent.
type MeasurementRow struct {
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Depth     float64    `json:"depth"`
	Diameter  float64    `json:"diameter"`
	Operator  string     `json:"operator,omitempty"`
}

// Qualify computes the derived qualification fields for a row against the
// owning hole's target diameter and tolerance.
func (r *MeasurementRow) Qualify(targetDiameter, tolerance float64) (qualified bool, deviation float64) {
	deviation = r.Diameter - targetDiameter
	if deviation < 0 {
		qualified = -deviation <= tolerance
	} else {
		qualified = deviation <= tolerance
	}
	return qualified, deviation
}
