// Package units converts engine-native measurements into display units for
// the dashboard API. The engine measures speed in frame units per second and
// density as normalized occupancy; clients that want physical units ask for
// them explicitly.
package units

import "math"

// Velocity display units
const (
	Native = "units" // frame units per second, the engine-native measure
	MPS    = "mps"
	KMPH   = "kmph"
	KPH    = "kph"
)

// ValidUnits contains all valid velocity display units
var ValidUnits = []string{Native, MPS, KMPH, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "units, mps, kmph, kph"
}

// MetersPerUnit returns the physical size of one frame unit for a camera
// covering the given area, assuming a square field of view. Returns 0 when
// the coverage or span is unusable.
func MetersPerUnit(coverageSqMeters, frameUnitSpan float64) float64 {
	if coverageSqMeters <= 0 || frameUnitSpan <= 0 {
		return 0
	}
	return math.Sqrt(coverageSqMeters) / frameUnitSpan
}

// ConvertVelocity converts an engine velocity (frame units per second) to the
// target display units. Physical targets scale by metersPerUnit; unknown
// targets and Native return the input unchanged.
func ConvertVelocity(unitsPerSecond, metersPerUnit float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS:
		return unitsPerSecond * metersPerUnit
	case KMPH, KPH:
		return unitsPerSecond * metersPerUnit * 3.6
	default:
		return unitsPerSecond
	}
}

// PeoplePerSqMeter converts normalized density back into people per square
// meter. Normalized density saturates at maxOccupancy, so this is the inverse
// of the ingest scaling.
func PeoplePerSqMeter(normalized, maxOccupancy float64) float64 {
	if normalized < 0 || maxOccupancy <= 0 {
		return 0
	}
	return normalized * maxOccupancy
}
