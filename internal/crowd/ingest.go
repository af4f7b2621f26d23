package crowd

import (
	"fmt"
	"math"
)

// ValidateSample rejects samples the engine cannot process: empty camera ID,
// zero timestamp, non-finite or negative coverage, or malformed detections.
// Finite positions outside [0,1] are accepted here; they clamp during
// scaling. Timestamp ordering is checked against camera state, not here.
func ValidateSample(s Sample) error {
	if s.CameraID == "" {
		return fmt.Errorf("%w: empty camera id", ErrInvalidInput)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidInput)
	}
	if s.CoverageAreaSqMeters < 0 || math.IsNaN(s.CoverageAreaSqMeters) || math.IsInf(s.CoverageAreaSqMeters, 0) {
		return fmt.Errorf("%w: coverage area %v must be non-negative", ErrInvalidInput, s.CoverageAreaSqMeters)
	}
	for i, d := range s.Detections {
		if !isFinite(d.X) || !isFinite(d.Y) {
			return fmt.Errorf("%w: detection %d has a non-finite position", ErrInvalidInput, i)
		}
		if !isFinite(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
			return fmt.Errorf("%w: detection %d confidence %v outside [0,1]", ErrInvalidInput, i, d.Confidence)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ScalePositions converts normalized detections into frame-unit positions.
// Coordinates outside [0,1] clamp to the frame edge.
func ScalePositions(detections []Detection) []Position {
	if len(detections) == 0 {
		return nil
	}
	positions := make([]Position, len(detections))
	for i, d := range detections {
		positions[i] = Position{
			X: clamp01(d.X) * FrameUnitSpan,
			Y: clamp01(d.Y) * FrameUnitSpan,
		}
	}
	return positions
}

// ComputeDensity converts a head count into normalized occupancy in [0,1].
// Density saturates at maxOccupancy people per square meter over the coverage
// area.
func ComputeDensity(count int, coverageSqMeters, maxOccupancy float64) float64 {
	if count <= 0 || coverageSqMeters <= 0 || maxOccupancy <= 0 {
		return 0
	}
	return clamp01(float64(count) / (coverageSqMeters * maxOccupancy))
}

// ComputeCongestion combines density, motion, and distribution into the
// composite congestion level. A slow or stationary crowd scores a full motion
// term; the term fades to zero as mean speed approaches the velocity
// normalizer.
func ComputeCongestion(density, velocity, uniformity float64, cfg Config) float64 {
	motionTerm := math.Max(0, 1-velocity/cfg.VelocityNormalizer)
	return clamp01(cfg.CongestionDensityWeight*density +
		cfg.CongestionMotionWeight*motionTerm +
		cfg.CongestionUniformityWeight*(1-uniformity))
}
