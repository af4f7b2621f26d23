package crowd

import (
	"math"
)

// MotionConfidenceFloor is the confidence reported when motion cannot be
// measured (no previous frame, no matches, or non-advancing timestamps).
const MotionConfidenceFloor = 0.3

// Match pairs a current detection with its nearest previous-frame
// counterpart.
type Match struct {
	CurrentIdx  int
	PreviousIdx int
	DX, DY      float64 // displacement previous → current, frame units
}

// MotionEstimate summarizes frame-to-frame movement for one camera.
type MotionEstimate struct {
	Velocity   float64 // mean matched displacement per second, frame units/s
	Confidence float64 // matched fraction of current detections, floored
	Matches    []Match
}

// EstimateMotion finds a nearest-neighbor correspondence between the previous
// and current detections under a maximum-displacement cutoff and derives the
// mean speed of the matched pairs.
//
// A missing previous frame, an empty frame on either side, or elapsed time
// that does not advance all degrade to velocity 0 at the confidence floor;
// none of these are errors. Unmatched current detections are expected (people
// enter the frame) and only lower the confidence.
func EstimateMotion(current, previous []Position, elapsedSeconds, maxDisplacement float64) MotionEstimate {
	if len(current) == 0 || len(previous) == 0 || elapsedSeconds <= 0 {
		return MotionEstimate{Confidence: MotionConfidenceFloor}
	}

	index := NewCellIndex(maxDisplacement)
	index.Build(previous)

	var matches []Match
	var sumDisplacement float64

	for i, p := range current {
		candidates := findCandidates(p.X, p.Y, previous, index, maxDisplacement)
		if len(candidates) == 0 {
			continue
		}

		bestIdx := -1
		bestDist2 := math.MaxFloat64
		for _, idx := range candidates {
			prev := previous[idx]
			dx := p.X - prev.X
			dy := p.Y - prev.Y
			dist2 := dx*dx + dy*dy
			if dist2 < bestDist2 {
				bestDist2 = dist2
				bestIdx = idx
			}
		}

		prev := previous[bestIdx]
		matches = append(matches, Match{
			CurrentIdx:  i,
			PreviousIdx: bestIdx,
			DX:          p.X - prev.X,
			DY:          p.Y - prev.Y,
		})
		sumDisplacement += math.Sqrt(bestDist2)
	}

	if len(matches) == 0 {
		return MotionEstimate{Confidence: MotionConfidenceFloor}
	}

	velocity := sumDisplacement / float64(len(matches)) / elapsedSeconds
	confidence := float64(len(matches)) / float64(len(current))
	if confidence < MotionConfidenceFloor {
		confidence = MotionConfidenceFloor
	}

	return MotionEstimate{
		Velocity:   velocity,
		Confidence: confidence,
		Matches:    matches,
	}
}

// findCandidates returns indices of previous positions within searchRadius of
// (x, y) using the prebuilt cell index.
func findCandidates(x, y float64, positions []Position, index *CellIndex, searchRadius float64) []int {
	if index == nil {
		return nil
	}

	searchRadius2 := searchRadius * searchRadius
	candidates := make([]int, 0, 10)

	cellSize := index.CellSize
	cellX := int64(math.Floor(x / cellSize))
	cellY := int64(math.Floor(y / cellSize))
	cellRadius := int64(math.Ceil(searchRadius / cellSize))

	for dx := -cellRadius; dx <= cellRadius; dx++ {
		for dy := -cellRadius; dy <= cellRadius; dy++ {
			cellID := pairCells(cellX+dx, cellY+dy)

			for _, idx := range index.Grid[cellID] {
				p := positions[idx]
				ddx := p.X - x
				ddy := p.Y - y
				if ddx*ddx+ddy*ddy <= searchRadius2 {
					candidates = append(candidates, idx)
				}
			}
		}
	}

	return candidates
}
