package crowd

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// ConvergenceDeadbandUnits is the minimum mean displacement projection toward
// or away from the centroid (frame units per frame) before movement is called
// converging or diverging. Below it, drift is noise.
const ConvergenceDeadbandUnits = 1.0

// ClassifyPattern labels the crowd's spatial arrangement and motion for one
// frame. Checks run in precedence order: sparse, dense_cluster, queue,
// converging/diverging, normal.
func ClassifyPattern(positions []Position, motion MotionEstimate, cfg Config) FlowPattern {
	if len(positions) < cfg.SparseCutoff {
		return PatternSparse
	}

	clusters := ClusterPositions(positions, cfg.ClusterRadiusUnits)
	largest := LargestCluster(clusters)
	if float64(largest.Count) > cfg.DenseClusterShare*float64(len(positions)) {
		return PatternDenseCluster
	}

	if lineFitR2(positions) > cfg.QueueFitR2 {
		return PatternQueue
	}

	switch radialDrift(positions, motion.Matches) {
	case driftInward:
		return PatternConverging
	case driftOutward:
		return PatternDiverging
	}

	return PatternNormal
}

// lineFitR2 measures how well a straight line explains the positions, as the
// R² of a least-squares fit of y against x. For a simple fit R² equals the
// squared correlation of the two axes, so an exactly collinear file scores 1
// at any slope, while an axis-aligned file whose minor axis is pure jitter
// scores near 0. Returns 0 when the fit is degenerate.
func lineFitR2(positions []Position) float64 {
	xs := make([]float64, len(positions))
	ys := make([]float64, len(positions))
	for i, p := range positions {
		xs[i] = p.X
		ys[i] = p.Y
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	r2 := stat.RSquared(xs, ys, nil, alpha, beta)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}

type driftDirection int

const (
	driftNone driftDirection = iota
	driftInward
	driftOutward
)

// radialDrift projects each matched displacement onto the unit vector from
// the detection toward the crowd centroid and averages the projections. A
// mean beyond the deadband means the crowd is collapsing inward (converging)
// or spreading outward (diverging).
func radialDrift(positions []Position, matches []Match) driftDirection {
	if len(matches) == 0 {
		return driftNone
	}

	var cx, cy float64
	for _, p := range positions {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(positions))
	cy /= float64(len(positions))

	var sum float64
	var counted int
	for _, m := range matches {
		p := positions[m.CurrentIdx]
		tx := cx - p.X
		ty := cy - p.Y
		norm := math.Sqrt(tx*tx + ty*ty)
		if norm == 0 {
			continue
		}
		sum += (m.DX*tx + m.DY*ty) / norm
		counted++
	}
	if counted == 0 {
		return driftNone
	}

	mean := sum / float64(counted)
	switch {
	case mean > ConvergenceDeadbandUnits:
		return driftInward
	case mean < -ConvergenceDeadbandUnits:
		return driftOutward
	default:
		return driftNone
	}
}
