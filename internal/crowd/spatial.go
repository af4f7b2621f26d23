package crowd

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// cellOf maps a frame position to its grid cell. Positions sitting exactly on
// the far frame edge clamp into the last cell.
func cellOf(p Position, gridSize int) (row, col int) {
	row = int(math.Floor(p.Y / FrameUnitSpan * float64(gridSize)))
	col = int(math.Floor(p.X / FrameUnitSpan * float64(gridSize)))
	if row >= gridSize {
		row = gridSize - 1
	}
	if col >= gridSize {
		col = gridSize - 1
	}
	if row < 0 {
		row = 0
	}
	if col < 0 {
		col = 0
	}
	return row, col
}

// AnalyzeDistribution bins positions into a gridSize x gridSize occupancy
// grid and derives uniformity and hotspots.
//
// Uniformity is 1 minus the variance of cell counts normalized by the worst
// case (everyone in one cell), so 1.0 means perfectly even and 0.0 means
// maximally concentrated. An empty frame reports uniformity 1.0 and no
// hotspots.
//
// A cell is a hotspot when its count exceeds hotspotMultiplier times the
// expected count n/gridSize². Hotspot intensity is count over expected, and
// the reported center is the mean position of the cell's occupants. Hotspots
// are ordered by descending intensity, with row then column breaking ties.
func AnalyzeDistribution(positions []Position, gridSize int, hotspotMultiplier float64) Distribution {
	n := len(positions)
	if n == 0 {
		return Distribution{Uniformity: 1.0}
	}

	cells := gridSize * gridSize
	counts := make([]float64, cells)
	sumX := make([]float64, cells)
	sumY := make([]float64, cells)

	for _, p := range positions {
		row, col := cellOf(p, gridSize)
		idx := row*gridSize + col
		counts[idx]++
		sumX[idx] += p.X
		sumY[idx] += p.Y
	}

	expected := stat.Mean(counts, nil) // n/cells

	// Variance of the cell counts against its worst case, everyone in one
	// cell. The (cells−1) divisors cancel, leaving a ratio of
	// squared-deviation sums; the worst case sums to n²(cells−1)/cells.
	ss := stat.Variance(counts, nil) * float64(cells-1)
	worst := float64(n) * float64(n) * float64(cells-1) / float64(cells)

	uniformity := 1.0
	if worst > 0 {
		uniformity = clamp01(1.0 - ss/worst)
	}

	var hotspots []Hotspot
	for idx, c := range counts {
		if c <= hotspotMultiplier*expected {
			continue
		}
		hotspots = append(hotspots, Hotspot{
			Row:       idx / gridSize,
			Col:       idx % gridSize,
			CenterX:   sumX[idx] / c,
			CenterY:   sumY[idx] / c,
			Count:     int(c),
			Intensity: c / expected,
		})
	}

	sort.Slice(hotspots, func(i, j int) bool {
		if hotspots[i].Intensity != hotspots[j].Intensity {
			return hotspots[i].Intensity > hotspots[j].Intensity
		}
		if hotspots[i].Row != hotspots[j].Row {
			return hotspots[i].Row < hotspots[j].Row
		}
		return hotspots[i].Col < hotspots[j].Col
	})

	return Distribution{
		Uniformity: uniformity,
		Hotspots:   hotspots,
	}
}
