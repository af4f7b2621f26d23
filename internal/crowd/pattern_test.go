package crowd

import (
	"math"
	"testing"
)

func TestClassifyPatternSparse(t *testing.T) {
	cfg := DefaultConfig()

	two := []Position{{X: 100, Y: 100}, {X: 900, Y: 900}}
	if got := ClassifyPattern(two, MotionEstimate{}, cfg); got != PatternSparse {
		t.Errorf("2 detections: got %s, want %s", got, PatternSparse)
	}

	four := []Position{{X: 100, Y: 100}, {X: 110, Y: 100}, {X: 105, Y: 110}, {X: 115, Y: 105}}
	if got := ClassifyPattern(four, MotionEstimate{}, cfg); got != PatternSparse {
		t.Errorf("4 tightly packed detections: got %s, want %s (sparse wins)", got, PatternSparse)
	}
}

func TestClassifyPatternDenseCluster(t *testing.T) {
	cfg := DefaultConfig()

	// Ten people inside a 30-unit blob: one single-link cluster holds 100%.
	var positions []Position
	for i := 0; i < 10; i++ {
		positions = append(positions, Position{
			X: 500 + float64(i%4)*10,
			Y: 500 + float64(i/4)*10,
		})
	}
	if got := ClassifyPattern(positions, MotionEstimate{}, cfg); got != PatternDenseCluster {
		t.Errorf("got %s, want %s", got, PatternDenseCluster)
	}
}

func TestClassifyPatternDenseClusterShare(t *testing.T) {
	cfg := DefaultConfig()

	// 8 of 10 in one blob is an 80% share: not strictly greater than the
	// cutoff, so the blob alone does not make the frame dense.
	var positions []Position
	for i := 0; i < 8; i++ {
		positions = append(positions, Position{X: 500 + float64(i)*5, Y: 500})
	}
	positions = append(positions, Position{X: 100, Y: 100}, Position{X: 900, Y: 900})

	got := ClassifyPattern(positions, MotionEstimate{}, cfg)
	if got == PatternDenseCluster {
		t.Errorf("80%% share must not classify as %s", PatternDenseCluster)
	}

	// One more in the blob tips it to 9/11 (81.8%).
	positions = append(positions, Position{X: 540, Y: 500})
	if got := ClassifyPattern(positions, MotionEstimate{}, cfg); got != PatternDenseCluster {
		t.Errorf("got %s, want %s at 81.8%% share", got, PatternDenseCluster)
	}
}

func TestClassifyPatternQueue(t *testing.T) {
	cfg := DefaultConfig()

	// A diagonal file of people spaced ~80 units apart: the spacing breaks
	// single-link chains, and the line fit is exact.
	var positions []Position
	for i := 0; i < 8; i++ {
		positions = append(positions, Position{
			X: 100 + float64(i)*57,
			Y: 150 + float64(i)*57,
		})
	}
	if got := ClassifyPattern(positions, MotionEstimate{}, cfg); got != PatternQueue {
		t.Errorf("got %s, want %s", got, PatternQueue)
	}
}

func TestClassifyPatternQueueSteepLine(t *testing.T) {
	cfg := DefaultConfig()

	// Steep file: exact collinearity scores R² = 1 at any slope.
	var positions []Position
	for i := 0; i < 8; i++ {
		positions = append(positions, Position{
			X: 500 + float64(i)*8,
			Y: 100 + float64(i)*110,
		})
	}
	if got := ClassifyPattern(positions, MotionEstimate{}, cfg); got != PatternQueue {
		t.Errorf("got %s, want %s", got, PatternQueue)
	}
}

// hexagonWithDrift builds six people on a ring around (500,500) with matched
// displacements of the given magnitude along the radial direction. Positive
// drift points inward.
func hexagonWithDrift(radius, drift float64) ([]Position, MotionEstimate) {
	const cx, cy = 500.0, 500.0
	var positions []Position
	var matches []Match
	for i := 0; i < 6; i++ {
		angle := float64(i) * math.Pi / 3
		p := Position{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
		positions = append(positions, p)

		tx, ty := cx-p.X, cy-p.Y
		norm := math.Sqrt(tx*tx + ty*ty)
		matches = append(matches, Match{
			CurrentIdx: i,
			DX:         tx / norm * drift,
			DY:         ty / norm * drift,
		})
	}
	return positions, MotionEstimate{Velocity: math.Abs(drift), Confidence: 1, Matches: matches}
}

func TestClassifyPatternConverging(t *testing.T) {
	cfg := DefaultConfig()
	positions, motion := hexagonWithDrift(300, 20)
	if got := ClassifyPattern(positions, motion, cfg); got != PatternConverging {
		t.Errorf("got %s, want %s", got, PatternConverging)
	}
}

func TestClassifyPatternDiverging(t *testing.T) {
	cfg := DefaultConfig()
	positions, motion := hexagonWithDrift(300, -20)
	if got := ClassifyPattern(positions, motion, cfg); got != PatternDiverging {
		t.Errorf("got %s, want %s", got, PatternDiverging)
	}
}

func TestClassifyPatternNormalOnTangentialMotion(t *testing.T) {
	cfg := DefaultConfig()
	positions, motion := hexagonWithDrift(300, 20)

	// Rotate every displacement 90 degrees: pure circulation, no net radial
	// drift.
	for i := range motion.Matches {
		dx, dy := motion.Matches[i].DX, motion.Matches[i].DY
		motion.Matches[i].DX = -dy
		motion.Matches[i].DY = dx
	}
	if got := ClassifyPattern(positions, motion, cfg); got != PatternNormal {
		t.Errorf("got %s, want %s", got, PatternNormal)
	}
}

func TestClassifyPatternNormalWithoutMatches(t *testing.T) {
	cfg := DefaultConfig()
	positions, _ := hexagonWithDrift(300, 0)
	if got := ClassifyPattern(positions, MotionEstimate{Confidence: MotionConfidenceFloor}, cfg); got != PatternNormal {
		t.Errorf("got %s, want %s with no displacement data", got, PatternNormal)
	}
}

func TestLineFitR2(t *testing.T) {
	t.Run("perfect diagonal", func(t *testing.T) {
		positions := []Position{{X: 0, Y: 0}, {X: 100, Y: 100}, {X: 200, Y: 200}, {X: 300, Y: 300}}
		if r2 := lineFitR2(positions); r2 < 0.999 {
			t.Errorf("R² = %v, want ~1", r2)
		}
	})

	t.Run("symmetric scatter", func(t *testing.T) {
		positions, _ := hexagonWithDrift(300, 0)
		if r2 := lineFitR2(positions); r2 > 0.2 {
			t.Errorf("R² = %v, want near 0 for a ring", r2)
		}
	})
}
