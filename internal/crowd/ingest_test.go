package crowd

import (
	"errors"
	"math"
	"testing"
	"time"
)

func validSample() Sample {
	return Sample{
		CameraID:  "cam-1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Detections: []Detection{
			{X: 0.25, Y: 0.5, Confidence: 0.9},
			{X: 0.75, Y: 0.5, Confidence: 0.8},
		},
		CoverageAreaSqMeters: 1000,
	}
}

func TestValidateSample(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Sample)
		ok     bool
	}{
		{"valid", func(s *Sample) {}, true},
		{"no detections", func(s *Sample) { s.Detections = nil }, true},
		{"zero coverage", func(s *Sample) { s.CoverageAreaSqMeters = 0 }, true},
		{"position outside unit square", func(s *Sample) { s.Detections[0].X = 1.5 }, true},
		{"empty camera id", func(s *Sample) { s.CameraID = "" }, false},
		{"zero timestamp", func(s *Sample) { s.Timestamp = time.Time{} }, false},
		{"negative coverage", func(s *Sample) { s.CoverageAreaSqMeters = -1 }, false},
		{"NaN coverage", func(s *Sample) { s.CoverageAreaSqMeters = math.NaN() }, false},
		{"infinite coverage", func(s *Sample) { s.CoverageAreaSqMeters = math.Inf(1) }, false},
		{"NaN position", func(s *Sample) { s.Detections[1].Y = math.NaN() }, false},
		{"infinite position", func(s *Sample) { s.Detections[0].X = math.Inf(-1) }, false},
		{"confidence below zero", func(s *Sample) { s.Detections[0].Confidence = -0.1 }, false},
		{"confidence above one", func(s *Sample) { s.Detections[0].Confidence = 1.1 }, false},
		{"NaN confidence", func(s *Sample) { s.Detections[0].Confidence = math.NaN() }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSample()
			tc.mutate(&s)
			err := ValidateSample(s)
			if tc.ok && err != nil {
				t.Errorf("ValidateSample = %v, want nil", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("ValidateSample = nil, want error")
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("ValidateSample = %v, want ErrInvalidInput", err)
				}
			}
		})
	}
}

func TestScalePositions(t *testing.T) {
	positions := ScalePositions([]Detection{
		{X: 0, Y: 0},
		{X: 0.5, Y: 0.25},
		{X: 1, Y: 1},
		{X: -0.2, Y: 1.7}, // clamps to the frame edge
	})

	want := []Position{
		{X: 0, Y: 0},
		{X: 500, Y: 250},
		{X: 1000, Y: 1000},
		{X: 0, Y: 1000},
	}
	if len(positions) != len(want) {
		t.Fatalf("got %d positions, want %d", len(positions), len(want))
	}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("position %d = %+v, want %+v", i, positions[i], want[i])
		}
	}

	if got := ScalePositions(nil); got != nil {
		t.Errorf("ScalePositions(nil) = %v, want nil", got)
	}
}

func TestComputeDensity(t *testing.T) {
	cases := []struct {
		name        string
		count       int
		coverage    float64
		maxOcc      float64
		want        float64
	}{
		{"empty frame", 0, 1000, 0.5, 0},
		{"negative count", -3, 1000, 0.5, 0},
		{"zero coverage", 50, 0, 0.5, 0},
		{"zero max occupancy", 50, 1000, 0, 0},
		{"tenth of capacity", 50, 1000, 0.5, 0.1},
		{"full capacity", 500, 1000, 0.5, 1},
		{"oversubscribed clamps", 900, 1000, 0.5, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeDensity(tc.count, tc.coverage, tc.maxOcc)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ComputeDensity(%d, %v, %v) = %v, want %v",
					tc.count, tc.coverage, tc.maxOcc, got, tc.want)
			}
		})
	}
}

func TestComputeCongestion(t *testing.T) {
	cfg := DefaultConfig()

	cases := []struct {
		name       string
		density    float64
		velocity   float64
		uniformity float64
		want       float64
	}{
		// Stationary crowd: full motion term.
		{"still dense uneven", 1.0, 0, 0, 1.0},
		{"still half density uniform", 0.5, 0, 1, 0.55},
		// Velocity at the normalizer zeroes the motion term.
		{"fast crowd", 0.5, 3, 1, 0.25},
		// Velocity beyond the normalizer must not turn the term negative.
		{"sprinting crowd", 0.5, 9, 1, 0.25},
		{"half motion", 0.4, 1.5, 1, 0.35},
		{"empty scene", 0, 3, 1, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeCongestion(tc.density, tc.velocity, tc.uniformity, cfg)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ComputeCongestion(%v, %v, %v) = %v, want %v",
					tc.density, tc.velocity, tc.uniformity, got, tc.want)
			}
		})
	}
}
