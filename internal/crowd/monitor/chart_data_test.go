package monitor

import (
	"testing"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

func trendHistory(n int) []crowd.FrameMetrics {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := make([]crowd.FrameMetrics, n)
	for i := range out {
		out[i] = crowd.FrameMetrics{
			CameraID:        "cam-1",
			Timestamp:       base.Add(time.Duration(i) * 5 * time.Second),
			PeopleCount:     10 + i,
			Density:         0.1 + 0.01*float64(i),
			Velocity:        1.0,
			CongestionLevel: 0.2,
		}
	}
	return out
}

func TestPrepareTrendSeries_Empty(t *testing.T) {
	result := PrepareTrendSeries(nil, "cam-1", 100)

	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.NumPoints != 0 {
		t.Errorf("expected 0 points, got %d", result.NumPoints)
	}
	if result.CameraID != "cam-1" {
		t.Errorf("expected camera ID 'cam-1', got %q", result.CameraID)
	}
	if result.Stride != 1 {
		t.Errorf("expected stride 1, got %d", result.Stride)
	}
}

func TestPrepareTrendSeries_AlignedSeries(t *testing.T) {
	history := trendHistory(5)

	result := PrepareTrendSeries(history, "cam-1", 100)

	if result.NumPoints != 5 {
		t.Fatalf("expected 5 points, got %d", result.NumPoints)
	}
	if len(result.Density) != 5 || len(result.Congestion) != 5 || len(result.Velocity) != 5 || len(result.PeopleCount) != 5 {
		t.Fatal("series lengths should all match NumPoints")
	}
	if result.Timestamps[0] != "12:00:00" {
		t.Errorf("expected first timestamp 12:00:00, got %q", result.Timestamps[0])
	}
	if result.PeopleCount[4] != 14 {
		t.Errorf("expected last people count 14, got %d", result.PeopleCount[4])
	}
}

func TestPrepareTrendSeries_Downsamples(t *testing.T) {
	history := trendHistory(100)

	result := PrepareTrendSeries(history, "cam-1", 10)

	if result.Stride != 10 {
		t.Errorf("expected stride 10, got %d", result.Stride)
	}
	if result.NumPoints > 10 {
		t.Errorf("expected at most 10 points, got %d", result.NumPoints)
	}
	// First point survives downsampling
	if result.PeopleCount[0] != 10 {
		t.Errorf("expected first people count 10, got %d", result.PeopleCount[0])
	}
}

func TestPrepareTrendSeries_DefaultMaxPoints(t *testing.T) {
	history := trendHistory(20)

	result := PrepareTrendSeries(history, "cam-1", 0)

	if result.Stride != 1 {
		t.Errorf("expected stride 1 with default max points, got %d", result.Stride)
	}
	if result.NumPoints != 20 {
		t.Errorf("expected 20 points, got %d", result.NumPoints)
	}
}

func TestPrepareOccupancyHeatmap_Empty(t *testing.T) {
	result := PrepareOccupancyHeatmap(nil, "cam-1", 10)

	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.NumCells != 0 {
		t.Errorf("expected 0 cells, got %d", result.NumCells)
	}
	if result.MaxValue != 1 {
		t.Errorf("expected max value floor of 1, got %f", result.MaxValue)
	}
	if result.GridSize != 10 {
		t.Errorf("expected grid size 10, got %d", result.GridSize)
	}
}

func TestPrepareOccupancyHeatmap_AccumulatesAcrossFrames(t *testing.T) {
	history := []crowd.FrameMetrics{
		{Distribution: crowd.Distribution{Hotspots: []crowd.Hotspot{
			{Row: 1, Col: 2, Count: 5},
			{Row: 0, Col: 0, Count: 3},
		}}},
		{Distribution: crowd.Distribution{Hotspots: []crowd.Hotspot{
			{Row: 1, Col: 2, Count: 7},
		}}},
	}

	result := PrepareOccupancyHeatmap(history, "cam-1", 10)

	if result.NumCells != 2 {
		t.Fatalf("expected 2 cells, got %d", result.NumCells)
	}
	if result.NumFrames != 2 {
		t.Errorf("expected 2 frames, got %d", result.NumFrames)
	}

	// Cells sort by row (Y) then column (X)
	first := result.Cells[0]
	if first.X != 0 || first.Y != 0 || first.Value != 3 {
		t.Errorf("unexpected first cell: %+v", first)
	}
	second := result.Cells[1]
	if second.X != 2 || second.Y != 1 || second.Value != 12 {
		t.Errorf("unexpected second cell: %+v", second)
	}
	if result.MaxValue != 12 {
		t.Errorf("expected max value 12, got %f", result.MaxValue)
	}
}

func TestPrepareTrafficMetrics_NilSnapshot(t *testing.T) {
	result := PrepareTrafficMetrics(nil)

	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if result.SamplesPerSec != 0 {
		t.Errorf("expected zero samples/sec, got %f", result.SamplesPerSec)
	}
}

func TestPrepareTrafficMetrics_CopiesSnapshot(t *testing.T) {
	snap := &StatsSnapshot{
		SamplesPerSec:    12.5,
		MBPerSec:         0.25,
		DetectionsPerSec: 400,
		RejectedCount:    3,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	result := PrepareTrafficMetrics(snap)

	if result.SamplesPerSec != 12.5 {
		t.Errorf("expected 12.5 samples/sec, got %f", result.SamplesPerSec)
	}
	if result.RejectedCount != 3 {
		t.Errorf("expected 3 rejected, got %d", result.RejectedCount)
	}
	if result.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("unexpected timestamp format: %q", result.Timestamp)
	}
}
