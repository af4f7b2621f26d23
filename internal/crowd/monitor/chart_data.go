// Package monitor provides the HTTP monitoring surface for the crowd
// analytics engine: status page, JSON API, debug charts and replay plots.
// This file separates chart data transformation from eCharts rendering for
// improved testability.
package monitor

import (
	"math"
	"sort"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// TrendSeries holds prepared time series data for a camera's trend charts.
type TrendSeries struct {
	CameraID    string    `json:"camera_id"`
	Timestamps  []string  `json:"timestamps"`
	Density     []float64 `json:"density"`
	Congestion  []float64 `json:"congestion"`
	Velocity    []float64 `json:"velocity"`
	PeopleCount []int     `json:"people_count"`
	Stride      int       `json:"stride"`
	NumPoints   int       `json:"num_points"`
}

// OccupancyCell is one aggregated grid cell in the occupancy heatmap.
type OccupancyCell struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// OccupancyHeatmapData holds prepared data for the occupancy heatmap chart.
// Values are hotspot people counts accumulated over the supplied history.
type OccupancyHeatmapData struct {
	CameraID  string          `json:"camera_id"`
	Cells     []OccupancyCell `json:"cells"`
	GridSize  int             `json:"grid_size"`
	MaxValue  float64         `json:"max_value"`
	NumFrames int             `json:"num_frames"`
	NumCells  int             `json:"num_cells"`
}

// TrafficMetrics holds ingest throughput statistics for chart display.
type TrafficMetrics struct {
	SamplesPerSec    float64 `json:"samples_per_sec"`
	MBPerSec         float64 `json:"mb_per_sec"`
	DetectionsPerSec float64 `json:"detections_per_sec"`
	RejectedCount    int64   `json:"rejected_count"`
	Timestamp        string  `json:"timestamp"`
}

// PrepareTrendSeries transforms a camera's metric history into aligned time
// series for line charts. It downsamples by stride to stay within maxPoints.
func PrepareTrendSeries(history []crowd.FrameMetrics, cameraID string, maxPoints int) *TrendSeries {
	if len(history) == 0 {
		return &TrendSeries{
			CameraID:   cameraID,
			Timestamps: []string{},
			Stride:     1,
		}
	}

	if maxPoints <= 0 {
		maxPoints = 500
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(history) > maxPoints {
		stride = int(math.Ceil(float64(len(history)) / float64(maxPoints)))
	}

	n := len(history)/stride + 1
	ts := &TrendSeries{
		CameraID:    cameraID,
		Timestamps:  make([]string, 0, n),
		Density:     make([]float64, 0, n),
		Congestion:  make([]float64, 0, n),
		Velocity:    make([]float64, 0, n),
		PeopleCount: make([]int, 0, n),
		Stride:      stride,
	}

	for i := 0; i < len(history); i += stride {
		m := history[i]
		ts.Timestamps = append(ts.Timestamps, m.Timestamp.Format("15:04:05"))
		ts.Density = append(ts.Density, m.Density)
		ts.Congestion = append(ts.Congestion, m.CongestionLevel)
		ts.Velocity = append(ts.Velocity, m.Velocity)
		ts.PeopleCount = append(ts.PeopleCount, m.PeopleCount)
	}
	ts.NumPoints = len(ts.Timestamps)

	return ts
}

// PrepareOccupancyHeatmap accumulates hotspot people counts per grid cell
// across the supplied history. Cells that were never a hotspot are omitted.
func PrepareOccupancyHeatmap(history []crowd.FrameMetrics, cameraID string, gridSize int) *OccupancyHeatmapData {
	counts := make(map[[2]int]float64)
	for _, m := range history {
		for _, h := range m.Distribution.Hotspots {
			counts[[2]int{h.Col, h.Row}] += float64(h.Count)
		}
	}

	cells := make([]OccupancyCell, 0, len(counts))
	maxValue := 0.0
	for key, v := range counts {
		cells = append(cells, OccupancyCell{X: key[0], Y: key[1], Value: v})
		if v > maxValue {
			maxValue = v
		}
	}

	// Deterministic order for rendering and tests
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Y != cells[j].Y {
			return cells[i].Y < cells[j].Y
		}
		return cells[i].X < cells[j].X
	})

	if maxValue == 0 {
		maxValue = 1
	}

	return &OccupancyHeatmapData{
		CameraID:  cameraID,
		Cells:     cells,
		GridSize:  gridSize,
		MaxValue:  maxValue,
		NumFrames: len(history),
		NumCells:  len(cells),
	}
}

// PrepareTrafficMetrics transforms ingest statistics into chart-ready format.
func PrepareTrafficMetrics(snap *StatsSnapshot) *TrafficMetrics {
	if snap == nil {
		return &TrafficMetrics{}
	}

	return &TrafficMetrics{
		SamplesPerSec:    snap.SamplesPerSec,
		MBPerSec:         snap.MBPerSec,
		DetectionsPerSec: snap.DetectionsPerSec,
		RejectedCount:    snap.RejectedCount,
		Timestamp:        snap.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
}
