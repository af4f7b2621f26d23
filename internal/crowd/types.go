package crowd

import (
	"time"
)

// FrameUnitSpan is the side length of the abstract frame coordinate space.
// Detections arrive normalised to [0,1] and are scaled by this span before
// any distance arithmetic, so displacement cutoffs and cluster radii are
// expressed in "frame units" (a 5% jump across the frame is 50 units).
const FrameUnitSpan = 1000.0

// Detection is one observed person in a frame: position normalised to [0,1]
// on both axes and the detector's confidence in [0,1]. Detections are
// ephemeral; they are consumed by exactly one sample.
type Detection struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
}

// Sample is one detection batch for one camera at one timestamp. It is the
// engine's only inbound data type.
//
// CoverageAreaSqMeters may be zero when the camera registry already knows
// the camera; the registry value is applied before validation.
type Sample struct {
	CameraID             string      `json:"camera_id"`
	Timestamp            time.Time   `json:"timestamp"`
	Detections           []Detection `json:"detections"`
	CoverageAreaSqMeters float64     `json:"coverage_area_sq_meters,omitempty"`
}

// Position is a point in frame units (0..FrameUnitSpan on both axes).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FlowPattern classifies the spatial arrangement and motion of a crowd.
type FlowPattern string

const (
	PatternSparse       FlowPattern = "sparse"
	PatternNormal       FlowPattern = "normal"
	PatternQueue        FlowPattern = "queue"
	PatternConverging   FlowPattern = "converging"
	PatternDiverging    FlowPattern = "diverging"
	PatternDenseCluster FlowPattern = "dense_cluster"
)

// Hotspot is a grid cell whose occupancy exceeds the hotspot multiplier times
// the expected uniform per-cell count. The centre is the centroid of the
// detections inside the cell, in frame units.
type Hotspot struct {
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	CenterX   float64 `json:"center_x"`
	CenterY   float64 `json:"center_y"`
	Count     int     `json:"count"`
	Intensity float64 `json:"intensity"`
}

// Distribution summarises how detections spread over the analysis grid.
type Distribution struct {
	Uniformity float64   `json:"uniformity"`
	Hotspots   []Hotspot `json:"hotspots,omitempty"`
}

// FrameMetrics is the engine's canonical output for one camera at one
// timestamp. Velocity and MotionConfidence are the only fields that depend
// on anything other than the current detection set, and they depend only on
// the immediately preceding processed sample for the same camera.
type FrameMetrics struct {
	CameraID         string       `json:"camera_id"`
	Timestamp        time.Time    `json:"timestamp"`
	PeopleCount      int          `json:"people_count"`
	Density          float64      `json:"density"`
	Velocity         float64      `json:"velocity"`
	Distribution     Distribution `json:"distribution"`
	Pattern          FlowPattern  `json:"pattern"`
	CongestionLevel  float64      `json:"congestion_level"`
	MotionConfidence float64      `json:"motion_confidence"`
}

// Forecast is a derived, never-persisted projection of a camera's density and
// congestion trend. It is recomputed on demand from history and never mutated
// in place. A Forecast is a pure function of the history it was computed
// from, so recomputing over unmodified history yields an identical value.
type Forecast struct {
	PredictedDensity       float64 `json:"predicted_density"`
	PredictedCongestion    float64 `json:"predicted_congestion"`
	TrendSlope             float64 `json:"trend_slope"`
	Confidence             float64 `json:"confidence"`
	TimeToThresholdMinutes *int    `json:"time_to_threshold_minutes,omitempty"`
	SampleCount            int     `json:"sample_count"`
}

// Severity grades an alert. Ordering: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// rank returns the severity's position for comparisons; unknown severities
// rank lowest.
func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AlertType identifies the breached condition.
type AlertType string

const (
	AlertHighDensity           AlertType = "HIGH_DENSITY"
	AlertHighVelocity          AlertType = "HIGH_VELOCITY"
	AlertHighCongestion        AlertType = "HIGH_CONGESTION"
	AlertPredictiveHighDensity AlertType = "PREDICTIVE_HIGH_DENSITY"
)

// Alert is immutable once created. The engine never mutates or resolves an
// alert internally; acknowledgement and resolution are external actions.
type Alert struct {
	ID                 string    `json:"id"`
	CameraID           string    `json:"camera_id"`
	Type               AlertType `json:"type"`
	Severity           Severity  `json:"severity"`
	Message            string    `json:"message"`
	Confidence         float64   `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
	Location           string    `json:"location"`
	RecommendedActions []string  `json:"recommended_actions,omitempty"`
}

// CameraSnapshot is the dashboard-facing view of one camera: the latest
// processed metrics and forecast plus pipeline counters. Snapshots are
// copied on read; the dashboard never shares memory with a pipeline.
type CameraSnapshot struct {
	CameraID         string       `json:"camera_id"`
	Location         string       `json:"location,omitempty"`
	Metrics          FrameMetrics `json:"metrics"`
	Forecast         Forecast     `json:"forecast"`
	ActiveAlerts     []Alert      `json:"active_alerts,omitempty"`
	SamplesProcessed uint64       `json:"samples_processed"`
	SamplesDropped   uint64       `json:"samples_dropped"`
	OutOfOrderDrops  uint64       `json:"out_of_order_drops"`
	HistoryLength    int          `json:"history_length"`
}

// Summary is the cross-camera aggregate served to dashboards. It is
// recomputed from the current per-camera snapshots on every call, never from
// history replay.
type Summary struct {
	ActiveCameras     int              `json:"active_cameras"`
	TotalPeople       int              `json:"total_people"`
	AverageDensity    float64          `json:"average_density"`
	AverageCongestion float64          `json:"average_congestion"`
	ActiveAlerts      map[Severity]int `json:"active_alerts"`
	GeneratedAt       time.Time        `json:"generated_at"`
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
