package crowd

import (
	"fmt"
	"math"
	"time"
)

// Constants for analytics configuration
const (
	// DefaultFrameWidth and DefaultFrameHeight describe the nominal camera
	// frame in pixels. They are advisory metadata for dashboards; the engine
	// itself works in normalized coordinates scaled to frame units.
	DefaultFrameWidth  = 1920
	DefaultFrameHeight = 1080
	// DefaultCoverageAreaSqMeters is assumed when neither the sample nor the
	// camera registry supplies a coverage area.
	DefaultCoverageAreaSqMeters = 1000.0
	// MaxQueueDepth is the hard ceiling on per-camera queue depth.
	MaxQueueDepth = 1000
)

// Thresholds holds the alert trigger levels for the immediate metrics.
type Thresholds struct {
	Density    float64 `json:"density"`    // normalized occupancy [0,1]
	Velocity   float64 `json:"velocity"`   // mean speed, frame units per second
	Congestion float64 `json:"congestion"` // composite congestion level [0,1]
}

// Config holds configuration parameters for the analytics engine. One Config
// applies engine-wide; per-camera coverage overrides come from the camera
// registry.
type Config struct {
	// Grid and hotspot detection
	GridSize          int     // Cells per axis for the occupancy grid
	HotspotMultiplier float64 // Cell count over expected count to flag a hotspot

	// Congestion composite weights. Must sum to 1.
	CongestionDensityWeight    float64
	CongestionMotionWeight     float64
	CongestionUniformityWeight float64
	VelocityNormalizer         float64 // Speed at which the motion term bottoms out (frame units/s)

	// Flow pattern classification
	SparseCutoff       int     // Below this many detections the frame is sparse
	ClusterRadiusUnits float64 // Neighbor distance for cluster membership (frame units)
	DenseClusterShare  float64 // Fraction of people in the largest cluster to call it dense
	QueueFitR2         float64 // Minimum R² for a linear queue fit

	// Motion estimation
	MaxDisplacementUnits float64 // Correspondence cutoff between frames (frame units)

	// Forecasting
	MinForecastSamples int     // History length required for the trend forecaster
	HorizonMinutes     float64 // How far ahead time-to-threshold may reach
	ConfidenceFloor    float64 // Confidence reported by the degraded forecaster
	ConfidenceSaturate float64 // Confidence ceiling from sample count alone
	ConfidenceCap      float64 // Absolute confidence ceiling after adjustments

	// History retention
	HistoryCapacity int           // Maximum retained frames per camera
	HistoryWindow   time.Duration // Maximum age of retained frames

	// Alerting
	DedupWindow time.Duration // Suppression window after an alert fires
	Thresholds  Thresholds

	// Ingestion
	QueueDepth             int     // Per-camera pending sample queue depth
	MaxOccupancyPerSqMeter float64 // Occupancy at which density saturates, people per m²
	CoverageAreaSqMeters   float64 // Fallback coverage when sample and registry are silent
}

// DefaultConfig returns the default analytics configuration.
func DefaultConfig() Config {
	return Config{
		GridSize:          10,
		HotspotMultiplier: 2.0,

		CongestionDensityWeight:    0.5,
		CongestionMotionWeight:     0.3,
		CongestionUniformityWeight: 0.2,
		VelocityNormalizer:         3.0,

		SparseCutoff:       5,
		ClusterRadiusUnits: 50.0,
		DenseClusterShare:  0.8,
		QueueFitR2:         0.7,

		MaxDisplacementUnits: 100.0,

		MinForecastSamples: 10,
		HorizonMinutes:     20.0,
		ConfidenceFloor:    0.3,
		ConfidenceSaturate: 0.9,
		ConfidenceCap:      0.95,

		HistoryCapacity: 100,
		HistoryWindow:   30 * time.Minute,

		DedupWindow: 60 * time.Second,
		Thresholds: Thresholds{
			Density:    0.7,
			Velocity:   1.2,
			Congestion: 0.8,
		},

		QueueDepth:             50,
		MaxOccupancyPerSqMeter: 0.5,
		CoverageAreaSqMeters:   DefaultCoverageAreaSqMeters,
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.GridSize < 1 {
		return fmt.Errorf("%w: grid size %d must be at least 1", ErrInvalidInput, c.GridSize)
	}
	if c.HotspotMultiplier <= 1.0 {
		return fmt.Errorf("%w: hotspot multiplier %.2f must exceed 1.0", ErrInvalidInput, c.HotspotMultiplier)
	}
	weightSum := c.CongestionDensityWeight + c.CongestionMotionWeight + c.CongestionUniformityWeight
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("%w: congestion weights sum to %.4f, want 1.0", ErrInvalidInput, weightSum)
	}
	if c.VelocityNormalizer <= 0 {
		return fmt.Errorf("%w: velocity normalizer %.2f must be positive", ErrInvalidInput, c.VelocityNormalizer)
	}
	if c.SparseCutoff < 1 {
		return fmt.Errorf("%w: sparse cutoff %d must be at least 1", ErrInvalidInput, c.SparseCutoff)
	}
	if c.ClusterRadiusUnits <= 0 {
		return fmt.Errorf("%w: cluster radius %.1f must be positive", ErrInvalidInput, c.ClusterRadiusUnits)
	}
	if c.DenseClusterShare <= 0 || c.DenseClusterShare > 1 {
		return fmt.Errorf("%w: dense cluster share %.2f must be in (0,1]", ErrInvalidInput, c.DenseClusterShare)
	}
	if c.QueueFitR2 <= 0 || c.QueueFitR2 > 1 {
		return fmt.Errorf("%w: queue fit R² %.2f must be in (0,1]", ErrInvalidInput, c.QueueFitR2)
	}
	if c.MaxDisplacementUnits <= 0 {
		return fmt.Errorf("%w: max displacement %.1f must be positive", ErrInvalidInput, c.MaxDisplacementUnits)
	}
	if c.MinForecastSamples < 2 {
		return fmt.Errorf("%w: min forecast samples %d must be at least 2", ErrInvalidInput, c.MinForecastSamples)
	}
	if c.HorizonMinutes <= 0 {
		return fmt.Errorf("%w: forecast horizon %.1f must be positive", ErrInvalidInput, c.HorizonMinutes)
	}
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > c.ConfidenceSaturate {
		return fmt.Errorf("%w: confidence floor %.2f must be in [0, saturate]", ErrInvalidInput, c.ConfidenceFloor)
	}
	if c.ConfidenceSaturate > c.ConfidenceCap || c.ConfidenceCap > 1 {
		return fmt.Errorf("%w: confidence saturate %.2f and cap %.2f must satisfy saturate <= cap <= 1", ErrInvalidInput, c.ConfidenceSaturate, c.ConfidenceCap)
	}
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("%w: history capacity %d must be at least 1", ErrInvalidInput, c.HistoryCapacity)
	}
	if c.HistoryWindow <= 0 {
		return fmt.Errorf("%w: history window %s must be positive", ErrInvalidInput, c.HistoryWindow)
	}
	if c.DedupWindow <= 0 {
		return fmt.Errorf("%w: dedup window %s must be positive", ErrInvalidInput, c.DedupWindow)
	}
	if c.Thresholds.Density <= 0 || c.Thresholds.Velocity <= 0 {
		return fmt.Errorf("%w: density and velocity thresholds must be positive", ErrInvalidInput)
	}
	if c.Thresholds.Congestion <= 0 || c.Thresholds.Congestion > 1 {
		return fmt.Errorf("%w: congestion threshold %.2f must be in (0,1]", ErrInvalidInput, c.Thresholds.Congestion)
	}
	if c.QueueDepth < 1 || c.QueueDepth > MaxQueueDepth {
		return fmt.Errorf("%w: queue depth %d must be in [1,%d]", ErrInvalidInput, c.QueueDepth, MaxQueueDepth)
	}
	if c.MaxOccupancyPerSqMeter <= 0 {
		return fmt.Errorf("%w: max occupancy %.2f must be positive", ErrInvalidInput, c.MaxOccupancyPerSqMeter)
	}
	if c.CoverageAreaSqMeters <= 0 {
		return fmt.Errorf("%w: coverage area %.1f must be positive", ErrInvalidInput, c.CoverageAreaSqMeters)
	}
	return nil
}
