package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the on-disk tuning schema for the analytics engine. Every
// field is optional; fields omitted from the JSON keep the engine default.
// Apply overlays the set fields onto a crowd.Config, which is then validated
// as a whole, so load-time validation here stays minimal.
type TuningConfig struct {
	// Grid and hotspot detection
	GridSize          *int     `json:"grid_size,omitempty"`
	HotspotMultiplier *float64 `json:"hotspot_multiplier,omitempty"`

	// Congestion composite
	DensityWeight      *float64 `json:"density_weight,omitempty"`
	MotionWeight       *float64 `json:"motion_weight,omitempty"`
	UniformityWeight   *float64 `json:"uniformity_weight,omitempty"`
	VelocityNormalizer *float64 `json:"velocity_normalizer,omitempty"`

	// Flow pattern classification
	SparseCutoff       *int     `json:"sparse_cutoff,omitempty"`
	ClusterRadiusUnits *float64 `json:"cluster_radius_units,omitempty"`
	DenseClusterShare  *float64 `json:"dense_cluster_share,omitempty"`
	QueueFitR2         *float64 `json:"queue_fit_r2,omitempty"`

	// Motion estimation
	MaxDisplacementUnits *float64 `json:"max_displacement_units,omitempty"`

	// Forecasting
	MinForecastSamples *int     `json:"min_forecast_samples,omitempty"`
	HorizonMinutes     *float64 `json:"horizon_minutes,omitempty"`
	ConfidenceFloor    *float64 `json:"confidence_floor,omitempty"`
	ConfidenceSaturate *float64 `json:"confidence_saturate,omitempty"`
	ConfidenceCap      *float64 `json:"confidence_cap,omitempty"`

	// History retention
	HistoryCapacity *int    `json:"history_capacity,omitempty"`
	HistoryWindow   *string `json:"history_window,omitempty"` // duration string like "30m"

	// Alerting
	DedupWindow         *string  `json:"dedup_window,omitempty"` // duration string like "60s"
	DensityThreshold    *float64 `json:"density_threshold,omitempty"`
	VelocityThreshold   *float64 `json:"velocity_threshold,omitempty"`
	CongestionThreshold *float64 `json:"congestion_threshold,omitempty"`

	// Ingestion
	QueueDepth             *int     `json:"queue_depth,omitempty"`
	MaxOccupancyPerSqMeter *float64 `json:"max_occupancy_per_sq_meter,omitempty"`
	CoverageAreaSqMeters   *float64 `json:"coverage_area_sq_meters,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that can be judged in isolation. The combined
// configuration is validated again after Apply, where cross-field rules
// (weight sums, floor/cap ordering) can be checked against the full set.
func (c *TuningConfig) Validate() error {
	if c.HistoryWindow != nil && *c.HistoryWindow != "" {
		if _, err := time.ParseDuration(*c.HistoryWindow); err != nil {
			return fmt.Errorf("invalid history_window '%s': %w", *c.HistoryWindow, err)
		}
	}
	if c.DedupWindow != nil && *c.DedupWindow != "" {
		if _, err := time.ParseDuration(*c.DedupWindow); err != nil {
			return fmt.Errorf("invalid dedup_window '%s': %w", *c.DedupWindow, err)
		}
	}
	if c.GridSize != nil && *c.GridSize < 1 {
		return fmt.Errorf("grid_size must be at least 1, got %d", *c.GridSize)
	}
	if c.QueueDepth != nil && *c.QueueDepth < 1 {
		return fmt.Errorf("queue_depth must be at least 1, got %d", *c.QueueDepth)
	}
	return nil
}

// GetHistoryWindow parses and returns the HistoryWindow as a time.Duration.
func (c *TuningConfig) GetHistoryWindow() time.Duration {
	if c.HistoryWindow == nil || *c.HistoryWindow == "" {
		return 30 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.HistoryWindow)
	if err != nil {
		return 30 * time.Minute // default on parse error
	}
	return d
}

// GetDedupWindow parses and returns the DedupWindow as a time.Duration.
func (c *TuningConfig) GetDedupWindow() time.Duration {
	if c.DedupWindow == nil || *c.DedupWindow == "" {
		return 60 * time.Second // default
	}
	d, err := time.ParseDuration(*c.DedupWindow)
	if err != nil {
		return 60 * time.Second // default on parse error
	}
	return d
}

// Apply overlays the set fields onto base and returns the result. Unset
// fields leave base untouched. Callers must validate the returned config.
func (c *TuningConfig) Apply(base crowd.Config) crowd.Config {
	if c.GridSize != nil {
		base.GridSize = *c.GridSize
	}
	if c.HotspotMultiplier != nil {
		base.HotspotMultiplier = *c.HotspotMultiplier
	}
	if c.DensityWeight != nil {
		base.CongestionDensityWeight = *c.DensityWeight
	}
	if c.MotionWeight != nil {
		base.CongestionMotionWeight = *c.MotionWeight
	}
	if c.UniformityWeight != nil {
		base.CongestionUniformityWeight = *c.UniformityWeight
	}
	if c.VelocityNormalizer != nil {
		base.VelocityNormalizer = *c.VelocityNormalizer
	}
	if c.SparseCutoff != nil {
		base.SparseCutoff = *c.SparseCutoff
	}
	if c.ClusterRadiusUnits != nil {
		base.ClusterRadiusUnits = *c.ClusterRadiusUnits
	}
	if c.DenseClusterShare != nil {
		base.DenseClusterShare = *c.DenseClusterShare
	}
	if c.QueueFitR2 != nil {
		base.QueueFitR2 = *c.QueueFitR2
	}
	if c.MaxDisplacementUnits != nil {
		base.MaxDisplacementUnits = *c.MaxDisplacementUnits
	}
	if c.MinForecastSamples != nil {
		base.MinForecastSamples = *c.MinForecastSamples
	}
	if c.HorizonMinutes != nil {
		base.HorizonMinutes = *c.HorizonMinutes
	}
	if c.ConfidenceFloor != nil {
		base.ConfidenceFloor = *c.ConfidenceFloor
	}
	if c.ConfidenceSaturate != nil {
		base.ConfidenceSaturate = *c.ConfidenceSaturate
	}
	if c.ConfidenceCap != nil {
		base.ConfidenceCap = *c.ConfidenceCap
	}
	if c.HistoryCapacity != nil {
		base.HistoryCapacity = *c.HistoryCapacity
	}
	if c.HistoryWindow != nil {
		base.HistoryWindow = c.GetHistoryWindow()
	}
	if c.DedupWindow != nil {
		base.DedupWindow = c.GetDedupWindow()
	}
	if c.DensityThreshold != nil {
		base.Thresholds.Density = *c.DensityThreshold
	}
	if c.VelocityThreshold != nil {
		base.Thresholds.Velocity = *c.VelocityThreshold
	}
	if c.CongestionThreshold != nil {
		base.Thresholds.Congestion = *c.CongestionThreshold
	}
	if c.QueueDepth != nil {
		base.QueueDepth = *c.QueueDepth
	}
	if c.MaxOccupancyPerSqMeter != nil {
		base.MaxOccupancyPerSqMeter = *c.MaxOccupancyPerSqMeter
	}
	if c.CoverageAreaSqMeters != nil {
		base.CoverageAreaSqMeters = *c.CoverageAreaSqMeters
	}
	return base
}

// EngineConfig loads the tuning file at path (when non-empty), overlays it
// onto the engine defaults and validates the result. An empty path returns
// the validated defaults.
func EngineConfig(path string) (crowd.Config, error) {
	base := crowd.DefaultConfig()
	if path == "" {
		return base, base.Validate()
	}
	tuning, err := LoadTuningConfig(path)
	if err != nil {
		return crowd.Config{}, err
	}
	cfg := tuning.Apply(base)
	if err := cfg.Validate(); err != nil {
		return crowd.Config{}, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return cfg, nil
}
