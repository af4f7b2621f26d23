package crowd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Coverage areas accepted from the registry file. Values outside this range
// are almost certainly a units mistake in the deployment config.
const (
	MinRegistryCoverageSqMeters = 500.0
	MaxRegistryCoverageSqMeters = 2000.0
)

// CameraMeta holds static per-camera metadata from the registry file. Zero
// values mean "not set"; the engine falls back to its defaults.
type CameraMeta struct {
	CameraID             string      `json:"camera_id"`
	Location             string      `json:"location,omitempty"`
	CoverageAreaSqMeters float64     `json:"coverage_area_sq_meters,omitempty"`
	FrameWidth           int         `json:"frame_width,omitempty"`
	FrameHeight          int         `json:"frame_height,omitempty"`
	GridSize             *int        `json:"grid_size,omitempty"`
	Thresholds           *Thresholds `json:"thresholds,omitempty"`
}

// Validate checks the metadata for values the engine cannot apply.
func (m CameraMeta) Validate() error {
	if m.CameraID == "" {
		return fmt.Errorf("%w: registry entry with empty camera id", ErrInvalidInput)
	}
	if m.CoverageAreaSqMeters != 0 &&
		(m.CoverageAreaSqMeters < MinRegistryCoverageSqMeters || m.CoverageAreaSqMeters > MaxRegistryCoverageSqMeters) {
		return fmt.Errorf("%w: camera %s coverage %.1f outside [%.0f,%.0f]",
			ErrInvalidInput, m.CameraID, m.CoverageAreaSqMeters,
			MinRegistryCoverageSqMeters, MaxRegistryCoverageSqMeters)
	}
	if m.FrameWidth < 0 || m.FrameHeight < 0 {
		return fmt.Errorf("%w: camera %s frame size %dx%d", ErrInvalidInput, m.CameraID, m.FrameWidth, m.FrameHeight)
	}
	if m.GridSize != nil && *m.GridSize < 1 {
		return fmt.Errorf("%w: camera %s grid size %d", ErrInvalidInput, m.CameraID, *m.GridSize)
	}
	if m.Thresholds != nil {
		if m.Thresholds.Density <= 0 || m.Thresholds.Velocity <= 0 ||
			m.Thresholds.Congestion <= 0 || m.Thresholds.Congestion > 1 {
			return fmt.Errorf("%w: camera %s threshold overrides", ErrInvalidInput, m.CameraID)
		}
	}
	return nil
}

// Apply overlays the camera's overrides onto the base configuration. Only
// grid size and alert thresholds may vary per camera.
func (m CameraMeta) Apply(base Config) Config {
	if m.GridSize != nil {
		base.GridSize = *m.GridSize
	}
	if m.Thresholds != nil {
		base.Thresholds = *m.Thresholds
	}
	return base
}

// FrameDims returns the camera's frame size in pixels, falling back to the
// nominal format when the registry does not say.
func (m CameraMeta) FrameDims() (width, height int) {
	width, height = m.FrameWidth, m.FrameHeight
	if width <= 0 {
		width = DefaultFrameWidth
	}
	if height <= 0 {
		height = DefaultFrameHeight
	}
	return width, height
}

// ResolveCoverage picks the coverage area for a sample: the sample's own
// value when it carries one, then the registry value, then the engine
// default.
func ResolveCoverage(sampleCoverage float64, meta CameraMeta, cfg Config) float64 {
	if sampleCoverage > 0 {
		return sampleCoverage
	}
	if meta.CoverageAreaSqMeters > 0 {
		return meta.CoverageAreaSqMeters
	}
	return cfg.CoverageAreaSqMeters
}

// Registry holds per-camera metadata. Safe for concurrent use; pipelines read
// it on every sample so updates apply from the next sample onward.
type Registry struct {
	mu      sync.RWMutex
	cameras map[string]CameraMeta
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{cameras: make(map[string]CameraMeta)}
}

// Put adds or replaces a camera's metadata.
func (r *Registry) Put(meta CameraMeta) error {
	if err := meta.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cameras[meta.CameraID] = meta
	return nil
}

// Lookup returns the metadata for a camera, if registered.
func (r *Registry) Lookup(cameraID string) (CameraMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.cameras[cameraID]
	return meta, ok
}

// Cameras returns all registered cameras sorted by ID.
func (r *Registry) Cameras() []CameraMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CameraMeta, 0, len(r.cameras))
	for _, meta := range r.cameras {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// Len returns the number of registered cameras.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cameras)
}

// registryFile is the on-disk shape of the camera registry.
type registryFile struct {
	Cameras []CameraMeta `json:"cameras"`
}

// LoadRegistryFile loads a camera registry from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size.
func LoadRegistryFile(path string) (*Registry, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("registry file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat registry file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("registry file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse registry JSON: %w", err)
	}

	reg := NewRegistry()
	for _, meta := range file.Cameras {
		if err := reg.Put(meta); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
