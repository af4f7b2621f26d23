package crowd

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/crowd.report/internal/timeutil"
)

// EngineConfig holds dependencies for the analytics engine. Only Config is
// required; nil collaborators are replaced with safe defaults.
type EngineConfig struct {
	Config   Config
	Registry *Registry      // camera metadata; empty registry when nil
	Clock    timeutil.Clock // summary timestamps; real clock when nil
	Sink     AlertSink      // optional alert delivery
	Recorder Recorder       // optional persistence of frames and alerts
}

// Engine fans samples out to one pipeline per camera and aggregates their
// published state for dashboards. All engine methods are safe for concurrent
// use.
type Engine struct {
	cfg      Config
	registry *Registry
	clock    timeutil.Clock
	sink     AlertSink
	recorder Recorder

	mu        sync.RWMutex
	pipelines map[string]*cameraPipeline
	stopped   bool
}

// NewEngine validates the configuration and builds an engine with no
// pipelines; pipelines spawn lazily on the first sample per camera.
func NewEngine(ec EngineConfig) (*Engine, error) {
	if err := ec.Config.Validate(); err != nil {
		return nil, err
	}
	registry := ec.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	clock := ec.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Engine{
		cfg:       ec.Config,
		registry:  registry,
		clock:     clock,
		sink:      ec.Sink,
		recorder:  ec.Recorder,
		pipelines: make(map[string]*cameraPipeline),
	}, nil
}

// Submit validates a sample and enqueues it on its camera's pipeline,
// creating the pipeline on first sight of the camera. Validation failures
// reject only this sample. Submit never blocks on a busy camera; a full
// queue evicts its oldest entry instead.
func (e *Engine) Submit(s Sample) error {
	if err := ValidateSample(s); err != nil {
		return err
	}

	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return ErrEngineStopped
	}
	p, ok := e.pipelines[s.CameraID]
	e.mu.RUnlock()

	if !ok {
		var err error
		p, err = e.pipelineFor(s.CameraID)
		if err != nil {
			return err
		}
	}

	p.enqueue(s)
	return nil
}

// pipelineFor returns the camera's pipeline, creating it if needed.
func (e *Engine) pipelineFor(cameraID string) (*cameraPipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, ErrEngineStopped
	}
	if p, ok := e.pipelines[cameraID]; ok {
		return p, nil
	}
	if _, registered := e.registry.Lookup(cameraID); !registered {
		Diagf("camera %s: not in registry, using defaults (coverage %.0f m²)",
			cameraID, e.cfg.CoverageAreaSqMeters)
	}
	p := newCameraPipeline(cameraID, e.cfg, e.registry, e.sink, e.recorder)
	e.pipelines[cameraID] = p
	Opsf("camera %s: pipeline started (queue depth %d)", cameraID, e.cfg.QueueDepth)
	return p, nil
}

// RegisterCamera adds or updates camera metadata. Changes take effect on the
// camera's next sample.
func (e *Engine) RegisterCamera(meta CameraMeta) error {
	return e.registry.Put(meta)
}

// Registry returns the engine's camera registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Snapshot returns a copy of one camera's current state.
func (e *Engine) Snapshot(cameraID string) (CameraSnapshot, error) {
	e.mu.RLock()
	p, ok := e.pipelines[cameraID]
	e.mu.RUnlock()
	if !ok {
		return CameraSnapshot{}, fmt.Errorf("%w: %s", ErrCameraUnknown, cameraID)
	}
	return p.snapshot(), nil
}

// Snapshots returns a copy of every camera's current state, sorted by camera
// ID.
func (e *Engine) Snapshots() []CameraSnapshot {
	e.mu.RLock()
	pipelines := make([]*cameraPipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.RUnlock()

	snaps := make([]CameraSnapshot, 0, len(pipelines))
	for _, p := range pipelines {
		snaps = append(snaps, p.snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CameraID < snaps[j].CameraID })
	return snaps
}

// History returns a copy of the camera's retained metrics, oldest first.
func (e *Engine) History(cameraID string) ([]FrameMetrics, error) {
	e.mu.RLock()
	p, ok := e.pipelines[cameraID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCameraUnknown, cameraID)
	}
	return p.historySeries(), nil
}

// Summary aggregates the latest per-camera snapshots. It never replays
// history, so it is cheap enough to compute on every dashboard poll.
func (e *Engine) Summary() Summary {
	snaps := e.Snapshots()

	s := Summary{
		ActiveAlerts: make(map[Severity]int),
		GeneratedAt:  e.clock.Now(),
	}
	var density, congestion float64
	for _, snap := range snaps {
		s.ActiveCameras++
		s.TotalPeople += snap.Metrics.PeopleCount
		density += snap.Metrics.Density
		congestion += snap.Metrics.CongestionLevel
		for _, a := range snap.ActiveAlerts {
			s.ActiveAlerts[a.Severity]++
		}
	}
	if s.ActiveCameras > 0 {
		s.AverageDensity = density / float64(s.ActiveCameras)
		s.AverageCongestion = congestion / float64(s.ActiveCameras)
	}
	return s
}

// ResolveAlert marks an active alert inactive, wherever it lives. Returns
// false when no camera holds an active alert with that ID.
func (e *Engine) ResolveAlert(alertID string) bool {
	e.mu.RLock()
	pipelines := make([]*cameraPipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.RUnlock()

	for _, p := range pipelines {
		if p.evaluator.Resolve(alertID) {
			Opsf("camera %s: alert %s resolved", p.cameraID, alertID)
			return true
		}
	}
	return false
}

// Stop shuts down every pipeline and waits for their workers to exit. Queued
// samples are discarded, not drained. Stop is idempotent; Submit after Stop
// returns ErrEngineStopped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	pipelines := make([]*cameraPipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		pipelines = append(pipelines, p)
	}
	e.mu.Unlock()

	for _, p := range pipelines {
		p.stop()
	}
	Opsf("engine stopped (%d cameras)", len(pipelines))
}
