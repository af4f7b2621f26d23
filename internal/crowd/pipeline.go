package crowd

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// AlertSink receives each emitted alert exactly once, in camera-local order.
// Delivery failure is the sink's concern; the pipeline logs the error and
// moves on.
type AlertSink interface {
	PublishAlert(a Alert) error
}

// Recorder persists processed frames and emitted alerts. Calls run on the
// pipeline goroutine after the sample is fully decided, so a slow recorder
// delays the camera's own queue but never its correctness.
type Recorder interface {
	RecordFrame(m FrameMetrics) error
	RecordAlert(a Alert) error
}

// ForecastRecorder is an optional Recorder upgrade. Recorders that implement
// it receive the forecast computed for each frame, right after the frame
// itself.
type ForecastRecorder interface {
	RecordForecast(cameraID string, f Forecast)
}

// cameraPipeline owns all per-camera state and processes that camera's
// samples strictly in arrival order on a single goroutine. Cameras never
// share pipelines, so there is no cross-camera locking anywhere below the
// engine.
type cameraPipeline struct {
	cameraID string

	cfg      Config
	registry *Registry
	sink     AlertSink
	recorder Recorder

	queue chan Sample
	quit  chan struct{}
	done  chan struct{}

	// Worker-goroutine state: the previous frame's positions and timestamp
	// for motion estimation. Touched only by run().
	lastPositions []Position
	lastTimestamp time.Time

	forecaster ForecastStrategy
	evaluator  *AlertEvaluator

	// mu guards history and the published latest metrics/forecast. The
	// worker is the only writer; dashboards read concurrently.
	mu       sync.RWMutex
	history  *History
	latest   FrameMetrics
	forecast Forecast

	samplesProcessed atomic.Uint64
	samplesDropped   atomic.Uint64
	outOfOrderDrops  atomic.Uint64
}

func newCameraPipeline(cameraID string, cfg Config, registry *Registry, sink AlertSink, recorder Recorder) *cameraPipeline {
	p := &cameraPipeline{
		cameraID:   cameraID,
		cfg:        cfg,
		registry:   registry,
		sink:       sink,
		recorder:   recorder,
		queue:      make(chan Sample, cfg.QueueDepth),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		forecaster: NewForecaster(cfg),
		evaluator:  NewAlertEvaluator(cameraID),
		history:    NewHistory(cfg.HistoryCapacity, cfg.HistoryWindow),
	}
	go p.run()
	return p
}

// enqueue adds a sample to the camera's queue. When the queue is full the
// oldest queued sample is evicted to make room: recency matters more than
// completeness. Eviction is counted and logged, never surfaced to the caller.
func (p *cameraPipeline) enqueue(s Sample) {
	select {
	case p.queue <- s:
		return
	default:
	}

	select {
	case old := <-p.queue:
		p.samplesDropped.Add(1)
		Opsf("camera %s: %v", p.cameraID,
			fmt.Errorf("%w: evicted oldest queued sample (t=%s, depth=%d)",
				ErrQueueOverflow, old.Timestamp.Format(time.RFC3339), cap(p.queue)))
	default:
	}

	select {
	case p.queue <- s:
	default:
		// Concurrent producers refilled the slot; drop the incoming sample.
		p.samplesDropped.Add(1)
		Opsf("camera %s: %v", p.cameraID,
			fmt.Errorf("%w: dropped incoming sample (t=%s, depth=%d)",
				ErrQueueOverflow, s.Timestamp.Format(time.RFC3339), cap(p.queue)))
	}
}

// run is the camera's worker loop. Shutdown discards anything still queued:
// pending samples are stale by definition once the engine is stopping.
func (p *cameraPipeline) run() {
	defer close(p.done)
	for {
		select {
		case <-p.quit:
			if n := len(p.queue); n > 0 {
				Opsf("camera %s: discarding %d queued samples at shutdown", p.cameraID, n)
			}
			return
		case s := <-p.queue:
			if err := p.process(s); err != nil {
				Opsf("camera %s: sample dropped: %v", p.cameraID, err)
			}
		}
	}
}

// process runs one sample through the full analysis chain. Errors are local
// to the sample; history and published state are untouched on failure.
func (p *cameraPipeline) process(s Sample) error {
	if !p.lastTimestamp.IsZero() && s.Timestamp.Before(p.lastTimestamp) {
		p.outOfOrderDrops.Add(1)
		return fmt.Errorf("%w: timestamp %s precedes last processed %s",
			ErrOutOfOrderSample,
			s.Timestamp.Format(time.RFC3339Nano),
			p.lastTimestamp.Format(time.RFC3339Nano))
	}
	sameInstant := !p.lastTimestamp.IsZero() && s.Timestamp.Equal(p.lastTimestamp)

	meta, _ := p.registry.Lookup(p.cameraID)
	cfg := meta.Apply(p.cfg)

	positions := ScalePositions(s.Detections)
	coverage := ResolveCoverage(s.CoverageAreaSqMeters, meta, cfg)
	density := ComputeDensity(len(positions), coverage, cfg.MaxOccupancyPerSqMeter)

	var motion MotionEstimate
	if sameInstant {
		// Non-advancing clock: displacement over zero elapsed time is
		// undefined, so velocity is skipped for this sample.
		motion = MotionEstimate{Confidence: MotionConfidenceFloor}
		Diagf("camera %s: non-advancing timestamp %s, velocity skipped",
			p.cameraID, s.Timestamp.Format(time.RFC3339Nano))
	} else {
		var elapsed float64
		if !p.lastTimestamp.IsZero() {
			elapsed = s.Timestamp.Sub(p.lastTimestamp).Seconds()
		}
		motion = EstimateMotion(positions, p.lastPositions, elapsed, cfg.MaxDisplacementUnits)
	}

	dist := AnalyzeDistribution(positions, cfg.GridSize, cfg.HotspotMultiplier)
	pattern := ClassifyPattern(positions, motion, cfg)
	congestion := ComputeCongestion(density, motion.Velocity, dist.Uniformity, cfg)

	m := FrameMetrics{
		CameraID:         p.cameraID,
		Timestamp:        s.Timestamp,
		PeopleCount:      len(positions),
		Density:          density,
		Velocity:         motion.Velocity,
		Distribution:     dist,
		Pattern:          pattern,
		CongestionLevel:  congestion,
		MotionConfidence: motion.Confidence,
	}

	p.mu.Lock()
	if !sameInstant {
		p.history.Append(m)
	}
	forecast := p.forecaster.Forecast(p.history)
	p.latest = m
	p.forecast = forecast
	p.mu.Unlock()

	if !sameInstant {
		p.lastPositions = positions
		p.lastTimestamp = s.Timestamp
	}

	location := meta.Location
	fired := p.evaluator.Evaluate(m, forecast, location, cfg)

	Tracef("camera %s: t=%s count=%d density=%.3f velocity=%.2f congestion=%.3f pattern=%s alerts=%d",
		p.cameraID, s.Timestamp.Format(time.RFC3339), m.PeopleCount, m.Density,
		m.Velocity, m.CongestionLevel, m.Pattern, len(fired))

	if p.recorder != nil {
		if err := p.recorder.RecordFrame(m); err != nil {
			Opsf("camera %s: frame record failed: %v", p.cameraID, err)
		}
		if fr, ok := p.recorder.(ForecastRecorder); ok {
			fr.RecordForecast(p.cameraID, forecast)
		}
	}

	for _, a := range fired {
		Opsf("camera %s: alert %s %s [%s] %s", p.cameraID, a.ID, a.Type, a.Severity, a.Message)
		if p.sink != nil {
			if err := p.sink.PublishAlert(a); err != nil {
				Opsf("camera %s: alert sink failed for %s: %v", p.cameraID, a.ID, err)
			}
		}
		if p.recorder != nil {
			if err := p.recorder.RecordAlert(a); err != nil {
				Opsf("camera %s: alert record failed for %s: %v", p.cameraID, a.ID, err)
			}
		}
	}

	// Counted last: a "processed" sample has had all its side effects.
	p.samplesProcessed.Add(1)
	return nil
}

// stop signals the worker and waits for it to exit.
func (p *cameraPipeline) stop() {
	close(p.quit)
	<-p.done
}

// snapshot returns a copy of the camera's published state. Nothing in the
// returned value shares memory with the pipeline.
func (p *cameraPipeline) snapshot() CameraSnapshot {
	meta, _ := p.registry.Lookup(p.cameraID)

	p.mu.RLock()
	m := p.latest
	fc := p.forecast
	historyLen := p.history.Len()
	p.mu.RUnlock()

	m.Distribution.Hotspots = append([]Hotspot(nil), m.Distribution.Hotspots...)
	if fc.TimeToThresholdMinutes != nil {
		v := *fc.TimeToThresholdMinutes
		fc.TimeToThresholdMinutes = &v
	}

	return CameraSnapshot{
		CameraID:         p.cameraID,
		Location:         meta.Location,
		Metrics:          m,
		Forecast:         fc,
		ActiveAlerts:     p.evaluator.ActiveAlerts(),
		SamplesProcessed: p.samplesProcessed.Load(),
		SamplesDropped:   p.samplesDropped.Load(),
		OutOfOrderDrops:  p.outOfOrderDrops.Load(),
		HistoryLength:    historyLen,
	}
}

// historySeries returns a copy of the camera's retained metrics, oldest
// first.
func (p *cameraPipeline) historySeries() []FrameMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.history.All()
}
