package crowd

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Severity bands by how far a metric sits above its threshold.
const (
	marginMedium   = 0.10
	marginHigh     = 0.25
	marginCritical = 0.50
)

// Predictive alerts escalate to HIGH when the forecast is both confident and
// imminent.
const (
	predictiveEscalateConfidence = 0.8
	predictiveEscalateMinutes    = 10
)

// alertRecord tracks the lifecycle of one (camera, type) pair. A record is
// Active while its alert stands unresolved, Suppressed from resolution until
// the dedup window expires, and absent (Idle) otherwise.
type alertRecord struct {
	alert  Alert
	active bool
}

// AlertEvaluator applies thresholds to metrics and forecasts for one camera,
// deduplicating against recently created alerts of the same type. Evaluation
// runs on the camera's pipeline goroutine; resolution arrives from outside,
// hence the mutex.
type AlertEvaluator struct {
	mu       sync.Mutex
	cameraID string
	records  map[AlertType]*alertRecord
}

// NewAlertEvaluator creates an evaluator for one camera.
func NewAlertEvaluator(cameraID string) *AlertEvaluator {
	return &AlertEvaluator{
		cameraID: cameraID,
		records:  make(map[AlertType]*alertRecord),
	}
}

// Evaluate checks the sample's metrics and forecast against the thresholds in
// cfg and returns the alerts that newly fired. Candidates matching an alert
// that is still active, or one created within the dedup window, are
// suppressed. Times are measured on the camera's sample timeline, so a replay
// reproduces the same alert decisions. The location names the camera in alert
// messages; when empty, the camera ID stands in.
func (e *AlertEvaluator) Evaluate(m FrameMetrics, fc Forecast, location string, cfg Config) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Alert

	emit := func(t AlertType, severity Severity, message string, confidence float64) {
		if rec, ok := e.records[t]; ok {
			if rec.active || m.Timestamp.Sub(rec.alert.CreatedAt) < cfg.DedupWindow {
				Tracef("camera %s: %s candidate suppressed (active=%v age=%s)",
					e.cameraID, t, rec.active, m.Timestamp.Sub(rec.alert.CreatedAt))
				return
			}
		}
		alert := Alert{
			ID:                 fmt.Sprintf("alr_%s", uuid.NewString()),
			CameraID:           e.cameraID,
			Type:               t,
			Severity:           severity,
			Message:            message,
			Confidence:         confidence,
			CreatedAt:          m.Timestamp,
			Location:           location,
			RecommendedActions: recommendedActions(t, severity),
		}
		e.records[t] = &alertRecord{alert: alert, active: true}
		fired = append(fired, alert)
	}

	name := location
	if name == "" {
		name = e.cameraID
	}
	thr := cfg.Thresholds

	if m.Density > thr.Density {
		sev := severityForMargin(m.Density - thr.Density)
		emit(AlertHighDensity, sev,
			fmt.Sprintf("High crowd density at %s: %.2f (threshold %.2f)", name, m.Density, thr.Density), 1.0)
	}
	if m.Velocity > thr.Velocity {
		sev := severityForMargin(m.Velocity - thr.Velocity)
		emit(AlertHighVelocity, sev,
			fmt.Sprintf("Rapid crowd movement at %s: %.2f units/s (threshold %.2f)", name, m.Velocity, thr.Velocity), 1.0)
	}
	if m.CongestionLevel > thr.Congestion {
		sev := severityForMargin(m.CongestionLevel - thr.Congestion)
		emit(AlertHighCongestion, sev,
			fmt.Sprintf("Heavy congestion at %s: %.2f (threshold %.2f)", name, m.CongestionLevel, thr.Congestion), 1.0)
	}
	if fc.TimeToThresholdMinutes != nil {
		ttt := *fc.TimeToThresholdMinutes
		sev := SeverityMedium
		if fc.Confidence > predictiveEscalateConfidence && ttt < predictiveEscalateMinutes {
			sev = SeverityHigh
		}
		emit(AlertPredictiveHighDensity, sev,
			fmt.Sprintf("%s is forecast to reach the density threshold in %d min (confidence %.0f%%)",
				name, ttt, fc.Confidence*100), fc.Confidence)
	}

	return fired
}

// severityForMargin grades a breach by its absolute margin over the
// threshold.
func severityForMargin(margin float64) Severity {
	switch {
	case margin < marginMedium:
		return SeverityLow
	case margin < marginHigh:
		return SeverityMedium
	case margin < marginCritical:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// recommendedActions suggests operator responses for an alert. Returned
// slices are fresh on every call; alerts never share them.
func recommendedActions(t AlertType, severity Severity) []string {
	switch t {
	case AlertHighDensity:
		actions := []string{
			"Deploy crowd management staff to the area",
			"Open additional exits",
		}
		if severity == SeverityCritical {
			actions = append(actions, "Halt inbound foot traffic")
		}
		return actions
	case AlertHighVelocity:
		return []string{
			"Review the camera feed for a trigger event",
			"Stage medical response nearby",
		}
	case AlertHighCongestion:
		return []string{
			"Slow inbound flow at upstream choke points",
			"Clear blocked corridors",
		}
	case AlertPredictiveHighDensity:
		return []string{
			"Pre-position staff before the threshold is crossed",
			"Prepare crowd diversion routes",
		}
	}
	return nil
}

// Resolve marks the alert with the given ID inactive. Returns false if no
// active alert carries that ID. The record stays suppressed until its dedup
// window expires.
func (e *AlertEvaluator) Resolve(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rec := range e.records {
		if rec.alert.ID == alertID && rec.active {
			rec.active = false
			return true
		}
	}
	return false
}

// ActiveAlerts returns the camera's unresolved alerts ordered by creation
// time, then type.
func (e *AlertEvaluator) ActiveAlerts() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	var alerts []Alert
	for _, rec := range e.records {
		if rec.active {
			alerts = append(alerts, rec.alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
		}
		return alerts[i].Type < alerts[j].Type
	})
	return alerts
}
