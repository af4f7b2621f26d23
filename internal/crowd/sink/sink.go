// Package sink delivers emitted alerts to their outbound destinations: the
// ops log, a per-camera NATS subject, and SQLite. MultiSink composes them.
// The engine hands each alert to its sink exactly once and in camera-local
// order; anything beyond that (retries, buffering, fan-in) is a sink concern.
package sink

import (
	"github.com/banshee-data/crowd.report/internal/crowd"
)

// LogSink writes each alert to the ops stream. It never fails, which makes it
// a safe default delivery target.
type LogSink struct{}

// PublishAlert implements crowd.AlertSink.
func (LogSink) PublishAlert(a crowd.Alert) error {
	crowd.Opsf("ALERT [%s] %s camera=%s location=%q confidence=%.2f: %s",
		a.Severity, a.Type, a.CameraID, a.Location, a.Confidence, a.Message)
	return nil
}

// MultiSink fans each alert out to several sinks in order. Every sink sees
// the alert even when an earlier one fails; the first failure is returned.
type MultiSink struct {
	sinks []crowd.AlertSink
}

// NewMultiSink builds a fan-out over the given sinks. Nil entries are
// dropped, so optional sinks can be passed straight through.
func NewMultiSink(sinks ...crowd.AlertSink) *MultiSink {
	out := make([]crowd.AlertSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &MultiSink{sinks: out}
}

// PublishAlert implements crowd.AlertSink.
func (m *MultiSink) PublishAlert(a crowd.Alert) error {
	var firstErr error
	for _, s := range m.sinks {
		if err := s.PublishAlert(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports how many sinks the fan-out delivers to.
func (m *MultiSink) Len() int {
	return len(m.sinks)
}
