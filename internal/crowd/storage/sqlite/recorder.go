package sqlite

import (
	"database/sql"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// Recorder persists engine output through the frame and alert stores. It runs
// on pipeline goroutines, so every write path retries on busy rather than
// failing the sample.
type Recorder struct {
	Metrics *MetricsStore
	Alerts  *AlertStore
}

var _ crowd.Recorder = (*Recorder)(nil)

// NewRecorder creates a Recorder with both stores backed by db.
func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{
		Metrics: NewMetricsStore(db),
		Alerts:  NewAlertStore(db),
	}
}

// RecordFrame implements crowd.Recorder.
func (r *Recorder) RecordFrame(m crowd.FrameMetrics) error {
	return r.Metrics.InsertFrame(&m)
}

// RecordAlert implements crowd.Recorder.
func (r *Recorder) RecordAlert(a crowd.Alert) error {
	return r.Alerts.Insert(&a)
}
