package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// MetricsStore persists per-frame crowd metrics.
type MetricsStore struct {
	db *sql.DB
}

// NewMetricsStore creates a new MetricsStore.
func NewMetricsStore(db *sql.DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// InsertFrame persists one frame of metrics. Hotspots are stored as a JSON
// column; an empty hotspot list is stored as NULL.
func (s *MetricsStore) InsertFrame(m *crowd.FrameMetrics) error {
	var hotspotsStr interface{}
	if len(m.Distribution.Hotspots) > 0 {
		b, err := json.Marshal(m.Distribution.Hotspots)
		if err != nil {
			return fmt.Errorf("encode hotspots: %w", err)
		}
		hotspotsStr = string(b)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO frame_metrics (
				camera_id, timestamp_ns, people_count, density, velocity,
				congestion, uniformity, pattern, motion_confidence, hotspots_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.CameraID, m.Timestamp.UnixNano(), m.PeopleCount, m.Density, m.Velocity,
			m.CongestionLevel, m.Distribution.Uniformity, string(m.Pattern),
			m.MotionConfidence, hotspotsStr,
		)
		return err
	})
}

// RecentFrames returns up to limit frames for a camera, newest first.
func (s *MetricsStore) RecentFrames(cameraID string, limit int) ([]*crowd.FrameMetrics, error) {
	rows, err := s.db.Query(`
		SELECT camera_id, timestamp_ns, people_count, density, velocity,
		       congestion, uniformity, pattern, motion_confidence, hotspots_json
		FROM frame_metrics
		WHERE camera_id = ?
		ORDER BY timestamp_ns DESC
		LIMIT ?`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent frames: %w", err)
	}
	defer rows.Close()
	return collectFrames(rows)
}

// FramesSince returns all frames for a camera at or after since, oldest
// first. This is the shape chart rendering wants.
func (s *MetricsStore) FramesSince(cameraID string, since time.Time) ([]*crowd.FrameMetrics, error) {
	rows, err := s.db.Query(`
		SELECT camera_id, timestamp_ns, people_count, density, velocity,
		       congestion, uniformity, pattern, motion_confidence, hotspots_json
		FROM frame_metrics
		WHERE camera_id = ? AND timestamp_ns >= ?
		ORDER BY timestamp_ns ASC`, cameraID, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query frames since: %w", err)
	}
	defer rows.Close()
	return collectFrames(rows)
}

// Cameras returns the distinct camera IDs that have recorded frames, sorted.
func (s *MetricsStore) Cameras() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT camera_id FROM frame_metrics ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan camera id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectFrames(rows *sql.Rows) ([]*crowd.FrameMetrics, error) {
	var frames []*crowd.FrameMetrics
	for rows.Next() {
		m, err := scanFrame(rows)
		if err != nil {
			return nil, err
		}
		frames = append(frames, m)
	}
	return frames, rows.Err()
}

// scanFrame scans a frame_metrics row from a sql.Rows cursor.
func scanFrame(rows *sql.Rows) (*crowd.FrameMetrics, error) {
	var m crowd.FrameMetrics
	var timestampNs int64
	var pattern string
	var hotspotsStr sql.NullString
	err := rows.Scan(
		&m.CameraID, &timestampNs, &m.PeopleCount, &m.Density, &m.Velocity,
		&m.CongestionLevel, &m.Distribution.Uniformity, &pattern,
		&m.MotionConfidence, &hotspotsStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scan frame row: %w", err)
	}
	m.Timestamp = time.Unix(0, timestampNs).UTC()
	m.Pattern = crowd.FlowPattern(pattern)
	if hotspotsStr.Valid {
		if err := json.Unmarshal([]byte(hotspotsStr.String), &m.Distribution.Hotspots); err != nil {
			return nil, fmt.Errorf("decode hotspots: %w", err)
		}
	}
	return &m, nil
}
