package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// CameraStore persists camera registry metadata. The daemon writes the loaded
// registry here at startup so stored metrics and alerts join to a camera's
// location and coverage without the deployment file at hand.
type CameraStore struct {
	db *sql.DB
}

// NewCameraStore creates a new CameraStore.
func NewCameraStore(db *sql.DB) *CameraStore {
	return &CameraStore{db: db}
}

// Upsert inserts or replaces one camera's registry metadata. Unset fields are
// stored as NULL so readers can tell "not configured" from a real value.
func (s *CameraStore) Upsert(meta crowd.CameraMeta) error {
	if meta.CameraID == "" {
		return fmt.Errorf("upsert camera: empty camera id")
	}

	var location, coverage, width, height interface{}
	if meta.Location != "" {
		location = meta.Location
	}
	if meta.CoverageAreaSqMeters > 0 {
		coverage = meta.CoverageAreaSqMeters
	}
	if meta.FrameWidth > 0 {
		width = meta.FrameWidth
	}
	if meta.FrameHeight > 0 {
		height = meta.FrameHeight
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO cameras (
				camera_id, location, coverage_area_sq_meters, frame_width, frame_height
			) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(camera_id) DO UPDATE SET
				location = excluded.location,
				coverage_area_sq_meters = excluded.coverage_area_sq_meters,
				frame_width = excluded.frame_width,
				frame_height = excluded.frame_height`,
			meta.CameraID, location, coverage, width, height,
		)
		return err
	})
}

// All returns the persisted cameras sorted by ID. NULL columns come back as
// zero values, matching the in-memory registry's "not set" convention.
func (s *CameraStore) All() ([]crowd.CameraMeta, error) {
	rows, err := s.db.Query(`
		SELECT camera_id, location, coverage_area_sq_meters, frame_width, frame_height
		FROM cameras
		ORDER BY camera_id`)
	if err != nil {
		return nil, fmt.Errorf("query cameras: %w", err)
	}
	defer rows.Close()

	var metas []crowd.CameraMeta
	for rows.Next() {
		var m crowd.CameraMeta
		var location sql.NullString
		var coverage sql.NullFloat64
		var width, height sql.NullInt64
		if err := rows.Scan(&m.CameraID, &location, &coverage, &width, &height); err != nil {
			return nil, fmt.Errorf("scan camera row: %w", err)
		}
		m.Location = location.String
		m.CoverageAreaSqMeters = coverage.Float64
		m.FrameWidth = int(width.Int64)
		m.FrameHeight = int(height.Int64)
		metas = append(metas, m)
	}
	return metas, rows.Err()
}
