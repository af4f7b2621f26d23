package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// StoredAlert is an alert row: the alert as emitted plus its resolution
// timestamp, if any. The engine treats alerts as immutable; resolution only
// exists in storage.
type StoredAlert struct {
	crowd.Alert
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertStore provides persistence for emitted alerts.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert persists a new alert. If ID is empty, a UUID is generated.
func (s *AlertStore) Insert(a *crowd.Alert) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}

	var actionsStr interface{}
	if len(a.RecommendedActions) > 0 {
		b, err := json.Marshal(a.RecommendedActions)
		if err != nil {
			return fmt.Errorf("encode actions: %w", err)
		}
		actionsStr = string(b)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO alerts (
				alert_id, camera_id, alert_type, severity, message,
				confidence, location, actions_json, created_at_ns
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.CameraID, string(a.Type), string(a.Severity), a.Message,
			a.Confidence, a.Location, actionsStr, a.CreatedAt.UnixNano(),
		)
		return err
	})
}

// Get returns a single alert by ID.
func (s *AlertStore) Get(alertID string) (*StoredAlert, error) {
	row := s.db.QueryRow(`
		SELECT alert_id, camera_id, alert_type, severity, message,
		       confidence, location, actions_json, created_at_ns, resolved_at_ns
		FROM alerts
		WHERE alert_id = ?`, alertID)

	a, err := scanAlertRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert %s not found", alertID)
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return a, nil
}

// MarkResolved records the resolution time for an unresolved alert. Resolving
// an unknown or already-resolved alert is an error.
func (s *AlertStore) MarkResolved(alertID string, at time.Time) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`
			UPDATE alerts SET resolved_at_ns = ?
			WHERE alert_id = ? AND resolved_at_ns IS NULL`,
			at.UnixNano(), alertID)
		if err != nil {
			return fmt.Errorf("resolve alert: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("alert %s not found or already resolved", alertID)
		}
		return nil
	})
}

// Unresolved returns all alerts without a resolution timestamp, oldest first.
func (s *AlertStore) Unresolved() ([]*StoredAlert, error) {
	rows, err := s.db.Query(`
		SELECT alert_id, camera_id, alert_type, severity, message,
		       confidence, location, actions_json, created_at_ns, resolved_at_ns
		FROM alerts
		WHERE resolved_at_ns IS NULL
		ORDER BY created_at_ns ASC`)
	if err != nil {
		return nil, fmt.Errorf("query unresolved alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// RecentForCamera returns up to limit alerts for a camera, newest first.
func (s *AlertStore) RecentForCamera(cameraID string, limit int) ([]*StoredAlert, error) {
	rows, err := s.db.Query(`
		SELECT alert_id, camera_id, alert_type, severity, message,
		       confidence, location, actions_json, created_at_ns, resolved_at_ns
		FROM alerts
		WHERE camera_id = ?
		ORDER BY created_at_ns DESC
		LIMIT ?`, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]*StoredAlert, error) {
	var alerts []*StoredAlert
	for rows.Next() {
		a, err := scanAlertRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlertRow(row scanner) (*StoredAlert, error) {
	var a StoredAlert
	var alertType, severity string
	var location, actionsStr sql.NullString
	var createdNs int64
	var resolvedNs sql.NullInt64
	err := row.Scan(
		&a.ID, &a.CameraID, &alertType, &severity, &a.Message,
		&a.Confidence, &location, &actionsStr, &createdNs, &resolvedNs,
	)
	if err != nil {
		return nil, err
	}
	a.Type = crowd.AlertType(alertType)
	a.Severity = crowd.Severity(severity)
	a.Location = location.String
	a.CreatedAt = time.Unix(0, createdNs).UTC()
	if actionsStr.Valid {
		if err := json.Unmarshal([]byte(actionsStr.String), &a.RecommendedActions); err != nil {
			return nil, fmt.Errorf("decode actions: %w", err)
		}
	}
	if resolvedNs.Valid {
		t := time.Unix(0, resolvedNs.Int64).UTC()
		a.ResolvedAt = &t
	}
	return &a, nil
}
