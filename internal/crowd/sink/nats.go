package sink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/banshee-data/crowd.report/internal/crowd"
)

// NATSConfig configures the NATS alert publisher.
type NATSConfig struct {
	URL            string
	Name           string        // connection name shown in server monitoring
	ConnectTimeout time.Duration // initial dial timeout
	ReconnectWait  time.Duration // pause between reconnect attempts
	MaxReconnects  int           // <0 retries forever
}

// NATSSink publishes each alert as JSON to crowd.alerts.<cameraId>.
// Subscribers filter per camera or take crowd.alerts.> for the fleet.
type NATSSink struct {
	conn *nats.Conn
}

// NewNATSSink connects to the NATS server and returns the publisher. The
// connection reconnects in the background; publishes while disconnected are
// buffered by the client until the reconnect limit is exhausted.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if cfg.Name == "" {
		cfg.Name = "crowd-report"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	crowd.Opsf("NATS alert publisher connected to %s", conn.ConnectedUrl())

	return &NATSSink{conn: conn}, nil
}

// PublishAlert implements crowd.AlertSink.
func (s *NATSSink) PublishAlert(a crowd.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert %s: %w", a.ID, err)
	}
	if err := s.conn.Publish(AlertSubject(a.CameraID), payload); err != nil {
		return fmt.Errorf("publish alert %s: %w", a.ID, err)
	}
	return nil
}

// IsConnected reports whether the underlying connection is currently up.
func (s *NATSSink) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// Close drains the connection so buffered publishes flush, falling back to
// an immediate close.
func (s *NATSSink) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		crowd.Opsf("NATS drain failed, closing immediately: %v", err)
		s.conn.Close()
	}
}

// AlertSubject returns the subject alerts for one camera publish to. Camera
// IDs pass through subjectToken so arbitrary IDs cannot produce an invalid
// or wildcarded subject.
func AlertSubject(cameraID string) string {
	return "crowd.alerts." + subjectToken(cameraID)
}

// subjectToken maps a camera ID onto one NATS subject token. Dots would
// split the token and spaces or wildcards would break the subject, so
// anything outside [A-Za-z0-9_-] becomes '_'.
func subjectToken(id string) string {
	out := []byte(id)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_' || c == '-':
		default:
			out[i] = '_'
		}
	}
	return string(out)
}
