// Package network ingests detection samples from the wire: a UDP listener
// for live camera feeds plus JSONL and PCAP replay for recorded ones. Every
// ingest path decodes one JSON sample per datagram or line and hands it to
// the analytics engine.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/monitoring"
)

// MaxSampleBytes caps the accepted size of one encoded sample. Replay paths
// share the cap; the UDP path is naturally bounded by the datagram size.
const MaxSampleBytes = 1 << 20

// maxDatagramBytes is the UDP receive buffer size. IPv4 datagrams cannot
// exceed 65507 payload bytes.
const maxDatagramBytes = 64 * 1024

// SampleHandler receives decoded samples. *crowd.Engine satisfies it.
type SampleHandler interface {
	Submit(s crowd.Sample) error
}

// PacketStatsInterface provides ingest statistics management.
type PacketStatsInterface interface {
	AddSample(bytes int)
	AddRejected()
	AddDetections(count int)
	LogStats()
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddSample(bytes int)     {}
func (n *noopStats) AddRejected()            {}
func (n *noopStats) AddDetections(count int) {}
func (n *noopStats) LogStats()               {}

// UDPListener receives camera detection samples over UDP, one JSON-encoded
// sample per datagram, and submits them to the engine.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	stats       PacketStatsInterface
	handler     SampleHandler

	mu   sync.Mutex
	conn *net.UDPConn
}

// UDPListenerConfig contains configuration options for the UDP listener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Handler     SampleHandler
}

// NewUDPListener creates a new UDP listener with the provided configuration.
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the datagram handling and logging paths.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	// Default a sensible log interval if not provided
	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		handler:     config.Handler,
	}
}

// Start begins listening for UDP datagrams and processing them. It blocks
// until the context is cancelled or the socket fails.
func (l *UDPListener) Start(ctx context.Context) error {
	if l.handler == nil {
		return fmt.Errorf("no sample handler configured")
	}

	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			monitoring.Logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	monitoring.Logf("UDP sample listener started on %s with receive buffer %d bytes", l.address, l.rcvBuf)

	// Start statistics logging
	go l.startStatsLogging(ctx)

	buffer := make([]byte, maxDatagramBytes)

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, addr, err := conn.ReadFromUDP(buffer)
			if err != nil {
				if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				monitoring.Logf("UDP read error: %v", err)
				continue
			}

			if err := handleDatagram(buffer[:n], time.Now(), l.handler, l.stats); err != nil {
				monitoring.Logf("Error handling datagram from %v: %v", addr, err)
			}
		}
	}
}

// startStatsLogging periodically logs ingest statistics.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	// Trigger an initial stats report shortly after startup to avoid a long
	// silence on first-run. Then continue on the configured interval.
	select {
	case <-ctx.Done():
		return
	case <-time.After(2 * time.Second):
		l.stats.LogStats()
	}

	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// LocalAddr returns the bound UDP address, or nil before Start binds the
// socket. Useful when listening on port 0.
func (l *UDPListener) LocalAddr() *net.UDPAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	addr, _ := l.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Close closes the UDP listener and releases resources.
func (l *UDPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}

// handleDatagram decodes one JSON sample and submits it. A sample without a
// timestamp inherits fallbackTS (receive time live, capture time on replay).
// Decode and validation failures count as rejected; they never stop the
// ingest loop.
func handleDatagram(payload []byte, fallbackTS time.Time, handler SampleHandler, stats PacketStatsInterface) error {
	stats.AddSample(len(payload))

	var s crowd.Sample
	if err := json.Unmarshal(payload, &s); err != nil {
		stats.AddRejected()
		return fmt.Errorf("decode sample: %w", err)
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = fallbackTS
	}

	if err := handler.Submit(s); err != nil {
		stats.AddRejected()
		return fmt.Errorf("submit sample from camera %q: %w", s.CameraID, err)
	}

	stats.AddDetections(len(s.Detections))
	return nil
}
