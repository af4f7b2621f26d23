package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/crowd.report/internal/monitoring"
)

// PCAPPacket is a single UDP payload read from a capture file, with its
// capture timestamp.
type PCAPPacket struct {
	Data      []byte
	Timestamp time.Time
}

// PCAPReader reads packets from a capture file. The abstraction keeps the
// replay loop testable without real pcap files or the pcap build tag.
type PCAPReader interface {
	// Open opens a capture file for reading.
	Open(filename string) error

	// SetBPFFilter sets a BPF filter on the reader.
	SetBPFFilter(filter string) error

	// NextPacket returns the next UDP payload from the capture.
	// Returns nil, nil when no more packets are available.
	NextPacket() (*PCAPPacket, error)

	// Close closes the reader and releases resources.
	Close()

	// LinkType returns the link type of the capture file. Uses int to
	// accommodate link types > 255 (Linux Cooked Capture v2 is 276).
	LinkType() int
}

// ReplayFromReader drains a capture through the handler: open, filter to the
// sample port, then decode and submit every UDP payload. Pacing follows the
// capture timestamps scaled by speed (1.0 = real-time); zero or negative
// replays unpaced. Returns the number of samples submitted.
func ReplayFromReader(ctx context.Context, r PCAPReader, pcapFile string, udpPort int, handler SampleHandler, stats PacketStatsInterface, speed float64) (int, error) {
	if handler == nil {
		return 0, fmt.Errorf("no sample handler configured")
	}
	if stats == nil {
		stats = &noopStats{}
	}

	if err := r.Open(pcapFile); err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer r.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := r.SetBPFFilter(filterStr); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	monitoring.Logf("PCAP replay: BPF filter set: %s (speed: %.1fx)", filterStr, speed)

	packetCount := 0
	submitted := 0
	startTime := time.Now()

	var firstPacketTime time.Time
	var lastPacketTime time.Time

	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("PCAP replay stopping due to context cancellation (processed %d packets)", packetCount)
			return submitted, ctx.Err()
		default:
		}

		pkt, err := r.NextPacket()
		if err != nil {
			return submitted, fmt.Errorf("read PCAP packet: %w", err)
		}
		if pkt == nil {
			// End of capture
			elapsed := time.Since(startTime)
			monitoring.Logf("PCAP replay complete: %d packets, %d samples submitted in %v", packetCount, submitted, elapsed)
			return submitted, nil
		}

		packetCount++
		if len(pkt.Data) == 0 {
			continue
		}

		captureTime := pkt.Timestamp
		if speed > 0 && !captureTime.IsZero() {
			if firstPacketTime.IsZero() {
				firstPacketTime = captureTime
				lastPacketTime = captureTime
			} else {
				delay := captureTime.Sub(lastPacketTime)
				scaledDelay := time.Duration(float64(delay) / speed)
				if scaledDelay > 0 {
					select {
					case <-ctx.Done():
						return submitted, ctx.Err()
					case <-time.After(scaledDelay):
					}
				}
				lastPacketTime = captureTime
			}
		}

		fallbackTS := captureTime
		if fallbackTS.IsZero() {
			fallbackTS = time.Now()
		}
		if err := handleDatagram(pkt.Data, fallbackTS, handler, stats); err != nil {
			monitoring.Logf("PCAP replay: packet %d skipped: %v", packetCount, err)
			continue
		}
		submitted++

		if packetCount%10000 == 0 {
			elapsed := time.Since(startTime)
			monitoring.Logf("PCAP replay progress: %d packets in %v (%.0f pkt/s)",
				packetCount, elapsed, float64(packetCount)/elapsed.Seconds())
		}
	}
}

// MockPCAPReader implements PCAPReader for testing.
type MockPCAPReader struct {
	mu sync.Mutex

	// Packets holds the packets to return from NextPacket.
	Packets []PCAPPacket

	// ReadIndex tracks the current position in Packets.
	ReadIndex int

	// OpenError is returned by Open if set.
	OpenError error

	// FilterError is returned by SetBPFFilter if set.
	FilterError error

	// OpenedFile records the filename passed to Open.
	OpenedFile string

	// AppliedFilter records the filter passed to SetBPFFilter.
	AppliedFilter string

	// Closed indicates whether Close was called.
	Closed bool

	// MockLinkType is the link type to return.
	MockLinkType int
}

// NewMockPCAPReader creates a new MockPCAPReader with the given packets.
func NewMockPCAPReader(packets []PCAPPacket) *MockPCAPReader {
	return &MockPCAPReader{
		Packets:      packets,
		MockLinkType: 1, // Ethernet
	}
}

// Open records the filename and returns any configured error.
func (m *MockPCAPReader) Open(filename string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.OpenedFile = filename
	return m.OpenError
}

// SetBPFFilter records the filter and returns any configured error.
func (m *MockPCAPReader) SetBPFFilter(filter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.AppliedFilter = filter
	return m.FilterError
}

// NextPacket returns the next packet from the mock buffer.
func (m *MockPCAPReader) NextPacket() (*PCAPPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Closed {
		return nil, errors.New("reader closed")
	}
	if m.ReadIndex >= len(m.Packets) {
		return nil, nil // EOF - no more packets
	}
	pkt := m.Packets[m.ReadIndex]
	m.ReadIndex++
	return &pkt, nil
}

// Close marks the reader as closed.
func (m *MockPCAPReader) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
}

// LinkType returns the mock link type.
func (m *MockPCAPReader) LinkType() int {
	return m.MockLinkType
}

// Reset resets the mock reader state for reuse.
func (m *MockPCAPReader) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadIndex = 0
	m.Closed = false
	m.OpenedFile = ""
	m.AppliedFilter = ""
	m.OpenError = nil
	m.FilterError = nil
}

// AddPacket adds a packet to the mock reader.
func (m *MockPCAPReader) AddPacket(data []byte, timestamp time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Packets = append(m.Packets, PCAPPacket{
		Data:      data,
		Timestamp: timestamp,
	})
}
