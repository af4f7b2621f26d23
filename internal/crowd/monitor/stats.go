package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// StatsSnapshot represents a snapshot of current throughput statistics
type StatsSnapshot struct {
	SamplesPerSec    float64
	MBPerSec         float64
	DetectionsPerSec float64
	RejectedCount    int64
	Timestamp        time.Time
}

// PacketStats tracks sample ingest statistics with thread-safe operations.
// Both the UDP listener and the HTTP ingest endpoint feed the same instance.
type PacketStats struct {
	mu             sync.Mutex
	sampleCount    int64
	byteCount      int64
	rejectedCount  int64
	detectionCount int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *StatsSnapshot
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	now := time.Now()
	return &PacketStats{
		lastReset: now,
		startTime: now,
	}
}

// AddSample increments sample count and byte count
func (ps *PacketStats) AddSample(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sampleCount++
	ps.byteCount += int64(bytes)
}

// AddRejected increments the rejected sample count
func (ps *PacketStats) AddRejected() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.rejectedCount++
}

// AddDetections increments the parsed detection count
func (ps *PacketStats) AddDetections(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.detectionCount += int64(count)
}

// GetAndReset returns current stats and resets counters
func (ps *PacketStats) GetAndReset() (samples int64, bytes int64, rejected int64, detections int64, duration time.Duration) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	duration = now.Sub(ps.lastReset)
	samples = ps.sampleCount
	bytes = ps.byteCount
	rejected = ps.rejectedCount
	detections = ps.detectionCount

	ps.sampleCount = 0
	ps.byteCount = 0
	ps.rejectedCount = 0
	ps.detectionCount = 0
	ps.lastReset = now

	return
}

// LogStats logs formatted statistics and stores a snapshot for the web interface
func (ps *PacketStats) LogStats() {
	samples, bytes, rejected, detections, duration := ps.GetAndReset()
	if samples > 0 || rejected > 0 {
		samplesPerSec := float64(samples) / duration.Seconds()
		mbPerSec := float64(bytes) / duration.Seconds() / (1024 * 1024)
		detectionsPerSec := float64(detections) / duration.Seconds()

		// Store snapshot for web interface
		ps.mu.Lock()
		ps.latestSnapshot = &StatsSnapshot{
			SamplesPerSec:    samplesPerSec,
			MBPerSec:         mbPerSec,
			DetectionsPerSec: detectionsPerSec,
			RejectedCount:    rejected,
			Timestamp:        time.Now(),
		}
		ps.mu.Unlock()

		logMsg := fmt.Sprintf("Crowd stats (/sec): %.2f MB, %.1f samples, %s detections",
			mbPerSec, samplesPerSec, FormatWithCommas(int64(detectionsPerSec)))

		if rejected > 0 {
			logMsg += fmt.Sprintf(", %d rejected", rejected)
		}

		log.Print(logMsg)
	}
}

// GetUptime returns the time since the stats were created
func (ps *PacketStats) GetUptime() time.Duration {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return time.Since(ps.startTime)
}

// GetLatestSnapshot returns the most recent stats snapshot for the web interface
func (ps *PacketStats) GetLatestSnapshot() *StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *ps.latestSnapshot
	return &snapshot
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
