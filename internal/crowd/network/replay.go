package network

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/monitoring"
)

// ReplayConfig configures JSONL replay behavior.
type ReplayConfig struct {
	// Path is the JSONL recording: one JSON-encoded sample per line.
	Path string

	// Handler receives the decoded samples.
	Handler SampleHandler

	// Stats is optional; nil disables counting.
	Stats PacketStatsInterface

	// SpeedMultiplier controls replay pacing against the recorded timestamps
	// (1.0 = real-time, 2.0 = 2x speed). Zero or negative replays as fast as
	// the engine accepts.
	SpeedMultiplier float64

	// FS overrides the filesystem, for tests. Nil uses the real one.
	FS fsutil.FileSystem
}

// ReplayJSONL feeds a recorded sample stream to the handler, pacing by the
// recorded timestamps when a speed multiplier is set. Lines that fail to
// decode or submit are counted as rejected and skipped. Returns the number
// of samples submitted.
func ReplayJSONL(ctx context.Context, cfg ReplayConfig) (int, error) {
	if cfg.Handler == nil {
		return 0, fmt.Errorf("no sample handler configured")
	}
	fs := cfg.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	var stats PacketStatsInterface = cfg.Stats
	if stats == nil {
		stats = &noopStats{}
	}

	f, err := fs.Open(cfg.Path)
	if err != nil {
		return 0, fmt.Errorf("failed to open replay file %s: %w", cfg.Path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), MaxSampleBytes)

	submitted := 0
	lineNo := 0
	startTime := time.Now()

	var firstSampleTime time.Time
	replayStart := time.Now()

	for scanner.Scan() {
		lineNo++

		select {
		case <-ctx.Done():
			monitoring.Logf("JSONL replay stopping due to context cancellation (submitted %d samples)", submitted)
			return submitted, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		// Pacing needs the recorded timestamp before submission, so decode
		// happens inside handleDatagram and pacing peeks at the raw line via
		// a light second decode only when pacing is on.
		if cfg.SpeedMultiplier > 0 {
			if ts, ok := peekTimestamp(line); ok {
				if firstSampleTime.IsZero() {
					firstSampleTime = ts
				}
				offset := time.Duration(float64(ts.Sub(firstSampleTime)) / cfg.SpeedMultiplier)
				target := replayStart.Add(offset)
				if wait := time.Until(target); wait > 0 {
					select {
					case <-ctx.Done():
						return submitted, ctx.Err()
					case <-time.After(wait):
					}
				}
			}
		}

		if err := handleDatagram(line, time.Now(), cfg.Handler, stats); err != nil {
			monitoring.Logf("JSONL replay: line %d skipped: %v", lineNo, err)
			continue
		}
		submitted++

		// Log progress periodically
		if submitted%1000 == 0 {
			elapsed := time.Since(startTime)
			monitoring.Logf("JSONL replay progress: %d samples submitted in %v (%.0f samples/s)",
				submitted, elapsed, float64(submitted)/elapsed.Seconds())
		}
	}
	if err := scanner.Err(); err != nil {
		return submitted, fmt.Errorf("read replay file %s: %w", cfg.Path, err)
	}

	elapsed := time.Since(startTime)
	monitoring.Logf("JSONL replay complete: %d samples submitted in %v", submitted, elapsed)
	return submitted, nil
}

// peekTimestamp extracts only the timestamp field from an encoded sample.
func peekTimestamp(line []byte) (time.Time, bool) {
	var probe struct {
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(line, &probe); err != nil || probe.Timestamp.IsZero() {
		return time.Time{}, false
	}
	return probe.Timestamp, true
}
