package network

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowd.report/internal/fsutil"
)

// writeJSONL stores one payload per line in the in-memory filesystem.
func writeJSONL(t *testing.T, fs *fsutil.MemoryFileSystem, path string, lines ...[]byte) {
	t.Helper()
	var buf bytes.Buffer
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}
	require.NoError(t, fs.WriteFile(path, buf.Bytes(), 0o644))
}

func TestReplayJSONLSubmitsAll(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeJSONL(t, fs, "capture.jsonl",
		sampleJSON(t, "cam-east", ts, 3),
		sampleJSON(t, "cam-east", ts.Add(time.Second), 2),
		sampleJSON(t, "cam-west", ts.Add(2*time.Second), 1),
	)

	handler := &captureHandler{}
	stats := &countingStats{}
	n, err := ReplayJSONL(context.Background(), ReplayConfig{
		Path:    "capture.jsonl",
		Handler: handler,
		Stats:   stats,
		FS:      fs,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := handler.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, "cam-east", got[0].CameraID)
	assert.Equal(t, "cam-west", got[2].CameraID)
	assert.True(t, got[1].Timestamp.Equal(ts.Add(time.Second)))

	samples, rejected, detections := stats.counts()
	assert.Equal(t, 3, samples)
	assert.Equal(t, 0, rejected)
	assert.Equal(t, 6, detections)
}

func TestReplayJSONLSkipsBadLines(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeJSONL(t, fs, "capture.jsonl",
		sampleJSON(t, "cam-east", ts, 1),
		[]byte("{broken"),
		[]byte(""),
		sampleJSON(t, "cam-east", ts.Add(time.Second), 1),
	)

	handler := &captureHandler{}
	stats := &countingStats{}
	n, err := ReplayJSONL(context.Background(), ReplayConfig{
		Path:    "capture.jsonl",
		Handler: handler,
		Stats:   stats,
		FS:      fs,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, rejected, _ := stats.counts()
	assert.Equal(t, 1, rejected, "blank lines are skipped without counting")
}

func TestReplayJSONLFallbackTimestamp(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeJSONL(t, fs, "capture.jsonl", sampleJSON(t, "cam-east", time.Time{}, 1))

	handler := &captureHandler{}
	before := time.Now()
	n, err := ReplayJSONL(context.Background(), ReplayConfig{
		Path:    "capture.jsonl",
		Handler: handler,
		FS:      fs,
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := handler.snapshot()
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.Before(before), "untimestamped lines inherit replay time")
}

func TestReplayJSONLPacedBySampleTimestamps(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeJSONL(t, fs, "capture.jsonl",
		sampleJSON(t, "cam-east", ts, 1),
		sampleJSON(t, "cam-east", ts.Add(time.Second), 1),
		sampleJSON(t, "cam-east", ts.Add(2*time.Second), 1),
	)

	handler := &captureHandler{}
	// 100x speed compresses the 2s recording into ~20ms.
	n, err := ReplayJSONL(context.Background(), ReplayConfig{
		Path:            "capture.jsonl",
		Handler:         handler,
		SpeedMultiplier: 100,
		FS:              fs,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, handler.count())
}

func TestReplayJSONLRequiresHandler(t *testing.T) {
	_, err := ReplayJSONL(context.Background(), ReplayConfig{Path: "capture.jsonl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sample handler")
}

func TestReplayJSONLMissingFile(t *testing.T) {
	_, err := ReplayJSONL(context.Background(), ReplayConfig{
		Path:    "missing.jsonl",
		Handler: &captureHandler{},
		FS:      fsutil.NewMemoryFileSystem(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open replay file")
}

func TestReplayJSONLContextCancelled(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	writeJSONL(t, fs, "capture.jsonl", sampleJSON(t, "cam-east", time.Now(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := ReplayJSONL(ctx, ReplayConfig{
		Path:    "capture.jsonl",
		Handler: &captureHandler{},
		FS:      fs,
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}
