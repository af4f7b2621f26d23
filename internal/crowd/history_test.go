package crowd

import (
	"testing"
	"time"
)

func metricsAt(ts time.Time, density float64) FrameMetrics {
	return FrameMetrics{
		CameraID:        "cam-1",
		Timestamp:       ts,
		Density:         density,
		CongestionLevel: density / 2,
	}
}

func TestNewHistory(t *testing.T) {
	t.Run("minimum capacity", func(t *testing.T) {
		h := NewHistory(0, time.Minute)
		if h.Capacity() != 1 {
			t.Errorf("expected capacity floor 1, got %d", h.Capacity())
		}
	})

	t.Run("custom capacity", func(t *testing.T) {
		h := NewHistory(10, time.Minute)
		if h.Capacity() != 10 {
			t.Errorf("expected capacity 10, got %d", h.Capacity())
		}
	})
}

func TestHistoryAppendAndPrevious(t *testing.T) {
	h := NewHistory(3, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !h.Append(metricsAt(base, 0.1)) {
		t.Fatal("first append rejected")
	}
	if !h.Append(metricsAt(base.Add(time.Minute), 0.2)) {
		t.Fatal("second append rejected")
	}

	last, ok := h.Last()
	if !ok || last.Density != 0.2 {
		t.Errorf("Last: got (%v, %v), want density 0.2", last.Density, ok)
	}
	prev, ok := h.Previous(2)
	if !ok || prev.Density != 0.1 {
		t.Errorf("Previous(2): got (%v, %v), want density 0.1", prev.Density, ok)
	}
	if _, ok := h.Previous(3); ok {
		t.Error("Previous(3) should not exist with 2 records")
	}
	if _, ok := h.Previous(0); ok {
		t.Error("Previous(0) should never exist")
	}
}

func TestHistoryRejectsNonAdvancingTimestamps(t *testing.T) {
	h := NewHistory(5, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h.Append(metricsAt(base, 0.1))
	if h.Append(metricsAt(base, 0.2)) {
		t.Error("equal timestamp should be rejected")
	}
	if h.Append(metricsAt(base.Add(-time.Second), 0.3)) {
		t.Error("earlier timestamp should be rejected")
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}
}

func TestHistoryRingOverwrite(t *testing.T) {
	h := NewHistory(3, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		h.Append(metricsAt(base.Add(time.Duration(i)*time.Minute), float64(i)))
	}

	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3", h.Len())
	}
	densities := h.Densities()
	want := []float64{2, 3, 4}
	for i, d := range densities {
		if d != want[i] {
			t.Errorf("Densities[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestHistoryWindowEviction(t *testing.T) {
	h := NewHistory(100, 10*time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h.Append(metricsAt(base, 0.1))
	h.Append(metricsAt(base.Add(time.Minute), 0.2))
	// 30 minutes later: both earlier records age out.
	h.Append(metricsAt(base.Add(31*time.Minute), 0.3))

	if h.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after window eviction", h.Len())
	}
	last, _ := h.Last()
	if last.Density != 0.3 {
		t.Errorf("surviving record density = %v, want 0.3", last.Density)
	}
}

func TestHistoryWindowKeepsBoundaryEntry(t *testing.T) {
	h := NewHistory(100, 10*time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	h.Append(metricsAt(base, 0.1))
	// Exactly at the window edge: cutoff is newest minus window, and entries
	// at the cutoff instant survive.
	h.Append(metricsAt(base.Add(10*time.Minute), 0.2))

	if h.Len() != 2 {
		t.Errorf("Len = %d, want 2 at exact window boundary", h.Len())
	}
}

func TestHistorySeriesOrder(t *testing.T) {
	h := NewHistory(4, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		h.Append(metricsAt(base.Add(time.Duration(i)*time.Minute), float64(i+1)))
	}

	all := h.All()
	if len(all) != 4 {
		t.Fatalf("All returned %d records, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Errorf("All not strictly time-ordered at %d", i)
		}
	}

	congestions := h.Congestions()
	for i := range congestions {
		if congestions[i] != all[i].CongestionLevel {
			t.Errorf("Congestions[%d] = %v, want %v", i, congestions[i], all[i].CongestionLevel)
		}
	}
}

func TestHistoryTimeDeltaSeconds(t *testing.T) {
	h := NewHistory(5, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if h.TimeDeltaSeconds() != 0 {
		t.Error("empty history should report delta 0")
	}
	h.Append(metricsAt(base, 0.1))
	if h.TimeDeltaSeconds() != 0 {
		t.Error("single record should report delta 0")
	}
	h.Append(metricsAt(base.Add(90*time.Second), 0.2))
	if got := h.TimeDeltaSeconds(); got != 90 {
		t.Errorf("TimeDeltaSeconds = %v, want 90", got)
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(5, time.Hour)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.Append(metricsAt(base, 0.1))
	h.Append(metricsAt(base.Add(time.Minute), 0.2))

	h.Clear()
	if h.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", h.Len())
	}
	if h.Densities() != nil {
		t.Error("Densities after Clear should be nil")
	}
	// Cleared history accepts any timestamp again.
	if !h.Append(metricsAt(base, 0.5)) {
		t.Error("append after Clear rejected")
	}
}
