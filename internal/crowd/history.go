package crowd

import (
	"time"
)

// History maintains a sliding window of analyzed frames for one camera.
// It is bounded two ways: a fixed capacity ring buffer, and a retention
// window measured against the newest entry. Timestamps are strictly
// increasing; Append refuses entries that would break that order.
type History struct {
	records  []FrameMetrics
	capacity int
	window   time.Duration
	head     int // Points to next write position
	size     int // Current number of records stored
}

// NewHistory creates a history buffer with the given capacity and retention
// window.
func NewHistory(capacity int, window time.Duration) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		records:  make([]FrameMetrics, capacity),
		capacity: capacity,
		window:   window,
	}
}

// Append stores a new record, overwriting the oldest if at capacity and
// evicting records that have aged out of the retention window. Returns false
// if the record's timestamp does not advance past the newest entry.
func (h *History) Append(m FrameMetrics) bool {
	if last, ok := h.Last(); ok && !m.Timestamp.After(last.Timestamp) {
		return false
	}
	h.records[h.head] = m
	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
	if h.window > 0 {
		h.evictBefore(m.Timestamp.Add(-h.window))
	}
	return true
}

// evictBefore drops records older than cutoff from the oldest side.
func (h *History) evictBefore(cutoff time.Time) {
	for h.size > 0 {
		idx := (h.head - h.size + h.capacity) % h.capacity
		if !h.records[idx].Timestamp.Before(cutoff) {
			return
		}
		h.records[idx] = FrameMetrics{}
		h.size--
	}
}

// Previous returns the record N steps back from the most recent.
// Previous(1) returns the most recently appended record.
func (h *History) Previous(n int) (FrameMetrics, bool) {
	if n < 1 || n > h.size {
		return FrameMetrics{}, false
	}
	idx := (h.head - n + h.capacity) % h.capacity
	return h.records[idx], true
}

// Last returns the most recent record.
func (h *History) Last() (FrameMetrics, bool) {
	return h.Previous(1)
}

// Len returns the current number of records in history.
func (h *History) Len() int {
	return h.size
}

// Capacity returns the maximum number of records that can be stored.
func (h *History) Capacity() int {
	return h.capacity
}

// Clear removes all records from history.
func (h *History) Clear() {
	for i := range h.records {
		h.records[i] = FrameMetrics{}
	}
	h.head = 0
	h.size = 0
}

// All returns all records from oldest to newest.
func (h *History) All() []FrameMetrics {
	if h.size == 0 {
		return nil
	}
	result := make([]FrameMetrics, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		result[i] = h.records[idx]
	}
	return result
}

// Densities returns the density series from oldest to newest.
func (h *History) Densities() []float64 {
	if h.size == 0 {
		return nil
	}
	result := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		result[i] = h.records[idx].Density
	}
	return result
}

// Congestions returns the congestion series from oldest to newest.
func (h *History) Congestions() []float64 {
	if h.size == 0 {
		return nil
	}
	result := make([]float64, h.size)
	for i := 0; i < h.size; i++ {
		idx := (h.head - h.size + i + h.capacity) % h.capacity
		result[i] = h.records[idx].CongestionLevel
	}
	return result
}

// TimeDeltaSeconds returns the time delta between the two most recent
// records. Returns 0 if fewer than 2 records are available.
func (h *History) TimeDeltaSeconds() float64 {
	current, ok := h.Previous(1)
	if !ok {
		return 0
	}
	previous, ok := h.Previous(2)
	if !ok {
		return 0
	}
	return current.Timestamp.Sub(previous.Timestamp).Seconds()
}
