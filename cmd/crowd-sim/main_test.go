package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/httputil"
)

func TestDefaultPeople(t *testing.T) {
	tests := []struct {
		scenario string
		want     int
	}{
		{"steady", 40},
		{"rising", 90},
		{"converging", 40},
		{"queue", 16},
	}

	for _, tt := range tests {
		if got := defaultPeople(tt.scenario); got != tt.want {
			t.Errorf("defaultPeople(%q) = %d, want %d", tt.scenario, got, tt.want)
		}
	}
}

func TestNewSimulatorRejectsUnknownScenario(t *testing.T) {
	_, err := newSimulator("stampede", 40, 120, rand.New(rand.NewSource(1)))
	if err == nil {
		t.Fatal("newSimulator() accepted unknown scenario")
	}
	if !strings.Contains(err.Error(), "stampede") {
		t.Errorf("error %q does not name the bad scenario", err)
	}
}

func TestSteadyScenarioHoldsCount(t *testing.T) {
	sim, err := newSimulator("steady", 40, 120, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}

	for i := 0; i < 120; i++ {
		detections := sim.step()
		if len(detections) != 40 {
			t.Fatalf("tick %d produced %d detections, want 40", i, len(detections))
		}
		for j, d := range detections {
			if d.X < 0 || d.X > 1 || d.Y < 0 || d.Y > 1 {
				t.Fatalf("tick %d detection %d at (%.3f, %.3f) outside the frame", i, j, d.X, d.Y)
			}
			if d.Confidence < 0.7 || d.Confidence > 1 {
				t.Fatalf("tick %d detection %d confidence %.3f outside [0.7, 1]", i, j, d.Confidence)
			}
		}
	}
}

func TestRisingScenarioGrowsToPeak(t *testing.T) {
	const ticks, peak = 120, 90
	sim, err := newSimulator("rising", peak, ticks, rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}

	prev := len(sim.people)
	if prev != peak/10 {
		t.Errorf("rising scenario starts with %d people, want %d", prev, peak/10)
	}

	var last int
	for i := 0; i < ticks; i++ {
		n := len(sim.step())
		if n < prev {
			t.Fatalf("crowd shrank from %d to %d at tick %d", prev, n, i)
		}
		prev = n
		last = n
	}
	if last != peak {
		t.Errorf("crowd ended at %d people, want the peak %d", last, peak)
	}
}

func TestConvergingScenarioCollapsesToCentre(t *testing.T) {
	sim, err := newSimulator("converging", 40, 120, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		sim.step()
	}

	for i, p := range sim.people {
		if d := math.Hypot(p.x-0.5, p.y-0.5); d > 0.1 {
			t.Errorf("person %d still %.3f from the centre after 100 ticks", i, d)
		}
	}
}

// The queue lane has to survive the real classifier: collinear enough to pass
// the line fit, spaced widely enough that single-link clustering does not
// merge it into one dense cluster.
func TestQueueScenarioReadsAsQueue(t *testing.T) {
	sim, err := newSimulator("queue", defaultPeople("queue"), 120, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}

	cfg := crowd.DefaultConfig()
	for i := 0; i < 60; i++ {
		positions := crowd.ScalePositions(sim.step())
		got := crowd.ClassifyPattern(positions, crowd.MotionEstimate{}, cfg)
		if got != crowd.PatternQueue {
			t.Fatalf("tick %d classified as %s, want %s", i, got, crowd.PatternQueue)
		}
	}
}

func TestQueueLaneCapsOccupancy(t *testing.T) {
	sim, err := newSimulator("queue", 100, 120, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}

	capacity := int(laneLength / 0.07)
	if len(sim.people) != capacity {
		t.Errorf("queue holds %d people, want the lane capacity %d", len(sim.people), capacity)
	}

	// Neighbors must sit further apart than the cluster radius (50 frame
	// units, 0.05 normalized) even at full occupancy.
	for i := 1; i < len(sim.people); i++ {
		a, b := sim.people[i-1], sim.people[i]
		if d := math.Hypot(a.x-b.x, a.y-b.y); d <= 0.05 {
			t.Fatalf("neighbors %d and %d only %.4f apart, within the cluster radius", i-1, i, d)
		}
	}
}

func TestScenarioSamplesValidate(t *testing.T) {
	for _, scenario := range []string{"steady", "rising", "converging", "queue"} {
		t.Run(scenario, func(t *testing.T) {
			sim, err := newSimulator(scenario, defaultPeople(scenario), 120, rand.New(rand.NewSource(9)))
			if err != nil {
				t.Fatalf("newSimulator() failed: %v", err)
			}
			for i := 0; i < 10; i++ {
				sample := crowd.Sample{
					CameraID:             "sim-cam-1",
					Timestamp:            time.Unix(1700000000+int64(i), 0).UTC(),
					Detections:           sim.step(),
					CoverageAreaSqMeters: 200,
				}
				if err := crowd.ValidateSample(sample); err != nil {
					t.Fatalf("tick %d sample rejected: %v", i, err)
				}
			}
		})
	}
}

func TestSimulatorDeterministicForSeed(t *testing.T) {
	a, err := newSimulator("steady", 10, 60, rand.New(rand.NewSource(42)))
	if err != nil {
		t.Fatalf("newSimulator() failed: %v", err)
	}
	b, _ := newSimulator("steady", 10, 60, rand.New(rand.NewSource(42)))

	for i := 0; i < 5; i++ {
		da, db := a.step(), b.step()
		if !reflect.DeepEqual(da, db) {
			t.Fatalf("tick %d diverged for the same seed", i)
		}
	}
}

func TestJSONLEmitterWritesOneDocumentPerLine(t *testing.T) {
	var buf bytes.Buffer
	em := &jsonlEmitter{w: nopWriteCloser{&buf}}

	for i := 0; i < 3; i++ {
		sample := crowd.Sample{
			CameraID:   "sim-cam-1",
			Timestamp:  time.Unix(1700000000+int64(i), 0).UTC(),
			Detections: []crowd.Detection{{X: 0.5, Y: 0.5, Confidence: 0.9}},
		}
		payload, err := json.Marshal(sample)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if err := em.Emit(payload); err != nil {
			t.Fatalf("Emit() failed: %v", err)
		}
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines, want 3", len(lines))
	}
	for i, line := range lines {
		var sample crowd.Sample
		if err := json.Unmarshal([]byte(line), &sample); err != nil {
			t.Fatalf("line %d is not a sample: %v", i, err)
		}
		if sample.CameraID != "sim-cam-1" {
			t.Errorf("line %d camera %q, want sim-cam-1", i, sample.CameraID)
		}
	}
}

func TestHTTPEmitterPostsSample(t *testing.T) {
	mock := httputil.NewMockHTTPClient()
	mock.AddResponse(202, `{"status":"accepted"}`)
	em := &httpEmitter{client: mock, url: "http://ingest.local/api/samples"}

	if err := em.Emit([]byte(`{"camera_id":"sim-cam-1"}`)); err != nil {
		t.Fatalf("Emit() failed: %v", err)
	}

	req := mock.GetRequest(0)
	if req == nil {
		t.Fatal("no request recorded")
	}
	if got := req.URL.String(); got != "http://ingest.local/api/samples" {
		t.Errorf("posted to %s, want http://ingest.local/api/samples", got)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHTTPEmitterSurfacesFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*httputil.MockHTTPClient)
		wantSubstr string
	}{
		{
			name:       "rejected sample",
			setup:      func(m *httputil.MockHTTPClient) { m.AddResponse(400, `{"error":"invalid sample"}`) },
			wantSubstr: "status 400",
		},
		{
			name:       "transport error",
			setup:      func(m *httputil.MockHTTPClient) { m.AddErrorResponse(errors.New("connection refused")) },
			wantSubstr: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			tt.setup(mock)
			em := &httpEmitter{client: mock, url: "http://ingest.local/api/samples"}

			err := em.Emit([]byte(`{}`))
			if err == nil {
				t.Fatal("Emit() should surface the failure")
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not mention %q", err, tt.wantSubstr)
			}
		})
	}
}
