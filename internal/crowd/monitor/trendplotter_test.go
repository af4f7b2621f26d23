package monitor

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/fsutil"
)

func recordTrendFrames(t *testing.T, tp *TrendPlotter, cameraID string, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		m := crowd.FrameMetrics{
			CameraID:        cameraID,
			Timestamp:       base.Add(time.Duration(i) * 5 * time.Second),
			PeopleCount:     20 + i,
			Density:         0.2 + 0.01*float64(i),
			Velocity:        1.1,
			CongestionLevel: 0.4,
		}
		if err := tp.RecordFrame(m); err != nil {
			t.Fatalf("record frame %d: %v", i, err)
		}
		tp.RecordForecast(cameraID, crowd.Forecast{PredictedDensity: 0.3, SampleCount: i + 1})
	}
}

func TestTrendPlotterGeneratesPlots(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	tp := NewTrendPlotter(memfs)

	if err := tp.Start("plots/run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !tp.IsEnabled() {
		t.Fatal("plotter should be enabled after Start")
	}

	recordTrendFrames(t, tp, "cam-east", 10)
	if err := tp.RecordAlert(crowd.Alert{
		CameraID: "cam-east",
		Type:     crowd.AlertHighDensity,
		Severity: crowd.SeverityHigh,
	}); err != nil {
		t.Fatalf("record alert: %v", err)
	}

	tp.Stop()
	if tp.IsEnabled() {
		t.Fatal("plotter should be disabled after Stop")
	}

	count, err := tp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 camera plotted, got %d", count)
	}

	for _, name := range []string{
		"plots/run/cam-east_density.png",
		"plots/run/cam-east_flow.png",
		"plots/run/cam-east_people.png",
	} {
		if !memfs.Exists(name) {
			t.Errorf("expected plot file %s", name)
			continue
		}
		data, err := memfs.ReadFile(name)
		if err != nil {
			t.Errorf("read %s: %v", name, err)
			continue
		}
		if len(data) == 0 {
			t.Errorf("plot file %s is empty", name)
		}
	}
}

func TestTrendPlotterMultipleCameras(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	tp := NewTrendPlotter(memfs)

	if err := tp.Start("plots/run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	recordTrendFrames(t, tp, "cam-a", 4)
	recordTrendFrames(t, tp, "cam-b", 4)

	if got := tp.GetSampleCount(); got != 8 {
		t.Errorf("expected 8 recorded frames, got %d", got)
	}

	count, err := tp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 cameras plotted, got %d", count)
	}
}

func TestTrendPlotterSanitizesCameraID(t *testing.T) {
	memfs := fsutil.NewMemoryFileSystem()
	tp := NewTrendPlotter(memfs)

	if err := tp.Start("plots/run"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	recordTrendFrames(t, tp, "cam/../etc passwd", 2)

	if _, err := tp.GeneratePlots(); err != nil {
		t.Fatalf("GeneratePlots: %v", err)
	}

	if !memfs.Exists("plots/run/cam_.._etc_passwd_density.png") {
		t.Error("expected sanitized camera id in plot filename")
	}
}

func TestTrendPlotterIgnoresFramesWhileStopped(t *testing.T) {
	tp := NewTrendPlotter(fsutil.NewMemoryFileSystem())

	if err := tp.RecordFrame(crowd.FrameMetrics{CameraID: "cam-east"}); err != nil {
		t.Fatalf("RecordFrame: %v", err)
	}
	if err := tp.RecordAlert(crowd.Alert{CameraID: "cam-east"}); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}

	if got := tp.GetSampleCount(); got != 0 {
		t.Errorf("expected no frames recorded while stopped, got %d", got)
	}
}

func TestTrendPlotterRequiresOutputDir(t *testing.T) {
	tp := NewTrendPlotter(fsutil.NewMemoryFileSystem())

	if _, err := tp.GeneratePlots(); err == nil {
		t.Error("expected error when no output directory configured")
	}
}

func TestTrendPlotterEmptyRun(t *testing.T) {
	tp := NewTrendPlotter(fsutil.NewMemoryFileSystem())

	if err := tp.Start("plots/run"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	count, err := tp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 plots for empty run, got %d", count)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "20260301_120000" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("plots", "runs/concourse.jsonl")
	if !strings.HasPrefix(dir, "plots/concourse/") {
		t.Errorf("expected replay dir under plots/concourse/, got %q", dir)
	}

	live := MakePlotOutputDir("plots", "")
	if !strings.HasPrefix(live, "plots/live_") {
		t.Errorf("expected live dir under plots/live_, got %q", live)
	}
}
