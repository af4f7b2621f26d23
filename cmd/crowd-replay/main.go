package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/crowd/monitor"
	"github.com/banshee-data/crowd.report/internal/crowd/network"
	"github.com/banshee-data/crowd.report/internal/crowd/sink"
	sqlite "github.com/banshee-data/crowd.report/internal/crowd/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/db"
)

// teeRecorder fans recorder callbacks out to every configured recorder, so a
// replay can persist to SQLite and feed the trend plotter at the same time.
type teeRecorder struct {
	recorders []crowd.Recorder
}

func (t *teeRecorder) RecordFrame(m crowd.FrameMetrics) error {
	var firstErr error
	for _, r := range t.recorders {
		if err := r.RecordFrame(m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeRecorder) RecordAlert(a crowd.Alert) error {
	var firstErr error
	for _, r := range t.recorders {
		if err := r.RecordAlert(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeRecorder) RecordForecast(cameraID string, f crowd.Forecast) {
	for _, r := range t.recorders {
		if fr, ok := r.(crowd.ForecastRecorder); ok {
			fr.RecordForecast(cameraID, f)
		}
	}
}

func main() {
	replayFile := flag.String("file", "", "Capture to replay: .jsonl (one sample per line) or .pcap (requires a -tags=pcap build)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0: as fast as possible, 1: realtime, 2: double speed)")
	udpPort := flag.Int("udp-port", 4011, "UDP port filter for pcap replay")
	tuningPath := flag.String("tuning", "", "Path to the JSON tuning file (optional)")
	camerasPath := flag.String("cameras", "", "Path to the camera registry JSON file (optional)")
	dbFile := flag.String("db", "", "Persist frame metrics and alerts to this SQLite database (optional)")
	plotsDir := flag.String("plots", "", "Write per-camera PNG trend plots under this directory (optional)")
	drainTimeout := flag.Duration("drain-timeout", 30*time.Second, "How long to wait for queued samples to finish processing")
	diag := flag.Bool("diag", false, "Enable diagnostic logging")
	trace := flag.Bool("trace", false, "Enable per-sample trace logging")
	flag.Parse()

	if *replayFile == "" {
		log.Fatal("-file is required")
	}

	writers := crowd.LogWriters{Ops: os.Stderr}
	if *diag {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	crowd.SetLogWriters(writers)

	engineConfig, err := config.EngineConfig(*tuningPath)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}

	registry := crowd.NewRegistry()
	if *camerasPath != "" {
		registry, err = crowd.LoadRegistryFile(*camerasPath)
		if err != nil {
			log.Fatalf("Failed to load camera registry: %v", err)
		}
		log.Printf("Loaded %d cameras from %s", registry.Len(), *camerasPath)
	}

	var recorders []crowd.Recorder

	if *dbFile != "" {
		database, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to crowd database: %v", err)
		}
		defer database.Close()
		recorders = append(recorders, sqlite.NewRecorder(database.DB))
		log.Printf("Persisting replay output to %s", *dbFile)
	}

	var plotter *monitor.TrendPlotter
	if *plotsDir != "" {
		plotter = monitor.NewTrendPlotter(nil)
		outputDir := monitor.MakePlotOutputDir(*plotsDir, *replayFile)
		if err := plotter.Start(outputDir); err != nil {
			log.Fatalf("Failed to initialise trend plotter: %v", err)
		}
		recorders = append(recorders, plotter)
		log.Printf("Recording trends for plots in %s", outputDir)
	}

	ec := crowd.EngineConfig{
		Config:   engineConfig,
		Registry: registry,
		Sink:     sink.LogSink{},
	}
	switch len(recorders) {
	case 0:
	case 1:
		ec.Recorder = recorders[0]
	default:
		ec.Recorder = &teeRecorder{recorders: recorders}
	}

	engine, err := crowd.NewEngine(ec)
	if err != nil {
		log.Fatalf("Failed to create analytics engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := monitor.NewPacketStats()

	start := time.Now()
	var submitted int
	switch ext := strings.ToLower(filepath.Ext(*replayFile)); ext {
	case ".jsonl":
		submitted, err = network.ReplayJSONL(ctx, network.ReplayConfig{
			Path:            *replayFile,
			Handler:         engine,
			Stats:           stats,
			SpeedMultiplier: *speed,
		})
	case ".pcap", ".pcapng":
		submitted, err = network.ReadPCAPFile(ctx, *replayFile, *udpPort, engine, stats, *speed)
	default:
		log.Fatalf("unsupported capture type %q (want .jsonl or .pcap)", ext)
	}
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	waitForProcessed(engine, uint64(submitted), *drainTimeout)
	engine.Stop()

	elapsed := time.Since(start)
	rate := float64(submitted) / elapsed.Seconds()
	fmt.Printf("\nReplayed %d samples in %s (%.0f samples/sec)\n",
		submitted, elapsed.Round(time.Millisecond), rate)

	for _, snap := range engine.Snapshots() {
		writeCameraReport(os.Stdout, snap)
	}

	summary := engine.Summary()
	fmt.Printf("\nFleet: %d cameras, %d people, avg density %.3f, avg congestion %.2f\n",
		summary.ActiveCameras, summary.TotalPeople, summary.AverageDensity, summary.AverageCongestion)
	for _, sev := range []crowd.Severity{crowd.SeverityCritical, crowd.SeverityHigh, crowd.SeverityMedium, crowd.SeverityLow} {
		if n := summary.ActiveAlerts[sev]; n > 0 {
			fmt.Printf("  %d %s alerts active\n", n, sev)
		}
	}

	if plotter != nil {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			log.Fatalf("Failed to generate plots: %v", err)
		}
		fmt.Printf("\nWrote plots for %d cameras to %s\n", n, plotter.GetOutputDir())
	}
}

// waitForProcessed polls camera snapshots until every submitted sample has
// either been processed or dropped by queue eviction. Engine.Stop discards
// whatever is still queued, so the report would undercount without this.
func waitForProcessed(engine *crowd.Engine, want uint64, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var settled uint64
		for _, snap := range engine.Snapshots() {
			settled += snap.SamplesProcessed + snap.SamplesDropped
		}
		if settled >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("Warning: drain timeout after %s, report may undercount", timeout)
}

func writeCameraReport(w io.Writer, snap crowd.CameraSnapshot) {
	name := snap.CameraID
	if snap.Location != "" {
		name = fmt.Sprintf("%s (%s)", snap.CameraID, snap.Location)
	}
	fmt.Fprintf(w, "\nCamera %s\n", name)
	fmt.Fprintf(w, "  samples:    %d processed, %d dropped, %d out of order\n",
		snap.SamplesProcessed, snap.SamplesDropped, snap.OutOfOrderDrops)
	fmt.Fprintf(w, "  people:     %d\n", snap.Metrics.PeopleCount)
	fmt.Fprintf(w, "  density:    %.3f\n", snap.Metrics.Density)
	fmt.Fprintf(w, "  velocity:   %.1f units/s  pattern: %s\n", snap.Metrics.Velocity, snap.Metrics.Pattern)
	fmt.Fprintf(w, "  congestion: %.2f\n", snap.Metrics.CongestionLevel)
	if snap.Forecast.SampleCount > 0 {
		fmt.Fprintf(w, "  forecast:   density %.3f, congestion %.2f (confidence %.2f)\n",
			snap.Forecast.PredictedDensity, snap.Forecast.PredictedCongestion, snap.Forecast.Confidence)
		if snap.Forecast.TimeToThresholdMinutes != nil {
			fmt.Fprintf(w, "              critical density in ~%d min\n", *snap.Forecast.TimeToThresholdMinutes)
		}
	}
	if len(snap.ActiveAlerts) > 0 {
		fmt.Fprintf(w, "  alerts:\n")
		for _, a := range snap.ActiveAlerts {
			fmt.Fprintf(w, "    [%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
	}
}
