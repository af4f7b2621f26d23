package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/fsutil"
	"github.com/banshee-data/crowd.report/internal/security"
)

// TrendPlotter records per-camera metrics over time and renders them as PNG
// time series after a run. It implements crowd.Recorder so it can sit on the
// engine next to (or instead of) the database recorder during replays.
type TrendPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	fs        fsutil.FileSystem

	// samples holds per-camera time series, keyed by camera id.
	samples map[string][]TrendPoint

	// alerts holds per-camera alert marks overlaid on the density plot.
	alerts map[string][]alertMark

	startTime time.Time
}

// TrendPoint is one recorded frame of a camera's trend series.
type TrendPoint struct {
	FrameIdx         int
	Timestamp        time.Time
	Density          float64
	PredictedDensity float64
	Congestion       float64
	Velocity         float64
	PeopleCount      int
}

// alertMark pins an alert to the frame it fired on. Y carries the density at
// that frame so the mark lands on the density line.
type alertMark struct {
	FrameIdx int
	Density  float64
	Severity crowd.Severity
}

// NewTrendPlotter creates a plotter writing through the given filesystem.
// A nil filesystem defaults to the real one.
func NewTrendPlotter(fs fsutil.FileSystem) *TrendPlotter {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &TrendPlotter{
		fs:      fs,
		samples: make(map[string][]TrendPoint),
		alerts:  make(map[string][]alertMark),
	}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/concourse/20260825_101500").
func (tp *TrendPlotter) Start(outputDir string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if err := tp.fs.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	tp.outputDir = outputDir
	tp.enabled = true
	tp.startTime = time.Time{}
	tp.samples = make(map[string][]TrendPoint)
	tp.alerts = make(map[string][]alertMark)
	return nil
}

// Stop disables recording. Call GeneratePlots() to produce output files.
func (tp *TrendPlotter) Stop() {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	tp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (tp *TrendPlotter) IsEnabled() bool {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.enabled
}

// RecordFrame implements crowd.Recorder. Frames arriving while the plotter
// is stopped are ignored.
func (tp *TrendPlotter) RecordFrame(m crowd.FrameMetrics) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return nil
	}
	if tp.startTime.IsZero() {
		tp.startTime = m.Timestamp
	}

	pts := tp.samples[m.CameraID]
	tp.samples[m.CameraID] = append(pts, TrendPoint{
		FrameIdx:    len(pts),
		Timestamp:   m.Timestamp,
		Density:     m.Density,
		Congestion:  m.CongestionLevel,
		Velocity:    m.Velocity,
		PeopleCount: m.PeopleCount,
	})
	return nil
}

// RecordForecast attaches the predicted density to the camera's most recent
// frame. Forecasts arrive right after the frame they were computed from.
func (tp *TrendPlotter) RecordForecast(cameraID string, f crowd.Forecast) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return
	}
	pts := tp.samples[cameraID]
	if len(pts) == 0 {
		return
	}
	pts[len(pts)-1].PredictedDensity = f.PredictedDensity
}

// RecordAlert implements crowd.Recorder. The mark is pinned to the camera's
// most recent recorded frame.
func (tp *TrendPlotter) RecordAlert(a crowd.Alert) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if !tp.enabled {
		return nil
	}
	pts := tp.samples[a.CameraID]
	if len(pts) == 0 {
		return nil
	}
	last := pts[len(pts)-1]
	tp.alerts[a.CameraID] = append(tp.alerts[a.CameraID], alertMark{
		FrameIdx: last.FrameIdx,
		Density:  last.Density,
		Severity: a.Severity,
	})
	return nil
}

// GeneratePlots creates PNG files for each camera, showing density, flow and
// people count over time. Returns the number of cameras plotted and any error.
func (tp *TrendPlotter) GeneratePlots() (int, error) {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}

	if len(tp.samples) == 0 {
		return 0, nil
	}

	// Deterministic camera order so partial failures are reproducible
	var cameras []string
	for id := range tp.samples {
		cameras = append(cameras, id)
	}
	sort.Strings(cameras)

	plotCount := 0
	for _, id := range cameras {
		if err := tp.generateCameraPlots(id, tp.samples[id], tp.alerts[id]); err != nil {
			return plotCount, fmt.Errorf("camera %s: %w", id, err)
		}
		plotCount++
	}

	return plotCount, nil
}

// generateCameraPlots creates plots for one camera: density (with forecast
// and alert marks), flow (velocity and congestion), and people count.
func (tp *TrendPlotter) generateCameraPlots(cameraID string, pts []TrendPoint, marks []alertMark) error {
	if len(pts) == 0 {
		return nil
	}

	sort.Slice(pts, func(a, b int) bool {
		return pts[a].FrameIdx < pts[b].FrameIdx
	})

	pDensity := plot.New()
	pDensity.Title.Text = fmt.Sprintf("%s - Density", cameraID)
	pDensity.X.Label.Text = "Frame"
	pDensity.Y.Label.Text = "People / m2"

	pFlow := plot.New()
	pFlow.Title.Text = fmt.Sprintf("%s - Flow", cameraID)
	pFlow.X.Label.Text = "Frame"
	pFlow.Y.Label.Text = "Level"

	pPeople := plot.New()
	pPeople.Title.Text = fmt.Sprintf("%s - People Count", cameraID)
	pPeople.X.Label.Text = "Frame"
	pPeople.Y.Label.Text = "People"

	densityPts := make(plotter.XYs, 0, len(pts))
	forecastPts := make(plotter.XYs, 0, len(pts))
	velocityPts := make(plotter.XYs, 0, len(pts))
	congestionPts := make(plotter.XYs, 0, len(pts))
	peoplePts := make(plotter.XYs, 0, len(pts))
	for _, s := range pts {
		x := float64(s.FrameIdx)
		densityPts = append(densityPts, plotter.XY{X: x, Y: s.Density})
		// Forecasts only exist once the camera has history
		if s.PredictedDensity > 0 {
			forecastPts = append(forecastPts, plotter.XY{X: x, Y: s.PredictedDensity})
		}
		velocityPts = append(velocityPts, plotter.XY{X: x, Y: s.Velocity})
		congestionPts = append(congestionPts, plotter.XY{X: x, Y: s.Congestion})
		peoplePts = append(peoplePts, plotter.XY{X: x, Y: float64(s.PeopleCount)})
	}

	colors := generateColors(3)

	densityLine, err := plotter.NewLine(densityPts)
	if err != nil {
		return err
	}
	densityLine.Color = colors[0]
	densityLine.Width = vg.Points(1)
	pDensity.Add(densityLine)
	pDensity.Legend.Add("density", densityLine)

	if len(forecastPts) > 0 {
		forecastLine, err := plotter.NewLine(forecastPts)
		if err != nil {
			return err
		}
		forecastLine.Color = colors[1]
		forecastLine.Width = vg.Points(1)
		forecastLine.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		pDensity.Add(forecastLine)
		pDensity.Legend.Add("forecast", forecastLine)
	}

	// Alert marks grouped by severity so each gets one legend entry
	bySeverity := make(map[crowd.Severity]plotter.XYs)
	for _, m := range marks {
		bySeverity[m.Severity] = append(bySeverity[m.Severity], plotter.XY{X: float64(m.FrameIdx), Y: m.Density})
	}
	for _, sev := range []crowd.Severity{crowd.SeverityLow, crowd.SeverityMedium, crowd.SeverityHigh, crowd.SeverityCritical} {
		xys, ok := bySeverity[sev]
		if !ok {
			continue
		}
		scatter, err := plotter.NewScatter(xys)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = severityColor(sev)
		scatter.GlyphStyle.Radius = vg.Points(3)
		pDensity.Add(scatter)
		pDensity.Legend.Add(string(sev), scatter)
	}

	velocityLine, err := plotter.NewLine(velocityPts)
	if err != nil {
		return err
	}
	velocityLine.Color = colors[1]
	velocityLine.Width = vg.Points(1)
	pFlow.Add(velocityLine)
	pFlow.Legend.Add("velocity", velocityLine)

	congestionLine, err := plotter.NewLine(congestionPts)
	if err != nil {
		return err
	}
	congestionLine.Color = colors[2]
	congestionLine.Width = vg.Points(1)
	pFlow.Add(congestionLine)
	pFlow.Legend.Add("congestion", congestionLine)

	peopleLine, err := plotter.NewLine(peoplePts)
	if err != nil {
		return err
	}
	peopleLine.Color = colors[0]
	peopleLine.Width = vg.Points(1)
	pPeople.Add(peopleLine)
	pPeople.Legend.Add("people", peopleLine)

	for _, p := range []*plot.Plot{pDensity, pFlow, pPeople} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	safeID := security.SanitizeFilename(cameraID)

	densityFile := filepath.Join(tp.outputDir, fmt.Sprintf("%s_density.png", safeID))
	if err := tp.savePlot(pDensity, densityFile); err != nil {
		return fmt.Errorf("save density plot: %w", err)
	}

	flowFile := filepath.Join(tp.outputDir, fmt.Sprintf("%s_flow.png", safeID))
	if err := tp.savePlot(pFlow, flowFile); err != nil {
		return fmt.Errorf("save flow plot: %w", err)
	}

	peopleFile := filepath.Join(tp.outputDir, fmt.Sprintf("%s_people.png", safeID))
	if err := tp.savePlot(pPeople, peopleFile); err != nil {
		return fmt.Errorf("save people plot: %w", err)
	}

	return nil
}

// savePlot renders a plot to PNG through the configured filesystem so tests
// can capture output in memory.
func (tp *TrendPlotter) savePlot(p *plot.Plot, path string) error {
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return err
	}
	f, err := tp.fs.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// severityColor maps alert severities onto the scatter mark palette.
func severityColor(sev crowd.Severity) color.Color {
	switch sev {
	case crowd.SeverityCritical:
		return color.RGBA{R: 255, G: 82, B: 82, A: 255}
	case crowd.SeverityHigh:
		return color.RGBA{R: 255, G: 152, B: 0, A: 255}
	case crowd.SeverityMedium:
		return color.RGBA{R: 253, G: 231, B: 37, A: 255}
	default:
		return color.RGBA{R: 110, G: 206, B: 88, A: 255}
	}
}

// GetOutputDir returns the current output directory for plots.
func (tp *TrendPlotter) GetOutputDir() string {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return tp.outputDir
}

// GetSampleCount returns the total number of frames recorded.
func (tp *TrendPlotter) GetSampleCount() int {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	count := 0
	for _, pts := range tp.samples {
		count += len(pts)
	}
	return count
}

// generateColors creates a palette of distinct colors for plot lines.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
// For replay files: plots/<file_basename>/<timestamp>
// For live data: plots/live_<timestamp>
func MakePlotOutputDir(baseDir, sourceFile string) string {
	ts := FormatTimestamp(time.Now())
	if sourceFile != "" {
		base := filepath.Base(sourceFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
