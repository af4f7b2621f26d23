package monitor

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/crowd.report/internal/httputil"
)

// echartsAssetsPrefix is the assets host used by the rendered chart pages.
// Served from the go-echarts CDN so the binary carries no JS assets.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the shared visual-map palette for the heatmap charts.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// cameraParam resolves the camera_id query parameter, falling back to the
// first active camera when the parameter is absent. Returns "" when the
// engine has no cameras at all.
func (ws *WebServer) cameraParam(r *http.Request) string {
	if id := r.URL.Query().Get("camera_id"); id != "" {
		return id
	}
	snaps := ws.engine.Snapshots()
	if len(snaps) == 0 {
		return ""
	}
	return snaps[0].CameraID
}

// handleTrendData returns trend chart data (density, congestion, velocity,
// people count over time) as JSON.
// Query params:
//   - camera_id (optional; defaults to the first active camera)
//   - max_points (optional; default 500) to reduce payload size
func (ws *WebServer) handleTrendData(w http.ResponseWriter, r *http.Request) {
	cameraID := ws.cameraParam(r)
	if cameraID == "" {
		httputil.NotFound(w, "no active cameras")
		return
	}

	maxPoints := 500
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 10 && v <= 5000 {
			maxPoints = v
		}
	}

	history, err := ws.engine.History(cameraID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, PrepareTrendSeries(history, cameraID, maxPoints))
}

// handleOccupancyData returns accumulated hotspot occupancy per grid cell
// as JSON.
// Query params:
//   - camera_id (optional; defaults to the first active camera)
func (ws *WebServer) handleOccupancyData(w http.ResponseWriter, r *http.Request) {
	cameraID := ws.cameraParam(r)
	if cameraID == "" {
		httputil.NotFound(w, "no active cameras")
		return
	}

	history, err := ws.engine.History(cameraID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	httputil.WriteJSONOK(w, PrepareOccupancyHeatmap(history, cameraID, ws.gridSizeFor(cameraID)))
}

// handleTrafficData returns ingest throughput statistics as JSON.
func (ws *WebServer) handleTrafficData(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.NotFound(w, "no ingest stats available")
		return
	}
	httputil.WriteJSONOK(w, PrepareTrafficMetrics(ws.stats.GetLatestSnapshot()))
}

// gridSizeFor resolves the analysis grid size for a camera, honouring any
// per-camera override from the registry.
func (ws *WebServer) gridSizeFor(cameraID string) int {
	cfg := ws.engine.Config()
	if meta, ok := ws.engine.Registry().Lookup(cameraID); ok {
		cfg = meta.Apply(cfg)
	}
	return cfg.GridSize
}

// handleTrendChart renders a line chart (HTML) of a camera's density,
// congestion and velocity history using go-echarts. This is a debugging-only
// endpoint (no auth) for eyeballing trends without an external dashboard.
// Query params:
//   - camera_id (optional; defaults to the first active camera)
//   - max_points (optional; default 500) to reduce payload size
func (ws *WebServer) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	cameraID := ws.cameraParam(r)
	if cameraID == "" {
		httputil.NotFound(w, "no active cameras")
		return
	}

	maxPoints := 500
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 10 && v <= 5000 {
			maxPoints = v
		}
	}

	history, err := ws.engine.History(cameraID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	ts := PrepareTrendSeries(history, cameraID, maxPoints)
	if ts.NumPoints == 0 {
		httputil.NotFound(w, "no history for camera")
		return
	}

	density := make([]opts.LineData, 0, ts.NumPoints)
	congestion := make([]opts.LineData, 0, ts.NumPoints)
	velocity := make([]opts.LineData, 0, ts.NumPoints)
	for i := 0; i < ts.NumPoints; i++ {
		density = append(density, opts.LineData{Value: ts.Density[i]})
		congestion = append(congestion, opts.LineData{Value: ts.Congestion[i]})
		velocity = append(velocity, opts.LineData{Value: ts.Velocity[i]})
	}

	latestPeople := ts.PeopleCount[ts.NumPoints-1]

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Crowd Trend", Theme: "dark", Width: "1200px", Height: "640px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Crowd Trend", Subtitle: fmt.Sprintf("camera=%s points=%d stride=%d people=%d", cameraID, ts.NumPoints, ts.Stride, latestPeople)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "level", NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(ts.Timestamps).
		AddSeries("density", density).
		AddSeries("congestion", congestion).
		AddSeries("velocity", velocity).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render trend chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleOccupancyHeatmapChart renders a coarse occupancy heatmap (as colored
// scatter) using the hotspot counts accumulated over a camera's history.
// Query params:
//   - camera_id (optional; defaults to the first active camera)
func (ws *WebServer) handleOccupancyHeatmapChart(w http.ResponseWriter, r *http.Request) {
	cameraID := ws.cameraParam(r)
	if cameraID == "" {
		httputil.NotFound(w, "no active cameras")
		return
	}

	history, err := ws.engine.History(cameraID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	gridSize := ws.gridSizeFor(cameraID)
	heatmap := PrepareOccupancyHeatmap(history, cameraID, gridSize)
	if len(heatmap.Cells) == 0 {
		httputil.NotFound(w, "no occupancy hotspots recorded")
		return
	}

	// Plot cell centers so the scatter aligns with the analysis grid. The Y
	// axis is flipped so row 0 (top of frame) renders at the top.
	points := make([]opts.ScatterData, 0, len(heatmap.Cells))
	for _, c := range heatmap.Cells {
		x := float64(c.X) + 0.5
		y := float64(gridSize-c.Y) - 0.5
		points = append(points, opts.ScatterData{Value: []interface{}{x, y, c.Value}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Crowd Occupancy Heatmap", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Occupancy Heatmap", Subtitle: fmt.Sprintf("camera=%s frames=%d cells=%d", cameraID, heatmap.NumFrames, heatmap.NumCells)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: gridSize, Name: "grid col", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: gridSize, Name: "grid row", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(heatmap.MaxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("occupancy", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 20}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render heatmap chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrafficChart renders a simple bar chart of sample/detection throughput.
func (ws *WebServer) handleTrafficChart(w http.ResponseWriter, r *http.Request) {
	if ws.stats == nil {
		httputil.NotFound(w, "no ingest stats available")
		return
	}

	snap := ws.stats.GetLatestSnapshot()
	if snap == nil {
		snap = &StatsSnapshot{Timestamp: time.Now()}
	}

	x := []string{"Samples/s", "MB/s", "Detections/s", "Rejected (recent)"}
	y := []opts.BarData{
		{Value: snap.SamplesPerSec},
		{Value: snap.MBPerSec},
		{Value: snap.DetectionsPerSec},
		{Value: snap.RejectedCount},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Ingest Traffic", Subtitle: snap.Timestamp.Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("traffic", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleChartsDashboard renders a simple dashboard with iframes to the debug charts.
func (ws *WebServer) handleChartsDashboard(w http.ResponseWriter, r *http.Request) {
	cameraID := ws.cameraParam(r)
	safeCameraID := html.EscapeString(cameraID)
	qs := ""
	if cameraID != "" {
		qs = "?camera_id=" + url.QueryEscape(cameraID)
	}
	safeQs := html.EscapeString(qs)

	doc := fmt.Sprintf(dashboardHTML, safeCameraID, safeQs)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(doc))
}

// dashboardHTML is the debug chart dashboard. The first verb is the escaped
// camera id, the second the escaped query string appended to each iframe src.
const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
	<meta charset="utf-8">
	<title>Crowd Charts %[1]s</title>
	<style>
		body { background: #1e1e1e; color: #ddd; font-family: monospace; margin: 0; padding: 16px; }
		h1 { font-size: 18px; }
		.row { display: flex; flex-wrap: wrap; gap: 16px; }
		iframe { border: 1px solid #444; background: #111; flex: 1 1 600px; min-height: 680px; }
		a { color: #6ece58; }
	</style>
</head>
<body>
	<h1>Crowd Charts <span>%[1]s</span></h1>
	<p>
		<a href="/">status</a> |
		<a href="/api/charts/trend%[2]s">trend json</a> |
		<a href="/api/charts/occupancy%[2]s">occupancy json</a> |
		<a href="/api/charts/traffic">traffic json</a>
	</p>
	<div class="row">
		<iframe src="/charts/trend%[2]s"></iframe>
		<iframe src="/charts/occupancy%[2]s"></iframe>
		<iframe src="/charts/traffic"></iframe>
	</div>
</body>
</html>
`
