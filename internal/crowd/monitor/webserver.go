package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
	sqlite "github.com/banshee-data/crowd.report/internal/crowd/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/db"
	"github.com/banshee-data/crowd.report/internal/httputil"
	"github.com/banshee-data/crowd.report/internal/units"
	"github.com/banshee-data/crowd.report/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// maxIngestBodyBytes caps the request body accepted on the sample ingest
// endpoint. Matches the UDP listener's datagram cap.
const maxIngestBodyBytes = 1 << 20

// WebServer handles the HTTP interface for the crowd analytics engine.
// It serves the status page, the JSON API and the debug chart pages.
type WebServer struct {
	address   string
	engine    *crowd.Engine
	stats     *PacketStats
	metrics   *sqlite.MetricsStore
	alerts    *sqlite.AlertStore
	db        *db.DB
	udpPort   int
	startedAt time.Time
	server    *http.Server
}

// WebServerConfig contains configuration options for the web server.
// Engine is required; Stats, the stores and DB are optional and gate the
// endpoints that need them. When DB is set the tailsql console and backup
// download are mounted under /debug/.
type WebServerConfig struct {
	Address string
	Engine  *crowd.Engine
	Stats   *PacketStats
	Metrics *sqlite.MetricsStore
	Alerts  *sqlite.AlertStore
	DB      *db.DB
	UDPPort int
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   config.Address,
		engine:    config.Engine,
		stats:     config.Stats,
		metrics:   config.Metrics,
		alerts:    config.Alerts,
		db:        config.DB,
		udpPort:   config.UDPPort,
		startedAt: time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("GET /api/healthz", ws.handleHealthz)
	mux.HandleFunc("GET /api/cameras", ws.handleCameras)
	mux.HandleFunc("GET /api/cameras/{id}/metrics", ws.handleCameraMetrics)
	mux.HandleFunc("GET /api/cameras/{id}/forecast", ws.handleCameraForecast)
	mux.HandleFunc("GET /api/cameras/{id}/history", ws.handleCameraHistory)
	mux.HandleFunc("GET /api/summary", ws.handleSummary)
	mux.HandleFunc("GET /api/alerts", ws.handleAlerts)
	mux.HandleFunc("POST /api/alerts/{id}/resolve", ws.handleResolveAlert)
	mux.HandleFunc("POST /api/samples", ws.handleIngestSample)

	// JSON chart data endpoints (consumed by external dashboards)
	mux.HandleFunc("GET /api/charts/trend", ws.handleTrendData)
	mux.HandleFunc("GET /api/charts/occupancy", ws.handleOccupancyData)
	mux.HandleFunc("GET /api/charts/traffic", ws.handleTrafficData)

	// Rendered chart pages (debugging, no auth)
	mux.HandleFunc("GET /charts", ws.handleChartsDashboard)
	mux.HandleFunc("GET /charts/trend", ws.handleTrendChart)
	mux.HandleFunc("GET /charts/occupancy", ws.handleOccupancyHeatmapChart)
	mux.HandleFunc("GET /charts/traffic", ws.handleTrafficChart)

	// mount the admin debugging routes (tailsql console, backup download)
	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealthz reports service liveness plus build and fleet information.
func (ws *WebServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(ws.startedAt)
	if ws.stats != nil {
		uptime = ws.stats.GetUptime()
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"status":         "ok",
		"service":        "crowd-report",
		"version":        version.Version,
		"git_sha":        version.GitSHA,
		"uptime":         uptime.Round(time.Second).String(),
		"active_cameras": len(ws.engine.Snapshots()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCameras returns the list of active cameras with headline numbers.
func (ws *WebServer) handleCameras(w http.ResponseWriter, r *http.Request) {
	snaps := ws.engine.Snapshots()

	type cameraSummary struct {
		CameraID         string            `json:"camera_id"`
		Location         string            `json:"location,omitempty"`
		FrameWidth       int               `json:"frame_width"`
		FrameHeight      int               `json:"frame_height"`
		PeopleCount      int               `json:"people_count"`
		Density          float64           `json:"density"`
		CongestionLevel  float64           `json:"congestion_level"`
		Pattern          crowd.FlowPattern `json:"pattern"`
		ActiveAlerts     int               `json:"active_alerts"`
		SamplesProcessed uint64            `json:"samples_processed"`
		LastSample       string            `json:"last_sample"`
	}

	summaries := make([]cameraSummary, 0, len(snaps))
	for _, snap := range snaps {
		meta, _ := ws.engine.Registry().Lookup(snap.CameraID)
		fw, fh := meta.FrameDims()
		summaries = append(summaries, cameraSummary{
			CameraID:         snap.CameraID,
			Location:         snap.Location,
			FrameWidth:       fw,
			FrameHeight:      fh,
			PeopleCount:      snap.Metrics.PeopleCount,
			Density:          snap.Metrics.Density,
			CongestionLevel:  snap.Metrics.CongestionLevel,
			Pattern:          snap.Metrics.Pattern,
			ActiveAlerts:     len(snap.ActiveAlerts),
			SamplesProcessed: snap.SamplesProcessed,
			LastSample:       snap.Metrics.Timestamp.Format(time.RFC3339),
		})
	}
	httputil.WriteJSONOK(w, summaries)
}

// handleCameraMetrics returns one camera's full current snapshot.
// Query params:
//
//	units (optional) - convert velocity for display: units (native), mps,
//	kmph or kph. Physical units assume a square coverage area.
func (ws *WebServer) handleCameraMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := ws.engine.Snapshot(r.PathValue("id"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}

	if target := r.URL.Query().Get("units"); target != "" {
		if !units.IsValid(target) {
			httputil.BadRequest(w, fmt.Sprintf("invalid units %q (valid: %s)", target, units.GetValidUnitsString()))
			return
		}
		meta, _ := ws.engine.Registry().Lookup(snap.CameraID)
		coverage := crowd.ResolveCoverage(0, meta, ws.engine.Config())
		mpu := units.MetersPerUnit(coverage, crowd.FrameUnitSpan)
		snap.Metrics.Velocity = units.ConvertVelocity(snap.Metrics.Velocity, mpu, target)
	}

	httputil.WriteJSONOK(w, snap)
}

// handleCameraForecast returns one camera's current trend forecast.
func (ws *WebServer) handleCameraForecast(w http.ResponseWriter, r *http.Request) {
	snap, err := ws.engine.Snapshot(r.PathValue("id"))
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap.Forecast)
}

// handleCameraHistory returns a camera's retained metrics, oldest first.
// Query params:
//
//	limit (optional) - return only the most recent N frames
//	persisted (optional) - "true" reads from the database instead of memory
func (ws *WebServer) handleCameraHistory(w http.ResponseWriter, r *http.Request) {
	cameraID := r.PathValue("id")

	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 {
			limit = v
		}
	}

	if r.URL.Query().Get("persisted") == "true" {
		if ws.metrics == nil {
			httputil.InternalServerError(w, "no database configured for persisted history")
			return
		}
		if limit == 0 {
			limit = 100
		}
		frames, err := ws.metrics.RecentFrames(cameraID, limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("load persisted history: %v", err))
			return
		}
		// RecentFrames returns newest first; flip to match the live ordering
		for i, j := 0, len(frames)-1; i < j; i, j = i+1, j-1 {
			frames[i], frames[j] = frames[j], frames[i]
		}
		httputil.WriteJSONOK(w, frames)
		return
	}

	history, err := ws.engine.History(cameraID)
	if err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	httputil.WriteJSONOK(w, history)
}

// handleSummary returns the cross-camera aggregate.
func (ws *WebServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, ws.engine.Summary())
}

// handleAlerts returns active alerts across all cameras.
// Query params:
//
//	camera_id (optional) - restrict to one camera
//	persisted (optional) - "true" reads unresolved alerts from the database
func (ws *WebServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	cameraID := r.URL.Query().Get("camera_id")

	if r.URL.Query().Get("persisted") == "true" {
		if ws.alerts == nil {
			httputil.InternalServerError(w, "no database configured for persisted alerts")
			return
		}
		var (
			stored []*sqlite.StoredAlert
			err    error
		)
		if cameraID != "" {
			stored, err = ws.alerts.RecentForCamera(cameraID, 50)
		} else {
			stored, err = ws.alerts.Unresolved()
		}
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("load persisted alerts: %v", err))
			return
		}
		httputil.WriteJSONOK(w, stored)
		return
	}

	alerts := make([]crowd.Alert, 0)
	for _, snap := range ws.engine.Snapshots() {
		if cameraID != "" && snap.CameraID != cameraID {
			continue
		}
		alerts = append(alerts, snap.ActiveAlerts...)
	}
	httputil.WriteJSONOK(w, alerts)
}

// handleResolveAlert marks an active alert inactive in the engine and, when a
// store is configured, records the resolution time.
func (ws *WebServer) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := r.PathValue("id")
	if alertID == "" {
		httputil.BadRequest(w, "missing alert id")
		return
	}

	if !ws.engine.ResolveAlert(alertID) {
		httputil.NotFound(w, fmt.Sprintf("no active alert %s", alertID))
		return
	}

	if ws.alerts != nil {
		if err := ws.alerts.MarkResolved(alertID, time.Now()); err != nil {
			log.Printf("mark alert %s resolved in store: %v", alertID, err)
		}
	}

	httputil.WriteJSONOK(w, map[string]string{"status": "resolved", "alert_id": alertID})
}

// handleIngestSample accepts one detection sample as a JSON body and submits
// it to the engine. Processing is asynchronous, so success means accepted,
// not yet analysed.
func (ws *WebServer) handleIngestSample(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("read body: %v", err))
		return
	}

	var s crowd.Sample
	if err := json.Unmarshal(body, &s); err != nil {
		if ws.stats != nil {
			ws.stats.AddRejected()
		}
		httputil.BadRequest(w, fmt.Sprintf("decode sample: %v", err))
		return
	}

	if err := ws.engine.Submit(s); err != nil {
		if ws.stats != nil {
			ws.stats.AddRejected()
		}
		if errors.Is(err, crowd.ErrEngineStopped) {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}

	if ws.stats != nil {
		ws.stats.AddSample(len(body))
		ws.stats.AddDetections(len(s.Detections))
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":    "accepted",
		"camera_id": s.CameraID,
	})
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	uptime := time.Since(ws.startedAt)
	var stats *StatsSnapshot
	if ws.stats != nil {
		uptime = ws.stats.GetUptime()
		stats = ws.stats.GetLatestSnapshot()
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		HTTPAddress string
		UDPPort     int
		Version     string
		Uptime      string
		Stats       *StatsSnapshot
		Summary     crowd.Summary
		Cameras     []crowd.CameraSnapshot
	}{
		HTTPAddress: ws.address,
		UDPPort:     ws.udpPort,
		Version:     version.Version,
		Uptime:      uptime.Round(time.Second).String(),
		Stats:       stats,
		Summary:     ws.engine.Summary(),
		Cameras:     ws.engine.Snapshots(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}
