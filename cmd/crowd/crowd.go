package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/crowd.report/internal/config"
	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/crowd/monitor"
	"github.com/banshee-data/crowd.report/internal/crowd/network"
	"github.com/banshee-data/crowd.report/internal/crowd/sink"
	sqlite "github.com/banshee-data/crowd.report/internal/crowd/storage/sqlite"
	"github.com/banshee-data/crowd.report/internal/db"
	"github.com/banshee-data/crowd.report/internal/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Main
func main() {
	// Load .env before the flag set is declared so file values seed the flag
	// defaults. Explicit flags still win over the environment.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	// Subcommands peel off before the daemon flag set parses.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			ms := flag.NewFlagSet("migrate", flag.ExitOnError)
			dbPath := ms.String("db", getEnv("CROWD_DB", "crowd.db"), "Path to the SQLite database file")
			ms.Parse(os.Args[2:])
			db.RunMigrateCommand(ms.Args(), *dbPath)
			return
		case "version":
			fmt.Printf("crowd-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
			return
		}
	}

	var (
		listen      = flag.String("listen", getEnv("CROWD_LISTEN", ":8080"), "HTTP listen address")
		udpPort     = flag.Int("udp-port", getEnvInt("CROWD_UDP_PORT", 4011), "UDP port to listen for detection samples")
		udpAddress  = flag.String("udp-addr", getEnv("CROWD_UDP_ADDR", ""), "UDP bind address (default: listen on all interfaces)")
		rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
		logInterval = flag.Int("log-interval", 60, "Packet statistics logging interval in seconds")
		dbFile      = flag.String("db", getEnv("CROWD_DB", "crowd.db"), "Path to the SQLite database file (empty: run without persistence)")
		autoMigrate = flag.Bool("auto-migrate", getEnvBool("CROWD_AUTO_MIGRATE", false), "Apply pending database migrations on startup")
		record      = flag.Bool("record", true, "Persist per-sample frame metrics to the database")
		tuningPath  = flag.String("tuning", getEnv("CROWD_TUNING", ""), "Path to the JSON tuning file (optional)")
		camerasPath = flag.String("cameras", getEnv("CROWD_CAMERAS", ""), "Path to the camera registry JSON file (optional)")
		natsURL     = flag.String("nats", getEnv("NATS_URL", ""), "NATS server URL for alert publishing (empty: disabled)")
		diag        = flag.Bool("diag", getEnvBool("CROWD_DIAG", false), "Enable diagnostic logging")
		trace       = flag.Bool("trace", getEnvBool("CROWD_TRACE", false), "Enable per-sample trace logging (very noisy)")
		showVersion = flag.Bool("version", false, "Print version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("crowd-report %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	writers := crowd.LogWriters{Ops: os.Stderr}
	if *diag {
		writers.Diag = os.Stderr
	}
	if *trace {
		writers.Trace = os.Stderr
	}
	crowd.SetLogWriters(writers)

	// Construct UDP listen address
	var udpListenAddr string
	if *udpAddress == "" {
		udpListenAddr = fmt.Sprintf(":%d", *udpPort)
	} else {
		udpListenAddr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
	}

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

	ec := crowd.EngineConfig{
		Config:   engineConfig,
		Registry: registry,
	}

	// Open the database unless persistence is disabled. The migration check
	// refuses to run against an out-of-date schema unless -auto-migrate is set.
	var (
		database     *db.DB
		metricsStore *sqlite.MetricsStore
		alertStore   *sqlite.AlertStore
	)
	if *dbFile != "" {
		database, err = db.NewDBWithMigrationCheck(*dbFile, *autoMigrate)
		if err != nil {
			log.Fatalf("Failed to connect to crowd database: %v", err)
		}
		defer database.Close()

		recorder := sqlite.NewRecorder(database.DB)
		metricsStore = recorder.Metrics
		alertStore = recorder.Alerts
		if *record {
			ec.Recorder = recorder
		}

		// Persist the registry so stored metrics and alerts join to camera
		// locations without the deployment file at hand.
		cameraStore := sqlite.NewCameraStore(database.DB)
		for _, meta := range registry.Cameras() {
			if err := cameraStore.Upsert(meta); err != nil {
				log.Printf("Failed to persist camera %s: %v", meta.CameraID, err)
			}
		}
	}

	// Alert sinks: the ops log always; NATS when a URL is configured; the
	// store sink only when the recorder is not already persisting alerts.
	sinks := []crowd.AlertSink{sink.LogSink{}}
	if *natsURL != "" {
		natsSink, err := sink.NewNATSSink(sink.NATSConfig{URL: *natsURL})
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer natsSink.Close()
		sinks = append(sinks, natsSink)
	}
	if alertStore != nil && !*record {
		sinks = append(sinks, sink.NewStoreSink(alertStore))
	}
	ec.Sink = sink.NewMultiSink(sinks...)

	engine, err := crowd.NewEngine(ec)
	if err != nil {
		log.Fatalf("Failed to create analytics engine: %v", err)
	}
	defer engine.Stop()

	stats := monitor.NewPacketStats()

	listener := network.NewUDPListener(network.UDPListenerConfig{
		Address:     udpListenAddr,
		RcvBuf:      *rcvBuf,
		LogInterval: time.Duration(*logInterval) * time.Second,
		Stats:       stats,
		Handler:     engine,
	})

	// Create a wait group for the HTTP server and UDP listener routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start UDP listener routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener error: %v", err)
		}
		log.Print("UDP listener routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *listen,
			Engine:  engine,
			Stats:   stats,
			Metrics: metricsStore,
			Alerts:  alertStore,
			DB:      database,
			UDPPort: *udpPort,
		})
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server error: %v", err)
		}
		log.Print("web server routine terminated")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
