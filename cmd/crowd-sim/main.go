package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/crowd.report/internal/crowd"
	"github.com/banshee-data/crowd.report/internal/httputil"
)

// person is one simulated individual in normalised frame coordinates.
type person struct {
	x, y   float64
	vx, vy float64
}

// simulator evolves one camera's synthetic crowd, one tick per sample.
type simulator struct {
	scenario string
	rng      *rand.Rand
	peak     int
	ticks    int
	tick     int
	people   []person
}

// defaultPeople returns a per-scenario crowd size that demos the scenario's
/// pattern with the default coverage: steady stays under the density
// threshold, rising crosses it near the end of the run, and queue fits the
// lane without chaining into one cluster.
func defaultPeople(scenario string) int {
	switch scenario {
	case "rising":
		return 90
	case "queue":
		return 16
	default:
		return 40
	}
}

func newSimulator(scenario string, peak, ticks int, rng *rand.Rand) (*simulator, error) {
	s := &simulator{scenario: scenario, rng: rng, peak: peak, ticks: ticks}
	switch scenario {
	case "steady":
		s.people = s.spawnWalkers(peak)
	case "rising":
		start := peak / 10
		if start < 1 {
			start = 1
		}
		s.people = s.spawnWalkers(start)
	case "converging":
		s.people = s.spawnEdgeWalkers(peak)
	case "queue":
		// Lane spacing must exceed the cluster radius or single-link
		// clustering chains the whole queue into a dense cluster.
		capacity := int(laneLength / 0.07)
		if peak > capacity {
			log.Printf("queue lane holds %d people, capping -people %d", capacity, peak)
			peak = capacity
		}
		s.peak = peak
		s.people = s.spawnQueue(peak)
	default:
		return nil, fmt.Errorf("unknown scenario %q (want steady, rising, converging or queue)", scenario)
	}
	return s, nil
}

// laneLength is the length of the queue scenario's diagonal lane, corner to
// corner with a margin. The lane runs diagonally so the line fit sees real
// variance on both axes.
var laneLength = math.Hypot(0.9, 0.9)

func (s *simulator) spawnWalkers(n int) []person {
	people := make([]person, n)
	for i := range people {
		people[i] = person{
			x:  0.05 + 0.9*s.rng.Float64(),
			y:  0.05 + 0.9*s.rng.Float64(),
			vx: (s.rng.Float64() - 0.5) * 0.01,
			vy: (s.rng.Float64() - 0.5) * 0.01,
		}
	}
	return people
}

func (s *simulator) spawnEdgeWalkers(n int) []person {
	people := make([]person, n)
	for i := range people {
		// Place on a random frame edge; velocity is set per tick.
		var p person
		switch s.rng.Intn(4) {
		case 0:
			p = person{x: s.rng.Float64(), y: 0.02}
		case 1:
			p = person{x: s.rng.Float64(), y: 0.98}
		case 2:
			p = person{x: 0.02, y: s.rng.Float64()}
		default:
			p = person{x: 0.98, y: s.rng.Float64()}
		}
		people[i] = p
	}
	return people
}

func (s *simulator) spawnQueue(n int) []person {
	people := make([]person, n)
	spacing := laneLength / float64(n)
	for i := range people {
		along := 0.05 + (float64(i)+0.5)*spacing/math.Sqrt2
		people[i] = person{x: along, y: along}
	}
	return people
}

// step advances the simulation one tick and returns the detection set.
func (s *simulator) step() []crowd.Detection {
	switch s.scenario {
	case "steady":
		s.stepWalkers()
	case "rising":
		s.stepRising()
	case "converging":
		s.stepConverging()
	case "queue":
		s.stepQueue()
	}
	s.tick++

	detections := make([]crowd.Detection, len(s.people))
	for i, p := range s.people {
		detections[i] = crowd.Detection{
			X:          clamp01(p.x),
			Y:          clamp01(p.y),
			Confidence: 0.7 + 0.3*s.rng.Float64(),
		}
	}
	return detections
}

// stepWalkers random-walks every person, bouncing off the frame edges.
func (s *simulator) stepWalkers() {
	for i := range s.people {
		p := &s.people[i]
		p.vx += (s.rng.Float64() - 0.5) * 0.002
		p.vy += (s.rng.Float64() - 0.5) * 0.002
		p.x += p.vx
		p.y += p.vy
		if p.x < 0.02 || p.x > 0.98 {
			p.vx = -p.vx
		}
		if p.y < 0.02 || p.y > 0.98 {
			p.vy = -p.vy
		}
	}
}

// stepRising random-walks the crowd and grows it linearly toward the peak.
func (s *simulator) stepRising() {
	s.stepWalkers()
	start := s.peak / 10
	if start < 1 {
		start = 1
	}
	progress := float64(s.tick+1) / float64(s.ticks)
	target := start + int(progress*float64(s.peak-start))
	for len(s.people) < target {
		s.people = append(s.people, s.spawnWalkers(1)[0])
	}
}

// stepConverging walks everyone toward the frame centre, then mills them
// around it once they arrive so a dense cluster forms.
func (s *simulator) stepConverging() {
	for i := range s.people {
		p := &s.people[i]
		dx := 0.5 - p.x
		dy := 0.5 - p.y
		dist := math.Hypot(dx, dy)
		if dist > 0.04 {
			p.x += 0.02 * dx / dist
			p.y += 0.02 * dy / dist
		} else {
			p.x += (s.rng.Float64() - 0.5) * 0.002
			p.y += (s.rng.Float64() - 0.5) * 0.002
		}
	}
}

// stepQueue crawls the lane forward. The person at the head exits and
// rejoins at the tail, keeping the lane occupancy constant.
func (s *simulator) stepQueue() {
	const crawl = 0.001 / math.Sqrt2
	for i := range s.people {
		p := &s.people[i]
		p.x -= crawl
		p.y -= crawl
		if p.x < 0.04 {
			back := 0.05 + laneLength/math.Sqrt2
			p.x = back
			p.y = back
		}
		// Lateral jitter perpendicular to the lane, small enough to keep the
		// line fit tight.
		j := (s.rng.Float64() - 0.5) * 0.004
		p.x += j
		p.y -= j
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// emitter delivers one encoded sample to the configured destination.
type emitter interface {
	Emit(payload []byte) error
	Close() error
}

type jsonlEmitter struct {
	w io.WriteCloser
}

func (e *jsonlEmitter) Emit(payload []byte) error {
	_, err := e.w.Write(append(payload, '\n'))
	return err
}

func (e *jsonlEmitter) Close() error { return e.w.Close() }

type udpEmitter struct {
	conn *net.UDPConn
}

func (e *udpEmitter) Emit(payload []byte) error {
	_, err := e.conn.Write(payload)
	return err
}

func (e *udpEmitter) Close() error { return e.conn.Close() }

type httpEmitter struct {
	client httputil.HTTPClient
	url    string
}

func (e *httpEmitter) Emit(payload []byte) error {
	resp, err := e.client.Post(e.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (e *httpEmitter) Close() error { return nil }

// nopWriteCloser wraps stdout so the jsonl emitter can close files without
// closing the process's stdout.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func main() {
	scenario := flag.String("scenario", "steady", "Scenario: steady, rising, converging or queue")
	cameras := flag.Int("cameras", 1, "Number of cameras to simulate")
	cameraPrefix := flag.String("camera-prefix", "sim-cam", "Camera ID prefix")
	people := flag.Int("people", 0, "Crowd size (0: scenario default; peak count for the rising scenario)")
	coverage := flag.Float64("coverage", 200, "Camera coverage area in square meters")
	duration := flag.Duration("duration", 2*time.Minute, "Simulated time span")
	interval := flag.Duration("interval", time.Second, "Simulated sample interval")
	realtime := flag.Bool("realtime", false, "Pace emission at the sample interval instead of as fast as possible")
	seed := flag.Int64("seed", 0, "Random seed (0: time-based)")
	target := flag.String("target", "jsonl", "Where to send samples: jsonl, udp or http")
	output := flag.String("output", "-", "JSONL output path for the jsonl target ('-': stdout)")
	udpAddr := flag.String("udp-addr", "localhost:4011", "Daemon address for the udp target")
	httpURL := flag.String("http-url", "http://localhost:8080/api/samples", "Ingest endpoint for the http target")
	flag.Parse()

	if *interval <= 0 {
		log.Fatal("-interval must be positive")
	}
	ticks := int(*duration / *interval)
	if ticks < 1 {
		log.Fatal("-duration must cover at least one -interval")
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	peak := *people
	if peak <= 0 {
		peak = defaultPeople(*scenario)
	}

	var em emitter
	switch *target {
	case "jsonl":
		if *output == "-" {
			em = &jsonlEmitter{w: nopWriteCloser{os.Stdout}}
		} else {
			f, err := os.Create(*output)
			if err != nil {
				log.Fatalf("Could not create output file %s: %v", *output, err)
			}
			em = &jsonlEmitter{w: f}
		}
	case "udp":
		addr, err := net.ResolveUDPAddr("udp", *udpAddr)
		if err != nil {
			log.Fatalf("Failed to resolve UDP address: %v", err)
		}
		conn, err := net.DialUDP("udp", nil, addr)
		if err != nil {
			log.Fatalf("Failed to dial UDP: %v", err)
		}
		em = &udpEmitter{conn: conn}
	case "http":
		em = &httpEmitter{
			client: httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second}),
			url:    *httpURL,
		}
	default:
		log.Fatalf("Invalid target: %s (must be jsonl, udp or http)", *target)
	}
	defer em.Close()

	// One simulator per camera, each with its own stream so cameras differ.
	sims := make([]*simulator, *cameras)
	for i := range sims {
		rng := rand.New(rand.NewSource(*seed + int64(i)))
		sim, err := newSimulator(*scenario, peak, ticks, rng)
		if err != nil {
			log.Fatalf("Failed to set up scenario: %v", err)
		}
		sims[i] = sim
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Scenario %s: %d cameras, %d ticks at %s (seed %d)", *scenario, *cameras, ticks, *interval, *seed)

	start := time.Now().UTC().Truncate(time.Second)
	emitted := 0
	for i := 0; i < ticks; i++ {
		if ctx.Err() != nil {
			log.Printf("Interrupted after %d ticks", i)
			break
		}

		ts := start.Add(time.Duration(i) * *interval)
		for c, sim := range sims {
			sample := crowd.Sample{
				CameraID:             fmt.Sprintf("%s-%d", *cameraPrefix, c+1),
				Timestamp:            ts,
				Detections:           sim.step(),
				CoverageAreaSqMeters: *coverage,
			}
			payload, err := json.Marshal(sample)
			if err != nil {
				log.Fatalf("Failed to encode sample: %v", err)
			}
			if err := em.Emit(payload); err != nil {
				log.Fatalf("Failed to emit sample for %s: %v", sample.CameraID, err)
			}
			emitted++
		}

		if *realtime && i < ticks-1 {
			select {
			case <-ctx.Done():
			case <-time.After(*interval):
			}
		}
	}

	log.Printf("Emitted %d samples", emitted)
}
