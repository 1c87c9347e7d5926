package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swdee/go-objcount/count"
	"github.com/swdee/go-objcount/source"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frame processing counters
	FramesProcessed atomic.Uint64
	FramesSkipped   atomic.Uint64
	Detections      atomic.Uint64
	TrackedDets     atomic.Uint64

	// Run counters
	RunsCompleted atomic.Uint64
	RunsFailed    atomic.Uint64

	// Latency of the last processed frame
	FrameLatencyMs atomic.Uint64

	// Live stream clients
	ActiveClients atomic.Int64
	TotalClients  atomic.Uint64

	// objects holds the current count per class
	objects *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		objects: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "objcount_objects",
			Help: "Distinct tracked objects counted per class",
		}, []string{"class"}),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) registerPrometheusMetrics() {

	gauges := []struct {
		name string
		help string
		fn   func() float64
	}{
		{"objcount_frames_processed_total", "Total frames processed",
			func() float64 { return float64(m.FramesProcessed.Load()) }},
		{"objcount_frames_skipped_total", "Frames passed through after a detector failure",
			func() float64 { return float64(m.FramesSkipped.Load()) }},
		{"objcount_detections_total", "Detections of requested classes",
			func() float64 { return float64(m.Detections.Load()) }},
		{"objcount_tracked_detections_total", "Detections carrying a track id",
			func() float64 { return float64(m.TrackedDets.Load()) }},
		{"objcount_runs_completed_total", "Runs finished successfully",
			func() float64 { return float64(m.RunsCompleted.Load()) }},
		{"objcount_runs_failed_total", "Runs finished with an error",
			func() float64 { return float64(m.RunsFailed.Load()) }},
		{"objcount_frame_latency_ms", "Processing time of the last frame in milliseconds",
			func() float64 { return float64(m.FrameLatencyMs.Load()) }},
		{"objcount_stream_active_clients", "Number of connected stream clients",
			func() float64 { return float64(m.ActiveClients.Load()) }},
		{"objcount_stream_clients_total", "Total stream clients connected",
			func() float64 { return float64(m.TotalClients.Load()) }},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.fn))
	}

	m.registry.MustRegister(m.objects)
}

// ObserveFrame records a processed frame and how long it took
func (m *Metrics) ObserveFrame(f *source.Frame, took time.Duration) {

	m.FramesProcessed.Add(1)
	m.FrameLatencyMs.Store(uint64(took.Milliseconds()))

	if f.Err != nil {
		m.FramesSkipped.Add(1)
	}

	m.Detections.Add(uint64(len(f.Records)))

	for _, r := range f.Records {
		if r.Tracked {
			m.TrackedDets.Add(1)
		}
	}
}

// ObserveRun records the outcome of a run
func (m *Metrics) ObserveRun(err error) {
	if err != nil {
		m.RunsFailed.Add(1)
		return
	}
	m.RunsCompleted.Add(1)
}

// SetCounts replaces the per class object gauges
func (m *Metrics) SetCounts(counts count.Counts) {

	m.objects.Reset()

	for class, n := range counts {
		m.objects.WithLabelValues(class).Set(float64(n))
	}
}

// ClientConnected tracks a new stream client, the returned func marks it
// disconnected
func (m *Metrics) ClientConnected() func() {

	m.ActiveClients.Add(1)
	m.TotalClients.Add(1)

	return func() {
		m.ActiveClients.Add(-1)
	}
}

// Registry exposes the collectors for tests and custom handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
