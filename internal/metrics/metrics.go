package metrics

import (
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Cycle counters
	Cycles            atomic.Uint64
	AcquisitionErrors atomic.Uint64
	DetectionErrors   atomic.Uint64
	CyclePanics       atomic.Uint64

	// Decision counters
	ConditionMet     atomic.Uint64
	BystanderSeen    atomic.Uint64
	AlertsEmitted    atomic.Uint64
	AlertsSuppressed atomic.Uint64
	TestAlerts       atomic.Uint64

	// Side effects
	EvidenceSaved  atomic.Uint64
	EvidenceErrors atomic.Uint64
	SinkErrors     atomic.Uint64

	// Latest values
	overlapRatioBits atomic.Uint64 // math.Float64bits of the last overlap ratio
	CycleLatencyMs   atomic.Uint64
	LastAlertUnix    atomic.Int64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.counter("couch_monitor_cycles_total", "Total sampling cycles run", &m.Cycles)
	m.counter("couch_monitor_acquisition_errors_total", "Cycles abandoned because no frame was available", &m.AcquisitionErrors)
	m.counter("couch_monitor_detection_errors_total", "Cycles abandoned because detection failed", &m.DetectionErrors)
	m.counter("couch_monitor_cycle_panics_total", "Cycles abandoned because a collaborator panicked", &m.CyclePanics)

	m.counter("couch_monitor_condition_met_total", "Cycles where the target rested on the reference", &m.ConditionMet)
	m.counter("couch_monitor_bystander_on_reference_total", "Cycles where a bystander was on the reference", &m.BystanderSeen)
	m.counter("couch_monitor_alerts_total", "Alerts emitted to sinks", &m.AlertsEmitted)
	m.counter("couch_monitor_alerts_suppressed_total", "Alerts suppressed by the cooldown", &m.AlertsSuppressed)
	m.counter("couch_monitor_test_alerts_total", "Synthetic test-mode alerts", &m.TestAlerts)

	m.counter("couch_monitor_evidence_saved_total", "Evidence images written", &m.EvidenceSaved)
	m.counter("couch_monitor_evidence_errors_total", "Evidence images that failed to save", &m.EvidenceErrors)
	m.counter("couch_monitor_sink_errors_total", "Alert sink delivery failures", &m.SinkErrors)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "couch_monitor_overlap_ratio",
			Help: "Overlap ratio observed in the last successful cycle",
		},
		m.OverlapRatio,
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "couch_monitor_cycle_latency_ms",
			Help: "Duration of the last cycle in milliseconds",
		},
		func() float64 { return float64(m.CycleLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "couch_monitor_last_alert_timestamp_seconds",
			Help: "Unix time of the last emitted alert (0 if none)",
		},
		func() float64 { return float64(m.LastAlertUnix.Load()) },
	))
}

// SetOverlapRatio records the latest overlap ratio
func (m *Metrics) SetOverlapRatio(ratio float64) {
	m.overlapRatioBits.Store(math.Float64bits(ratio))
}

// OverlapRatio returns the latest overlap ratio
func (m *Metrics) OverlapRatio() float64 {
	return math.Float64frombits(m.overlapRatioBits.Load())
}

// UpdateCycleLatency records how long the last cycle took
func (m *Metrics) UpdateCycleLatency(duration time.Duration) {
	m.CycleLatencyMs.Store(uint64(duration.Milliseconds()))
}

// RecordAlert counts an emitted alert at t
func (m *Metrics) RecordAlert(t time.Time) {
	m.AlertsEmitted.Add(1)
	m.LastAlertUnix.Store(t.Unix())
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a dedicated metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
