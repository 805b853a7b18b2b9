// Package metrics holds the per-run Prometheus collectors. A run is a short
// cron-style job, so instead of serving /metrics the registry is written once
// at exit in textfile-collector format (node_exporter --collector.textfile).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "json2m3u"

// Metrics is safe for concurrent use. A nil *Metrics discards everything.
type Metrics struct {
	Registry *prometheus.Registry

	entriesLoaded   prometheus.Counter
	entriesSkipped  *prometheus.CounterVec
	probes          *prometheus.CounterVec
	probeDecisions  *prometheus.CounterVec
	probeLatency    prometheus.Histogram
	fetchDuration   prometheus.Gauge
	fetchBytes      prometheus.Gauge
	channelsWritten prometheus.Gauge
	lastSuccess     prometheus.Gauge
}

// New registers a fresh set of collectors on their own registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		entriesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_loaded_total",
			Help: "Channel entries accepted from the source payload.",
		}),
		entriesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "entries_skipped_total",
			Help: "Source payload elements skipped during normalization, by reason.",
		}, []string{"reason"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probes_total",
			Help: "Liveness probes by outcome.",
		}, []string{"outcome"}),
		probeDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "probe_decisions_total",
			Help: "Liveness decisions by policy and result (kept/dropped).",
		}, []string{"policy", "decision"}),
		probeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "probe_duration_seconds",
			Help:    "Liveness probe latency.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10},
		}),
		fetchDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_fetch_duration_seconds",
			Help: "Time spent fetching the source payload.",
		}),
		fetchBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "source_bytes",
			Help: "Size of the decoded source payload.",
		}),
		channelsWritten: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channels_written",
			Help: "Channels in the last written playlist.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful playlist write.",
		}),
	}
	m.Registry.MustRegister(
		m.entriesLoaded, m.entriesSkipped, m.probes, m.probeDecisions, m.probeLatency,
		m.fetchDuration, m.fetchBytes, m.channelsWritten, m.lastSuccess,
	)
	return m
}

func (m *Metrics) ObserveFetch(d time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.fetchDuration.Set(d.Seconds())
	m.fetchBytes.Set(float64(bytes))
}

func (m *Metrics) AddLoaded(n int) {
	if m == nil {
		return
	}
	m.entriesLoaded.Add(float64(n))
}

func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.entriesSkipped.WithLabelValues(reason).Inc()
}

// ObserveProbe records one probe's outcome and latency.
func (m *Metrics) ObserveProbe(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
	m.probeLatency.Observe(latency.Seconds())
}

func (m *Metrics) IncDecision(policy string, kept bool) {
	if m == nil {
		return
	}
	d := "dropped"
	if kept {
		d = "kept"
	}
	m.probeDecisions.WithLabelValues(policy, d).Inc()
}

// MarkWritten records a successful playlist write.
func (m *Metrics) MarkWritten(channels int, at time.Time) {
	if m == nil {
		return
	}
	m.channelsWritten.Set(float64(channels))
	m.lastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry to path atomically. No-op for an empty path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
