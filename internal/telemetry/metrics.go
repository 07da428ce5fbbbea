// Package telemetry holds the Prometheus metrics and the OpenTelemetry
// tracer setup shared by the simulation passes.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass names used as the "pass" label.
const (
	PassPre  = "prepass"
	PassMain = "mainpass"
	PassReco = "reco"
)

// Metrics records simulation run statistics on its own registry, so several
// runs in one process (tests, mostly) do not collide.
type Metrics struct {
	registry *prometheus.Registry

	passDuration *prometheus.HistogramVec
	graphNodes   prometheus.Gauge
	graphEdges   prometheus.Gauge
	voxels       prometheus.Counter
	samples      prometheus.Counter
	lossyRuns    prometheus.Counter
	cacheLookups *prometheus.CounterVec
	runs         *prometheus.CounterVec
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		passDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdgsim",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of each simulation pass",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"pass"}),
		graphNodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdgsim",
			Subsystem: "graph",
			Name:      "nodes",
			Help:      "Nodes in the last computed graph",
		}),
		graphEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "pdgsim",
			Subsystem: "graph",
			Name:      "edges",
			Help:      "Edges in the last computed graph",
		}),
		voxels: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pdgsim",
			Name:      "voxels_simulated_total",
			Help:      "Voxels replayed by the main-pass",
		}),
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pdgsim",
			Name:      "samples_total",
			Help:      "ADC samples produced",
		}),
		lossyRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pdgsim",
			Name:      "lossy_runs_total",
			Help:      "Runs whose graph exceeded its state budget",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdgsim",
			Subsystem: "graph_cache",
			Name:      "lookups_total",
			Help:      "Graph store lookups by result",
		}, []string{"result"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdgsim",
			Name:      "runs_total",
			Help:      "Simulation runs by status",
		}, []string{"status"}),
	}
}

// ObservePass records the duration of one pass.
func (m *Metrics) ObservePass(pass string, d time.Duration) {
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// ObserveGraph records the size of a graph.
func (m *Metrics) ObserveGraph(nodes, edges int) {
	m.graphNodes.Set(float64(nodes))
	m.graphEdges.Set(float64(edges))
}

// ObserveTrace records the work done by one main-pass.
func (m *Metrics) ObserveTrace(voxels, samples int, lossy bool) {
	m.voxels.Add(float64(voxels))
	m.samples.Add(float64(samples))
	if lossy {
		m.lossyRuns.Inc()
	}
}

// ObserveCache records a graph store lookup.
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveRun records the outcome of a run.
func (m *Metrics) ObserveRun(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(status).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
