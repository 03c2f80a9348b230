// Package metrics exposes the Prometheus counters and histograms that
// make the scheduler, sink, and archiver observable in production,
// modeled on the teacher's prometheus wiring.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the process-wide container of JIDL's operational metrics.
type Metrics struct {
	TicksTotal   prometheus.Counter
	ReadsTotal   *prometheus.CounterVec // labels: connection, outcome (ok|error)
	WritesTotal  *prometheus.CounterVec // labels: connection, outcome
	SinkInserts  *prometheus.CounterVec // labels: table, outcome
	ReadDuration *prometheus.HistogramVec

	ConnectionStatus *prometheus.GaugeVec // labels: connection; 1 == CONNECTED
	LastReadAge      *prometheus.GaugeVec // labels: connection; seconds since last successful read

	ArchiverRunsTotal *prometheus.CounterVec // labels: outcome
}

var defaultMetrics *Metrics

// Init constructs and registers every metric under namespace/subsystem
// and installs it as the package default. Safe to call once per
// process; a second call panics via promauto's duplicate-registration
// check, matching the teacher's single-init convention.
func Init(namespace, subsystem string) *Metrics {
	m := &Metrics{
		TicksTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of scheduler ticks processed.",
		}),
		ReadsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_reads_total",
			Help:      "Total number of per-connection read attempts.",
		}, []string{"connection", "outcome"}),
		WritesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_writes_total",
			Help:      "Total number of per-connection write attempts.",
		}, []string{"connection", "outcome"}),
		SinkInserts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sink_inserts_total",
			Help:      "Total number of sink row insertions.",
		}, []string{"table", "outcome"}),
		ReadDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_read_duration_seconds",
			Help:      "Duration of one connection's per-tick read.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2, 3},
		}, []string{"connection"}),
		ConnectionStatus: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_status",
			Help:      "1 if the connection is CONNECTED, 0 otherwise.",
		}, []string{"connection"}),
		LastReadAge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connection_last_read_age_seconds",
			Help:      "Seconds since the connection's last successful read.",
		}, []string{"connection"}),
		ArchiverRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "archiver_runs_total",
			Help:      "Total number of archiver fire events.",
		}, []string{"outcome"}),
	}

	defaultMetrics = m
	return m
}

// Get returns the package default, or a detached, unregistered set of
// metrics if Init was never called -- so callers never need a nil
// check before recording.
func Get() *Metrics {
	if defaultMetrics == nil {
		return newUnregistered()
	}
	return defaultMetrics
}

func newUnregistered() *Metrics {
	return &Metrics{
		TicksTotal:        prometheus.NewCounter(prometheus.CounterOpts{Name: "ticks_total"}),
		ReadsTotal:        prometheus.NewCounterVec(prometheus.CounterOpts{Name: "reads_total"}, []string{"connection", "outcome"}),
		WritesTotal:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "writes_total"}, []string{"connection", "outcome"}),
		SinkInserts:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "sink_inserts_total"}, []string{"table", "outcome"}),
		ReadDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "read_duration_seconds"}, []string{"connection"}),
		ConnectionStatus:  prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "connection_status"}, []string{"connection"}),
		LastReadAge:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "last_read_age_seconds"}, []string{"connection"}),
		ArchiverRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "archiver_runs_total"}, []string{"outcome"}),
	}
}

// Handler returns the promhttp handler serving the default registry,
// for mounting on a diagnostics HTTP listener.
func Handler() http.Handler {
	return promhttp.Handler()
}
