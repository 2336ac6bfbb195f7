// Package observability holds service-level Prometheus metrics and HTTP instrumentation.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	monitoringGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Name:      "monitoring_running",
		Help:      "1 while samples are being delivered to the detection engine.",
	})
	samplesPrunedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "persistence",
		Name:      "samples_pruned_total",
		Help:      "Number of raw samples removed from the history by retention.",
	})
	lastPruneGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Subsystem: "persistence",
		Name:      "last_prune_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful history prune.",
	})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Control API requests by status code and method.",
	}, []string{"code", "method"})
	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "activity_monitor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Control API request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"code", "method"})
)

func init() {
	prometheus.MustRegister(monitoringGauge, samplesPrunedCounter, lastPruneGauge, httpRequests, httpDuration)
}

// RecordMonitoringRunning updates the monitoring state gauge.
func RecordMonitoringRunning(running bool) {
	if running {
		monitoringGauge.Set(1)
		return
	}
	monitoringGauge.Set(0)
}

// RecordSamplesPruned counts a completed retention pass.
func RecordSamplesPruned(n int64, ts time.Time) {
	samplesPrunedCounter.Add(float64(n))
	if !ts.IsZero() {
		lastPruneGauge.Set(float64(ts.Unix()))
	}
}

// InstrumentHandler wraps next with request counting and latency metrics.
func InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerDuration(httpDuration,
		promhttp.InstrumentHandlerCounter(httpRequests, next))
}
