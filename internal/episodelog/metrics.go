package episodelog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entriesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Subsystem: "episode_log",
		Name:      "entries",
		Help:      "Number of episodes currently held in the log.",
	})

	saveFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "episode_log",
		Name:      "save_failures_total",
		Help:      "Number of background snapshot saves that failed.",
	})

	lastSavedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Subsystem: "episode_log",
		Name:      "last_saved_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful snapshot save.",
	})
)

func init() {
	prometheus.MustRegister(entriesGauge, saveFailureCounter, lastSavedGauge)
}

func recordEntries(n int) {
	entriesGauge.Set(float64(n))
}

func recordSaveFailure() {
	saveFailureCounter.Inc()
}

func recordSaved(ts time.Time) {
	lastSavedGauge.Set(float64(ts.Unix()))
}
