package detection

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/activitymonitor/internal/domain"
)

const (
	validationMatch = "match"
	validationMiss  = "miss"
	validationError = "error"
	validationStale = "stale"
)

var (
	detectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "detection",
		Name:      "candidates_started_total",
		Help:      "Number of candidate episodes started, by activity.",
	}, []string{"activity"})

	confirmedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "detection",
		Name:      "episodes_confirmed_total",
		Help:      "Number of episodes confirmed and reported to listeners, by activity.",
	}, []string{"activity"})

	abandonedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "detection",
		Name:      "confirmations_abandoned_total",
		Help:      "Number of confirmation deadlines reached with too few validations, by activity.",
	}, []string{"activity"})

	finalizedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "detection",
		Name:      "episodes_finalized_total",
		Help:      "Number of candidates finalized, by activity and whether a log entry was closed.",
	}, []string{"activity", "logged"})

	validationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "detection",
		Name:      "validations_total",
		Help:      "Outcomes of periodic history validations, by activity and outcome.",
	}, []string{"activity", "outcome"})
)

func init() {
	prometheus.MustRegister(detectedCounter, confirmedCounter, abandonedCounter, finalizedCounter, validationCounter)
}

func recordDetected(activity domain.ActivityType) {
	detectedCounter.WithLabelValues(string(activity)).Inc()
}

func recordConfirmed(activity domain.ActivityType) {
	confirmedCounter.WithLabelValues(string(activity)).Inc()
}

func recordAbandoned(activity domain.ActivityType) {
	abandonedCounter.WithLabelValues(string(activity)).Inc()
}

func recordFinalized(activity domain.ActivityType, logged bool) {
	finalizedCounter.WithLabelValues(string(activity), strconv.FormatBool(logged)).Inc()
}

func recordValidation(activity domain.ActivityType, outcome string) {
	validationCounter.WithLabelValues(string(activity), outcome).Inc()
}
