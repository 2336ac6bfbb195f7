package overrides

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "overrides",
		Name:      "events_delivered_total",
		Help:      "Number of episode events published to Kafka.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "overrides",
		Name:      "events_failed_total",
		Help:      "Number of episode events that could not be published.",
	}, []string{"event_type"})

	droppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "overrides",
		Name:      "events_dropped_total",
		Help:      "Number of episode events dropped because the publish queue was full.",
	})

	publishDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "activity_monitor",
		Subsystem: "overrides",
		Name:      "publish_duration_seconds",
		Help:      "Time spent resolving the schema and writing one event.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	queueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Subsystem: "overrides",
		Name:      "queue_depth",
		Help:      "Episode events waiting to be published.",
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, droppedCounter, publishDuration, queueDepthGauge)
}
