package samplefeed

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	processedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "samplefeed",
		Name:      "samples_processed_total",
		Help:      "Number of sample records successfully handled.",
	}, []string{"topic"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "samplefeed",
		Name:      "handler_errors_total",
		Help:      "Number of handler errors grouped by topic.",
	}, []string{"topic"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "samplefeed",
		Name:      "decode_errors_total",
		Help:      "Number of decode failures per topic.",
	}, []string{"topic"})

	lastSampleGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "activity_monitor",
		Subsystem: "samplefeed",
		Name:      "last_sample_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sample processed per topic.",
	}, []string{"topic"})

	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "activity_monitor",
		Subsystem: "samplefeed",
		Name:      "samples_delivered_total",
		Help:      "Number of samples fanned out to live subscribers.",
	})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, lastSampleGauge, deliveredCounter)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic).Inc()
	if !msg.Sample.RecordedAt.IsZero() {
		lastSampleGauge.WithLabelValues(msg.Topic).Set(float64(msg.Sample.RecordedAt.Unix()))
	}
}

func recordHandlerError(topic string) {
	handlerErrorCounter.WithLabelValues(topic).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

func recordDelivered(n int) {
	deliveredCounter.Add(float64(n))
}
