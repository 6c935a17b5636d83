package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "consumer",
		Name:      "activity_events_applied_total",
		Help:      "Activity change events whose side effects were applied and committed, by event type.",
	}, []string{"event_type"})

	eventsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "consumer",
		Name:      "activity_events_failed_total",
		Help:      "Activity change events left uncommitted after a handler error, by event type.",
	}, []string{"event_type"})

	malformedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "consumer",
		Name:      "malformed_records_total",
		Help:      "Records skipped because they could not be decoded, by topic and reason.",
	}, []string{"topic", "reason"})

	statsInvalidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "consumer",
		Name:      "stats_invalidations_total",
		Help:      "Cached stats summaries dropped in response to activity events, by outcome.",
	}, []string{"outcome"})

	eventAge = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stravasync",
		Subsystem: "consumer",
		Name:      "activity_event_age_seconds",
		Help:      "Delay between publishing an activity event and applying it.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(eventsApplied, eventsFailed, malformedRecords, statsInvalidations, eventAge)
}

func recordApplied(msg Message, now time.Time) {
	eventsApplied.WithLabelValues(msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		eventAge.Observe(now.Sub(msg.Timestamp).Seconds())
	}
}

func recordFailed(msg Message) {
	eventsFailed.WithLabelValues(msg.EventType).Inc()
}

func recordMalformed(topic, reason string) {
	malformedRecords.WithLabelValues(topic, reason).Inc()
}

func recordInvalidation(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	statsInvalidations.WithLabelValues(outcome).Inc()
}
