package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "outbox",
		Name:      "activity_events_published_total",
		Help:      "Activity change events published to Kafka, by event type.",
	}, []string{"event_type"})

	eventsDeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stravasync",
		Subsystem: "outbox",
		Name:      "activity_events_dead_lettered_total",
		Help:      "Activity change events moved to outbox_dlq after a failed publish, by topic and event type.",
	}, []string{"topic", "event_type"})

	publishBatchEvents = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stravasync",
		Subsystem: "outbox",
		Name:      "publish_batch_events",
		Help:      "Number of activity change events claimed per dispatcher batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
	})

	publishBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "stravasync",
		Subsystem: "outbox",
		Name:      "publish_batch_duration_seconds",
		Help:      "Time to resolve schemas, publish and mark one batch of activity change events.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDeadLettered, publishBatchEvents, publishBatchDuration)
}

func recordPublished(messages []Message) {
	for _, msg := range messages {
		eventsPublished.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDeadLettered(msg Message) {
	eventsDeadLettered.WithLabelValues(msg.Topic, msg.EventType).Inc()
}
