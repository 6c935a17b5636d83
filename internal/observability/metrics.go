// Package observability holds the Prometheus collectors shared across packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stravasync"

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity write committed to the store.",
	})

	tokenGrantCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "oauth",
		Name:      "token_grants_total",
		Help:      "Token endpoint calls grouped by grant type and outcome.",
	}, []string{"grant", "outcome"})

	upstreamCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "strava",
		Name:      "requests_total",
		Help:      "Strava API requests grouped by endpoint and HTTP status code.",
	}, []string{"endpoint", "code"})

	syncRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Sync runs grouped by policy and outcome.",
	}, []string{"policy", "outcome"})

	syncWriteCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "activity_writes_total",
		Help:      "Per-activity write outcomes produced by sync runs.",
	}, []string{"op", "status"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "run_duration_seconds",
		Help:      "Wall time of sync runs including remote fetches.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	lastSyncGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful sync run.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, tokenGrantCounter, upstreamCounter,
		syncRunCounter, syncWriteCounter, syncDuration, lastSyncGauge)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordTokenGrant counts a token endpoint call.
func RecordTokenGrant(grant string, err error) {
	tokenGrantCounter.WithLabelValues(grant, outcomeLabel(err)).Inc()
}

// RecordUpstream counts a Strava API response. A zero code marks a transport failure.
func RecordUpstream(endpoint string, code int) {
	label := "transport_error"
	if code > 0 {
		label = statusClass(code)
	}
	upstreamCounter.WithLabelValues(endpoint, label).Inc()
}

// RecordSyncRun observes a completed sync run.
func RecordSyncRun(policy string, started time.Time, err error) {
	syncRunCounter.WithLabelValues(policy, outcomeLabel(err)).Inc()
	syncDuration.Observe(time.Since(started).Seconds())
	if err == nil {
		lastSyncGauge.Set(float64(time.Now().Unix()))
	}
}

// RecordSyncWrite counts one per-activity write outcome.
func RecordSyncWrite(op, status string) {
	syncWriteCounter.WithLabelValues(op, status).Inc()
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
