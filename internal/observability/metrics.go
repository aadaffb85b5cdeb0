package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	clientRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Total submitted requests by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)
	clientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "driftkv",
			Subsystem: "client",
			Name:      "request_duration_seconds",
			Help:      "Request round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	clientStaleResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "client",
			Name:      "stale_responses_total",
			Help:      "Responses discarded because their request already timed out.",
		},
	)
	clientDisconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "client",
			Name:      "disconnects_total",
			Help:      "Sessions terminated by transport failure.",
		},
	)
	simFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "driftkv",
			Subsystem: "sim",
			Name:      "frames_total",
			Help:      "Frames handled by the protocol simulator, by message code.",
		},
		[]string{"code"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			clientRequests,
			clientDuration,
			clientStaleResponses,
			clientDisconnects,
			simFrames,
		)
	})
}

func RecordClientRequest(op, outcome string, duration time.Duration) {
	RegisterMetrics()
	clientRequests.WithLabelValues(op, outcome).Inc()
	clientDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordClientStaleResponse() {
	RegisterMetrics()
	clientStaleResponses.Inc()
}

func RecordClientDisconnect() {
	RegisterMetrics()
	clientDisconnects.Inc()
}

func RecordSimFrame(code byte) {
	RegisterMetrics()
	simFrames.WithLabelValues(fmt.Sprintf("0x%02x", code)).Inc()
}
