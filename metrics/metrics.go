// Package metrics holds the Prometheus collectors shared by the token
// manager and the QuickBooks client.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokenRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qbbridge_token_requests_total",
			Help: "Total number of calls to the Intuit token endpoint by grant type and result",
		},
		[]string{"grant", "result"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qbbridge_upstream_requests_total",
			Help: "Total number of QuickBooks accounting API requests by operation and status",
		},
		[]string{"op", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qbbridge_upstream_request_duration_seconds",
			Help:    "QuickBooks accounting API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

// ObserveToken records the outcome of a token endpoint call
func ObserveToken(grant string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TokenRequests.WithLabelValues(grant, result).Inc()
}

// ObserveUpstream records an accounting API call; a status of 0 means
// the request failed before a response was received
func ObserveUpstream(op string, status int, start time.Time) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(op, label).Inc()
	UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
