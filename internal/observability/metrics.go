package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "messages_total", Help: "Inbound messages handled, by conversation state"},
		[]string{"state"},
	)
	MatchesTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridepool", Name: "matches_total", Help: "Total rider pairs matched"})
	MatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ridepool", Name: "match_latency_seconds", Help: "Match search latency in seconds"})
	AddressesRejected = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridepool", Name: "addresses_rejected_total", Help: "Geocode results rejected as too imprecise"})
	SessionsExpired   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridepool", Name: "sessions_expired_total", Help: "Searching sessions reaped by the expiry sweep"})
	SweepFailures     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ridepool", Name: "sweep_failures_total", Help: "Rows the expiry sweep failed to reap"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ridepool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ridepool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
