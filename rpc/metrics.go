package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "groupbuy",
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Total JSON-RPC requests by method and outcome.",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "groupbuy",
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "JSON-RPC request latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
)

func observeRequest(method, status string, start time.Time) {
	if method == "" {
		method = "unknown"
	}
	requestCounter.WithLabelValues(method, status).Inc()
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
