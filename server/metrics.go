package server

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerOnce sync.Once

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyscope_http_requests_total",
			Help: "HTTP requests processed",
		}, []string{"path", "method", "status"},
	)
	analysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyscope_analysis_duration_seconds",
			Help:    "Audio analysis time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)
	analysisFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "keyscope_analysis_failures_total",
			Help: "Total failed analysis requests",
		},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, analysisDuration, analysisFailures)
	})
}
