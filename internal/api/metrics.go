package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_console_http_requests_total",
		Help: "Total HTTP requests processed by the relay",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bot_console_http_request_duration_seconds",
		Help:    "HTTP request duration; streaming routes record their full lifetime",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)
