package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviesync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "source_requests_total",
		Help:      "Total requests to upstream sources by source name and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviesync",
		Name:      "source_request_duration_seconds",
		Help:      "Upstream source request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	LoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "loads_total",
		Help:      "Movie list loads by outcome (committed, failed, canceled).",
	}, []string{"outcome"})

	LoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "moviesync",
		Name:      "load_duration_seconds",
		Help:      "Duration of movie list loads that reached the commit gate.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "cache_hits_total",
		Help:      "Total number of search cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "cache_misses_total",
		Help:      "Total number of search cache misses.",
	})

	PersistFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviesync",
		Name:      "persist_failures_total",
		Help:      "Personal record write-backs that failed, by operation.",
	}, []string{"op"})

	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviesync",
		Name:      "sessions_active",
		Help:      "Number of live browsing sessions.",
	})

	WebsocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviesync",
		Name:      "websocket_clients",
		Help:      "Number of connected view update websocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		LoadsTotal,
		LoadDuration,
		CacheHitsTotal,
		CacheMissesTotal,
		PersistFailuresTotal,
		SessionsActive,
		WebsocketClients,
	)
}
