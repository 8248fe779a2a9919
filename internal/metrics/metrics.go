package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlaysync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "path"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "upstream_requests_total",
		Help:      "Total requests to the comment platform by endpoint and result status.",
	}, []string{"endpoint", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "overlaysync",
		Name:      "upstream_request_duration_seconds",
		Help:      "Comment platform request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	UpstreamAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "overlaysync",
		Name:      "upstream_available",
		Help:      "Whether an upstream endpoint is available (1) or blocked by circuit breaker (0).",
	}, []string{"endpoint"})

	CacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "cache_hits_total",
		Help:      "Total upstream cache hits by kind.",
	}, []string{"kind"})

	CacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "cache_misses_total",
		Help:      "Total upstream cache misses by kind.",
	}, []string{"kind"})

	ResolvedVideosTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "resolved_videos_total",
		Help:      "Videos emitted by the resolution pipeline by strategy.",
	}, []string{"strategy"})

	ResolveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "overlaysync",
		Name:      "resolve_duration_seconds",
		Help:      "Full resolution pipeline duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "overlaysync",
		Name:      "active_sessions",
		Help:      "Number of live overlay sessions.",
	})

	SessionStateTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "session_state_transitions_total",
		Help:      "Overlay session state transitions.",
	}, []string{"from", "to"})

	PaintFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "paint_failures_total",
		Help:      "Render surface paint calls that returned an error.",
	})

	ObserverDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "overlaysync",
		Name:      "observer_dropped_messages_total",
		Help:      "Observer pushes dropped because the hub queue was full.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		UpstreamAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		ResolvedVideosTotal,
		ResolveDuration,
		ActiveSessions,
		SessionStateTransitionsTotal,
		PaintFailuresTotal,
		ObserverDroppedTotal,
	)
}
