package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gloser_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gloser_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gloser_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome.",
		},
		[]string{"outcome"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gloser_pipeline_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage.",
			Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	SourceLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gloser_source_lookups_total",
			Help: "Total number of source lookups dispatched.",
		},
		[]string{"source", "status"},
	)

	SourceLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gloser_source_lookup_duration_seconds",
			Help:    "Source lookup duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceLookupsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gloser_source_lookups_active",
			Help: "Number of lookups currently running per source.",
		},
		[]string{"source"},
	)

	SourcesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gloser_sources_registered",
			Help: "Number of source workers registered in the pool.",
		},
	)

	LookupCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gloser_lookup_cache_total",
			Help: "Lookup cache reads by result (hit, miss, error).",
		},
		[]string{"source", "result"},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gloser_llm_calls_total",
			Help: "Total number of language model completions.",
		},
		[]string{"provider", "status"},
	)

	LLMLockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gloser_llm_lock_wait_seconds",
			Help:    "Time spent waiting for a serialized language model handle.",
			Buckets: []float64{.001, .01, .1, 1, 5, 30, 120},
		},
	)

	PlannerFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gloser_planner_fallbacks_total",
			Help: "Plans that could not be parsed and degraded to an empty plan.",
		},
	)

	MemoryCompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gloser_memory_compactions_total",
			Help: "Total number of session history compactions.",
		},
	)

	MemorySessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gloser_memory_sessions",
			Help: "Number of live conversation sessions.",
		},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gloser_rate_limited_total",
			Help: "Requests rejected by the query rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PipelineRunsTotal,
		PipelineStageDuration,
		SourceLookupsTotal,
		SourceLookupDuration,
		SourceLookupsActive,
		SourcesRegistered,
		LookupCacheTotal,
		LLMCallsTotal,
		LLMLockWait,
		PlannerFallbacksTotal,
		MemoryCompactionsTotal,
		MemorySessions,
		RateLimitedTotal,
	)
}
