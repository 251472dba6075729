package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(toolExecutionsTotal, rateLimitDenials, cacheRequests) }

var (
	toolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tool_executions_total",
			Help: "Tool registry dispatches, labeled by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	rateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_rate_limit_denials_total",
			Help: "Admission denials, labeled by check level.",
		},
		[]string{"level"}, // global | tenant | agent
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache lookups by cache name and result.",
		},
		[]string{"cache", "result"}, // hit | miss
	)
)

func IncToolExecution(tool, outcome string) {
	toolExecutionsTotal.WithLabelValues(norm(tool), norm(outcome)).Inc()
}

func IncRateLimitDenial(level string) { rateLimitDenials.WithLabelValues(norm(level)).Inc() }

func IncCacheRequest(cache, result string) {
	cacheRequests.WithLabelValues(norm(cache), norm(result)).Inc()
}
