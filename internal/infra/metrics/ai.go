package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		aiTokensIn,
		aiTokensOut,
		aiCostCents,
		aiCallsLatencyMs,
		hallucinationWarnings,
	)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCostCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_cost_cents",
			Help: "Total base provider cost in cents per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "AI call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"provider", "model", "success"},
	)

	hallucinationWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_hallucination_warnings_total",
			Help: "Final replies that claimed success while a tool failed.",
		},
	)
)

func ObserveAIUsage(provider, model string, in, out int, baseCents int64, latencyMs int, success bool) {
	p, m := norm(provider), norm(model)
	aiTokensIn.WithLabelValues(p, m).Add(float64(in))
	aiTokensOut.WithLabelValues(p, m).Add(float64(out))
	aiCostCents.WithLabelValues(p, m).Add(float64(baseCents))
	aiCallsLatencyMs.WithLabelValues(p, m, strconv.FormatBool(success)).Observe(float64(latencyMs))
}

func IncHallucinationWarning() { hallucinationWarnings.Inc() }
