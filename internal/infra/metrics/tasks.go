package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		tasksProcessedTotal,
		taskRetriesTotal,
		tasksDeadLetteredTotal,
		taskDurationMs,
		queueDepth,
	)
}

var (
	tasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_tasks_processed_total",
			Help: "Total tasks processed, labeled by terminal status.",
		},
		[]string{"status"}, // completed | failed | cancelled
	)

	taskRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_task_retries_total",
			Help: "Total task retry requeues.",
		},
	)

	tasksDeadLetteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_tasks_dead_lettered_total",
			Help: "Tasks that exhausted all retries.",
		},
	)

	taskDurationMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_task_duration_ms",
			Help:    "End-to-end task execution duration in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "agent_task_queue_depth",
			Help: "Jobs per queue bucket.",
		},
		[]string{"bucket"}, // waiting | active | delayed
	)
)

func IncTaskProcessed(status string)  { tasksProcessedTotal.WithLabelValues(norm(status)).Inc() }
func IncTaskRetry()                   { taskRetriesTotal.Inc() }
func IncDeadLetter()                  { tasksDeadLetteredTotal.Inc() }
func ObserveTaskDuration(ms float64)  { taskDurationMs.Observe(ms) }
func SetQueueDepth(bucket string, n int) {
	queueDepth.WithLabelValues(norm(bucket)).Set(float64(n))
}
