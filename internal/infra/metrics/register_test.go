package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMustRegisterExposesCollectors(t *testing.T) {
	MustRegister()
	MustRegister() // idempotent, must not panic on a second call

	IncTaskProcessed("completed")
	IncDeadLetter()
	SetQueueDepth("waiting", 3)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, name := range []string{
		"agent_tasks_processed_total",
		"agent_tasks_dead_lettered_total",
		"agent_task_queue_depth",
	} {
		if !found[name] {
			t.Errorf("metric family %s not gathered after registration", name)
		}
	}
}
