package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

// JobOutcome is delivered on a job handle's done channel exactly once.
type JobOutcome struct {
	Success bool
	Result  *TaskResult
	Err     error
}

// JobHandle lets a caller await one enqueued task.
type JobHandle interface {
	TaskID() string
	Done() <-chan JobOutcome
}

// TaskQueue is the slice of the queue the bridge needs.
type TaskQueue interface {
	Enqueue(ctx context.Context, taskID string, priority int, delay time.Duration) (JobHandle, error)
}

// WorkflowResult is the synchronous answer handed back to the automation
// engine.
type WorkflowResult struct {
	Success    bool   `json:"success"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	CostCents  int64  `json:"cost_cents"`
	DurationMs int64  `json:"duration_ms"`
}

// WorkflowBridge lets an unrelated automation engine create a task and
// synchronously await the orchestrator's result.
type WorkflowBridge struct {
	tasks  repository.TaskRepository
	agents repository.AgentRepository
	queue  TaskQueue
	log    *zerolog.Logger
}

func NewWorkflowBridge(tasks repository.TaskRepository, agents repository.AgentRepository, queue TaskQueue, logger *zerolog.Logger) *WorkflowBridge {
	l := logger.With().Str("component", "WorkflowBridge").Logger()
	return &WorkflowBridge{tasks: tasks, agents: agents, queue: queue, log: &l}
}

// RunTaskFromWorkflow creates an automation task, enqueues it and blocks
// until it completes, fails terminally, or ctx is cancelled.
func (b *WorkflowBridge) RunTaskFromWorkflow(ctx context.Context, agentID, prompt string, payload map[string]any) (*WorkflowResult, error) {
	agent, err := b.agents.FindByID(ctx, repository.NoTX, agentID)
	if err != nil {
		return nil, err
	}

	task := model.NewTask(agentID, agent.TenantID, "Workflow task", prompt, model.TaskKindAutomation)
	task.Context = payload
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := b.tasks.Create(ctx, repository.NoTX, task); err != nil {
		return nil, err
	}

	handle, err := b.queue.Enqueue(ctx, task.ID, task.Priority, 0)
	if err != nil {
		return nil, err
	}

	b.log.Debug().Str("task_id", task.ID).Str("agent_id", agentID).Msg("workflow task enqueued, awaiting result")
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-handle.Done():
		res := &WorkflowResult{Success: out.Success}
		if out.Result != nil {
			res.Result = out.Result.Result
			res.CostCents = out.Result.CostCents
			res.DurationMs = out.Result.DurationMs
		}
		if out.Err != nil {
			res.Error = out.Err.Error()
		}
		return res, nil
	}
}
