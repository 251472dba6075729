package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"tenant-ai-agents/internal/domain"
)

type TaskKind string

const (
	TaskKindAdhoc      TaskKind = "adhoc"
	TaskKindScheduled  TaskKind = "scheduled"
	TaskKindAutomation TaskKind = "automation"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// allowedTransitions encodes the forward-only task state machine.
// Retries re-queue a task while its stored status stays "queued", so
// queued -> queued is deliberately legal.
var allowedTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending: {TaskStatusQueued, TaskStatusCancelled},
	TaskStatusQueued:  {TaskStatusQueued, TaskStatusRunning, TaskStatusFailed, TaskStatusCancelled},
	TaskStatusRunning: {TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled, TaskStatusQueued},
}

// CanTransition reports whether from -> to is a legal status move.
// Terminal statuses never transition again.
func CanTransition(from, to TaskStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedFrom lists the statuses from which `to` may be entered. The
// postgres repository uses this to guard UPDATE statements.
func AllowedFrom(to TaskStatus) []TaskStatus {
	var out []TaskStatus
	for from, tos := range allowedTransitions {
		for _, t := range tos {
			if t == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Task is one unit of background work executed to completion by an agent.
type Task struct {
	ID          string
	AgentID     string
	TenantID    string
	Title       string
	Description string
	Kind        TaskKind
	Context     map[string]any
	Status      TaskStatus
	Priority    int // 0..10, higher runs first
	RetryCount  int
	MaxRetries  int
	ErrorMsg    string
	Result      string
	TokensUsed  int
	CostCents   int64
	DurationMs  int64
	CronExpr    string
	Timezone    string
	NextRunAt   *time.Time
	LastRunAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewTask(agentID, tenantID, title, description string, kind TaskKind) *Task {
	now := time.Now()
	return &Task{
		ID:          ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		AgentID:     agentID,
		TenantID:    tenantID,
		Title:       title,
		Description: description,
		Kind:        kind,
		Status:      TaskStatusPending,
		Priority:    5,
		MaxRetries:  3,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks invariants that must hold before a task is accepted.
func (t *Task) Validate() error {
	if t.AgentID == "" || t.TenantID == "" {
		return domain.ErrInvalidArgument
	}
	if t.Priority < 0 || t.Priority > 10 {
		return domain.ErrInvalidArgument
	}
	if t.RetryCount > t.MaxRetries {
		return domain.ErrInvalidArgument
	}
	if t.Kind == TaskKindScheduled && t.CronExpr == "" {
		return domain.ErrValidation
	}
	return nil
}

// NewRun clones one firing of a scheduled task into an independent adhoc
// run. The recurring template itself never re-enters the state machine, so
// terminal statuses stay terminal.
func (t *Task) NewRun() *Task {
	run := NewTask(t.AgentID, t.TenantID, t.Title, t.Description, TaskKindAdhoc)
	run.Context = t.Context
	run.Priority = t.Priority
	run.MaxRetries = t.MaxRetries
	run.Timezone = t.Timezone
	return run
}

// IsTerminal reports whether the task has reached a final status.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}
