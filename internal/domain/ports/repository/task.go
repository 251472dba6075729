package repository

import (
	"context"
	"time"

	"tenant-ai-agents/internal/domain/model"
)

// TaskResultFields are the outcome columns written together with a
// terminal status change.
type TaskResultFields struct {
	Result     string
	ErrorMsg   string
	TokensUsed int
	CostCents  int64
	DurationMs int64
}

// TaskRepository is the durable task store. Status writes are guarded by
// the task state machine; an illegal move fails with ErrInvalidTransition.
// Mutual exclusion between workers is the queue's concern, not the store's.
type TaskRepository interface {
	Create(ctx context.Context, tx Tx, t *model.Task) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Task, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.TaskStatus, fields *TaskResultFields) error
	IncrementRetry(ctx context.Context, tx Tx, id string) (int, error)

	// ListDueScheduled returns scheduled tasks whose next_run_at has
	// elapsed; the poller's store-driven cron path.
	ListDueScheduled(ctx context.Context, tx Tx, now time.Time, limit int) ([]*model.Task, error)
	// ListScheduled returns every recurring template with a cron
	// expression, for trigger registration at startup.
	ListScheduled(ctx context.Context, tx Tx, limit int) ([]*model.Task, error)
	SetNextRun(ctx context.Context, tx Tx, id string, nextRun, lastRun time.Time) error
}
