package adapter

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

// DeadLetterNotifier surfaces retry-exhausted tasks to an operator channel
// for manual follow-up.
type DeadLetterNotifier interface {
	NotifyDeadLetter(ctx context.Context, task *model.Task, lastErr string) error
}
