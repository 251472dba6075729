package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

const (
	duePollBatch  = 50
	firingLockTTL = time.Minute
)

// FiringLocker guards a scheduled task's firing slot across instances.
// Satisfied by the redis locker.
type FiringLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// SchedulePoller scans the store for scheduled tasks whose next_run_at has
// elapsed and enqueues a run for them. It is the second, store-driven path
// to firing cron tasks: if the in-process scheduler restarts and loses its
// triggers, due work is still picked up here. The queue's id-level dedup
// absorbs double firings.
type SchedulePoller struct {
	interval time.Duration
	tasks    repository.TaskRepository
	queue    *Queue
	locker   FiringLocker
	log      *zerolog.Logger
	now      func() time.Time
}

// NewSchedulePoller builds a poller. locker may be nil when running a single
// instance; with a locker, only one instance fires each due task.
func NewSchedulePoller(interval time.Duration, tasks repository.TaskRepository, queue *Queue, locker FiringLocker, logger *zerolog.Logger) *SchedulePoller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	l := logger.With().Str("component", "SchedulePoller").Logger()
	return &SchedulePoller{interval: interval, tasks: tasks, queue: queue, locker: locker, log: &l, now: time.Now}
}

// Run loops until ctx is cancelled. Meant to be launched in a goroutine.
func (p *SchedulePoller) Run(ctx context.Context) error {
	p.log.Info().Dur("interval", p.interval).Msg("schedule poller started")
	p.sweep(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("schedule poller stopping")
			return ctx.Err()
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *SchedulePoller) sweep(ctx context.Context) {
	now := p.now()
	due, err := p.tasks.ListDueScheduled(ctx, repository.NoTX, now, duePollBatch)
	if err != nil {
		p.log.Error().Err(err).Msg("due-task scan failed")
		return
	}
	fired := 0
	for _, t := range due {
		if p.fire(ctx, t, now) {
			fired++
		}
	}
	if fired > 0 {
		p.log.Debug().Int("fired", fired).Msg("due scheduled tasks enqueued")
	}
}

func (p *SchedulePoller) fire(ctx context.Context, t *model.Task, now time.Time) bool {
	if p.locker != nil {
		token, err := p.locker.TryLock(ctx, "task_firing:"+t.ID, firingLockTTL)
		if err != nil {
			p.log.Debug().Str("task_id", t.ID).Msg("firing claimed by another instance")
			return false
		}
		defer p.locker.Unlock(ctx, "task_firing:"+t.ID, token)
	}
	run := t.NewRun()
	if err := p.tasks.Create(ctx, repository.NoTX, run); err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("poller: run create failed")
		return false
	}
	if _, err := p.queue.Enqueue(ctx, run.ID, run.Priority, 0); err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Str("run_id", run.ID).Msg("poller: enqueue failed")
		return false
	}
	next, err := NextRun(t.CronExpr, t.Timezone, now)
	if err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("poller: bad cron expression on stored task")
		return false
	}
	if err := p.tasks.SetNextRun(ctx, repository.NoTX, t.ID, next, now); err != nil {
		p.log.Error().Err(err).Str("task_id", t.ID).Msg("poller: next-run update failed")
	}
	return true
}
