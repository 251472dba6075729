package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/ports/repository"
)

// NextRun computes the first firing of expr strictly after `after`, in the
// named timezone. Standard 5-field cron expressions. This is the single
// next-run algorithm used by both the in-process scheduler and the
// store-driven poller.
func NextRun(expr, tz string, after time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("cron expression %q: %w", expr, domain.ErrValidation)
	}
	loc := locationOrUTC(tz)
	return sched.Next(after.In(loc)), nil
}

func locationOrUTC(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// tzSchedule evaluates an inner schedule in a fixed location, so one cron
// runner can serve tasks across tenant timezones.
type tzSchedule struct {
	inner cron.Schedule
	loc   *time.Location
}

func (s tzSchedule) Next(t time.Time) time.Time { return s.inner.Next(t.In(s.loc)) }

// CronScheduler registers recurring triggers for scheduled tasks. Each
// firing enqueues the task at its configured priority and recomputes
// next_run_at, which also feeds the poller's restart-resilient path.
type CronScheduler struct {
	runner  *cron.Cron
	tasks   repository.TaskRepository
	queue   *Queue
	log     *zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

func NewCronScheduler(tasks repository.TaskRepository, queue *Queue, logger *zerolog.Logger) *CronScheduler {
	l := logger.With().Str("component", "CronScheduler").Logger()
	return &CronScheduler{
		runner:  cron.New(),
		tasks:   tasks,
		queue:   queue,
		log:     &l,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
	}
}

func (s *CronScheduler) Start() { s.runner.Start() }
func (s *CronScheduler) Stop()  { <-s.runner.Stop().Done() }

// ScheduleCron validates the expression, persists the first next_run_at
// and registers the recurring trigger. Re-scheduling a task replaces its
// previous trigger.
func (s *CronScheduler) ScheduleCron(ctx context.Context, taskID, expr, tz string) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("cron expression %q: %w", expr, domain.ErrValidation)
	}
	loc := locationOrUTC(tz)

	next := sched.Next(s.now().In(loc))
	if err := s.tasks.SetNextRun(ctx, repository.NoTX, taskID, next, time.Time{}); err != nil {
		return err
	}

	s.mu.Lock()
	if old, ok := s.entries[taskID]; ok {
		s.runner.Remove(old)
	}
	id := s.runner.Schedule(tzSchedule{inner: sched, loc: loc}, cron.FuncJob(func() {
		s.fire(taskID, sched, loc)
	}))
	s.entries[taskID] = id
	s.mu.Unlock()

	s.log.Info().Str("task_id", taskID).Str("cron", expr).Str("tz", tz).Time("next_run", next).Msg("cron trigger registered")
	return nil
}

// restoreBatch bounds the startup template load.
const restoreBatch = 1000

// Restore registers triggers for every scheduled template already in the
// store, so recurring tasks survive a process restart. A template with a
// broken expression is skipped, not fatal.
func (s *CronScheduler) Restore(ctx context.Context) error {
	templates, err := s.tasks.ListScheduled(ctx, repository.NoTX, restoreBatch)
	if err != nil {
		return err
	}
	restored := 0
	for _, t := range templates {
		if err := s.ScheduleCron(ctx, t.ID, t.CronExpr, t.Timezone); err != nil {
			s.log.Warn().Err(err).Str("task_id", t.ID).Str("cron", t.CronExpr).Msg("trigger restore skipped")
			continue
		}
		restored++
	}
	s.log.Info().Int("restored", restored).Int("templates", len(templates)).Msg("cron triggers restored")
	return nil
}

// Unschedule removes a task's recurring trigger.
func (s *CronScheduler) Unschedule(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[taskID]; ok {
		s.runner.Remove(id)
		delete(s.entries, taskID)
	}
}

func (s *CronScheduler) fire(taskID string, sched cron.Schedule, loc *time.Location) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	task, err := s.tasks.FindByID(ctx, repository.NoTX, taskID)
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("cron firing: task load failed")
		return
	}

	// Each firing spawns an independent run so the recurring template
	// never transitions out of a terminal status.
	run := task.NewRun()
	if err := s.tasks.Create(ctx, repository.NoTX, run); err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("cron firing: run create failed")
		return
	}
	if _, err := s.queue.Enqueue(ctx, run.ID, run.Priority, 0); err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Str("run_id", run.ID).Msg("cron firing: enqueue failed")
		return
	}

	now := s.now()
	if err := s.tasks.SetNextRun(ctx, repository.NoTX, taskID, sched.Next(now.In(loc)), now); err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("cron firing: next-run update failed")
	}
}
