package worker

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
	"tenant-ai-agents/internal/domain/ports/repository"
	"tenant-ai-agents/internal/infra/metrics"
	"tenant-ai-agents/internal/usecase"
)

// TaskRunner is the orchestrator's task-execution entry point.
type TaskRunner interface {
	ExecuteTask(ctx context.Context, taskID string) (*usecase.TaskResult, error)
}

// Config bounds the queue's concurrency and retry behavior.
type Config struct {
	Workers     int
	BaseBackoff time.Duration // first retry delay, doubled per attempt
	MaxBackoff  time.Duration
	JobTimeout  time.Duration // overall per-job limit
}

func (c *Config) defaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 5 * time.Minute
	}
}

// Stats is a point-in-time snapshot of the queue.
type Stats struct {
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Delayed   int    `json:"delayed"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Paused    bool   `json:"paused"`
}

// job is one in-flight execution of a task. done fires exactly once, on
// the final outcome, never on an intermediate retry.
type job struct {
	taskID   string
	priority int
	readyAt  time.Time
	index    int // position in whichever heap currently holds the job
	active   bool
	removed  bool
	done     chan usecase.JobOutcome
}

func (j *job) TaskID() string                  { return j.taskID }
func (j *job) Done() <-chan usecase.JobOutcome { return j.done }
func (j *job) deliver(out usecase.JobOutcome) {
	select {
	case j.done <- out:
	default:
	}
}

// Queue is a durable-store-backed, priority-ordered dispatcher with delay,
// retry and dead-lettering. Ready jobs dispatch by priority desc (task id
// asc breaking ties, ULIDs being creation-ordered); delayed jobs wait in a
// separate ready-time heap. Jobs are deduplicated by task id so a task
// never runs twice concurrently.
type Queue struct {
	cfg     Config
	tasks   repository.TaskRepository
	runner  TaskRunner
	limiter adapter.RateLimiter
	dead    adapter.DeadLetterNotifier
	pool    *Pool
	log     *zerolog.Logger
	now     func() time.Time
	rnd     *rand.Rand

	mu        sync.Mutex
	ready     readyHeap
	delayed   delayHeap
	inflight  map[string]*job
	paused    bool
	completed uint64
	failed    uint64
	wake      chan struct{}
}

var _ usecase.TaskQueue = (*Queue)(nil)

func NewQueue(
	cfg Config,
	tasks repository.TaskRepository,
	runner TaskRunner,
	limiter adapter.RateLimiter,
	dead adapter.DeadLetterNotifier,
	logger *zerolog.Logger,
) *Queue {
	cfg.defaults()
	l := logger.With().Str("component", "TaskQueue").Logger()
	return &Queue{
		cfg:      cfg,
		tasks:    tasks,
		runner:   runner,
		limiter:  limiter,
		dead:     dead,
		pool:     NewPool(cfg.Workers, logger),
		log:      &l,
		now:      time.Now,
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		inflight: make(map[string]*job),
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the worker pool and the dispatch loop.
func (q *Queue) Start(ctx context.Context) {
	q.pool.Start(ctx)
	go q.dispatch(ctx)
}

func (q *Queue) Stop() { q.pool.Stop() }

// Enqueue marks the task queued and submits a job keyed by task id.
// Resubmitting a task already queued or running returns the existing
// handle instead of creating a duplicate execution.
func (q *Queue) Enqueue(ctx context.Context, taskID string, priority int, delay time.Duration) (usecase.JobHandle, error) {
	q.mu.Lock()
	if existing, ok := q.inflight[taskID]; ok {
		q.mu.Unlock()
		return existing, nil
	}
	q.mu.Unlock()

	task, err := q.tasks.FindByID(ctx, repository.NoTX, taskID)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", taskID, err)
	}
	if task.IsTerminal() {
		return nil, fmt.Errorf("enqueue %s in status %s: %w", taskID, task.Status, domain.ErrInvalidTransition)
	}
	if err := q.tasks.UpdateStatus(ctx, repository.NoTX, taskID, model.TaskStatusQueued, nil); err != nil {
		return nil, err
	}
	if priority < 0 {
		priority = task.Priority
	}

	j := &job{
		taskID:   taskID,
		priority: priority,
		readyAt:  q.now().Add(delay),
		done:     make(chan usecase.JobOutcome, 1),
	}

	q.mu.Lock()
	if existing, ok := q.inflight[taskID]; ok {
		// raced with a concurrent enqueue of the same id
		q.mu.Unlock()
		return existing, nil
	}
	q.inflight[taskID] = j
	if delay > 0 {
		heap.Push(&q.delayed, j)
	} else {
		heap.Push(&q.ready, j)
	}
	q.publishDepth()
	q.mu.Unlock()

	q.poke()
	q.log.Debug().Str("task_id", taskID).Int("priority", priority).Dur("delay", delay).Msg("task enqueued")
	return j, nil
}

// Pause stops pulling new jobs; queued work is kept.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
	q.log.Info().Msg("queue paused")
}

func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.poke()
	q.log.Info().Msg("queue resumed")
}

// Retry fires a backoff-delayed job immediately. Terminal tasks cannot be
// re-run through the queue; create a new task instead.
func (q *Queue) Retry(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.inflight[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if !j.active {
		j.readyAt = q.now()
		if j.index < q.delayed.Len() && q.delayed[j.index] == j {
			heap.Fix(&q.delayed, j.index)
		}
		q.poke()
	}
	return nil
}

// Remove cancels a queued-but-not-started job. Running jobs are not
// interrupted; cancellation is cooperative.
func (q *Queue) Remove(ctx context.Context, jobID string) error {
	q.mu.Lock()
	j, ok := q.inflight[jobID]
	if !ok || j.active {
		q.mu.Unlock()
		if ok {
			return fmt.Errorf("job %s is running: %w", jobID, domain.ErrInvalidArgument)
		}
		return domain.ErrJobNotFound
	}
	j.removed = true
	delete(q.inflight, jobID)
	q.publishDepth()
	q.mu.Unlock()

	if err := q.tasks.UpdateStatus(ctx, repository.NoTX, jobID, model.TaskStatusCancelled, nil); err != nil {
		return err
	}
	j.deliver(usecase.JobOutcome{Success: false, Err: context.Canceled})
	q.log.Info().Str("task_id", jobID).Msg("queued job removed")
	return nil
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Stats{Completed: q.completed, Failed: q.failed, Paused: q.paused}
	now := q.now()
	for _, j := range q.inflight {
		switch {
		case j.active:
			s.Active++
		case j.readyAt.After(now):
			s.Delayed++
		default:
			s.Waiting++
		}
	}
	return s
}

// poke nudges the dispatcher without blocking.
func (q *Queue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// dispatch promotes due delayed jobs and hands ready jobs to the pool,
// sleeping until the next ready time when nothing is runnable.
func (q *Queue) dispatch(ctx context.Context) {
	for {
		wait := time.Second

		q.mu.Lock()
		now := q.now()
		for q.delayed.Len() > 0 && !q.delayed[0].readyAt.After(now) {
			heap.Push(&q.ready, heap.Pop(&q.delayed).(*job))
		}
		if q.delayed.Len() > 0 {
			if d := q.delayed[0].readyAt.Sub(now); d < wait {
				wait = d
			}
		}
		if !q.paused && q.ready.Len() > 0 {
			j := heap.Pop(&q.ready).(*job)
			if j.removed {
				q.mu.Unlock()
				continue
			}
			j.active = true
			q.publishDepth()
			q.mu.Unlock()
			if err := q.pool.Submit(ctx, func(jobCtx context.Context) { q.run(jobCtx, j) }); err != nil {
				q.mu.Lock()
				j.active = false
				j.readyAt = q.now().Add(time.Second)
				heap.Push(&q.delayed, j)
				q.mu.Unlock()
			}
			continue
		}
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-q.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// run is the execution wrapper around one job: admission checks, status
// transition, orchestrator call, then retry or terminal classification.
func (q *Queue) run(ctx context.Context, j *job) {
	task, err := q.tasks.FindByID(ctx, repository.NoTX, j.taskID)
	if err != nil {
		q.finishTerminal(ctx, j, err)
		return
	}

	if err := q.admit(ctx, task); err != nil {
		q.finishTerminal(ctx, j, err)
		return
	}

	if err := q.tasks.UpdateStatus(ctx, repository.NoTX, j.taskID, model.TaskStatusRunning, nil); err != nil {
		q.finishTerminal(ctx, j, err)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	res, err := q.runner.ExecuteTask(jobCtx, j.taskID)
	timedOut := errors.Is(jobCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err == nil {
		q.mu.Lock()
		delete(q.inflight, j.taskID)
		q.completed++
		q.publishDepth()
		q.mu.Unlock()
		metrics.IncTaskProcessed(string(model.TaskStatusCompleted))
		j.deliver(usecase.JobOutcome{Success: true, Result: res})
		return
	}

	if timedOut {
		err = fmt.Errorf("job timeout after %s: %w", q.cfg.JobTimeout, err)
	}
	q.handleFailure(ctx, j, task, err)
}

// admit runs the three rate checks in order. Any denial is a descriptive,
// non-retriable error.
func (q *Queue) admit(ctx context.Context, task *model.Task) error {
	checks := []struct {
		level string
		fn    func() (bool, error)
	}{
		{"global", func() (bool, error) { return q.limiter.CheckGlobal(ctx) }},
		{"tenant", func() (bool, error) { return q.limiter.CheckTenant(ctx, task.TenantID) }},
		{"agent", func() (bool, error) { return q.limiter.CheckAgent(ctx, task.AgentID) }},
	}
	for _, c := range checks {
		ok, err := c.fn()
		if err != nil {
			return fmt.Errorf("rate limiter %s check: %w", c.level, err)
		}
		if !ok {
			metrics.IncRateLimitDenial(c.level)
			return fmt.Errorf("%s budget exhausted: %w", c.level, domain.ErrRateLimited)
		}
	}
	return nil
}

// handleFailure applies the retry/dead-letter decision. Terminal error
// classes and exhausted retries fail the task for good; everything else is
// re-queued with capped exponential backoff plus jitter, the stored status
// staying "queued".
func (q *Queue) handleFailure(ctx context.Context, j *job, task *model.Task, runErr error) {
	retriable := !domain.Terminal(runErr)

	if retriable && task != nil && task.RetryCount < task.MaxRetries {
		newCount, err := q.tasks.IncrementRetry(ctx, repository.NoTX, j.taskID)
		if err == nil {
			err = q.tasks.UpdateStatus(ctx, repository.NoTX, j.taskID, model.TaskStatusQueued, nil)
		}
		if err == nil {
			delay := q.backoff(newCount)
			q.mu.Lock()
			j.active = false
			j.readyAt = q.now().Add(delay)
			heap.Push(&q.delayed, j)
			q.publishDepth()
			q.mu.Unlock()
			metrics.IncTaskRetry()
			q.log.Warn().
				Str("task_id", j.taskID).
				Int("attempt", newCount).
				Dur("backoff", delay).
				Err(runErr).
				Msg("task failed, retrying")
			q.poke()
			return
		}
		q.log.Error().Err(err).Str("task_id", j.taskID).Msg("retry bookkeeping failed, dead-lettering")
	}

	q.finishTerminal(ctx, j, runErr)
	if retriable {
		// exhausted retries: surface to the dead-letter path
		metrics.IncDeadLetter()
		if q.dead != nil && task != nil {
			if nerr := q.dead.NotifyDeadLetter(ctx, task, runErr.Error()); nerr != nil {
				q.log.Error().Err(nerr).Str("task_id", j.taskID).Msg("dead-letter notification failed")
			}
		}
	}
}

// finishTerminal writes the failed status, releases the dedup slot and
// delivers the final outcome.
func (q *Queue) finishTerminal(ctx context.Context, j *job, runErr error) {
	if uerr := q.tasks.UpdateStatus(ctx, repository.NoTX, j.taskID, model.TaskStatusFailed, &repository.TaskResultFields{
		ErrorMsg: runErr.Error(),
	}); uerr != nil {
		q.log.Error().Err(uerr).Str("task_id", j.taskID).Msg("failed-status write failed")
	}

	q.mu.Lock()
	delete(q.inflight, j.taskID)
	q.failed++
	q.publishDepth()
	q.mu.Unlock()

	metrics.IncTaskProcessed(string(model.TaskStatusFailed))
	q.log.Error().Err(runErr).Str("task_id", j.taskID).Msg("task failed terminally")
	j.deliver(usecase.JobOutcome{Success: false, Err: runErr})
}

// backoff computes base × 2^(attempt-1), capped, with ±25% jitter so
// synchronized failures do not retry in lockstep.
func (q *Queue) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(q.cfg.BaseBackoff) * math.Pow(2, float64(attempt-1))
	if d > float64(q.cfg.MaxBackoff) {
		d = float64(q.cfg.MaxBackoff)
	}
	q.mu.Lock()
	jitter := (q.rnd.Float64()*0.5 - 0.25) * d
	q.mu.Unlock()
	return time.Duration(d + jitter)
}

// publishDepth exports queue depth gauges. Caller holds q.mu.
func (q *Queue) publishDepth() {
	waiting, active, delayed := 0, 0, 0
	now := q.now()
	for _, j := range q.inflight {
		switch {
		case j.active:
			active++
		case j.readyAt.After(now):
			delayed++
		default:
			waiting++
		}
	}
	metrics.SetQueueDepth("waiting", waiting)
	metrics.SetQueueDepth("active", active)
	metrics.SetQueueDepth("delayed", delayed)
}

// readyHeap orders runnable jobs by priority desc, then task id asc.
type readyHeap []*job

func (h readyHeap) Len() int { return len(h) }
func (h readyHeap) Less(i, k int) bool {
	if h[i].priority != h[k].priority {
		return h[i].priority > h[k].priority
	}
	return h[i].taskID < h[k].taskID
}
func (h readyHeap) Swap(i, k int) {
	h[i], h[k] = h[k], h[i]
	h[i].index = i
	h[k].index = k
}
func (h *readyHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

// delayHeap orders waiting jobs by ready time asc.
type delayHeap []*job

func (h delayHeap) Len() int           { return len(h) }
func (h delayHeap) Less(i, k int) bool { return h[i].readyAt.Before(h[k].readyAt) }
func (h delayHeap) Swap(i, k int) {
	h[i], h[k] = h[k], h[i]
	h[i].index = i
	h[k].index = k
}
func (h *delayHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}
