package worker

import (
	"context"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
)

// Job is one unit of work submitted to the pool.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool. Each job runs to completion on one
// worker; the queue above it owns ordering and retry.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Job
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Job, workers*4), quit: make(chan struct{}), n: workers, log: &l}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					return
				case job := <-p.jobs:
					if job == nil {
						continue
					}
					job(ctx)
				}
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Msg("worker pool started")
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

// Submit hands a job to the pool, blocking while all workers are busy and
// the buffer is full, so the dispatcher applies natural back-pressure.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return domain.ErrInvalidArgument
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.quit:
		return domain.ErrQueueSaturated
	case <-ctx.Done():
		return ctx.Err()
	}
}
