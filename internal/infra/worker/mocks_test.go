package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
	"tenant-ai-agents/internal/usecase"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type memTaskRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{store: make(map[string]*model.Task)}
}

func (m *memTaskRepo) add(t *model.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.store[t.ID] = &cp
}

func (m *memTaskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[t.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *memTaskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, fields *repository.TaskResultFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !model.CanTransition(t.Status, status) {
		return domain.ErrInvalidTransition
	}
	t.Status = status
	if fields != nil {
		t.Result = fields.Result
		t.ErrorMsg = fields.ErrorMsg
		t.TokensUsed = fields.TokensUsed
		t.CostCents = fields.CostCents
		t.DurationMs = fields.DurationMs
	}
	return nil
}

func (m *memTaskRepo) IncrementRetry(ctx context.Context, tx repository.Tx, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	t.RetryCount++
	return t.RetryCount, nil
}

func (m *memTaskRepo) ListDueScheduled(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Task
	for _, t := range m.store {
		if t.Kind == model.TaskKindScheduled && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			cp := *t
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memTaskRepo) ListScheduled(ctx context.Context, tx repository.Tx, limit int) ([]*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Task
	for _, t := range m.store {
		if t.Kind == model.TaskKindScheduled && t.CronExpr != "" {
			cp := *t
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memTaskRepo) SetNextRun(ctx context.Context, tx repository.Tx, id string, nextRun, lastRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.NextRunAt = &nextRun
	t.LastRunAt = &lastRun
	return nil
}

func (m *memTaskRepo) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

// mockRunner replays one error (or success) per attempt, in order, and
// records which task ids it ran.
type mockRunner struct {
	mu      sync.Mutex
	errs    []error
	result  *usecase.TaskResult
	ran     []string
	block   chan struct{} // when non-nil, every attempt waits on it
}

func (r *mockRunner) ExecuteTask(ctx context.Context, taskID string) (*usecase.TaskResult, error) {
	r.mu.Lock()
	attempt := len(r.ran)
	r.ran = append(r.ran, taskID)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if attempt < len(r.errs) && r.errs[attempt] != nil {
		return nil, r.errs[attempt]
	}
	res := r.result
	if res == nil {
		res = &usecase.TaskResult{Result: "ok"}
	}
	return res, nil
}

func (r *mockRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ran...)
}

type allowLimiter struct {
	global, tenant, agent bool
}

func allowAll() *allowLimiter { return &allowLimiter{global: true, tenant: true, agent: true} }

func (l *allowLimiter) CheckGlobal(ctx context.Context) (bool, error) { return l.global, nil }
func (l *allowLimiter) CheckTenant(ctx context.Context, tenantID string) (bool, error) {
	return l.tenant, nil
}
func (l *allowLimiter) CheckAgent(ctx context.Context, agentID string) (bool, error) {
	return l.agent, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	tasks []string
	errs  []string
}

func (n *recordingNotifier) NotifyDeadLetter(ctx context.Context, task *model.Task, lastErr string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task.ID)
	n.errs = append(n.errs, lastErr)
	return nil
}

func (n *recordingNotifier) notified() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.tasks...)
}

type denyLocker struct{}

func (denyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", domain.ErrAlreadyExists
}
func (denyLocker) Unlock(ctx context.Context, key, token string) error { return nil }
