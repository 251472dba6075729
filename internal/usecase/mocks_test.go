package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
	"tenant-ai-agents/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// memTaskRepo is a small in-memory task store used by unit tests. It
// enforces the same transition guard as the postgres implementation.
type memTaskRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{store: make(map[string]*model.Task)}
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
	t.UpdatedAt = time.Now()
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

type memAgentRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Agent
}

func newMemAgentRepo() *memAgentRepo {
	return &memAgentRepo{store: make(map[string]*model.Agent)}
}

func (m *memAgentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	if cp.Provider == "" {
		p, err := model.ResolveProvider(cp.Model)
		if err != nil {
			return nil, err
		}
		cp.Provider = p
	}
	return &cp, nil
}

func (m *memAgentRepo) Save(ctx context.Context, tx repository.Tx, a *model.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

type memConversationRepo struct {
	mu       sync.RWMutex
	convos   map[string]*model.Conversation
	messages map[string][]*model.Message // conversation id -> ordered turns
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{
		convos:   make(map[string]*model.Conversation),
		messages: make(map[string][]*model.Message),
	}
}

func (m *memConversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convos[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversationRepo) Save(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.convos[c.ID] = &cp
	return nil
}

func (m *memConversationRepo) SaveMessage(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], &cp)
	return nil
}

func (m *memConversationRepo) RecentMessages(ctx context.Context, tx repository.Tx, conversationID string, limit int) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*model.Message, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memConversationRepo) CountAssistantMessages(ctx context.Context, tx repository.Tx, conversationID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, msg := range m.messages[conversationID] {
		if msg.Role == model.RoleAssistant {
			n++
		}
	}
	return n, nil
}

type memProcedureRepo struct {
	mu    sync.RWMutex
	store map[string][]*model.OperatingProcedure // agent id -> procedures
}

func newMemProcedureRepo() *memProcedureRepo {
	return &memProcedureRepo{store: make(map[string][]*model.OperatingProcedure)}
}

func (m *memProcedureRepo) ListByAgent(ctx context.Context, tx repository.Tx, agentID string) ([]*model.OperatingProcedure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*model.OperatingProcedure(nil), m.store[agentID]...), nil
}

func (m *memProcedureRepo) Save(ctx context.Context, tx repository.Tx, p *model.OperatingProcedure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.AgentID] = append(m.store[p.AgentID], &cp)
	return nil
}

type memFlagRepo struct {
	mu    sync.RWMutex
	flags []*model.ReviewFlag
}

func newMemFlagRepo() *memFlagRepo { return &memFlagRepo{} }

func (m *memFlagRepo) Create(ctx context.Context, tx repository.Tx, f *model.ReviewFlag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *f
	m.flags = append(m.flags, &cp)
	return nil
}

func (m *memFlagRepo) ListByConversation(ctx context.Context, tx repository.Tx, conversationID string) ([]*model.ReviewFlag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ReviewFlag
	for _, f := range m.flags {
		if f.ConversationID == conversationID {
			out = append(out, f)
		}
	}
	return out, nil
}

type memPricingRepo struct {
	mu      sync.RWMutex
	rows    []*model.ModelPricing
	listErr error
}

func newMemPricingRepo(rows ...*model.ModelPricing) *memPricingRepo {
	return &memPricingRepo{rows: rows}
}

func (m *memPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rows {
		if r.ModelName == name {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]*model.ModelPricing(nil), m.rows...), nil
}

func (m *memPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, p)
	return nil
}

func (m *memPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	return nil
}

type memBillingRepo struct {
	mu      sync.Mutex
	entries map[string]*model.BillingLedgerEntry // tenant|period
	deltas  []repository.UsageDelta
}

func newMemBillingRepo() *memBillingRepo {
	return &memBillingRepo{entries: make(map[string]*model.BillingLedgerEntry)}
}

func (m *memBillingRepo) AddUsage(ctx context.Context, d repository.UsageDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deltas = append(m.deltas, d)
	key := d.TenantID + "|" + d.Period
	e, ok := m.entries[key]
	if !ok {
		e = &model.BillingLedgerEntry{
			TenantID: d.TenantID,
			Period:   d.Period,
			ByAgent:  map[string]int64{},
			ByModel:  map[string]int64{},
			Status:   model.LedgerStatusPending,
		}
		m.entries[key] = e
	}
	e.TotalTokens += d.Tokens
	e.TotalBaseCents += d.BaseCents
	e.TotalBilledCents += d.BilledCents
	if d.AgentID != "" {
		e.ByAgent[d.AgentID] += d.BilledCents
	}
	if d.Model != "" {
		e.ByModel[d.Model] += d.BilledCents
	}
	return nil
}

func (m *memBillingRepo) CurrentMonth(ctx context.Context, tx repository.Tx, tenantID, period string) (*model.BillingLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[tenantID+"|"+period]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memBillingRepo) History(ctx context.Context, tx repository.Tx, tenantID string, months int) ([]*model.BillingLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BillingLedgerEntry
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// scriptedProvider replays canned responses in order and records every
// request it receives.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*adapter.ExecuteResult
	errs      []error
	requests  []adapter.ExecuteRequest
}

func (p *scriptedProvider) Execute(ctx context.Context, req adapter.ExecuteRequest) (*adapter.ExecuteResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.responses) {
		return nil, fmt.Errorf("scriptedProvider: unexpected call %d", i)
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) CountTokens(model string, messages []adapter.Message) (int, error) {
	n := 0
	for _, m := range messages {
		n += len(m.Content) / 4
	}
	return n, nil
}

type stubSentiment struct {
	result adapter.SentimentResult
}

func (s *stubSentiment) Classify(ctx context.Context, text, tenantID string) (adapter.SentimentResult, error) {
	return s.result, nil
}

type stubHalluc struct {
	result adapter.HallucinationResult
	called bool
}

func (s *stubHalluc) Check(ctx context.Context, finalText string, toolResults []model.ToolExecutionResult) (adapter.HallucinationResult, error) {
	s.called = true
	return s.result, nil
}
