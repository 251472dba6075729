package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
	"tenant-ai-agents/internal/domain/ports/repository"
	"tenant-ai-agents/internal/infra/metrics"
)

const (
	historyWindow = 100

	// historyTokenBudget caps the prompt-side history handed to a
	// provider; oldest turns are dropped first.
	historyTokenBudget = 12000
)

// TaskResult is the orchestrator's typed outcome for one task run.
type TaskResult struct {
	Result     string
	TokensUsed int
	CostCents  int64
	DurationMs int64
}

// TurnInput is one incoming conversation message.
type TurnInput struct {
	ConversationID string
	TenantID       string
	UserID         string
	Content        string
}

// TurnResult is the assistant's reply for one turn.
type TurnResult struct {
	Reply       string
	Message     *model.Message
	Flagged     bool
	FromScript  bool
	TokensUsed  int
	BilledCents int64
}

// Orchestrator drives the tool-calling protocol for background tasks and
// live conversation turns. It always returns typed results across its
// public boundary; only persistence failures propagate as errors.
type Orchestrator struct {
	tasks     repository.TaskRepository
	agents    repository.AgentRepository
	convos    repository.ConversationRepository
	procs     repository.ProcedureRepository
	flags     repository.FlagRepository
	providers adapter.ProviderSet
	registry  *ToolRegistry
	costs     *CostTracker
	sentiment adapter.SentimentDetector
	halluc    adapter.HallucinationDetector
	now       func() time.Time
	log       *zerolog.Logger
}

func NewOrchestrator(
	tasks repository.TaskRepository,
	agents repository.AgentRepository,
	convos repository.ConversationRepository,
	procs repository.ProcedureRepository,
	flags repository.FlagRepository,
	providers adapter.ProviderSet,
	registry *ToolRegistry,
	costs *CostTracker,
	sentiment adapter.SentimentDetector,
	halluc adapter.HallucinationDetector,
	logger *zerolog.Logger,
) *Orchestrator {
	l := logger.With().Str("component", "Orchestrator").Logger()
	return &Orchestrator{
		tasks:     tasks,
		agents:    agents,
		convos:    convos,
		procs:     procs,
		flags:     flags,
		providers: providers,
		registry:  registry,
		costs:     costs,
		sentiment: sentiment,
		halluc:    halluc,
		now:       time.Now,
		log:       &l,
	}
}

// loadAgent fetches the agent and resolves its typed provider once.
func (o *Orchestrator) loadAgent(ctx context.Context, agentID string) (*model.Agent, adapter.ModelProvider, error) {
	agent, err := o.agents.FindByID(ctx, repository.NoTX, agentID)
	if err != nil {
		return nil, nil, fmt.Errorf("agent %s: %w", agentID, err)
	}
	if agent.Provider == "" {
		p, err := model.ResolveProvider(agent.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("agent %s model %q: %w", agentID, agent.Model, err)
		}
		agent.Provider = p
	}
	prov, ok := o.providers[agent.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("provider %s not configured: %w", agent.Provider, domain.ErrValidation)
	}
	return agent, prov, nil
}

// ExecuteTask runs the background-task protocol for one task. On success
// it persists the terminal completed status together with result, usage
// and duration, and records billing; failures are returned to the queue,
// which owns the retry decision.
func (o *Orchestrator) ExecuteTask(ctx context.Context, taskID string) (*TaskResult, error) {
	start := o.now()

	task, err := o.tasks.FindByID(ctx, repository.NoTX, taskID)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	agent, prov, err := o.loadAgent(ctx, task.AgentID)
	if err != nil {
		return nil, err
	}
	procs, err := o.procs.ListByAgent(ctx, repository.NoTX, agent.ID)
	if err != nil {
		return nil, err
	}

	loc := tenantLocation(task.Timezone)
	sys := composeSystemPrompt(agent, procs, loc, o.now())

	ctxJSON, _ := json.Marshal(task.Context)
	userMsg := fmt.Sprintf("Task: %s\n\n%s\n\nContext:\n%s", task.Title, task.Description, string(ctxJSON))

	text, _, _, usage, err := o.runToolLoop(ctx, prov, agent, sys, []adapter.Message{{Role: "user", Content: userMsg}}, model.ExecContext{
		AgentID:  agent.ID,
		TenantID: task.TenantID,
		TaskID:   task.ID,
	})
	if err != nil {
		return nil, err
	}

	calc := o.costs.Price(ctx, agent.Model, usage.InputTokens, usage.OutputTokens)
	elapsed := o.now().Sub(start)
	res := &TaskResult{
		Result:     text,
		TokensUsed: usage.Total(),
		CostCents:  calc.BaseCents,
		DurationMs: elapsed.Milliseconds(),
	}

	if err := o.tasks.UpdateStatus(ctx, repository.NoTX, task.ID, model.TaskStatusCompleted, &repository.TaskResultFields{
		Result:     res.Result,
		TokensUsed: res.TokensUsed,
		CostCents:  res.CostCents,
		DurationMs: res.DurationMs,
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if err := o.costs.Record(ctx, task.TenantID, agent.ID, agent.Model, calc); err != nil {
		o.log.Error().Err(err).Str("task_id", task.ID).Msg("billing record failed")
	}

	metrics.ObserveAIUsage(string(agent.Provider), agent.Model, usage.InputTokens, usage.OutputTokens, calc.BaseCents, int(elapsed.Milliseconds()), true)
	metrics.ObserveTaskDuration(float64(elapsed.Milliseconds()))
	o.log.Info().
		Str("task_id", task.ID).
		Str("agent_id", agent.ID).
		Int("tokens", res.TokensUsed).
		Int64("cost_cents", calc.BaseCents).
		Int64("billed_cents", calc.BilledCents).
		Dur("duration", elapsed).
		Msg("task completed")
	return res, nil
}

// ProcessMessage runs the conversation-turn protocol: persist the user
// message, try the template bypass, otherwise call the model with history
// and tools, run the detectors, persist the reply and bill the usage.
func (o *Orchestrator) ProcessMessage(ctx context.Context, in TurnInput) (*TurnResult, error) {
	conv, err := o.convos.FindByID(ctx, repository.NoTX, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", in.ConversationID, err)
	}
	if conv.TenantID != in.TenantID {
		return nil, fmt.Errorf("conversation %s tenant mismatch: %w", conv.ID, domain.ErrAccessDenied)
	}
	agent, prov, err := o.loadAgent(ctx, conv.AgentID)
	if err != nil {
		return nil, err
	}
	procs, err := o.procs.ListByAgent(ctx, repository.NoTX, agent.ID)
	if err != nil {
		return nil, err
	}

	userMsg := model.NewMessage(conv.ID, model.RoleUser, in.Content)
	if err := o.convos.SaveMessage(ctx, repository.NoTX, userMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	// Template bypass: the first N assistant turns of an exact-script flow
	// reproduce compliance-reviewed wording verbatim, no model involved.
	scripts := scriptTemplates(procs)
	if len(scripts) > 0 {
		count, err := o.convos.CountAssistantMessages(ctx, repository.NoTX, conv.ID)
		if err != nil {
			return nil, err
		}
		if count < len(scripts) {
			return o.replyFromScript(ctx, conv, agent, scripts[count], in)
		}
	}

	history, err := o.convos.RecentMessages(ctx, repository.NoTX, conv.ID, historyWindow)
	if err != nil {
		return nil, err
	}
	msgs := trimToBudget(prov, agent.Model, toAdapterMessages(history), historyTokenBudget)

	loc := tenantLocation(agent.Meta("timezone", conv.Metadata["timezone"]))
	sys := composeSystemPrompt(agent, procs, loc, o.now())

	text, calls, results, usage, err := o.runToolLoop(ctx, prov, agent, sys, msgs, model.ExecContext{
		AgentID:        agent.ID,
		TenantID:       conv.TenantID,
		ConversationID: conv.ID,
		UserID:         in.UserID,
	})
	if err != nil {
		// Live turns fail fast; the client retries explicitly.
		return nil, err
	}

	// Advisory hallucination gate: warn, never block. An imperfect
	// heuristic must not make the system less available than wrong.
	if o.halluc != nil && len(results) > 0 {
		if hr, herr := o.halluc.Check(ctx, text, results); herr == nil && hr.Detected {
			metrics.IncHallucinationWarning()
			o.log.Warn().
				Str("conversation_id", conv.ID).
				Str("reason", hr.Reason).
				Msg("assistant reply claims success after tool failure")
		}
	}

	calc := o.costs.Price(ctx, agent.Model, usage.InputTokens, usage.OutputTokens)
	asstMsg := model.NewMessage(conv.ID, model.RoleAssistant, text)
	asstMsg.ToolCalls = calls
	asstMsg.ToolResults = results
	asstMsg.TokensUsed = usage.Total()
	asstMsg.CostCents = calc.BilledCents
	asstMsg.Model = agent.Model
	if err := o.convos.SaveMessage(ctx, repository.NoTX, asstMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	flagged := o.runSentiment(ctx, conv, in.Content)

	conv.MessageCount += 2
	conv.TotalTokens += usage.Total()
	conv.TotalCostCents += calc.BilledCents
	conv.LastActivityAt = o.now()
	if err := o.convos.Save(ctx, repository.NoTX, conv); err != nil {
		o.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("conversation counters update failed")
	}

	if err := o.costs.Record(ctx, conv.TenantID, agent.ID, agent.Model, calc); err != nil {
		o.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("billing record failed")
	}
	metrics.ObserveAIUsage(string(agent.Provider), agent.Model, usage.InputTokens, usage.OutputTokens, calc.BaseCents, 0, true)

	return &TurnResult{
		Reply:       text,
		Message:     asstMsg,
		Flagged:     flagged,
		TokensUsed:  usage.Total(),
		BilledCents: calc.BilledCents,
	}, nil
}

// replyFromScript persists a scripted assistant turn at zero token cost.
func (o *Orchestrator) replyFromScript(ctx context.Context, conv *model.Conversation, agent *model.Agent, script *model.OperatingProcedure, in TurnInput) (*TurnResult, error) {
	content := substituteTemplate(script.Content, conv, agent, in.Content)

	asstMsg := model.NewMessage(conv.ID, model.RoleAssistant, content)
	asstMsg.Model = agent.Model
	if err := o.convos.SaveMessage(ctx, repository.NoTX, asstMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	flagged := o.runSentiment(ctx, conv, in.Content)

	conv.MessageCount += 2
	conv.LastActivityAt = o.now()
	if err := o.convos.Save(ctx, repository.NoTX, conv); err != nil {
		o.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("conversation counters update failed")
	}

	return &TurnResult{Reply: content, Message: asstMsg, Flagged: flagged, FromScript: true}, nil
}

func (o *Orchestrator) runSentiment(ctx context.Context, conv *model.Conversation, userText string) bool {
	if o.sentiment == nil {
		return false
	}
	sr, err := o.sentiment.Classify(ctx, userText, conv.TenantID)
	if err != nil || !sr.ShouldFlag {
		return false
	}
	flag := model.NewReviewFlag(conv.ID, conv.TenantID, sr.MatchedSignals, sr.Severity)
	if err := o.flags.Create(ctx, repository.NoTX, flag); err != nil {
		o.log.Error().Err(err).Str("conversation_id", conv.ID).Msg("review flag save failed")
		return false
	}
	o.log.Info().
		Str("conversation_id", conv.ID).
		Strs("signals", sr.MatchedSignals).
		Str("severity", sr.Severity).
		Msg("conversation flagged for human review")
	return true
}

// runToolLoop is the two-phase protocol: one model call with tools
// attached; if the model requests calls, execute them sequentially, feed
// every result back in a single follow-up turn and ask for the final
// text. Usage is summed across both calls.
func (o *Orchestrator) runToolLoop(
	ctx context.Context,
	prov adapter.ModelProvider,
	agent *model.Agent,
	systemPrompt string,
	msgs []adapter.Message,
	ec model.ExecContext,
) (string, []model.ToolCall, []model.ToolExecutionResult, adapter.Usage, error) {
	req := adapter.ExecuteRequest{
		Model:        agent.Model,
		SystemPrompt: systemPrompt,
		Messages:     msgs,
		Tools:        o.registry.Specs(agent.AllowedTools),
		Temperature:  agent.Temperature,
		MaxTokens:    agent.MaxTokens,
	}
	first, err := prov.Execute(ctx, req)
	if err != nil {
		return "", nil, nil, adapter.Usage{}, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	if len(first.ToolCalls) == 0 {
		return first.Text, nil, nil, first.Usage, nil
	}

	results := make([]model.ToolExecutionResult, 0, len(first.ToolCalls))
	for _, call := range first.ToolCalls {
		results = append(results, o.registry.Execute(ctx, call, ec))
	}

	followUp := append(msgs, adapter.Message{
		Role:      "assistant",
		Content:   first.Text,
		ToolCalls: first.ToolCalls,
	})
	for i := range results {
		followUp = append(followUp, adapter.Message{
			Role:       "tool",
			ToolCallID: results[i].CallID,
			ToolResult: &results[i],
		})
	}

	req.Messages = followUp
	req.Tools = nil // second phase always returns text
	final, err := prov.Execute(ctx, req)
	if err != nil {
		return "", first.ToolCalls, results, first.Usage, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return final.Text, first.ToolCalls, results, first.Usage.Add(final.Usage), nil
}

// trimToBudget drops the oldest turns until the estimated prompt size fits
// the budget. Estimation errors leave the window untouched.
func trimToBudget(prov adapter.ModelProvider, modelName string, msgs []adapter.Message, budget int) []adapter.Message {
	for len(msgs) > 1 {
		n, err := prov.CountTokens(modelName, msgs)
		if err != nil || n <= budget {
			return msgs
		}
		msgs = msgs[1:]
	}
	return msgs
}

func toAdapterMessages(history []*model.Message) []adapter.Message {
	out := make([]adapter.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" && m.Role == model.RoleAssistant {
			// tool-call-only assistant turns carry no model-visible text
			continue
		}
		out = append(out, adapter.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
