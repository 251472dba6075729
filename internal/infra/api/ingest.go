package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
	"tenant-ai-agents/internal/usecase"
)

// ConversationService is the slice of the orchestrator the API needs.
type ConversationService interface {
	ProcessMessage(ctx context.Context, in usecase.TurnInput) (*usecase.TurnResult, error)
}

// WorkflowRunner runs an automation task to completion on behalf of an
// external workflow engine.
type WorkflowRunner interface {
	RunTaskFromWorkflow(ctx context.Context, agentID, prompt string, payload map[string]any) (*usecase.WorkflowResult, error)
}

// CronRegistrar registers a recurring trigger for a scheduled template.
type CronRegistrar interface {
	ScheduleCron(ctx context.Context, taskID, expr, tz string) error
}

type createTaskRequest struct {
	AgentID      string         `json:"agent_id"`
	TenantID     string         `json:"tenant_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Kind         string         `json:"kind"`
	Priority     *int           `json:"priority,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty"`
	DelaySeconds int            `json:"delay_seconds,omitempty"`
	CronExpr     string         `json:"cron_expr,omitempty"`
	Timezone     string         `json:"timezone,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
}

// handleTaskCreate accepts a task, persists it and hands it to the right
// execution path: scheduled templates get a cron trigger, everything else
// is enqueued immediately or after the requested delay.
func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	kind := model.TaskKind(req.Kind)
	switch kind {
	case model.TaskKindAdhoc, model.TaskKindScheduled, model.TaskKindAutomation:
	case "":
		kind = model.TaskKindAdhoc
	default:
		http.Error(w, "unknown task kind", http.StatusBadRequest)
		return
	}

	task := model.NewTask(req.AgentID, req.TenantID, req.Title, req.Description, kind)
	task.Context = req.Context
	task.CronExpr = req.CronExpr
	task.Timezone = req.Timezone
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.MaxRetries != nil {
		task.MaxRetries = *req.MaxRetries
	}
	if err := task.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.tasks.Create(r.Context(), repository.NoTX, task); err != nil {
		writeError(w, err)
		return
	}

	if kind == model.TaskKindScheduled {
		if err := s.cron.ScheduleCron(r.Context(), task.ID, task.CronExpr, task.Timezone); err != nil {
			writeError(w, err)
			return
		}
	} else {
		delay := time.Duration(req.DelaySeconds) * time.Second
		if _, err := s.enqueue.Enqueue(r.Context(), task.ID, task.Priority, delay); err != nil {
			writeError(w, err)
			return
		}
	}

	s.log.Info().Str("task_id", task.ID).Str("kind", string(kind)).Str("operator", Subject(r.Context())).Msg("task created via ops api")
	writeJSON(w, http.StatusCreated, map[string]string{"task_id": task.ID, "kind": string(kind)})
}

type turnRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id,omitempty"`
	Content  string `json:"content"`
}

type turnResponse struct {
	Reply       string `json:"reply"`
	Flagged     bool   `json:"flagged"`
	FromScript  bool   `json:"from_script"`
	TokensUsed  int    `json:"tokens_used"`
	BilledCents int64  `json:"billed_cents"`
}

func (s *Server) handleConversationTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	res, err := s.turns.ProcessMessage(r.Context(), usecase.TurnInput{
		ConversationID: chi.URLParam(r, "id"),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		Content:        req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Reply:       res.Reply,
		Flagged:     res.Flagged,
		FromScript:  res.FromScript,
		TokensUsed:  res.TokensUsed,
		BilledCents: res.BilledCents,
	})
}

type workflowRequest struct {
	AgentID string         `json:"agent_id"`
	Prompt  string         `json:"prompt"`
	Payload map[string]any `json:"payload,omitempty"`
}

// handleWorkflowRun blocks until the spawned task reaches an outcome, so
// the caller gets a synchronous answer the way automation engines expect.
func (s *Server) handleWorkflowRun(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.AgentID == "" || req.Prompt == "" {
		http.Error(w, "agent_id and prompt are required", http.StatusBadRequest)
		return
	}

	res, err := s.workflow.RunTaskFromWorkflow(r.Context(), req.AgentID, req.Prompt, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
