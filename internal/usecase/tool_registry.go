package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/adapter"
	"tenant-ai-agents/internal/infra/metrics"
)

// PermissionChecker decides whether the calling identity holds the
// permission a tool declares. Nil means every permission is granted.
type PermissionChecker func(ec model.ExecContext, permission string) bool

// ToolRegistry is the single catalogue of callable capabilities. Tools are
// registered at process start; dispatch never lets an executor failure or
// panic escape to the caller.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*model.Tool
	perms PermissionChecker
	log   *zerolog.Logger
}

func NewToolRegistry(perms PermissionChecker, logger *zerolog.Logger) *ToolRegistry {
	l := logger.With().Str("component", "ToolRegistry").Logger()
	return &ToolRegistry{
		tools: make(map[string]*model.Tool),
		perms: perms,
		log:   &l,
	}
}

// Register adds a tool to the catalogue. Re-registering an id overwrites
// the previous definition (hot reload of tool configs) and logs a warning.
func (r *ToolRegistry) Register(t model.Tool) error {
	if t.ID == "" || t.Execute == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.ID]; exists {
		r.log.Warn().Str("tool_id", t.ID).Msg("tool re-registered, overwriting previous definition")
	}
	cp := t
	r.tools[t.ID] = &cp
	return nil
}

// Specs filters the requested ids down to enabled, known tools and returns
// their neutral specs. Unknown or disabled ids are dropped silently: agent
// allow-lists may reference tools that were disabled after the fact.
func (r *ToolRegistry) Specs(toolIDs []string) []adapter.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]adapter.ToolSpec, 0, len(toolIDs))
	for _, id := range toolIDs {
		t, ok := r.tools[id]
		if !ok || !t.Enabled {
			continue
		}
		out = append(out, adapter.ToolSpec{
			Name:        t.ID,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return out
}

// Get returns a tool by id, for introspection endpoints.
func (r *ToolRegistry) Get(id string) (*model.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	return t, ok
}

// Execute dispatches one call. A missing or disabled tool fails with a
// typed error; a denied permission, a returned error or a panic inside the
// executor are all folded into a failed result so the turn can continue.
func (r *ToolRegistry) Execute(ctx context.Context, call model.ToolCall, ec model.ExecContext) model.ToolExecutionResult {
	res := model.ToolExecutionResult{CallID: call.ID, ToolID: call.ToolID}

	r.mu.RLock()
	t, ok := r.tools[call.ToolID]
	r.mu.RUnlock()
	if !ok {
		res.Error = domain.ErrToolNotFound.Error()
		metrics.IncToolExecution(call.ToolID, "not_found")
		return res
	}
	if !t.Enabled {
		res.Error = domain.ErrToolDisabled.Error()
		metrics.IncToolExecution(call.ToolID, "disabled")
		return res
	}
	if t.Permission != "" && r.perms != nil && !r.perms(ec, t.Permission) {
		res.Error = domain.ErrPermissionDenied.Error()
		metrics.IncToolExecution(call.ToolID, "denied")
		return res
	}

	params, err := call.ParsedArguments()
	if err != nil {
		res.Error = fmt.Sprintf("invalid arguments: %v", err)
		metrics.IncToolExecution(call.ToolID, "bad_args")
		return res
	}

	out, err := r.runSafely(ctx, t, ec, params)
	if err != nil {
		r.log.Warn().Err(err).Str("tool_id", t.ID).Str("tenant_id", ec.TenantID).Msg("tool execution failed")
		res.Error = err.Error()
		metrics.IncToolExecution(call.ToolID, "error")
		return res
	}
	res.Success = true
	res.Output = out
	metrics.IncToolExecution(call.ToolID, "ok")
	return res
}

// runSafely is the recover boundary: a panicking executor is reported as
// an ordinary error.
func (r *ToolRegistry) runSafely(ctx context.Context, t *model.Tool, ec model.ExecContext, params map[string]any) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tool %s panicked: %v", t.ID, p)
		}
	}()
	return t.Execute(ctx, ec, params)
}
