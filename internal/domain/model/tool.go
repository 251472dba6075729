package model

import (
	"context"
	"encoding/json"
)

// ParamSpec describes a single tool parameter. The schema is declared
// explicitly per tool; provider adapters translate it into their own
// calling-convention shape.
type ParamSpec struct {
	Type        string   `json:"type"` // "string" | "number" | "integer" | "boolean"
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ParamSchema is the object-typed parameter set a tool accepts.
type ParamSchema struct {
	Properties map[string]ParamSpec `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// ExecContext carries the identity of the caller into a tool executor.
type ExecContext struct {
	AgentID        string
	TenantID       string
	TaskID         string
	ConversationID string
	UserID         string
}

// ToolExecutor performs a tool's side effect. Errors and panics are caught
// by the registry and converted into a failed ToolExecutionResult.
type ToolExecutor func(ctx context.Context, ec ExecContext, params map[string]any) (any, error)

// Tool is a static capability descriptor registered once at process start.
type Tool struct {
	ID          string
	Name        string
	Description string // doubles as the model-facing usage instruction
	Parameters  ParamSchema
	Category    string
	Permission  string // empty means unrestricted
	Enabled     bool
	Execute     ToolExecutor `json:"-"`
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID        string `json:"id"`
	ToolID    string `json:"tool_id"`
	Arguments string `json:"arguments"` // raw JSON as sent by the model
}

// ParsedArguments decodes the raw JSON argument payload.
func (c ToolCall) ParsedArguments() (map[string]any, error) {
	if c.Arguments == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToolExecutionResult is the registry's uniform outcome for one call.
type ToolExecutionResult struct {
	CallID  string `json:"call_id"`
	ToolID  string `json:"tool_id"`
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}
