package adapter

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

// Message is one chat turn in the neutral wire-independent shape.
type Message struct {
	Role        string `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content     string `json:"content"`
	ToolCalls   []model.ToolCall
	ToolCallID  string // set on role="tool" messages
	ToolResult  *model.ToolExecutionResult
}

// ToolSpec is the neutral capability shape handed to a provider adapter,
// which translates it into its own calling convention.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  model.ParamSchema
}

// Usage as reported by the provider for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Add sums usage across the calls of one tool-calling round trip.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// ExecuteRequest is one model invocation.
type ExecuteRequest struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
}

// ExecuteResult carries either assistant text, tool-call requests, or both.
type ExecuteResult struct {
	Text      string
	ToolCalls []model.ToolCall
	Usage     Usage
}

// ModelProvider is the uniform port over heterogeneous LLM backends.
type ModelProvider interface {
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error)

	// CountTokens estimates prompt tokens for budget trimming
	// (best-effort when the provider has no exact counter).
	CountTokens(model string, messages []Message) (int, error)
}

// ProviderSet resolves the adapter for a typed provider.
type ProviderSet map[model.Provider]ModelProvider
