package model

import (
	"strings"
	"time"

	"tenant-ai-agents/internal/domain"
)

// Provider is the typed backend an agent's model resolves to. Resolution
// happens once when the agent is loaded; everything downstream carries the
// typed value instead of re-matching the model name.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// ResolveProvider maps a model name to its backend. Unknown prefixes are a
// configuration error, surfaced before any task or turn is attempted.
func ResolveProvider(modelName string) (Provider, error) {
	l := strings.ToLower(strings.TrimSpace(modelName))
	switch {
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return ProviderOpenAI, nil
	case strings.HasPrefix(l, "gemini"):
		return ProviderGemini, nil
	default:
		return "", domain.ErrValidation
	}
}

// Agent is a tenant-owned persona: a model, a prompt, and an allow-list of
// tools. Immutable for the duration of a single task or conversation turn.
type Agent struct {
	ID           string
	TenantID     string
	Name         string
	Model        string
	Provider     Provider
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	AllowedTools []string
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meta returns a metadata value or the given fallback.
func (a *Agent) Meta(key, fallback string) string {
	if v, ok := a.Metadata[key]; ok && v != "" {
		return v
	}
	return fallback
}
