package model

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a long-lived thread between one human and one agent.
// The surrounding product also reads it; this subsystem only appends.
type Conversation struct {
	ID             string
	AgentID        string
	TenantID       string
	LeadRef        string // subject/lead reference in the host product
	MessageCount   int
	TotalTokens    int
	TotalCostCents int64
	Metadata       map[string]string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

func NewConversation(agentID, tenantID, leadRef string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		TenantID:       tenantID,
		LeadRef:        leadRef,
		LastActivityAt: now,
		CreatedAt:      now,
	}
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one turn within a conversation. Append-only.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	ToolCalls      []ToolCall
	ToolResults    []ToolExecutionResult
	TokensUsed     int
	CostCents      int64
	Model          string
	CreatedAt      time.Time
}

func NewMessage(conversationID string, role MessageRole, content string) *Message {
	return &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now(),
	}
}
