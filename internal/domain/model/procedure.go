package model

import (
	"time"

	"github.com/google/uuid"
)

// Strictness controls how literally an operating procedure must be
// followed. Only exact_script guarantees verbatim wording; the other two
// levels are folded into the system prompt as text.
type Strictness string

const (
	StrictnessExactScript Strictness = "exact_script"
	StrictnessGuideline   Strictness = "guideline"
	StrictnessGeneralTone Strictness = "general_tone"
)

// OperatingProcedure is a tenant-authored instruction attached to an agent.
// For exact_script procedures Content is a message template with
// {{placeholder}} substitution; Position orders the templates.
type OperatingProcedure struct {
	ID        string
	AgentID   string
	TenantID  string
	Title     string
	Content   string
	Level     Strictness
	Position  int
	CreatedAt time.Time
}

// ReviewFlag routes a conversation to a human when the sentiment detector
// signals it. Advisory only.
type ReviewFlag struct {
	ID             string
	ConversationID string
	TenantID       string
	MatchedSignals []string
	Severity       string
	CreatedAt      time.Time
}

func NewReviewFlag(conversationID, tenantID string, signals []string, severity string) *ReviewFlag {
	return &ReviewFlag{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		TenantID:       tenantID,
		MatchedSignals: signals,
		Severity:       severity,
		CreatedAt:      time.Now(),
	}
}
