package adapter

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

// SentimentResult signals whether a conversation should be routed to a
// human for review.
type SentimentResult struct {
	ShouldFlag     bool
	MatchedSignals []string
	Severity       string // "low" | "medium" | "high"
}

type SentimentDetector interface {
	Classify(ctx context.Context, text, tenantID string) (SentimentResult, error)
}

// HallucinationResult reports a final text that claims success while a
// called tool actually failed.
type HallucinationResult struct {
	Detected bool
	Reason   string
}

type HallucinationDetector interface {
	Check(ctx context.Context, finalText string, toolResults []model.ToolExecutionResult) (HallucinationResult, error)
}
