package repository

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

type AgentRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Agent, error)
	Save(ctx context.Context, tx Tx, a *model.Agent) error
}

// ProcedureRepository loads the tenant operating procedures attached to an
// agent, ordered by strictness then position.
type ProcedureRepository interface {
	ListByAgent(ctx context.Context, tx Tx, agentID string) ([]*model.OperatingProcedure, error)
	Save(ctx context.Context, tx Tx, p *model.OperatingProcedure) error
}

// FlagRepository persists review flags raised by the sentiment detector.
type FlagRepository interface {
	Create(ctx context.Context, tx Tx, f *model.ReviewFlag) error
	ListByConversation(ctx context.Context, tx Tx, conversationID string) ([]*model.ReviewFlag, error)
}
