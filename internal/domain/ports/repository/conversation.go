package repository

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

type ConversationRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Conversation, error)
	Save(ctx context.Context, tx Tx, c *model.Conversation) error

	// SaveMessage appends one turn.
	SaveMessage(ctx context.Context, tx Tx, m *model.Message) error

	// RecentMessages returns the most recent `limit` messages ordered
	// oldest first; the conversation's effective context window.
	RecentMessages(ctx context.Context, tx Tx, conversationID string, limit int) ([]*model.Message, error)

	// CountAssistantMessages reports how many assistant turns exist; the
	// template bypass indexes scripted replies with it.
	CountAssistantMessages(ctx context.Context, tx Tx, conversationID string) (int, error)
}
