package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

var _ repository.ConversationRepository = (*conversationRepo)(nil)

type conversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *conversationRepo {
	return &conversationRepo{pool: pool}
}

func (r *conversationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	const q = `
SELECT id, agent_id, tenant_id, lead_ref, message_count, total_tokens, total_cost_cents,
       metadata, last_activity_at, created_at
  FROM conversations WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var c model.Conversation
	var metaJSON []byte
	err = row.Scan(&c.ID, &c.AgentID, &c.TenantID, &c.LeadRef, &c.MessageCount, &c.TotalTokens,
		&c.TotalCostCents, &metaJSON, &c.LastActivityAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &c, nil
}

func (r *conversationRepo) Save(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO conversations (id, agent_id, tenant_id, lead_ref, message_count, total_tokens,
                           total_cost_cents, metadata, last_activity_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  message_count=$5, total_tokens=$6, total_cost_cents=$7, metadata=$8, last_activity_at=$9;`
	_, err = execSQL(ctx, r.pool, tx, q,
		c.ID, c.AgentID, c.TenantID, c.LeadRef, c.MessageCount, c.TotalTokens,
		c.TotalCostCents, metaJSON, c.LastActivityAt, c.CreatedAt)
	return err
}

func (r *conversationRepo) SaveMessage(ctx context.Context, tx repository.Tx, m *model.Message) error {
	callsJSON, err := json.Marshal(m.ToolCalls)
	if err != nil {
		return err
	}
	resultsJSON, err := json.Marshal(m.ToolResults)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO messages (id, conversation_id, role, content, tool_calls, tool_results,
                      tokens_used, cost_cents, model, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10);`
	_, err = execSQL(ctx, r.pool, tx, q,
		m.ID, m.ConversationID, m.Role, m.Content, callsJSON, resultsJSON,
		m.TokensUsed, m.CostCents, m.Model, m.CreatedAt)
	return err
}

// RecentMessages returns the newest `limit` messages in chronological
// order; this is the conversation's effective context window.
func (r *conversationRepo) RecentMessages(ctx context.Context, tx repository.Tx, conversationID string, limit int) ([]*model.Message, error) {
	const q = `
SELECT id, conversation_id, role, content, tool_calls, tool_results,
       tokens_used, cost_cents, model, created_at
  FROM (
    SELECT * FROM messages WHERE conversation_id=$1 ORDER BY created_at DESC LIMIT $2
  ) latest
 ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var callsJSON, resultsJSON []byte
		err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &callsJSON, &resultsJSON,
			&m.TokensUsed, &m.CostCents, &m.Model, &m.CreatedAt)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if len(callsJSON) > 0 {
			if err := json.Unmarshal(callsJSON, &m.ToolCalls); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &m.ToolResults); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *conversationRepo) CountAssistantMessages(ctx context.Context, tx repository.Tx, conversationID string) (int, error) {
	const q = `SELECT count(*) FROM messages WHERE conversation_id=$1 AND role='assistant';`
	row, err := pickRow(ctx, r.pool, tx, q, conversationID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
