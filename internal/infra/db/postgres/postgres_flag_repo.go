package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

var _ repository.FlagRepository = (*flagRepo)(nil)

type flagRepo struct {
	pool *pgxpool.Pool
}

func NewFlagRepo(pool *pgxpool.Pool) *flagRepo {
	return &flagRepo{pool: pool}
}

func (r *flagRepo) Create(ctx context.Context, tx repository.Tx, f *model.ReviewFlag) error {
	const q = `
INSERT INTO review_flags (id, conversation_id, tenant_id, matched_signals, severity, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, f.ID, f.ConversationID, f.TenantID, f.MatchedSignals, f.Severity, f.CreatedAt)
	return err
}

func (r *flagRepo) ListByConversation(ctx context.Context, tx repository.Tx, conversationID string) ([]*model.ReviewFlag, error) {
	const q = `
SELECT id, conversation_id, tenant_id, matched_signals, severity, created_at
  FROM review_flags
 WHERE conversation_id=$1
 ORDER BY created_at;`
	rows, err := queryRows(ctx, r.pool, tx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ReviewFlag
	for rows.Next() {
		var f model.ReviewFlag
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.TenantID, &f.MatchedSignals, &f.Severity, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
