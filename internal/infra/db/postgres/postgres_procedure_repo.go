package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

var _ repository.ProcedureRepository = (*procedureRepo)(nil)

type procedureRepo struct {
	pool *pgxpool.Pool
}

func NewProcedureRepo(pool *pgxpool.Pool) *procedureRepo {
	return &procedureRepo{pool: pool}
}

func (r *procedureRepo) ListByAgent(ctx context.Context, tx repository.Tx, agentID string) ([]*model.OperatingProcedure, error) {
	const q = `
SELECT id, agent_id, tenant_id, title, content, level, position, created_at
  FROM operating_procedures
 WHERE agent_id=$1
 ORDER BY level, position;`
	rows, err := queryRows(ctx, r.pool, tx, q, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.OperatingProcedure
	for rows.Next() {
		var p model.OperatingProcedure
		if err := rows.Scan(&p.ID, &p.AgentID, &p.TenantID, &p.Title, &p.Content, &p.Level, &p.Position, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (r *procedureRepo) Save(ctx context.Context, tx repository.Tx, p *model.OperatingProcedure) error {
	const q = `
INSERT INTO operating_procedures (id, agent_id, tenant_id, title, content, level, position, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  title=$4, content=$5, level=$6, position=$7;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.AgentID, p.TenantID, p.Title, p.Content, p.Level, p.Position, p.CreatedAt)
	return err
}
