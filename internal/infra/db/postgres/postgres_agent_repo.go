package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

var _ repository.AgentRepository = (*agentRepo)(nil)

type agentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *agentRepo {
	return &agentRepo{pool: pool}
}

// FindByID loads an agent and resolves its model's provider. An agent whose
// model maps to no known backend is unusable and rejected here rather than
// mid-task.
func (r *agentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Agent, error) {
	const q = `
SELECT id, tenant_id, name, model, temperature, max_tokens, system_prompt,
       allowed_tools, metadata, created_at, updated_at
  FROM agents WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var a model.Agent
	var metaJSON []byte
	err = row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Model, &a.Temperature, &a.MaxTokens,
		&a.SystemPrompt, &a.AllowedTools, &metaJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &a.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}

	prov, err := model.ResolveProvider(a.Model)
	if err != nil {
		return nil, err
	}
	a.Provider = prov
	return &a, nil
}

func (r *agentRepo) Save(ctx context.Context, tx repository.Tx, a *model.Agent) error {
	if _, err := model.ResolveProvider(a.Model); err != nil {
		return err
	}
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	a.UpdatedAt = time.Now()
	const q = `
INSERT INTO agents (id, tenant_id, name, model, temperature, max_tokens, system_prompt,
                    allowed_tools, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  name=$3, model=$4, temperature=$5, max_tokens=$6, system_prompt=$7,
  allowed_tools=$8, metadata=$9, updated_at=$11;`
	_, err = execSQL(ctx, r.pool, tx, q,
		a.ID, a.TenantID, a.Name, a.Model, a.Temperature, a.MaxTokens, a.SystemPrompt,
		a.AllowedTools, metaJSON, a.CreatedAt, a.UpdatedAt)
	return err
}
