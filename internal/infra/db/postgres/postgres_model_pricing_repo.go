package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"tenant-ai-agents/internal/domain"
	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

var _ repository.ModelPricingRepository = (*modelPricingRepo)(nil)

type modelPricingRepo struct {
	pool *pgxpool.Pool
}

func NewModelPricingRepo(pool *pgxpool.Pool) *modelPricingRepo {
	return &modelPricingRepo{pool: pool}
}

func (r *modelPricingRepo) GetByModelName(ctx context.Context, tx repository.Tx, name string) (*model.ModelPricing, error) {
	const q = `
SELECT id, model_name, provider, cost_per_1k_in, cost_per_1k_out, context_window, active, created_at, updated_at
  FROM model_pricing WHERE model_name=$1 AND active;`
	row, err := pickRow(ctx, r.pool, tx, q, name)
	if err != nil {
		return nil, err
	}
	return scanPricing(row)
}

func (r *modelPricingRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.ModelPricing, error) {
	const q = `
SELECT id, model_name, provider, cost_per_1k_in, cost_per_1k_out, context_window, active, created_at, updated_at
  FROM model_pricing WHERE active ORDER BY model_name;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ModelPricing
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *modelPricingRepo) Create(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	const q = `
INSERT INTO model_pricing (id, model_name, provider, cost_per_1k_in, cost_per_1k_out, context_window, active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ModelName, p.Provider, p.CostPer1kIn, p.CostPer1kOut, p.ContextWindow, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *modelPricingRepo) Update(ctx context.Context, tx repository.Tx, p *model.ModelPricing) error {
	p.UpdatedAt = time.Now()
	const q = `
UPDATE model_pricing
   SET provider=$3, cost_per_1k_in=$4, cost_per_1k_out=$5, context_window=$6, active=$7, updated_at=$8
 WHERE id=$1 AND model_name=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.ModelName, p.Provider, p.CostPer1kIn, p.CostPer1kOut, p.ContextWindow, p.Active, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanPricing(row pgx.Row) (*model.ModelPricing, error) {
	var p model.ModelPricing
	err := row.Scan(&p.ID, &p.ModelName, &p.Provider, &p.CostPer1kIn, &p.CostPer1kOut,
		&p.ContextWindow, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return &p, nil
}
