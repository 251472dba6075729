package repository

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

// ModelPricingRepository is the refreshable pricing source.
type ModelPricingRepository interface {
	GetByModelName(ctx context.Context, tx Tx, modelName string) (*model.ModelPricing, error)
	ListActive(ctx context.Context, tx Tx) ([]*model.ModelPricing, error)
	Create(ctx context.Context, tx Tx, p *model.ModelPricing) error
	Update(ctx context.Context, tx Tx, p *model.ModelPricing) error
}
