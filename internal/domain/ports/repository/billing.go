package repository

import (
	"context"

	"tenant-ai-agents/internal/domain/model"
)

// UsageDelta is one task's or turn's contribution to the monthly ledger.
type UsageDelta struct {
	TenantID    string
	Period      string // "YYYY-MM"
	AgentID     string
	Model       string
	Tokens      int64
	BaseCents   int64
	BilledCents int64
}

// BillingRepository owns the per-tenant-per-month ledger. AddUsage must be
// an atomic increment under the (tenant, period) key: two concurrent
// deltas for the same key may never lose an update.
type BillingRepository interface {
	AddUsage(ctx context.Context, delta UsageDelta) error
	CurrentMonth(ctx context.Context, tx Tx, tenantID, period string) (*model.BillingLedgerEntry, error)
	History(ctx context.Context, tx Tx, tenantID string, months int) ([]*model.BillingLedgerEntry, error)
}
