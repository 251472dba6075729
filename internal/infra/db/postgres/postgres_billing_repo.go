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

var _ repository.BillingRepository = (*billingRepo)(nil)

type billingRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewBillingRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *billingRepo {
	return &billingRepo{pool: pool, tm: tm}
}

// AddUsage increments the tenant's monthly ledger row inside a transaction.
// The row is created first with ON CONFLICT DO NOTHING so the following
// SELECT FOR UPDATE always has a row to lock; without that, two first-of-the-
// month writers would both read zero and the later commit would drop the
// earlier delta. Concurrent deltas for the same (tenant, period) serialize
// on the row lock.
func (r *billingRepo) AddUsage(ctx context.Context, delta repository.UsageDelta) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const ensureQuery = `
INSERT INTO billing_ledger (tenant_id, period, total_tokens, total_base_cents, total_billed_cents,
                            by_agent, by_model, status, updated_at)
VALUES ($1,$2,0,0,0,'{}','{}',$3,$4)
ON CONFLICT (tenant_id, period) DO NOTHING;`
		if _, err := execSQL(ctx, r.pool, tx, ensureQuery,
			delta.TenantID, delta.Period, model.LedgerStatusPending, time.Now()); err != nil {
			return err
		}

		const lockQuery = `
SELECT total_tokens, total_base_cents, total_billed_cents, by_agent, by_model, status
  FROM billing_ledger
 WHERE tenant_id=$1 AND period=$2
 FOR UPDATE;`

		entry := &model.BillingLedgerEntry{
			TenantID: delta.TenantID,
			Period:   delta.Period,
			ByAgent:  map[string]int64{},
			ByModel:  map[string]int64{},
		}

		row, err := pickRow(ctx, r.pool, tx, lockQuery, delta.TenantID, delta.Period)
		if err != nil {
			return err
		}
		var agentJSON, modelJSON []byte
		err = row.Scan(&entry.TotalTokens, &entry.TotalBaseCents, &entry.TotalBilledCents,
			&agentJSON, &modelJSON, &entry.Status)
		if err != nil {
			return domain.ErrReadDatabaseRow
		}
		if len(agentJSON) > 0 {
			if err := json.Unmarshal(agentJSON, &entry.ByAgent); err != nil {
				return domain.ErrReadDatabaseRow
			}
		}
		if len(modelJSON) > 0 {
			if err := json.Unmarshal(modelJSON, &entry.ByModel); err != nil {
				return domain.ErrReadDatabaseRow
			}
		}

		entry.TotalTokens += delta.Tokens
		entry.TotalBaseCents += delta.BaseCents
		entry.TotalBilledCents += delta.BilledCents
		if delta.AgentID != "" {
			entry.ByAgent[delta.AgentID] += delta.BilledCents
		}
		if delta.Model != "" {
			entry.ByModel[delta.Model] += delta.BilledCents
		}
		entry.UpdatedAt = time.Now()

		return r.update(ctx, tx, entry)
	})
}

func (r *billingRepo) update(ctx context.Context, tx repository.Tx, e *model.BillingLedgerEntry) error {
	agentJSON, err := json.Marshal(e.ByAgent)
	if err != nil {
		return err
	}
	modelJSON, err := json.Marshal(e.ByModel)
	if err != nil {
		return err
	}
	const q = `
UPDATE billing_ledger
   SET total_tokens=$3, total_base_cents=$4, total_billed_cents=$5,
       by_agent=$6, by_model=$7, updated_at=$8
 WHERE tenant_id=$1 AND period=$2;`
	_, err = execSQL(ctx, r.pool, tx, q,
		e.TenantID, e.Period, e.TotalTokens, e.TotalBaseCents, e.TotalBilledCents,
		agentJSON, modelJSON, e.UpdatedAt)
	return err
}

func (r *billingRepo) CurrentMonth(ctx context.Context, tx repository.Tx, tenantID, period string) (*model.BillingLedgerEntry, error) {
	const q = `
SELECT tenant_id, period, total_tokens, total_base_cents, total_billed_cents,
       by_agent, by_model, status, updated_at
  FROM billing_ledger
 WHERE tenant_id=$1 AND period=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, tenantID, period)
	if err != nil {
		return nil, err
	}
	return scanLedger(row)
}

func (r *billingRepo) History(ctx context.Context, tx repository.Tx, tenantID string, months int) ([]*model.BillingLedgerEntry, error) {
	const q = `
SELECT tenant_id, period, total_tokens, total_base_cents, total_billed_cents,
       by_agent, by_model, status, updated_at
  FROM billing_ledger
 WHERE tenant_id=$1
 ORDER BY period DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, tenantID, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BillingLedgerEntry
	for rows.Next() {
		e, err := scanLedger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanLedger(row pgx.Row) (*model.BillingLedgerEntry, error) {
	var e model.BillingLedgerEntry
	var agentJSON, modelJSON []byte
	err := row.Scan(&e.TenantID, &e.Period, &e.TotalTokens, &e.TotalBaseCents, &e.TotalBilledCents,
		&agentJSON, &modelJSON, &e.Status, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(agentJSON) > 0 {
		if err := json.Unmarshal(agentJSON, &e.ByAgent); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(modelJSON) > 0 {
		if err := json.Unmarshal(modelJSON, &e.ByModel); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &e, nil
}
