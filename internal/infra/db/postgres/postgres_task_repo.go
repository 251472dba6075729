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

var _ repository.TaskRepository = (*taskRepo)(nil)

type taskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *taskRepo {
	return &taskRepo{pool: pool}
}

const taskColumns = `
id, agent_id, tenant_id, title, description, kind, context, status, priority,
retry_count, max_retries, error_msg, result, tokens_used, cost_cents, duration_ms,
cron_expr, timezone, next_run_at, last_run_at, created_at, updated_at`

func (r *taskRepo) Create(ctx context.Context, tx repository.Tx, t *model.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	ctxJSON, err := json.Marshal(t.Context)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22);`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.AgentID, t.TenantID, t.Title, t.Description, t.Kind, ctxJSON, t.Status, t.Priority,
		t.RetryCount, t.MaxRetries, t.ErrorMsg, t.Result, t.TokensUsed, t.CostCents, t.DurationMs,
		t.CronExpr, t.Timezone, t.NextRunAt, t.LastRunAt, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *taskRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTask(row)
}

// UpdateStatus writes the new status guarded by the task state machine:
// the UPDATE only matches rows whose current status may legally move to
// the target. Zero matched rows means either a missing task or an illegal
// transition; the follow-up SELECT tells the two apart.
func (r *taskRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TaskStatus, fields *repository.TaskResultFields) error {
	from := model.AllowedFrom(status)
	allowed := make([]string, 0, len(from))
	for _, s := range from {
		allowed = append(allowed, string(s))
	}

	var tag interface{ RowsAffected() int64 }
	var err error
	if fields != nil {
		const q = `
UPDATE tasks SET status=$2, result=$3, error_msg=$4, tokens_used=$5, cost_cents=$6,
       duration_ms=$7, updated_at=now()
 WHERE id=$1 AND status = ANY($8);`
		tag, err = execSQL(ctx, r.pool, tx, q, id, status,
			fields.Result, fields.ErrorMsg, fields.TokensUsed, fields.CostCents, fields.DurationMs, allowed)
	} else {
		const q = `UPDATE tasks SET status=$2, updated_at=now() WHERE id=$1 AND status = ANY($3);`
		tag, err = execSQL(ctx, r.pool, tx, q, id, status, allowed)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	row, err := pickRow(ctx, r.pool, tx, `SELECT status FROM tasks WHERE id=$1;`, id)
	if err != nil {
		return err
	}
	var cur string
	if err := row.Scan(&cur); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrInvalidTransition
}

func (r *taskRepo) IncrementRetry(ctx context.Context, tx repository.Tx, id string) (int, error) {
	const q = `UPDATE tasks SET retry_count = retry_count + 1, updated_at=now() WHERE id=$1 RETURNING retry_count;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return 0, err
	}
	var count int
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, domain.ErrReadDatabaseRow
	}
	return count, nil
}

func (r *taskRepo) ListDueScheduled(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Task, error) {
	const q = `
SELECT ` + taskColumns + `
  FROM tasks
 WHERE kind = 'scheduled' AND next_run_at IS NOT NULL AND next_run_at <= $1
 ORDER BY next_run_at
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *taskRepo) ListScheduled(ctx context.Context, tx repository.Tx, limit int) ([]*model.Task, error) {
	const q = `
SELECT ` + taskColumns + `
  FROM tasks
 WHERE kind = 'scheduled' AND cron_expr <> ''
 ORDER BY created_at
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *taskRepo) SetNextRun(ctx context.Context, tx repository.Tx, id string, nextRun, lastRun time.Time) error {
	const q = `UPDATE tasks SET next_run_at=$2, last_run_at=$3, updated_at=now() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, nextRun, lastRun)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var ctxJSON []byte
	err := row.Scan(
		&t.ID, &t.AgentID, &t.TenantID, &t.Title, &t.Description, &t.Kind, &ctxJSON, &t.Status, &t.Priority,
		&t.RetryCount, &t.MaxRetries, &t.ErrorMsg, &t.Result, &t.TokensUsed, &t.CostCents, &t.DurationMs,
		&t.CronExpr, &t.Timezone, &t.NextRunAt, &t.LastRunAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(ctxJSON) > 0 {
		if err := json.Unmarshal(ctxJSON, &t.Context); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &t, nil
}
