package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

// fakeLedgerDB emulates the billing_ledger table with Postgres locking
// semantics: SELECT FOR UPDATE blocks on a per-row mutex held until the
// transaction ends, and a FOR UPDATE over a missing row takes no lock at
// all. That last detail is what makes first-of-the-month races observable.
type fakeLedgerDB struct {
	mu   sync.Mutex
	rows map[string]*ledgerRow
}

type ledgerRow struct {
	mu          sync.Mutex
	tokens      int64
	baseCents   int64
	billedCents int64
	byAgent     []byte
	byModel     []byte
	status      model.LedgerStatus
}

func newFakeLedgerDB() *fakeLedgerDB {
	return &fakeLedgerDB{rows: map[string]*ledgerRow{}}
}

func (db *fakeLedgerDB) row(key string) *ledgerRow {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.rows[key]
}

type fakeTxManager struct {
	db *fakeLedgerDB
}

func (m *fakeTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx := &ledgerTx{db: m.db}
	err := fn(ctx, tx)
	tx.release()
	return err
}

// ledgerTx implements the slice of pgx.Tx the billing repo exercises.
// Embedding the interface leaves the rest as nil-panic stubs.
type ledgerTx struct {
	pgx.Tx
	db   *fakeLedgerDB
	held []*ledgerRow
}

func (t *ledgerTx) release() {
	for _, r := range t.held {
		r.mu.Unlock()
	}
	t.held = nil
}

func ledgerKey(args []interface{}) string {
	return args[0].(string) + "|" + args[1].(string)
}

func (t *ledgerTx) Exec(_ context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(sql, "DO NOTHING"):
		key := ledgerKey(args)
		t.db.mu.Lock()
		if _, ok := t.db.rows[key]; !ok {
			t.db.rows[key] = &ledgerRow{
				byAgent: []byte("{}"),
				byModel: []byte("{}"),
				status:  args[2].(model.LedgerStatus),
			}
		}
		t.db.mu.Unlock()
	case strings.Contains(sql, "UPDATE billing_ledger"):
		row := t.db.row(ledgerKey(args))
		if row == nil {
			return nil, pgx.ErrNoRows
		}
		row.tokens = args[2].(int64)
		row.baseCents = args[3].(int64)
		row.billedCents = args[4].(int64)
		row.byAgent = args[5].([]byte)
		row.byModel = args[6].([]byte)
	default:
		return nil, fmt.Errorf("unexpected exec: %s", sql)
	}
	return nil, nil
}

func (t *ledgerTx) QueryRow(_ context.Context, sql string, args ...interface{}) pgx.Row {
	if !strings.Contains(sql, "FOR UPDATE") {
		return fakeRow{err: fmt.Errorf("unexpected query: %s", sql)}
	}
	row := t.db.row(ledgerKey(args))
	if row == nil {
		// No row, no lock. Mirrors Postgres exactly.
		return fakeRow{err: pgx.ErrNoRows}
	}
	row.mu.Lock()
	t.held = append(t.held, row)
	return fakeRow{vals: []interface{}{
		row.tokens, row.baseCents, row.billedCents, row.byAgent, row.byModel, row.status,
	}}
}

type fakeRow struct {
	err  error
	vals []interface{}
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch d := d.(type) {
		case *int64:
			*d = r.vals[i].(int64)
		case *[]byte:
			*d = r.vals[i].([]byte)
		case *model.LedgerStatus:
			*d = r.vals[i].(model.LedgerStatus)
		default:
			return fmt.Errorf("unexpected scan target %T", d)
		}
	}
	return nil
}

func TestBillingRepoConcurrentFirstUse(t *testing.T) {
	db := newFakeLedgerDB()
	repo := NewBillingRepo(nil, &fakeTxManager{db: db})

	const writers = 16
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.AddUsage(context.Background(), repository.UsageDelta{
				TenantID:    "t1",
				Period:      "2026-08",
				AgentID:     fmt.Sprintf("agent-%d", i%4),
				Model:       "gpt-4o",
				Tokens:      10,
				BaseCents:   5,
				BilledCents: 6,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddUsage: %v", err)
		}
	}

	row := db.row("t1|2026-08")
	if row == nil {
		t.Fatal("ledger row was never created")
	}
	if row.tokens != writers*10 {
		t.Errorf("tokens = %d, want %d", row.tokens, writers*10)
	}
	if row.baseCents != writers*5 {
		t.Errorf("base cents = %d, want %d", row.baseCents, writers*5)
	}
	if row.billedCents != writers*6 {
		t.Errorf("billed cents = %d, want %d", row.billedCents, writers*6)
	}

	var byAgent map[string]int64
	if err := json.Unmarshal(row.byAgent, &byAgent); err != nil {
		t.Fatalf("by_agent: %v", err)
	}
	for i := 0; i < 4; i++ {
		key := fmt.Sprintf("agent-%d", i)
		if byAgent[key] != 4*6 {
			t.Errorf("by_agent[%s] = %d, want %d", key, byAgent[key], 4*6)
		}
	}
}

func TestBillingRepoAccumulatesAcrossCalls(t *testing.T) {
	db := newFakeLedgerDB()
	repo := NewBillingRepo(nil, &fakeTxManager{db: db})
	ctx := context.Background()

	deltas := []repository.UsageDelta{
		{TenantID: "t1", Period: "2026-08", AgentID: "a1", Model: "gpt-4o", Tokens: 100, BaseCents: 12, BilledCents: 15},
		{TenantID: "t1", Period: "2026-08", AgentID: "a2", Model: "gemini-2.0-flash", Tokens: 40, BaseCents: 4, BilledCents: 5},
	}
	for _, d := range deltas {
		if err := repo.AddUsage(ctx, d); err != nil {
			t.Fatalf("AddUsage: %v", err)
		}
	}

	row := db.row("t1|2026-08")
	if row.tokens != 140 || row.baseCents != 16 || row.billedCents != 20 {
		t.Errorf("totals = %d/%d/%d, want 140/16/20", row.tokens, row.baseCents, row.billedCents)
	}
	if row.status != model.LedgerStatusPending {
		t.Errorf("status = %q, want pending", row.status)
	}

	var byModel map[string]int64
	if err := json.Unmarshal(row.byModel, &byModel); err != nil {
		t.Fatalf("by_model: %v", err)
	}
	if byModel["gpt-4o"] != 15 || byModel["gemini-2.0-flash"] != 5 {
		t.Errorf("by_model = %v", byModel)
	}
}
