package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"tenant-ai-agents/internal/domain/model"
)

func TestCostTracker_PriceRounding(t *testing.T) {
	tr := NewCostTracker(newMemPricingRepo(), newMemBillingRepo(), 20, "", newTestLogger())

	tests := []struct {
		name       string
		model      string
		in, out    int
		wantBase   int64
		wantBilled int64
	}{
		{
			// raw = 0.0025 + 0.01 = 0.0125 units -> 1.25 cents -> base 1,
			// billed = round(1 * 1.2) = 1. Markup collapses on tiny calls
			// because rounding happens twice, not once on the raw figure.
			name: "small call rounds before markup", model: "gpt-4o",
			in: 1000, out: 1000, wantBase: 1, wantBilled: 1,
		},
		{
			// raw = 0.25 + 1.0 = 1.25 units -> base 125, billed 150.
			name: "large call carries markup", model: "gpt-4o",
			in: 100_000, out: 100_000, wantBase: 125, wantBilled: 150,
		},
		{
			name: "zero usage is free", model: "gpt-4o",
			in: 0, out: 0, wantBase: 0, wantBilled: 0,
		},
		{
			// gpt-4o-mini raw = 0.00015 + 0.0006 = 0.00075 -> 0.075 cents -> 0.
			name: "sub-cent call rounds to zero", model: "gpt-4o-mini",
			in: 1000, out: 1000, wantBase: 0, wantBilled: 0,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calc := tr.Price(context.Background(), tc.model, tc.in, tc.out)
			if calc.BaseCents != tc.wantBase {
				t.Errorf("BaseCents = %d, want %d", calc.BaseCents, tc.wantBase)
			}
			if calc.BilledCents != tc.wantBilled {
				t.Errorf("BilledCents = %d, want %d", calc.BilledCents, tc.wantBilled)
			}
			if calc.TotalTokens != tc.in+tc.out {
				t.Errorf("TotalTokens = %d, want %d", calc.TotalTokens, tc.in+tc.out)
			}
		})
	}
}

func TestCostTracker_UnknownModelFallsBackToDefault(t *testing.T) {
	tr := NewCostTracker(newMemPricingRepo(), newMemBillingRepo(), 20, "gpt-4o", newTestLogger())

	got := tr.Price(context.Background(), "some-experimental-model", 100_000, 100_000)
	want := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000)
	if got.BaseCents != want.BaseCents || got.BilledCents != want.BilledCents {
		t.Errorf("unknown model priced (%d, %d), want default rates (%d, %d)",
			got.BaseCents, got.BilledCents, want.BaseCents, want.BilledCents)
	}
	if got.Model != "some-experimental-model" {
		t.Errorf("Model = %q, want original name kept", got.Model)
	}
}

func TestCostTracker_RefreshSwapsTable(t *testing.T) {
	pricing := newMemPricingRepo(&model.ModelPricing{
		ModelName: "gpt-4o", Provider: "openai",
		CostPer1kIn: 0.005, CostPer1kOut: 0.02, Active: true,
	})
	tr := NewCostTracker(pricing, newMemBillingRepo(), 20, "", newTestLogger())

	before := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000)
	if before.BaseCents != 125 {
		t.Fatalf("builtin BaseCents = %d, want 125", before.BaseCents)
	}

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	after := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000)
	if after.BaseCents != 250 {
		t.Errorf("refreshed BaseCents = %d, want 250", after.BaseCents)
	}
}

func TestCostTracker_FailedRefreshKeepsTable(t *testing.T) {
	pricing := newMemPricingRepo(&model.ModelPricing{
		ModelName: "gpt-4o", Provider: "openai",
		CostPer1kIn: 0.005, CostPer1kOut: 0.02, Active: true,
	})
	tr := NewCostTracker(pricing, newMemBillingRepo(), 20, "", newTestLogger())
	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	pricing.listErr = errors.New("pricing source down")
	if err := tr.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh with failing source: want error")
	}

	// Previous table still serves reads.
	got := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000)
	if got.BaseCents != 250 {
		t.Errorf("BaseCents after failed refresh = %d, want 250", got.BaseCents)
	}
}

func TestCostTracker_RecordAggregatesLedger(t *testing.T) {
	billing := newMemBillingRepo()
	tr := NewCostTracker(newMemPricingRepo(), billing, 20, "", newTestLogger())
	ctx := context.Background()

	calc := tr.Price(ctx, "gpt-4o", 100_000, 100_000)
	if err := tr.Record(ctx, "tenant-1", "agent-1", "gpt-4o", calc); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := tr.Record(ctx, "tenant-1", "agent-2", "gpt-4o", calc); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, err := tr.CurrentMonthUsage(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("CurrentMonthUsage: %v", err)
	}
	if entry.TotalBilledCents != 2*calc.BilledCents {
		t.Errorf("TotalBilledCents = %d, want %d", entry.TotalBilledCents, 2*calc.BilledCents)
	}
	if entry.TotalTokens != 2*int64(calc.TotalTokens) {
		t.Errorf("TotalTokens = %d, want %d", entry.TotalTokens, 2*int64(calc.TotalTokens))
	}
	if entry.ByAgent["agent-1"] != calc.BilledCents || entry.ByAgent["agent-2"] != calc.BilledCents {
		t.Errorf("ByAgent breakdown = %v", entry.ByAgent)
	}
	if entry.ByModel["gpt-4o"] != 2*calc.BilledCents {
		t.Errorf("ByModel[gpt-4o] = %d, want %d", entry.ByModel["gpt-4o"], 2*calc.BilledCents)
	}

	if len(billing.deltas) != 2 {
		t.Fatalf("deltas recorded = %d, want 2", len(billing.deltas))
	}
	d := billing.deltas[0]
	if d.TenantID != "tenant-1" || d.Model != "gpt-4o" || d.BilledCents != calc.BilledCents {
		t.Errorf("delta = %+v", d)
	}
}

func TestCostTracker_StaleTableRefreshesOnClock(t *testing.T) {
	pricing := newMemPricingRepo(&model.ModelPricing{
		ModelName: "gpt-4o", Provider: "openai",
		CostPer1kIn: 0.005, CostPer1kOut: 0.02, Active: true,
	})
	tr := NewCostTracker(pricing, newMemBillingRepo(), 20, "", newTestLogger())

	start := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	clock := start
	tr.now = func() time.Time { return clock }

	if err := tr.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	pricing.mu.Lock()
	pricing.rows = []*model.ModelPricing{{
		ModelName: "gpt-4o", Provider: "openai",
		CostPer1kIn: 0.01, CostPer1kOut: 0.04, Active: true,
	}}
	pricing.mu.Unlock()

	clock = start.Add(30 * time.Minute)
	if got := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000).BaseCents; got != 250 {
		t.Fatalf("fresh table BaseCents = %d, want 250", got)
	}

	clock = start.Add(2 * time.Hour)
	if got := tr.Price(context.Background(), "gpt-4o", 100_000, 100_000).BaseCents; got != 500 {
		t.Errorf("stale table BaseCents = %d, want 500", got)
	}
}
