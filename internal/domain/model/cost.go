package model

import (
	"time"

	"github.com/google/uuid"
)

// ModelPricing is one row of the refreshable pricing table. Rates are in
// currency units per 1000 tokens.
type ModelPricing struct {
	ID             string
	ModelName      string
	Provider       string
	CostPer1kIn    float64
	CostPer1kOut   float64
	ContextWindow  int
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewModelPricing(modelName, provider string, in, out float64, contextWindow int) *ModelPricing {
	now := time.Now()
	return &ModelPricing{
		ID:            uuid.NewString(),
		ModelName:     modelName,
		Provider:      provider,
		CostPer1kIn:   in,
		CostPer1kOut:  out,
		ContextWindow: contextWindow,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CostCalculation is the priced outcome of one provider call (or the sum
// of the calls of one turn). Never persisted standalone; it is attached to
// a message, a task, or a ledger row.
type CostCalculation struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	BaseCents    int64 // provider cost, rounded at the cents level
	BilledCents  int64 // base with markup, rounded again independently
	MarkupPct    float64
	DurationMs   int64
}

type LedgerStatus string

const (
	LedgerStatusPending  LedgerStatus = "pending"
	LedgerStatusInvoiced LedgerStatus = "invoiced"
	LedgerStatusPaid     LedgerStatus = "paid"
)

// BillingLedgerEntry aggregates one tenant's usage for one calendar month.
// Period is "YYYY-MM".
type BillingLedgerEntry struct {
	TenantID         string
	Period           string
	TotalTokens      int64
	TotalBaseCents   int64
	TotalBilledCents int64
	ByAgent          map[string]int64 // agent id -> billed cents
	ByModel          map[string]int64 // model name -> billed cents
	Status           LedgerStatus
	UpdatedAt        time.Time
}

// Period formats t as a ledger period key in the given location.
func Period(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("2006-01")
}
