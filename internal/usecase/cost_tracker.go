package usecase

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tenant-ai-agents/internal/domain/model"
	"tenant-ai-agents/internal/domain/ports/repository"
)

const (
	// DefaultMarkupPct is applied to the base provider cost before billing
	// the tenant.
	DefaultMarkupPct = 20.0

	defaultFallbackModel = "gpt-4o-mini"
	pricingRefreshEvery  = time.Hour
)

// builtinPricing keeps the tracker functional when the pricing source is
// unreachable at startup. Rates are currency units per 1k tokens.
var builtinPricing = map[string]*model.ModelPricing{
	"gpt-4o":           {ModelName: "gpt-4o", Provider: "openai", CostPer1kIn: 0.0025, CostPer1kOut: 0.01, ContextWindow: 128000, Active: true},
	"gpt-4o-mini":      {ModelName: "gpt-4o-mini", Provider: "openai", CostPer1kIn: 0.00015, CostPer1kOut: 0.0006, ContextWindow: 128000, Active: true},
	"gemini-2.0-flash": {ModelName: "gemini-2.0-flash", Provider: "gemini", CostPer1kIn: 0.0001, CostPer1kOut: 0.0004, ContextWindow: 1048576, Active: true},
	"gemini-1.5-pro":   {ModelName: "gemini-1.5-pro", Provider: "gemini", CostPer1kIn: 0.00125, CostPer1kOut: 0.005, ContextWindow: 2097152, Active: true},
}

type pricingTable struct {
	byModel  map[string]*model.ModelPricing
	loadedAt time.Time
}

// CostTracker prices provider usage and aggregates billed cost into the
// monthly ledger. The pricing table is read-mostly: refreshes swap the
// whole table atomically so concurrent readers never see a partial update.
type CostTracker struct {
	pricing      repository.ModelPricingRepository
	billing      repository.BillingRepository
	table        atomic.Pointer[pricingTable]
	markupPct    float64
	defaultModel string
	now          func() time.Time
	log          *zerolog.Logger
}

func NewCostTracker(
	pricing repository.ModelPricingRepository,
	billing repository.BillingRepository,
	markupPct float64,
	defaultModel string,
	logger *zerolog.Logger,
) *CostTracker {
	if markupPct <= 0 {
		markupPct = DefaultMarkupPct
	}
	if defaultModel == "" {
		defaultModel = defaultFallbackModel
	}
	l := logger.With().Str("component", "CostTracker").Logger()
	t := &CostTracker{
		pricing:      pricing,
		billing:      billing,
		markupPct:    markupPct,
		defaultModel: defaultModel,
		now:          time.Now,
		log:          &l,
	}
	t.table.Store(&pricingTable{byModel: builtinPricing})
	return t
}

// Refresh reloads the pricing table from the persistent source. A failed
// refresh keeps the previous table.
func (t *CostTracker) Refresh(ctx context.Context) error {
	rows, err := t.pricing.ListActive(ctx, repository.NoTX)
	if err != nil {
		t.log.Warn().Err(err).Msg("pricing refresh failed, keeping previous table")
		return err
	}
	byModel := make(map[string]*model.ModelPricing, len(rows))
	for _, r := range rows {
		byModel[strings.ToLower(r.ModelName)] = r
	}
	if len(byModel) == 0 {
		byModel = builtinPricing
	}
	t.table.Store(&pricingTable{byModel: byModel, loadedAt: t.now()})
	return nil
}

func (t *CostTracker) rates(ctx context.Context, modelName string) *model.ModelPricing {
	tbl := t.table.Load()
	if t.now().Sub(tbl.loadedAt) > pricingRefreshEvery {
		// Stale table; best-effort refresh, readers keep working either way.
		if err := t.Refresh(ctx); err == nil {
			tbl = t.table.Load()
		}
	}
	if p, ok := tbl.byModel[strings.ToLower(modelName)]; ok {
		return p
	}
	if p, ok := builtinPricing[strings.ToLower(modelName)]; ok {
		return p
	}
	// Entirely unknown model: bill at the default model's rates. Loud on
	// purpose, a silent zero price would under-bill forever.
	t.log.Warn().Str("model", modelName).Str("fallback", t.defaultModel).Msg("unknown model, pricing at default model rates")
	if p, ok := tbl.byModel[strings.ToLower(t.defaultModel)]; ok {
		return p
	}
	return builtinPricing[defaultFallbackModel]
}

// Price computes base and billed cost for one call's usage using the
// configured markup.
func (t *CostTracker) Price(ctx context.Context, modelName string, inputTokens, outputTokens int) model.CostCalculation {
	return t.PriceWithMarkup(ctx, modelName, inputTokens, outputTokens, t.markupPct)
}

// PriceWithMarkup is Price with an explicit markup percentage. Base cost is
// rounded at the cents level, and the billed figure is rounded again after
// markup; the two roundings are independent and must stay that way for
// billing reproducibility.
func (t *CostTracker) PriceWithMarkup(ctx context.Context, modelName string, inputTokens, outputTokens int, markupPct float64) model.CostCalculation {
	r := t.rates(ctx, modelName)
	raw := float64(inputTokens)/1000*r.CostPer1kIn + float64(outputTokens)/1000*r.CostPer1kOut
	base := int64(math.Round(raw * 100))
	billed := int64(math.Round(float64(base) * (1 + markupPct/100)))
	return model.CostCalculation{
		Model:        modelName,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalTokens:  inputTokens + outputTokens,
		BaseCents:    base,
		BilledCents:  billed,
		MarkupPct:    markupPct,
	}
}

// Record applies one usage delta to the tenant's current-month ledger.
func (t *CostTracker) Record(ctx context.Context, tenantID, agentID, modelName string, calc model.CostCalculation) error {
	return t.billing.AddUsage(ctx, repository.UsageDelta{
		TenantID:    tenantID,
		Period:      model.Period(t.now(), nil),
		AgentID:     agentID,
		Model:       modelName,
		Tokens:      int64(calc.TotalTokens),
		BaseCents:   calc.BaseCents,
		BilledCents: calc.BilledCents,
	})
}

func (t *CostTracker) CurrentMonthUsage(ctx context.Context, tenantID string) (*model.BillingLedgerEntry, error) {
	return t.billing.CurrentMonth(ctx, repository.NoTX, tenantID, model.Period(t.now(), nil))
}

func (t *CostTracker) History(ctx context.Context, tenantID string, months int) ([]*model.BillingLedgerEntry, error) {
	return t.billing.History(ctx, repository.NoTX, tenantID, months)
}
