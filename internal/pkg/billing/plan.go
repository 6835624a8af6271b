package billing

import (
	"math"
	"strings"
	"time"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/config"
)

const day = 24 * time.Hour

// Plan is a purchasable plan with its expected price.
type Plan struct {
	Kind     string
	Price    float64
	Duration time.Duration
}

// Catalog resolves plan kinds and validates amounts against prices.
type Catalog struct {
	plans     map[string]Plan
	tolerance float64
}

// NewCatalog builds the catalog from configuration.
func NewCatalog(cfg config.PlanConfig) *Catalog {
	return &Catalog{
		plans: map[string]Plan{
			models.PlanMonthly:  {Kind: models.PlanMonthly, Price: cfg.MonthlyPrice, Duration: time.Duration(cfg.MonthlyDays) * day},
			models.PlanAnnual:   {Kind: models.PlanAnnual, Price: cfg.AnnualPrice, Duration: time.Duration(cfg.AnnualDays) * day},
			models.PlanLifetime: {Kind: models.PlanLifetime, Price: cfg.LifetimePrice},
			models.PlanTrial:    {Kind: models.PlanTrial, Price: cfg.TrialPrice, Duration: time.Duration(cfg.TrialDays) * day},
		},
		tolerance: cfg.Tolerance,
	}
}

// Lookup returns the plan for kind after normalization.
func (c *Catalog) Lookup(kind string) (Plan, bool) {
	p, ok := c.plans[normalizePlan(kind)]
	return p, ok
}

// PriceMatches reports whether amount equals the plan price within tolerance.
func (c *Catalog) PriceMatches(p Plan, amount float64) bool {
	return math.Abs(amount-p.Price) <= c.tolerance+1e-9
}

// MatchAmount returns the only paid plan whose price matches amount.
func (c *Catalog) MatchAmount(amount float64) (Plan, bool) {
	var found []Plan
	for _, p := range c.plans {
		if p.Price > 0 && c.PriceMatches(p, amount) {
			found = append(found, p)
		}
	}
	if len(found) != 1 {
		return Plan{}, false
	}
	return found[0], true
}

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case "monthly", "month", "mensual":
		return models.PlanMonthly
	case "annual", "yearly", "year", "anual":
		return models.PlanAnnual
	case "lifetime", "vitalicio":
		return models.PlanLifetime
	case "trial", "prueba":
		return models.PlanTrial
	default:
		return ""
	}
}

// Provider status classes.
const (
	providerPaid    = "paid"
	providerFailed  = "failed"
	providerPending = "pending"
)

func normalizeProviderStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "approved", "success", "succeeded", "paid", "":
		return providerPaid
	case "failed", "declined", "error", "rejected", "cancelled", "canceled":
		return providerFailed
	case "pending", "processing":
		return providerPending
	default:
		return ""
	}
}
