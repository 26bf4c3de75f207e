// internal/domain/billing/rates.go
package billing

import (
	"context"

	"github.com/shopspring/decimal"
)

// StandardTierBounds are the upper hour bounds of the first four weekly tiers.
// Anything at or above the last bound falls into the fifth tier.
var StandardTierBounds = []int64{2, 3, 4, 5}

// Tier is one hours-based rate bracket. A tier applies while total hours are
// strictly below BelowHours; the zero value of BelowHours marks the open-ended
// last tier.
type Tier struct {
	BelowHours decimal.Decimal
	Rate       decimal.Decimal
}

// Open reports whether the tier has no upper bound.
func (t Tier) Open() bool { return t.BelowHours.IsZero() }

// RateRow is one billable entity from the rate table.
type RateRow struct {
	Name         string // event name (weekly) or known tutor/student name (monthly)
	DocLink      string
	StandardRate decimal.Decimal
	Tiers        []Tier // ascending; empty in the monthly table
	Recipients   []string
}

// StandardTiers builds the five-bracket table <2, <3, <4, <5, else.
func StandardTiers(rates [5]decimal.Decimal) []Tier {
	tiers := make([]Tier, 0, len(rates))
	for i, bound := range StandardTierBounds {
		tiers = append(tiers, Tier{BelowHours: decimal.NewFromInt(bound), Rate: rates[i]})
	}
	return append(tiers, Tier{Rate: rates[len(rates)-1]})
}

// RateTable yields the current rate rows, in sheet order.
type RateTable interface {
	Load(ctx context.Context) ([]RateRow, error)
}
