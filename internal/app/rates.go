// internal/app/rates.go
package app

import (
	"github.com/shopspring/decimal"

	"payment_reminder/internal/domain/billing"
)

var minutesPerHour = decimal.NewFromInt(60)

// Hours converts minutes to fractional hours.
func Hours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(minutesPerHour)
}

// SelectTier returns the first tier whose bound is strictly above hours, or the
// open-ended tier. Exactly 2.0 hours therefore lands in the second tier.
// Rows without tiers fall back to the standard rate.
func SelectTier(row billing.RateRow, minutes int) decimal.Decimal {
	hours := Hours(minutes)
	for _, t := range row.Tiers {
		if t.Open() || hours.LessThan(t.BelowHours) {
			return t.Rate
		}
	}
	return row.StandardRate
}

// TieredAmount is the weekly policy: hours times the selected tier rate.
func TieredAmount(row billing.RateRow, minutes int) (rate, amount decimal.Decimal) {
	rate = SelectTier(row, minutes)
	return rate, roundCents(decimal.NewFromInt(int64(minutes)).Mul(rate).Div(minutesPerHour))
}

// FlatAmount is the monthly policy: session and no-show time billed alike.
func FlatAmount(rate decimal.Decimal, agg billing.Aggregate) decimal.Decimal {
	minutes := decimal.NewFromInt(int64(agg.Minutes + agg.NoShowMinutes))
	return roundCents(minutes.Mul(rate).Div(minutesPerHour))
}

func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
