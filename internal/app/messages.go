package app

import (
	"fmt"

	"payment_reminder/internal/domain/billing"
)

// weeklyMessage renders the per-event reminder, e.g.
// "... is $75.00 (50*1.5)."
func weeklyMessage(business, paymentInfoURL string, rec *billing.LedgerRecord) string {
	calculation := fmt.Sprintf("(%s*%s)", rec.Rate.StringFixed(0), Hours(rec.Minutes).StringFixed(1))
	msg := fmt.Sprintf("Hello, the total due for %s with %s for last week (%s to %s) is $%s %s.",
		rec.Entity, business, rec.PeriodStart, rec.PeriodEnd, rec.AmountDue.StringFixed(2), calculation)
	if paymentInfoURL != "" {
		msg += "\n\nPayment info: " + paymentInfoURL
	}
	return msg
}

func monthlyMessage(rec *billing.LedgerRecord) string {
	rate := rec.Rate.String()
	return fmt.Sprintf("The total payment for %s from %s to %s due is $%s (%s*%s for sessions + %s*%s for no-shows).",
		rec.Entity, rec.PeriodStart, rec.PeriodEnd, rec.AmountDue.StringFixed(2),
		rate, Hours(rec.Minutes).StringFixed(1), rate, Hours(rec.NoShowMinutes).StringFixed(1))
}

func successMessage(variant billing.Variant, business string) string {
	if variant == billing.VariantMonthly {
		return business + " Tutor Payment Reminder executed successfully"
	}
	return business + " Payment Reminder executed successfully"
}
