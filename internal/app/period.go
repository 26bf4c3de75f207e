// internal/app/period.go
package app

import (
	"time"

	"payment_reminder/internal/domain/billing"
)

// PreviousWeek returns the Sunday-Saturday week before the one containing now,
// evaluated in loc.
func PreviousWeek(now time.Time, loc *time.Location) billing.Period {
	today := dateIn(now, loc)
	daysSinceSunday := int(today.Weekday()) // time.Sunday == 0
	start := today.AddDate(0, 0, -(daysSinceSunday + 7))
	return billing.Period{Start: start, End: start.AddDate(0, 0, 6)}
}

// PreviousMonth returns the full calendar month before the one containing now,
// evaluated in loc.
func PreviousMonth(now time.Time, loc *time.Location) billing.Period {
	today := dateIn(now, loc)
	firstOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
	lastOfPrevious := firstOfThisMonth.AddDate(0, 0, -1)
	firstOfPrevious := time.Date(lastOfPrevious.Year(), lastOfPrevious.Month(), 1, 0, 0, 0, 0, loc)
	return billing.Period{Start: firstOfPrevious, End: lastOfPrevious}
}

// ResolvePeriod picks the billing period for the variant. It holds no state,
// so the same instant always yields the same period.
func ResolvePeriod(variant billing.Variant, now time.Time, loc *time.Location) billing.Period {
	if variant == billing.VariantMonthly {
		return PreviousMonth(now, loc)
	}
	return PreviousWeek(now, loc)
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
