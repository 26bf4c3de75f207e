// internal/domain/billing/period.go
package billing

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the YYYY-MM-DD form used in ledger keys and messages.
const DateLayout = "2006-01-02"

// Variant selects which billing calculation a run performs.
type Variant string

const (
	VariantWeekly  Variant = "weekly"  // per event name, tiered hourly rate
	VariantMonthly Variant = "monthly" // per calendar, flat rate incl. no-shows
)

// ParseVariant normalizes a configured variant name.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantWeekly:
		return VariantWeekly, nil
	case VariantMonthly:
		return VariantMonthly, nil
	default:
		return "", fmt.Errorf("unknown billing variant %q", s)
	}
}

// Period is an inclusive [Start, End] range of calendar days. Both bounds are
// midnight in the reference location.
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) StartDate() string { return p.Start.Format(DateLayout) }
func (p Period) EndDate() string   { return p.End.Format(DateLayout) }

// Days returns the number of calendar days covered, counting both ends.
func (p Period) Days() int {
	days := 0
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		days++
	}
	return days
}

// Window returns the instants bounding the period: start of the first day
// through 23:59:59 of the last day.
func (p Period) Window() (time.Time, time.Time) {
	from := time.Date(p.Start.Year(), p.Start.Month(), p.Start.Day(), 0, 0, 0, 0, p.Start.Location())
	to := time.Date(p.End.Year(), p.End.Month(), p.End.Day(), 23, 59, 59, 0, p.End.Location())
	return from, to
}

func (p Period) String() string {
	return "[" + p.StartDate() + ", " + p.EndDate() + "]"
}
