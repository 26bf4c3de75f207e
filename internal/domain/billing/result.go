package billing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Aggregate holds the summed activity for one entity over a period.
type Aggregate struct {
	Name          string
	Minutes       int
	NoShowMinutes int
}

// Billable reports whether the entity had any activity at all.
func (a Aggregate) Billable() bool { return a.Minutes > 0 || a.NoShowMinutes > 0 }

// NotificationResult is the per-entity line of an invocation's output. It is
// never persisted.
type NotificationResult struct {
	Entity              string          `json:"entity"`
	Minutes             int             `json:"minutes"`
	NoShowMinutes       int             `json:"no_show_minutes,omitempty"`
	AmountDue           decimal.Decimal `json:"amount_due"`
	RecipientsAttempted int             `json:"recipients_attempted"`
	Delivered           bool            `json:"delivered"`
	Retried             bool            `json:"retried,omitempty"`
}

// MarshalJSON renders amount_due with exactly two decimals.
func (r NotificationResult) MarshalJSON() ([]byte, error) {
	type plain NotificationResult
	return json.Marshal(struct {
		plain
		AmountDue string `json:"amount_due"`
	}{plain(r), r.AmountDue.StringFixed(2)})
}
