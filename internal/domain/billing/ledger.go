// internal/domain/billing/ledger.go
package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRecordNotFound  = errors.New("ledger record not found")
	ErrRecordExists    = errors.New("ledger record already exists")
	ErrAlreadyNotified = errors.New("ledger record already notified")
)

// LedgerRecord is the persisted dedup entry for one entity and one billing period.
// Once Notified is true the record is never touched again.
type LedgerRecord struct {
	Key           string
	Entity        string
	Variant       Variant
	PeriodStart   string
	PeriodEnd     string
	Minutes       int
	NoShowMinutes int
	Rate          decimal.Decimal
	AmountDue     decimal.Decimal
	Notified      bool
	CreatedAt     time.Time
	NotifiedAt    *time.Time
}

// LedgerKey returns "{entity}#{start}#{end}".
func LedgerKey(entity string, p Period) string {
	return entity + "#" + p.StartDate() + "#" + p.EndDate()
}

// Ledger is the single source of truth for whether a period was already billed.
type Ledger interface {
	// Lookup returns ErrRecordNotFound when the key was never written.
	Lookup(ctx context.Context, key string) (*LedgerRecord, error)
	// CreatePending inserts the record with Notified=false. The write is
	// conditional: an existing key yields ErrRecordExists and is left untouched.
	CreatePending(ctx context.Context, rec *LedgerRecord) error
	// MarkNotified flips Notified to true. It returns ErrAlreadyNotified when
	// another writer got there first and ErrRecordNotFound for unknown keys.
	MarkNotified(ctx context.Context, key string, at time.Time) error
}
