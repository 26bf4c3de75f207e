// Package memledger keeps the dedup ledger in process memory. It backs local
// dry runs and tests; nothing survives a restart.
package memledger

import (
	"context"
	"sync"
	"time"

	"payment_reminder/internal/domain/billing"
)

type Ledger struct {
	mu      sync.Mutex
	records map[string]billing.LedgerRecord
}

func New() *Ledger {
	return &Ledger{records: make(map[string]billing.LedgerRecord)}
}

func (l *Ledger) Lookup(ctx context.Context, key string) (*billing.LedgerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return nil, billing.ErrRecordNotFound
	}
	return &rec, nil
}

func (l *Ledger) CreatePending(ctx context.Context, rec *billing.LedgerRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.records[rec.Key]; ok {
		return billing.ErrRecordExists
	}
	stored := *rec
	stored.Notified = false
	stored.NotifiedAt = nil
	l.records[rec.Key] = stored
	return nil
}

func (l *Ledger) MarkNotified(ctx context.Context, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[key]
	if !ok {
		return billing.ErrRecordNotFound
	}
	if rec.Notified {
		return billing.ErrAlreadyNotified
	}
	rec.Notified = true
	rec.NotifiedAt = &at
	l.records[key] = rec
	return nil
}

// Len reports how many records are stored.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
