// internal/infra/database/ledger_repository.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"payment_reminder/internal/domain/billing"
)

// Dialect selects placeholder style and schema.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

type ledgerQueries struct {
	lookup       string
	insert       string
	markNotified string
}

var queriesByDialect = map[Dialect]ledgerQueries{
	DialectPostgres: {
		lookup: `SELECT uid, entity, variant, period_start::text, period_end::text, minutes, no_show_minutes,
                        rate, amount_due, processed_sms, created_at, notified_at
                 FROM payment_ledger WHERE uid = $1`,
		insert: `INSERT INTO payment_ledger (uid, entity, variant, period_start, period_end, minutes, no_show_minutes,
                        rate, amount_due, processed_sms, created_at)
                 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, $10)
                 ON CONFLICT (uid) DO NOTHING`,
		markNotified: `UPDATE payment_ledger SET processed_sms = TRUE, notified_at = $2
                       WHERE uid = $1 AND processed_sms = FALSE`,
	},
	DialectSQLite: {
		lookup: `SELECT uid, entity, variant, period_start, period_end, minutes, no_show_minutes,
                        rate, amount_due, processed_sms, created_at, notified_at
                 FROM payment_ledger WHERE uid = ?`,
		insert: `INSERT INTO payment_ledger (uid, entity, variant, period_start, period_end, minutes, no_show_minutes,
                        rate, amount_due, processed_sms, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
                 ON CONFLICT (uid) DO NOTHING`,
		markNotified: `UPDATE payment_ledger SET processed_sms = 1, notified_at = ?
                       WHERE uid = ? AND processed_sms = 0`,
	},
}

// LedgerRepository stores ledger records in PostgreSQL or SQLite. Conditional
// create relies on the primary key, so concurrent runs cannot both insert.
type LedgerRepository struct {
	db      *sql.DB
	dialect Dialect
	q       ledgerQueries
}

func NewLedgerRepository(db *sql.DB, dialect Dialect) *LedgerRepository {
	return &LedgerRepository{db: db, dialect: dialect, q: queriesByDialect[dialect]}
}

func (r *LedgerRepository) Lookup(ctx context.Context, key string) (*billing.LedgerRecord, error) {
	rec := billing.LedgerRecord{}
	var variant string
	var notifiedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, r.q.lookup, key).Scan(
		&rec.Key, &rec.Entity, &variant, &rec.PeriodStart, &rec.PeriodEnd, &rec.Minutes, &rec.NoShowMinutes,
		&rec.Rate, &rec.AmountDue, &rec.Notified, &rec.CreatedAt, &notifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, billing.ErrRecordNotFound
		}
		return nil, fmt.Errorf("error getting ledger record %s: %w", key, err)
	}
	rec.Variant = billing.Variant(variant)
	if notifiedAt.Valid {
		t := notifiedAt.Time
		rec.NotifiedAt = &t
	}
	return &rec, nil
}

func (r *LedgerRepository) CreatePending(ctx context.Context, rec *billing.LedgerRecord) error {
	res, err := r.db.ExecContext(ctx, r.q.insert,
		rec.Key, rec.Entity, string(rec.Variant), rec.PeriodStart, rec.PeriodEnd, rec.Minutes, rec.NoShowMinutes,
		rec.Rate, rec.AmountDue, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error creating ledger record %s: %w", rec.Key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading insert result for %s: %w", rec.Key, err)
	}
	if n == 0 {
		return billing.ErrRecordExists
	}
	return nil
}

func (r *LedgerRepository) MarkNotified(ctx context.Context, key string, at time.Time) error {
	var res sql.Result
	var err error
	if r.dialect == DialectPostgres {
		res, err = r.db.ExecContext(ctx, r.q.markNotified, key, at.UTC())
	} else {
		res, err = r.db.ExecContext(ctx, r.q.markNotified, at.UTC(), key)
	}
	if err != nil {
		return fmt.Errorf("error marking ledger record %s notified: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading update result for %s: %w", key, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: either the key is unknown or someone else flipped it.
	if _, err := r.Lookup(ctx, key); err != nil {
		return err
	}
	return billing.ErrAlreadyNotified
}
