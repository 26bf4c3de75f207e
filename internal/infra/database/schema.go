package database

import (
	"context"
	"database/sql"
	"fmt"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	uid             TEXT PRIMARY KEY,
	entity          TEXT NOT NULL,
	variant         TEXT NOT NULL,
	period_start    DATE NOT NULL,
	period_end      DATE NOT NULL,
	minutes         INTEGER NOT NULL,
	no_show_minutes INTEGER NOT NULL DEFAULT 0,
	rate            NUMERIC NOT NULL,
	amount_due      NUMERIC(14,2) NOT NULL,
	processed_sms   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	notified_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_payment_ledger_period ON payment_ledger (period_start, period_end);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS payment_ledger (
	uid             TEXT PRIMARY KEY,
	entity          TEXT NOT NULL,
	variant         TEXT NOT NULL,
	period_start    TEXT NOT NULL,
	period_end      TEXT NOT NULL,
	minutes         INTEGER NOT NULL,
	no_show_minutes INTEGER NOT NULL DEFAULT 0,
	rate            TEXT NOT NULL,
	amount_due      TEXT NOT NULL,
	processed_sms   BOOLEAN NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	notified_at     TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_payment_ledger_period ON payment_ledger (period_start, period_end);
`

// Migrate creates the ledger table for the given dialect if it is missing.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	schema := sqliteSchema
	if d == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate payment_ledger: %w", err)
	}
	return nil
}
