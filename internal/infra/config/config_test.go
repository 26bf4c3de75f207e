package config

import (
	"testing"
	"time"

	"payment_reminder/internal/domain/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_WeeklyDefaults(t *testing.T) {
	cfg, err := fromEnv(env(map[string]string{
		"SECRETS_ARN":        "arn:aws:secretsmanager:us-east-1:1:secret:payments",
		"PAYMENT_TABLE_NAME": "payments",
		"SPREADSHEET_ID":     "sheet-1",
	}))
	require.NoError(t, err)

	assert.Equal(t, billing.VariantWeekly, cfg.Variant)
	assert.Equal(t, "America/Chicago", cfg.Location.String())
	assert.Equal(t, LedgerDynamoDB, cfg.LedgerBackend)
	assert.Equal(t, "payments", cfg.LedgerTable)
	assert.Equal(t, "Sheet1!A:O", cfg.SheetsRange)
	assert.Equal(t, []int{6}, cfg.PhoneColumns)
	assert.Equal(t, "0 9 * * 0", cfg.CronSpec)
	assert.Equal(t, 5*time.Minute, cfg.RunTimeout)
	assert.Equal(t, NotifierTwilio, cfg.Notifier)
	assert.False(t, cfg.NeedsSSM())
}

func TestFromEnv_MonthlyFromParameterStore(t *testing.T) {
	cfg, err := fromEnv(env(map[string]string{
		"VARIANT":                        "Monthly",
		"SECRETS_ARN":                    "arn",
		"TUTOR_PAYMENT_TABLE_NAME":       "tutor-payments",
		"GOOGLE_SHEETS_SSM_NAME":         "/payments/sheet",
		"PHONE_ENABLED_COLUMNS_SSM_NAME": "/payments/phones",
		"TUTOR_SALARY_RATE_SSM_NAME":     "/payments/rate",
	}))
	require.NoError(t, err)

	assert.Equal(t, billing.VariantMonthly, cfg.Variant)
	assert.Equal(t, "tutor-payments", cfg.LedgerTable)
	assert.Equal(t, "Sheet1!A:P", cfg.SheetsRange)
	assert.Empty(t, cfg.PhoneColumns)
	assert.Equal(t, "0 9 1 * *", cfg.CronSpec)
	assert.True(t, cfg.NeedsSSM())
}

func TestFromEnv_LocalBackends(t *testing.T) {
	cfg, err := fromEnv(env(map[string]string{
		"SECRETS_BACKEND":  "file",
		"LEDGER_BACKEND":   "sqlite",
		"CALENDAR_BACKEND": "ics",
		"RATES_BACKEND":    "yaml",
		"NOTIFIER":         "log",
		"PHONE_COLUMNS":    "2, 3,4",
	}))
	require.NoError(t, err)

	assert.Equal(t, "secrets.json", cfg.SecretsFile)
	assert.Equal(t, "./var/ledger.db", cfg.SQLitePath)
	assert.Equal(t, "ics_sources.yaml", cfg.ICSSourcesFile)
	assert.Equal(t, "rates.yaml", cfg.RatesFile)
	assert.Equal(t, []int{2, 3, 4}, cfg.PhoneColumns)
}

func TestFromEnv_Errors(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"SECRETS_ARN":        "arn",
			"PAYMENT_TABLE_NAME": "payments",
			"SPREADSHEET_ID":     "sheet",
		}
	}
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad variant", "VARIANT", "daily"},
		{"bad timezone", "TIMEZONE", "Mars/Olympus"},
		{"missing secret arn", "SECRETS_ARN", ""},
		{"missing table", "PAYMENT_TABLE_NAME", ""},
		{"missing sheet", "SPREADSHEET_ID", ""},
		{"unknown ledger", "LEDGER_BACKEND", "redis"},
		{"postgres without url", "LEDGER_BACKEND", "postgres"},
		{"bad columns", "PHONE_COLUMNS", "G"},
		{"bad notifier", "NOTIFIER", "pigeon"},
		{"bad timeout", "RUN_TIMEOUT", "soon"},
		{"monthly without rate", "VARIANT", "monthly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			m[tt.key] = tt.val
			if tt.key == "VARIANT" && tt.val == "monthly" {
				m["TUTOR_PAYMENT_TABLE_NAME"] = "tutor"
			}
			_, err := fromEnv(env(m))
			assert.Error(t, err)
		})
	}
}

func TestParseColumns(t *testing.T) {
	cols, err := ParseColumns("")
	require.NoError(t, err)
	assert.Nil(t, cols)

	cols, err = ParseColumns("6,,7")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 7}, cols)

	_, err = ParseColumns("-1")
	assert.Error(t, err)
}
