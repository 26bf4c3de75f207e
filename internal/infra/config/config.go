package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"payment_reminder/internal/domain/billing"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Backend names accepted by the *_BACKEND settings.
const (
	SecretsAWS  = "aws"
	SecretsFile = "file"

	LedgerDynamoDB = "dynamodb"
	LedgerPostgres = "postgres"
	LedgerSQLite   = "sqlite"
	LedgerMemory   = "memory"

	CalendarGoogle = "google"
	CalendarICS    = "ics"

	RatesSheets = "sheets"
	RatesYAML   = "yaml"

	NotifierTwilio   = "twilio"
	NotifierTelegram = "telegram"
	NotifierLog      = "log"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	Variant     billing.Variant
	LogLevel    string
	Environment string
	Timezone    string
	Location    *time.Location

	SecretsBackend string
	SecretsARN     string
	SecretsFile    string

	LedgerBackend string
	LedgerTable   string // DynamoDB table name
	DatabaseURL   string
	SQLitePath    string

	CalendarBackend string
	ICSSourcesFile  string

	RatesBackend         string
	RatesFile            string
	SpreadsheetID        string
	SpreadsheetIDParam   string // SSM parameter name
	SheetsRange          string
	PhoneColumns         []int
	PhoneColumnsParam    string // SSM parameter name
	TutorSalaryRate      decimal.Decimal
	TutorSalaryRateParam string // SSM parameter name
	NoShowMarker         string
	PaymentInfoURL       string
	BusinessName         string

	Notifier string

	CronSpec   string
	HTTPAddr   string
	RunTimeout time.Duration
}

// NeedsSSM reports whether any value must still be resolved from Parameter Store.
func (c *AppConfig) NeedsSSM() bool {
	return (c.SpreadsheetID == "" && c.SpreadsheetIDParam != "") ||
		(len(c.PhoneColumns) == 0 && c.PhoneColumnsParam != "") ||
		(c.TutorSalaryRate.IsZero() && c.TutorSalaryRateParam != "")
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Errors are ignored if the file doesn't exist; existing env variables win.
	_ = godotenv.Load()
	return fromEnv(os.Getenv)
}

func fromEnv(getenv func(string) string) (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg.Variant, err = billing.ParseVariant(get("VARIANT", string(billing.VariantWeekly)))
	if err != nil {
		return nil, fmt.Errorf("invalid VARIANT: %w", err)
	}
	monthly := cfg.Variant == billing.VariantMonthly

	cfg.LogLevel = strings.ToLower(get("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(get("ENVIRONMENT", "development"))

	cfg.Timezone = get("TIMEZONE", "America/Chicago")
	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	cfg.SecretsBackend = strings.ToLower(get("SECRETS_BACKEND", SecretsAWS))
	cfg.SecretsARN = get("SECRETS_ARN", "")
	cfg.SecretsFile = get("SECRETS_FILE", "secrets.json")
	switch cfg.SecretsBackend {
	case SecretsAWS:
		if cfg.SecretsARN == "" {
			return nil, fmt.Errorf("SECRETS_ARN is not set")
		}
	case SecretsFile:
	default:
		return nil, fmt.Errorf("invalid SECRETS_BACKEND %q", cfg.SecretsBackend)
	}

	cfg.LedgerBackend = strings.ToLower(get("LEDGER_BACKEND", LedgerDynamoDB))
	tableKey := "PAYMENT_TABLE_NAME"
	if monthly {
		tableKey = "TUTOR_PAYMENT_TABLE_NAME"
	}
	cfg.LedgerTable = get(tableKey, "")
	cfg.DatabaseURL = get("DATABASE_URL", "")
	cfg.SQLitePath = get("SQLITE_PATH", "./var/ledger.db")
	switch cfg.LedgerBackend {
	case LedgerDynamoDB:
		if cfg.LedgerTable == "" {
			return nil, fmt.Errorf("%s is not set", tableKey)
		}
	case LedgerPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is not set")
		}
	case LedgerSQLite, LedgerMemory:
	default:
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q", cfg.LedgerBackend)
	}

	cfg.CalendarBackend = strings.ToLower(get("CALENDAR_BACKEND", CalendarGoogle))
	cfg.ICSSourcesFile = get("ICS_SOURCES_FILE", "ics_sources.yaml")
	if cfg.CalendarBackend != CalendarGoogle && cfg.CalendarBackend != CalendarICS {
		return nil, fmt.Errorf("invalid CALENDAR_BACKEND %q", cfg.CalendarBackend)
	}

	cfg.RatesBackend = strings.ToLower(get("RATES_BACKEND", RatesSheets))
	cfg.RatesFile = get("RATES_FILE", "rates.yaml")
	cfg.SpreadsheetID = get("SPREADSHEET_ID", "")
	cfg.SpreadsheetIDParam = get("GOOGLE_SHEETS_SSM_NAME", "")
	switch cfg.RatesBackend {
	case RatesSheets:
		if cfg.SpreadsheetID == "" && cfg.SpreadsheetIDParam == "" {
			return nil, fmt.Errorf("SPREADSHEET_ID or GOOGLE_SHEETS_SSM_NAME must be set")
		}
	case RatesYAML:
	default:
		return nil, fmt.Errorf("invalid RATES_BACKEND %q", cfg.RatesBackend)
	}

	defaultRange := "Sheet1!A:O"
	if monthly {
		defaultRange = "Sheet1!A:P"
	}
	cfg.SheetsRange = get("SHEETS_RANGE", defaultRange)

	defaultPhones := "6" // phone column G
	cfg.PhoneColumnsParam = get("PHONE_ENABLED_COLUMNS_SSM_NAME", "")
	if monthly && cfg.PhoneColumnsParam != "" {
		defaultPhones = ""
	}
	cfg.PhoneColumns, err = ParseColumns(get("PHONE_COLUMNS", defaultPhones))
	if err != nil {
		return nil, fmt.Errorf("invalid PHONE_COLUMNS: %w", err)
	}

	cfg.TutorSalaryRateParam = get("TUTOR_SALARY_RATE_SSM_NAME", "")
	if raw := get("TUTOR_SALARY_RATE", ""); raw != "" {
		cfg.TutorSalaryRate, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TUTOR_SALARY_RATE: %w", err)
		}
	}
	if monthly && cfg.TutorSalaryRate.IsZero() && cfg.TutorSalaryRateParam == "" {
		return nil, fmt.Errorf("TUTOR_SALARY_RATE or TUTOR_SALARY_RATE_SSM_NAME must be set for the monthly variant")
	}

	cfg.NoShowMarker = get("NO_SHOW_MARKER", "(no-show)")
	cfg.PaymentInfoURL = get("PAYMENT_INFO_URL", "")
	cfg.BusinessName = get("BUSINESS_NAME", "MathPracs")

	cfg.Notifier = strings.ToLower(get("NOTIFIER", NotifierTwilio))
	switch cfg.Notifier {
	case NotifierTwilio, NotifierTelegram, NotifierLog:
	default:
		return nil, fmt.Errorf("invalid NOTIFIER %q", cfg.Notifier)
	}

	defaultCron := "0 9 * * 0" // Sunday 09:00
	if monthly {
		defaultCron = "0 9 1 * *" // 1st of month 09:00
	}
	cfg.CronSpec = get("CRON_SPEC", defaultCron)
	cfg.HTTPAddr = get("HTTP_ADDR", ":8080")

	cfg.RunTimeout, err = time.ParseDuration(get("RUN_TIMEOUT", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// ParseColumns parses a comma separated list of 0-based column indices.
func ParseColumns(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	cols := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", p, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("column %d is negative", n)
		}
		cols = append(cols, n)
	}
	return cols, nil
}
