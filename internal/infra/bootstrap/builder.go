// internal/infra/bootstrap/builder.go
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"payment_reminder/internal/app"
	"payment_reminder/internal/domain/billing"
	"payment_reminder/internal/domain/calendar"
	"payment_reminder/internal/domain/messaging"
	"payment_reminder/internal/domain/secrets"
	awsinfra "payment_reminder/internal/infra/aws"
	"payment_reminder/internal/infra/config"
	idb "payment_reminder/internal/infra/database"
	"payment_reminder/internal/infra/dynamo"
	"payment_reminder/internal/infra/google"
	"payment_reminder/internal/infra/ics"
	"payment_reminder/internal/infra/localsecrets"
	"payment_reminder/internal/infra/logsender"
	"payment_reminder/internal/infra/memledger"
	"payment_reminder/internal/infra/ratesfile"
	"payment_reminder/internal/infra/sms"
	"payment_reminder/internal/infra/telegram"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Builder assembles a PaymentService per invocation. Secrets, tokens and rate
// parameters are re-read every time; the AWS config and the ledger connection
// are created once and reused by warm invocations.
type Builder struct {
	cfg    *config.AppConfig
	logger *logrus.Entry

	mu     sync.Mutex
	awsCfg *sdkaws.Config

	ledgerMu sync.Mutex
	ledger   billing.Ledger
	db       *sql.DB
}

func NewBuilder(cfg *config.AppConfig, logger *logrus.Entry) *Builder {
	return &Builder{cfg: cfg, logger: logger}
}

// params are the values that may come from Parameter Store.
type params struct {
	spreadsheetID string
	phoneColumns  []int
	flatRate      decimal.Decimal
}

// Build satisfies app.BuildFunc.
func (b *Builder) Build(ctx context.Context) (app.Runner, error) {
	runID := uuid.NewString()
	logger := b.logger.WithField("run_id", runID)

	store, err := b.secretStore(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	bundle, err := raw.Decode()
	if err != nil && !(b.cfg.CalendarBackend == config.CalendarICS && errors.Is(err, secrets.ErrMissingKey)) {
		return nil, fmt.Errorf("failed to decode secrets: %w", err)
	}

	p, err := b.resolveParams(ctx)
	if err != nil {
		return nil, err
	}

	source, err := b.calendarSource(ctx, store, bundle, logger)
	if err != nil {
		return nil, err
	}
	rates, err := b.rateTable(ctx, bundle, p, logger)
	if err != nil {
		return nil, err
	}
	ledger, err := b.ledgerBackend(ctx)
	if err != nil {
		return nil, err
	}
	sender, from, err := b.sender(bundle, logger)
	if err != nil {
		return nil, err
	}

	return app.NewPaymentService(
		app.PaymentOptions{
			Variant:        b.cfg.Variant,
			Location:       b.cfg.Location,
			FlatRate:       p.flatRate,
			NoShowMarker:   b.cfg.NoShowMarker,
			BusinessName:   b.cfg.BusinessName,
			PaymentInfoURL: b.cfg.PaymentInfoURL,
			RunID:          runID,
		},
		app.NewAggregator(source, logger),
		rates,
		ledger,
		app.NewNotifier(sender, from, logger),
		logger,
	), nil
}

func (b *Builder) aws(ctx context.Context) (sdkaws.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.awsCfg != nil {
		return *b.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return sdkaws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	b.awsCfg = &cfg
	return cfg, nil
}

func (b *Builder) secretStore(ctx context.Context) (secrets.Store, error) {
	if b.cfg.SecretsBackend == config.SecretsFile {
		return localsecrets.New(b.cfg.SecretsFile), nil
	}
	awsCfg, err := b.aws(ctx)
	if err != nil {
		return nil, err
	}
	return awsinfra.NewSecretStore(secretsmanager.NewFromConfig(awsCfg), b.cfg.SecretsARN), nil
}

func (b *Builder) resolveParams(ctx context.Context) (params, error) {
	p := params{
		spreadsheetID: b.cfg.SpreadsheetID,
		phoneColumns:  b.cfg.PhoneColumns,
		flatRate:      b.cfg.TutorSalaryRate,
	}
	if !b.cfg.NeedsSSM() {
		return p, nil
	}
	awsCfg, err := b.aws(ctx)
	if err != nil {
		return p, err
	}
	return resolveFrom(ctx, awsinfra.NewParameters(ssm.NewFromConfig(awsCfg)), b.cfg, p)
}

// parameterSource is satisfied by *awsinfra.Parameters.
type parameterSource interface {
	GetString(ctx context.Context, name string) (string, error)
	GetIntList(ctx context.Context, name string) ([]int, error)
}

func resolveFrom(ctx context.Context, src parameterSource, cfg *config.AppConfig, p params) (params, error) {
	var err error
	if p.spreadsheetID == "" && cfg.SpreadsheetIDParam != "" {
		if p.spreadsheetID, err = src.GetString(ctx, cfg.SpreadsheetIDParam); err != nil {
			return p, err
		}
	}
	if len(p.phoneColumns) == 0 && cfg.PhoneColumnsParam != "" {
		if p.phoneColumns, err = src.GetIntList(ctx, cfg.PhoneColumnsParam); err != nil {
			return p, err
		}
	}
	if p.flatRate.IsZero() && cfg.TutorSalaryRateParam != "" {
		raw, err := src.GetString(ctx, cfg.TutorSalaryRateParam)
		if err != nil {
			return p, err
		}
		if p.flatRate, err = decimal.NewFromString(raw); err != nil {
			return p, fmt.Errorf("parameter %s is not a decimal: %w", cfg.TutorSalaryRateParam, err)
		}
	}
	return p, nil
}

func (b *Builder) calendarSource(ctx context.Context, store secrets.Store, bundle secrets.Bundle, logger *logrus.Entry) (calendar.Source, error) {
	if b.cfg.CalendarBackend == config.CalendarICS {
		feeds, err := ics.LoadFeeds(b.cfg.ICSSourcesFile)
		if err != nil {
			return nil, err
		}
		return ics.NewSource(feeds, nil, b.cfg.Location, logger), nil
	}

	refresher := google.NewRefresher(store, nil, logger)
	creds, refreshed, err := refresher.RefreshAndPersist(ctx, bundle.CalendarOAuth)
	if err != nil {
		if !refreshed {
			return nil, fmt.Errorf("calendar credentials unusable: %w", err)
		}
		// The fresh token works for this run; the next run refreshes again.
		logger.WithError(err).Warn("Refreshed calendar token could not be persisted")
	}
	return google.NewCalendarSource(ctx, refresher.TokenSource(ctx, creds), b.cfg.Location)
}

func (b *Builder) rateTable(ctx context.Context, bundle secrets.Bundle, p params, logger *logrus.Entry) (billing.RateTable, error) {
	if b.cfg.RatesBackend == config.RatesYAML {
		return ratesfile.New(b.cfg.RatesFile), nil
	}
	if len(bundle.SheetsCredentials) == 0 {
		return nil, fmt.Errorf("%w: %s", secrets.ErrMissingKey, secrets.KeySheetsCredentials)
	}
	if p.spreadsheetID == "" {
		return nil, errors.New("spreadsheet id resolved to an empty value")
	}
	return google.NewSheetsRateTable(ctx, bundle.SheetsCredentials, p.spreadsheetID, b.cfg.SheetsRange, b.cfg.Variant, p.phoneColumns, logger)
}

func (b *Builder) ledgerBackend(ctx context.Context) (billing.Ledger, error) {
	b.ledgerMu.Lock()
	defer b.ledgerMu.Unlock()
	if b.ledger != nil {
		return b.ledger, nil
	}

	switch b.cfg.LedgerBackend {
	case config.LedgerMemory:
		b.ledger = memledger.New()
	case config.LedgerPostgres, config.LedgerSQLite:
		repo, db, err := openSQLLedger(ctx, b.cfg)
		if err != nil {
			return nil, err
		}
		b.ledger, b.db = repo, db
	default:
		awsCfg, err := b.aws(ctx)
		if err != nil {
			return nil, err
		}
		b.ledger = dynamo.NewLedger(dynamodb.NewFromConfig(awsCfg), b.cfg.LedgerTable)
	}
	return b.ledger, nil
}

func openSQLLedger(ctx context.Context, cfg *config.AppConfig) (*idb.LedgerRepository, *sql.DB, error) {
	var (
		db      *sql.DB
		dialect idb.Dialect
		err     error
	)
	if cfg.LedgerBackend == config.LedgerPostgres {
		dialect = idb.DialectPostgres
		db, err = idb.NewPostgresConnection(cfg.DatabaseURL)
	} else {
		dialect = idb.DialectSQLite
		db, err = idb.NewSQLiteConnection(cfg.SQLitePath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to ledger database: %w", err)
	}
	if err := idb.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, err
	}
	return idb.NewLedgerRepository(db, dialect), db, nil
}

func (b *Builder) sender(bundle secrets.Bundle, logger *logrus.Entry) (messaging.Sender, string, error) {
	switch b.cfg.Notifier {
	case config.NotifierLog:
		return logsender.New(logger), bundle.TwilioPhoneNumber, nil
	case config.NotifierTelegram:
		if bundle.TelegramBotToken == "" {
			return nil, "", fmt.Errorf("%w: %s", secrets.ErrMissingKey, secrets.KeyTelegramBotToken)
		}
		s, err := telegram.NewTelebotAdapter(bundle.TelegramBotToken)
		return s, "", err
	default:
		if bundle.TwilioAccountSID == "" || bundle.TwilioAuthToken == "" || bundle.TwilioPhoneNumber == "" {
			return nil, "", fmt.Errorf("%w: twilio credentials are incomplete", secrets.ErrMissingKey)
		}
		return sms.NewTwilioSender(bundle.TwilioAccountSID, bundle.TwilioAuthToken), bundle.TwilioPhoneNumber, nil
	}
}

// Close releases the ledger database, if one was opened.
func (b *Builder) Close() error {
	b.ledgerMu.Lock()
	defer b.ledgerMu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.ledger = nil
	return err
}
