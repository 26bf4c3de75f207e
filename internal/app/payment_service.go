// internal/app/payment_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"payment_reminder/internal/domain/billing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Runner performs one reconciliation pass.
type Runner interface {
	Run(ctx context.Context) (*Summary, error)
}

// Summary is what one pass produced. SuppressedErrors counts every failure that
// was logged and skipped instead of aborting the pass.
type Summary struct {
	RunID            string
	Variant          billing.Variant
	Period           billing.Period
	Message          string
	Results          []billing.NotificationResult
	SuppressedErrors int
}

// PaymentOptions configures a PaymentService.
type PaymentOptions struct {
	Variant        billing.Variant
	Location       *time.Location
	FlatRate       decimal.Decimal // monthly only
	NoShowMarker   string          // monthly only
	BusinessName   string
	PaymentInfoURL string // weekly only
	RunID          string
	Now            func() time.Time
}

// PaymentService composes period resolution, aggregation, the rate policy,
// the dedup ledger and the notifier into one pass.
type PaymentService struct {
	opts       PaymentOptions
	aggregator *Aggregator
	rates      billing.RateTable
	ledger     billing.Ledger
	notifier   *Notifier
	logger     *logrus.Entry
	now        func() time.Time
}

func NewPaymentService(
	opts PaymentOptions,
	aggregator *Aggregator,
	rates billing.RateTable,
	ledger billing.Ledger,
	notifier *Notifier,
	logger *logrus.Entry,
) *PaymentService {
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &PaymentService{
		opts:       opts,
		aggregator: aggregator,
		rates:      rates,
		ledger:     ledger,
		notifier:   notifier,
		logger: logger.WithFields(logrus.Fields{
			"component": "payment_service",
			"variant":   opts.Variant,
			"run_id":    opts.RunID,
		}),
		now: nowFn,
	}
}

// candidate is an entity with nonzero activity and its computed amount.
type candidate struct {
	billing.Aggregate
	rate       decimal.Decimal
	amount     decimal.Decimal
	recipients []string
}

// Run executes one pass. Per-source, per-entity and per-recipient failures are
// logged and counted; only a cancelled context stops the pass early.
func (s *PaymentService) Run(ctx context.Context) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	period := ResolvePeriod(s.opts.Variant, s.now(), s.opts.Location)
	logger := s.logger.WithFields(logrus.Fields{
		"period_start": period.StartDate(),
		"period_end":   period.EndDate(),
	})
	logger.Info("Starting payment reconciliation")

	summary := &Summary{
		RunID:   s.opts.RunID,
		Variant: s.opts.Variant,
		Period:  period,
		Message: successMessage(s.opts.Variant, s.opts.BusinessName),
		Results: []billing.NotificationResult{},
	}

	rows, err := s.rates.Load(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load rate table; no entities will be processed")
		summary.SuppressedErrors++
		rows = nil
	}
	logger.Infof("Loaded %d rate rows.", len(rows))

	candidates, suppressed := s.candidates(ctx, period, rows)
	summary.SuppressedErrors += suppressed
	logger.Infof("Found %d entities with billable activity.", len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			logger.WithError(err).Warn("Reconciliation interrupted; remaining entities will be retried on the next run")
			return summary, fmt.Errorf("reconciliation interrupted: %w", err)
		}
		result, failed := s.processEntity(ctx, period, c)
		summary.SuppressedErrors += failed
		if result != nil {
			summary.Results = append(summary.Results, *result)
		}
	}

	logger.WithFields(logrus.Fields{
		"results":           len(summary.Results),
		"suppressed_errors": summary.SuppressedErrors,
	}).Info("Payment reconciliation finished")
	return summary, nil
}

func (s *PaymentService) candidates(ctx context.Context, period billing.Period, rows []billing.RateRow) ([]candidate, int) {
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}

	switch s.opts.Variant {
	case billing.VariantMonthly:
		return s.monthlyCandidates(ctx, period, rows, names)
	default:
		return s.weeklyCandidates(ctx, period, rows, names)
	}
}

func (s *PaymentService) weeklyCandidates(ctx context.Context, period billing.Period, rows []billing.RateRow, names []string) ([]candidate, int) {
	totals, suppressed := s.aggregator.ByEventName(ctx, period, Matcher{Strategy: MatchExactName, Names: names})

	seen := make(map[string]bool, len(rows))
	out := make([]candidate, 0, len(totals))
	for _, row := range rows {
		if seen[row.Name] {
			s.logger.WithField("entity", row.Name).Warn("Duplicate rate row ignored")
			continue
		}
		seen[row.Name] = true

		minutes := totals[row.Name]
		if minutes <= 0 {
			continue
		}
		rate, amount := TieredAmount(row, minutes)
		out = append(out, candidate{
			Aggregate:  billing.Aggregate{Name: row.Name, Minutes: minutes},
			rate:       rate,
			amount:     amount,
			recipients: row.Recipients,
		})
	}
	return out, suppressed
}

func (s *PaymentService) monthlyCandidates(ctx context.Context, period billing.Period, rows []billing.RateRow, names []string) ([]candidate, int) {
	sessions := Matcher{Strategy: MatchExactName, Names: names}
	noShows := Matcher{Strategy: MatchNoShowContains, Names: names, Marker: s.opts.NoShowMarker}
	totals, suppressed := s.aggregator.ByCalendar(ctx, period, sessions, noShows)

	recipients := unionRecipients(rows)
	out := make([]candidate, 0, len(totals))
	for _, t := range totals {
		if !t.Billable() {
			continue
		}
		out = append(out, candidate{
			Aggregate:  t.Aggregate,
			rate:       s.opts.FlatRate,
			amount:     FlatAmount(s.opts.FlatRate, t.Aggregate),
			recipients: recipients,
		})
	}
	return out, suppressed
}

// processEntity walks one entity through NotYetProcessed -> Pending -> Notified.
// It returns the result line (nil when the entity is skipped) and the number of
// failures it swallowed.
func (s *PaymentService) processEntity(ctx context.Context, period billing.Period, c candidate) (*billing.NotificationResult, int) {
	key := billing.LedgerKey(c.Name, period)
	logger := s.logger.WithFields(logrus.Fields{"entity": c.Name, "key": key})

	rec, err := s.ledger.Lookup(ctx, key)
	retried := false
	switch {
	case err == nil && rec.Notified:
		logger.Info("Already notified for this period. Skipping.")
		return nil, 0
	case err == nil:
		retried = true
		logger.Info("Pending record found; retrying notification with stored amount.")
		// Records written by older deployments carry neither of these.
		if rec.Variant == "" {
			rec.Variant = s.opts.Variant
		}
		if rec.Rate.IsZero() {
			rec.Rate = c.rate
		}
	case errors.Is(err, billing.ErrRecordNotFound):
		rec = s.newRecord(key, period, c)
		if err := s.ledger.CreatePending(ctx, rec); err != nil {
			if errors.Is(err, billing.ErrRecordExists) {
				logger.Info("Record was created concurrently by another run. Leaving it to that run.")
				return nil, 0
			}
			logger.WithError(err).Error("Failed to create pending ledger record")
			return c.unsent(), 1
		}
		logger.WithField("amount_due", rec.AmountDue.StringFixed(2)).Info("Pending ledger record created")
	default:
		logger.WithError(err).Error("Failed to look up ledger record")
		return c.unsent(), 1
	}

	delivery := s.notifier.Notify(ctx, s.message(rec), c.recipients)
	failed := delivery.Attempted - delivery.Delivered

	result := &billing.NotificationResult{
		Entity:              rec.Entity,
		Minutes:             rec.Minutes,
		NoShowMinutes:       rec.NoShowMinutes,
		AmountDue:           rec.AmountDue,
		RecipientsAttempted: delivery.Attempted,
		Delivered:           delivery.AnySent(),
		Retried:             retried,
	}

	if !delivery.AnySent() {
		logger.Warnf("No recipient accepted the message (%d attempted). Record stays pending.", delivery.Attempted)
		return result, failed
	}

	if err := s.ledger.MarkNotified(ctx, key, s.now()); err != nil {
		if errors.Is(err, billing.ErrAlreadyNotified) {
			logger.Warn("Record was marked notified by another run")
			return result, failed
		}
		logger.WithError(err).Error("Failed to mark ledger record notified")
		return result, failed + 1
	}
	logger.Infof("Notified %d of %d recipients.", delivery.Delivered, delivery.Attempted)
	return result, failed
}

func (s *PaymentService) newRecord(key string, period billing.Period, c candidate) *billing.LedgerRecord {
	return &billing.LedgerRecord{
		Key:           key,
		Entity:        c.Name,
		Variant:       s.opts.Variant,
		PeriodStart:   period.StartDate(),
		PeriodEnd:     period.EndDate(),
		Minutes:       c.Minutes,
		NoShowMinutes: c.NoShowMinutes,
		Rate:          c.rate,
		AmountDue:     c.amount,
		CreatedAt:     s.now(),
	}
}

func (s *PaymentService) message(rec *billing.LedgerRecord) string {
	if rec.Variant == billing.VariantMonthly {
		return monthlyMessage(rec)
	}
	return weeklyMessage(s.opts.BusinessName, s.opts.PaymentInfoURL, rec)
}

// unsent is the result line for an entity whose ledger step failed.
func (c candidate) unsent() *billing.NotificationResult {
	return &billing.NotificationResult{
		Entity:        c.Name,
		Minutes:       c.Minutes,
		NoShowMinutes: c.NoShowMinutes,
		AmountDue:     c.amount,
	}
}

// unionRecipients de-duplicates recipients across rows, first seen first.
func unionRecipients(rows []billing.RateRow) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for _, to := range r.Recipients {
			if to == "" || seen[to] {
				continue
			}
			seen[to] = true
			out = append(out, to)
		}
	}
	return out
}
