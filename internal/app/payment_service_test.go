package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"payment_reminder/internal/domain/billing"
	"payment_reminder/internal/domain/calendar"
	"payment_reminder/internal/infra/logger"
	"payment_reminder/internal/infra/memledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const algebraKey = "Algebra#2025-03-02#2025-03-08"

type weeklyFixture struct {
	source *fakeSource
	rates  staticRates
	ledger billing.Ledger
	sender *fakeSender
	now    time.Time
}

func newWeeklyFixture() *weeklyFixture {
	row := algebraRow()
	row.Recipients = []string{"+15550001"}
	return &weeklyFixture{
		source: &fakeSource{
			calendars: []calendar.Calendar{{ID: "primary", Name: "Tutoring"}},
			events: map[string][]calendar.Event{
				"primary": {event("Algebra", at(2025, time.March, 4, 15, 0), 90)},
			},
		},
		rates:  staticRates{rows: []billing.RateRow{row}},
		ledger: memledger.New(),
		sender: &fakeSender{},
		now:    at(2025, time.March, 12, 10, 0),
	}
}

func (f *weeklyFixture) service() *PaymentService {
	log := logger.Discard()
	return NewPaymentService(
		PaymentOptions{
			Variant:        billing.VariantWeekly,
			Location:       chicago,
			BusinessName:   "MathPracs",
			PaymentInfoURL: "https://example.com/pay",
			RunID:          "run-1",
			Now:            func() time.Time { return f.now },
		},
		NewAggregator(f.source, log),
		f.rates,
		f.ledger,
		NewNotifier(f.sender, "+15559999", log),
		log,
	)
}

func TestRun_WeeklyEndToEnd(t *testing.T) {
	f := newWeeklyFixture()

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-03-02", summary.Period.StartDate())
	assert.Equal(t, "MathPracs Payment Reminder executed successfully", summary.Message)
	assert.Equal(t, 0, summary.SuppressedErrors)
	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.Equal(t, "Algebra", res.Entity)
	assert.Equal(t, 90, res.Minutes)
	assert.Equal(t, "75.00", res.AmountDue.StringFixed(2))
	assert.True(t, res.Delivered)
	assert.False(t, res.Retried)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t,
		"Hello, the total due for Algebra with MathPracs for last week (2025-03-02 to 2025-03-08) is $75.00 (50*1.5).\n\nPayment info: https://example.com/pay",
		f.sender.sent[0].Body)

	rec, err := f.ledger.Lookup(context.Background(), algebraKey)
	require.NoError(t, err)
	assert.True(t, rec.Notified)
	assert.Equal(t, "75.00", rec.AmountDue.StringFixed(2))
	assert.Equal(t, billing.VariantWeekly, rec.Variant)
}

func TestRun_SecondInvocationIsNoOp(t *testing.T) {
	f := newWeeklyFixture()
	_, err := f.service().Run(context.Background())
	require.NoError(t, err)

	f.now = f.now.Add(2 * time.Hour)
	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Results)
	assert.Equal(t, 1, f.sender.count())
}

func TestRun_NoRecipientSucceededLeavesPending(t *testing.T) {
	f := newWeeklyFixture()
	f.sender.fail = map[string]error{"+15550001": errors.New("carrier rejected")}

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Delivered)
	assert.Equal(t, 1, summary.SuppressedErrors)

	rec, err := f.ledger.Lookup(context.Background(), algebraKey)
	require.NoError(t, err)
	assert.False(t, rec.Notified)

	// Next run retries with the stored amount even if the calendar changed.
	f.sender.fail = nil
	f.source.events["primary"] = append(f.source.events["primary"], event("Algebra", at(2025, time.March, 5, 15, 0), 60))
	summary, err = f.service().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Retried)
	assert.True(t, summary.Results[0].Delivered)
	assert.Equal(t, "75.00", summary.Results[0].AmountDue.StringFixed(2))

	rec, err = f.ledger.Lookup(context.Background(), algebraKey)
	require.NoError(t, err)
	assert.True(t, rec.Notified)
}

func TestRun_PartialRecipientFailureCountsAsSent(t *testing.T) {
	f := newWeeklyFixture()
	f.rates.rows[0].Recipients = []string{"+15550001", "+15550002"}
	f.sender.fail = map[string]error{"+15550002": errors.New("unreachable")}

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.True(t, summary.Results[0].Delivered)
	assert.Equal(t, 2, summary.Results[0].RecipientsAttempted)
	assert.Equal(t, 1, summary.SuppressedErrors)

	rec, err := f.ledger.Lookup(context.Background(), algebraKey)
	require.NoError(t, err)
	assert.True(t, rec.Notified)
}

func TestRun_SkipsEntitiesWithoutActivity(t *testing.T) {
	f := newWeeklyFixture()
	f.rates.rows = append(f.rates.rows, billing.RateRow{Name: "Physics", Recipients: []string{"+15550003"}})

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	assert.Equal(t, "Algebra", summary.Results[0].Entity)
}

func TestRun_DuplicateRateRowsFirstWins(t *testing.T) {
	f := newWeeklyFixture()
	dup := algebraRow()
	dup.Recipients = []string{"+15550077"}
	f.rates.rows = append(f.rates.rows, dup)

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 1)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+15550001", f.sender.sent[0].To)
}

// flakyLedger fails every call for one key.
type flakyLedger struct {
	*memledger.Ledger
	badKey string
}

func (l flakyLedger) Lookup(ctx context.Context, key string) (*billing.LedgerRecord, error) {
	if key == l.badKey {
		return nil, errors.New("throttled")
	}
	return l.Ledger.Lookup(ctx, key)
}

func TestRun_LedgerErrorIsolatedToEntity(t *testing.T) {
	f := newWeeklyFixture()
	geometry := algebraRow()
	geometry.Name = "Geometry"
	geometry.Recipients = []string{"+15550005"}
	f.rates.rows = append(f.rates.rows, geometry)
	f.source.events["primary"] = append(f.source.events["primary"], event("Geometry", at(2025, time.March, 6, 9, 0), 60))
	f.ledger = flakyLedger{Ledger: memledger.New(), badKey: algebraKey}

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, "Algebra", summary.Results[0].Entity)
	assert.False(t, summary.Results[0].Delivered)
	assert.Equal(t, 0, summary.Results[0].RecipientsAttempted)
	assert.Equal(t, "Geometry", summary.Results[1].Entity)
	assert.True(t, summary.Results[1].Delivered)
	assert.Equal(t, 1, summary.SuppressedErrors)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+15550005", f.sender.sent[0].To)
}

func TestRun_RateTableFailureProducesEmptyResults(t *testing.T) {
	f := newWeeklyFixture()
	f.rates = staticRates{err: errors.New("sheet unavailable")}

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Results)
	assert.Equal(t, 1, summary.SuppressedErrors)
	assert.Zero(t, f.sender.count())
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newWeeklyFixture().service().Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_ConcurrentCreateLeavesEntityToOtherRun(t *testing.T) {
	f := newWeeklyFixture()
	ledger := memledger.New()
	f.ledger = raceLedger{Ledger: ledger}

	summary, err := f.service().Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Results)
	assert.Zero(t, f.sender.count())
}

// raceLedger reports the key as absent but rejects the create, as if another
// run inserted it in between.
type raceLedger struct{ *memledger.Ledger }

func (raceLedger) Lookup(ctx context.Context, key string) (*billing.LedgerRecord, error) {
	return nil, billing.ErrRecordNotFound
}

func (raceLedger) CreatePending(ctx context.Context, rec *billing.LedgerRecord) error {
	return billing.ErrRecordExists
}

func TestRun_MonthlyFlatRateWithNoShows(t *testing.T) {
	src := &fakeSource{
		calendars: []calendar.Calendar{{ID: "ann", Name: "Tutor Ann"}, {ID: "ben", Name: "Tutor Ben"}},
		events: map[string][]calendar.Event{
			"ann": {
				event("Alice", at(2024, time.December, 2, 16, 0), 60),
				event("Bob", at(2024, time.December, 9, 16, 0), 60),
				event("Alice (no-show)", at(2024, time.December, 16, 16, 0), 30),
			},
		},
	}
	rows := []billing.RateRow{
		{Name: "Alice", Recipients: []string{"+15550001", "+15550002"}},
		{Name: "Bob", Recipients: []string{"+15550002", "+15550003"}},
	}
	ledger := memledger.New()
	sender := &fakeSender{}
	log := logger.Discard()
	svc := NewPaymentService(
		PaymentOptions{
			Variant:      billing.VariantMonthly,
			Location:     chicago,
			FlatRate:     d("20"),
			NoShowMarker: "(no-show)",
			BusinessName: "MathPracs",
			Now:          func() time.Time { return at(2025, time.January, 1, 9, 0) },
		},
		NewAggregator(src, log),
		staticRates{rows: rows},
		ledger,
		NewNotifier(sender, "+15559999", log),
		log,
	)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "MathPracs Tutor Payment Reminder executed successfully", summary.Message)
	require.Len(t, summary.Results, 1)
	res := summary.Results[0]
	assert.Equal(t, "Tutor Ann", res.Entity)
	assert.Equal(t, 120, res.Minutes)
	assert.Equal(t, 30, res.NoShowMinutes)
	assert.Equal(t, "50.00", res.AmountDue.StringFixed(2))
	assert.Equal(t, 3, res.RecipientsAttempted)

	require.Len(t, sender.sent, 3)
	assert.Equal(t,
		"The total payment for Tutor Ann from 2024-12-01 to 2024-12-31 due is $50.00 (20*2.0 for sessions + 20*0.5 for no-shows).",
		sender.sent[0].Body)

	rec, err := ledger.Lookup(context.Background(), "Tutor Ann#2024-12-01#2024-12-31")
	require.NoError(t, err)
	assert.True(t, rec.Notified)
	assert.Equal(t, 1, ledger.Len())
}
