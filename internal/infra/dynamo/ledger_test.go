package dynamo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"payment_reminder/internal/domain/billing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable honours the two condition expressions the ledger issues.
type fakeTable struct {
	mu             sync.Mutex
	items          map[string]map[string]types.AttributeValue
	consistentRead bool
	err            error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: make(map[string]map[string]types.AttributeValue)}
}

func uidOf(key map[string]types.AttributeValue) string {
	return key["uid"].(*types.AttributeValueMemberS).Value
}

func (f *fakeTable) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.consistentRead = aws.ToBool(in.ConsistentRead)
	return &dynamodb.GetItemOutput{Item: f.items[uidOf(in.Key)]}, nil
}

func (f *fakeTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	uid := uidOf(in.Item)
	if strings.Contains(aws.ToString(in.ConditionExpression), "attribute_not_exists") {
		if _, ok := f.items[uid]; ok {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
		}
	}
	f.items[uid] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	item, ok := f.items[uidOf(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("missing")}
	}
	if sent, _ := item["processed_sms"].(*types.AttributeValueMemberBOOL); sent != nil && sent.Value {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("already sent")}
	}
	item["processed_sms"] = in.ExpressionAttributeValues[":val"]
	item["notified_at"] = in.ExpressionAttributeValues[":at"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func weeklyRecord() *billing.LedgerRecord {
	return &billing.LedgerRecord{
		Key:         "Algebra#2025-03-02#2025-03-08",
		Entity:      "Algebra",
		Variant:     billing.VariantWeekly,
		PeriodStart: "2025-03-02",
		PeriodEnd:   "2025-03-08",
		Minutes:     90,
		Rate:        decimal.NewFromInt(50),
		AmountDue:   decimal.RequireFromString("75.00"),
		CreatedAt:   time.Date(2025, 3, 9, 15, 0, 0, 0, time.UTC),
	}
}

func TestLedger_Lifecycle(t *testing.T) {
	ctx := context.Background()
	table := newFakeTable()
	l := NewLedger(table, "payments")
	rec := weeklyRecord()

	_, err := l.Lookup(ctx, rec.Key)
	assert.ErrorIs(t, err, billing.ErrRecordNotFound)
	assert.True(t, table.consistentRead)

	require.NoError(t, l.CreatePending(ctx, rec))
	assert.ErrorIs(t, l.CreatePending(ctx, rec), billing.ErrRecordExists)

	got, err := l.Lookup(ctx, rec.Key)
	require.NoError(t, err)
	assert.Equal(t, "Algebra", got.Entity)
	assert.Equal(t, billing.VariantWeekly, got.Variant)
	assert.Equal(t, 90, got.Minutes)
	assert.Equal(t, "75", got.AmountDue.String())
	assert.False(t, got.Notified)
	assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))

	at := time.Date(2025, 3, 9, 15, 1, 0, 0, time.UTC)
	require.NoError(t, l.MarkNotified(ctx, rec.Key, at))
	got, err = l.Lookup(ctx, rec.Key)
	require.NoError(t, err)
	assert.True(t, got.Notified)
	require.NotNil(t, got.NotifiedAt)
	assert.True(t, got.NotifiedAt.Equal(at))

	assert.ErrorIs(t, l.MarkNotified(ctx, rec.Key, at), billing.ErrAlreadyNotified)
	assert.ErrorIs(t, l.MarkNotified(ctx, "unknown", at), billing.ErrRecordNotFound)
}

func TestLedger_TransportErrorsAreWrapped(t *testing.T) {
	table := newFakeTable()
	table.err = errors.New("ProvisionedThroughputExceededException")
	l := NewLedger(table, "payments")

	_, err := l.Lookup(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, billing.ErrRecordNotFound)
	assert.ErrorIs(t, err, table.err)
	assert.ErrorIs(t, l.CreatePending(context.Background(), weeklyRecord()), table.err)
}

func TestDecodeItem_LegacyWeekly(t *testing.T) {
	rec, err := decodeItem(map[string]types.AttributeValue{
		"uid":           &types.AttributeValueMemberS{Value: "Algebra#2024-06-02#2024-06-08"},
		"event_name":    &types.AttributeValueMemberS{Value: "Algebra"},
		"week_start":    &types.AttributeValueMemberS{Value: "2024-06-02"},
		"week_end":      &types.AttributeValueMemberS{Value: "2024-06-08"},
		"minutes":       &types.AttributeValueMemberN{Value: "90"},
		"amount_due":    &types.AttributeValueMemberN{Value: "75.0"},
		"processed_sms": &types.AttributeValueMemberBOOL{Value: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "Algebra", rec.Entity)
	assert.Equal(t, billing.VariantWeekly, rec.Variant)
	assert.Equal(t, "2024-06-02", rec.PeriodStart)
	assert.Equal(t, 90, rec.Minutes)
	assert.Equal(t, "75.00", rec.AmountDue.StringFixed(2))
	assert.True(t, rec.Notified)
	assert.True(t, rec.Rate.IsZero())
}

func TestDecodeItem_LegacyMonthly(t *testing.T) {
	rec, err := decodeItem(map[string]types.AttributeValue{
		"uid":             &types.AttributeValueMemberS{Value: "Tutor Ann#2024-12-01#2024-12-31"},
		"calendar_name":   &types.AttributeValueMemberS{Value: "Tutor Ann"},
		"month_start":     &types.AttributeValueMemberS{Value: "2024-12-01"},
		"month_end":       &types.AttributeValueMemberS{Value: "2024-12-31"},
		"session_minutes": &types.AttributeValueMemberN{Value: "120"},
		"no_show_minutes": &types.AttributeValueMemberN{Value: "30"},
		"amount_due":      &types.AttributeValueMemberN{Value: "50"},
		"processed_sms":   &types.AttributeValueMemberBOOL{Value: false},
	})
	require.NoError(t, err)
	assert.Equal(t, "Tutor Ann", rec.Entity)
	assert.Equal(t, billing.VariantMonthly, rec.Variant)
	assert.Equal(t, "2024-12-31", rec.PeriodEnd)
	assert.Equal(t, 120, rec.Minutes)
	assert.Equal(t, 30, rec.NoShowMinutes)
	assert.False(t, rec.Notified)
}

func TestDecodeItem_BadNumber(t *testing.T) {
	_, err := decodeItem(map[string]types.AttributeValue{
		"uid":     &types.AttributeValueMemberS{Value: "x"},
		"minutes": &types.AttributeValueMemberN{Value: "ninety"},
	})
	assert.Error(t, err)
}
