// Package dynamo stores the dedup ledger in a DynamoDB table keyed by "uid".
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"payment_reminder/internal/domain/billing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Attribute names. uid, minutes, amount_due and processed_sms match the items
// the deployed tables already hold.
const (
	attrUID           = "uid"
	attrEntity        = "entity"
	attrVariant       = "variant"
	attrPeriodStart   = "period_start"
	attrPeriodEnd     = "period_end"
	attrMinutes       = "minutes"
	attrNoShowMinutes = "no_show_minutes"
	attrRate          = "rate"
	attrAmountDue     = "amount_due"
	attrProcessedSMS  = "processed_sms"
	attrCreatedAt     = "created_at"
	attrNotifiedAt    = "notified_at"

	// Items written by the older weekly and monthly jobs.
	legacyEventName    = "event_name"
	legacyCalendarName = "calendar_name"
	legacyWeekStart    = "week_start"
	legacyWeekEnd      = "week_end"
	legacyMonthStart   = "month_start"
	legacyMonthEnd     = "month_end"
	legacySessionMins  = "session_minutes"
)

// API is the subset of the DynamoDB client the ledger uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type Ledger struct {
	api   API
	table string
}

func NewLedger(api API, table string) *Ledger {
	return &Ledger{api: api, table: table}
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrUID: &types.AttributeValueMemberS{Value: key}}
}

func (l *Ledger) Lookup(ctx context.Context, key string) (*billing.LedgerRecord, error) {
	out, err := l.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(l.table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, billing.ErrRecordNotFound
	}
	rec, err := decodeItem(out.Item)
	if err != nil {
		return nil, fmt.Errorf("decode ledger item %s: %w", key, err)
	}
	return rec, nil
}

func (l *Ledger) CreatePending(ctx context.Context, rec *billing.LedgerRecord) error {
	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.table),
		Item:                encodeItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(#uid)"),
		ExpressionAttributeNames: map[string]string{
			"#uid": attrUID,
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return billing.ErrRecordExists
		}
		return fmt.Errorf("dynamodb put %s: %w", rec.Key, err)
	}
	return nil
}

func (l *Ledger) MarkNotified(ctx context.Context, key string, at time.Time) error {
	_, err := l.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(l.table),
		Key:                 keyOf(key),
		UpdateExpression:    aws.String("SET #sent = :val, #at = :at"),
		ConditionExpression: aws.String("attribute_exists(#uid) AND #sent = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#uid":  attrUID,
			"#sent": attrProcessedSMS,
			"#at":   attrNotifiedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val":     &types.AttributeValueMemberBOOL{Value: true},
			":pending": &types.AttributeValueMemberBOOL{Value: false},
			":at":      &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339)},
		},
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if !errors.As(err, &ccf) {
		return fmt.Errorf("dynamodb update %s: %w", key, err)
	}
	if _, lookupErr := l.Lookup(ctx, key); lookupErr != nil {
		return lookupErr
	}
	return billing.ErrAlreadyNotified
}

func encodeItem(rec *billing.LedgerRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUID:           &types.AttributeValueMemberS{Value: rec.Key},
		attrEntity:        &types.AttributeValueMemberS{Value: rec.Entity},
		attrVariant:       &types.AttributeValueMemberS{Value: string(rec.Variant)},
		attrPeriodStart:   &types.AttributeValueMemberS{Value: rec.PeriodStart},
		attrPeriodEnd:     &types.AttributeValueMemberS{Value: rec.PeriodEnd},
		attrMinutes:       &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Minutes)},
		attrNoShowMinutes: &types.AttributeValueMemberN{Value: strconv.Itoa(rec.NoShowMinutes)},
		attrRate:          &types.AttributeValueMemberN{Value: rec.Rate.String()},
		attrAmountDue:     &types.AttributeValueMemberN{Value: rec.AmountDue.String()},
		attrProcessedSMS:  &types.AttributeValueMemberBOOL{Value: false},
		attrCreatedAt:     &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339)},
	}
}

func decodeItem(item map[string]types.AttributeValue) (*billing.LedgerRecord, error) {
	rec := &billing.LedgerRecord{
		Key:         stringAttr(item, attrUID),
		Entity:      firstString(item, attrEntity, legacyEventName, legacyCalendarName),
		Variant:     billing.Variant(stringAttr(item, attrVariant)),
		PeriodStart: firstString(item, attrPeriodStart, legacyWeekStart, legacyMonthStart),
		PeriodEnd:   firstString(item, attrPeriodEnd, legacyWeekEnd, legacyMonthEnd),
	}
	if rec.Variant == "" {
		switch {
		case stringAttr(item, legacyCalendarName) != "":
			rec.Variant = billing.VariantMonthly
		case stringAttr(item, legacyEventName) != "":
			rec.Variant = billing.VariantWeekly
		}
	}

	var err error
	minutesAttr := attrMinutes
	if _, ok := item[attrMinutes]; !ok {
		minutesAttr = legacySessionMins
	}
	if rec.Minutes, err = intAttr(item, minutesAttr); err != nil {
		return nil, err
	}
	if rec.NoShowMinutes, err = intAttr(item, attrNoShowMinutes); err != nil {
		return nil, err
	}
	if rec.Rate, err = decimalAttr(item, attrRate); err != nil {
		return nil, err
	}
	if rec.AmountDue, err = decimalAttr(item, attrAmountDue); err != nil {
		return nil, err
	}
	if v, ok := item[attrProcessedSMS].(*types.AttributeValueMemberBOOL); ok {
		rec.Notified = v.Value
	}
	if t, ok := timeAttr(item, attrCreatedAt); ok {
		rec.CreatedAt = t
	}
	if t, ok := timeAttr(item, attrNotifiedAt); ok {
		rec.NotifiedAt = &t
	}
	return rec, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func firstString(item map[string]types.AttributeValue, names ...string) string {
	for _, n := range names {
		if s := stringAttr(item, n); s != "" {
			return s
		}
	}
	return ""
}

func intAttr(item map[string]types.AttributeValue, name string) (int, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	d, err := decimal.NewFromString(v.Value)
	if err != nil {
		return 0, fmt.Errorf("attribute %s: %w", name, err)
	}
	return int(d.IntPart()), nil
}

func decimalAttr(item map[string]types.AttributeValue, name string) (decimal.Decimal, error) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v.Value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("attribute %s: %w", name, err)
	}
	return d, nil
}

func timeAttr(item map[string]types.AttributeValue, name string) (time.Time, bool) {
	s := stringAttr(item, name)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
