// internal/infra/sms/twilio.go
package sms

import (
	"context"
	"errors"
	"fmt"

	"payment_reminder/internal/domain/messaging"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

var ErrEmptyRecipient = errors.New("empty recipient")

// messageCreator is the part of the Twilio REST client used here.
type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// TwilioSender delivers messages as SMS.
type TwilioSender struct {
	api messageCreator
}

func NewTwilioSender(accountSID, authToken string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api}
}

func (s *TwilioSender) Send(ctx context.Context, msg messaging.Message) error {
	if msg.To == "" {
		return ErrEmptyRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &api.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(msg.From)
	params.SetBody(msg.Body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", msg.To, err)
	}
	if resp != nil && resp.ErrorCode != nil {
		return fmt.Errorf("twilio send to %s: error code %d", msg.To, *resp.ErrorCode)
	}
	return nil
}
