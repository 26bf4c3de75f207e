// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"payment_reminder/internal/domain/messaging"

	"gopkg.in/telebot.v3"
)

// botSender is the slice of *telebot.Bot used for delivery.
type botSender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements messaging.Sender on top of gopkg.in/telebot.v3.
// Recipients are numeric chat IDs.
type TelebotAdapter struct {
	bot botSender
}

// NewTelebotAdapter creates a send-only bot. No poller is started.
func NewTelebotAdapter(token string) (*TelebotAdapter, error) {
	b, err := telebot.NewBot(telebot.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	return &TelebotAdapter{bot: b}, nil
}

func (tba *TelebotAdapter) Send(ctx context.Context, msg messaging.Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.To), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient %q is not a chat id: %w", msg.To, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = tba.bot.Send(&telebot.Chat{ID: chatID}, msg.Body, &telebot.SendOptions{DisableWebPagePreview: true})
	return err
}
