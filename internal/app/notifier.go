// internal/app/notifier.go
package app

import (
	"context"
	"strings"

	"payment_reminder/internal/domain/messaging"

	"github.com/sirupsen/logrus"
)

// Delivery summarizes one fan-out.
type Delivery struct {
	Attempted int
	Delivered int
}

// AnySent is the only criterion for marking an entity notified. Partial
// delivery counts as sent.
func (d Delivery) AnySent() bool { return d.Delivered > 0 }

// Notifier sends one body to every recipient independently.
type Notifier struct {
	sender messaging.Sender
	from   string
	logger *logrus.Entry
}

func NewNotifier(sender messaging.Sender, from string, logger *logrus.Entry) *Notifier {
	return &Notifier{sender: sender, from: from, logger: logger.WithField("component", "notifier")}
}

// Notify attempts every non-empty recipient. A failed recipient is logged and
// never stops the rest.
func (n *Notifier) Notify(ctx context.Context, body string, recipients []string) Delivery {
	var d Delivery
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		d.Attempted++
		recipientLogger := n.logger.WithField("recipient", to)
		recipientLogger.Debugf("Sending message: %s", body)

		err := n.sender.Send(ctx, messaging.Message{From: n.from, To: to, Body: body})
		if err != nil {
			recipientLogger.WithError(err).Error("Failed to send message")
			continue
		}
		d.Delivered++
		recipientLogger.Info("Message sent")
	}
	return d
}
