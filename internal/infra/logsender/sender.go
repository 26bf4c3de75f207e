// internal/infra/logsender/sender.go
package logsender

import (
	"context"

	"payment_reminder/internal/domain/messaging"

	"github.com/sirupsen/logrus"
)

// Sender writes messages to the log instead of delivering them. Every send
// succeeds, so a dry run still marks ledger records as notified.
type Sender struct {
	logger *logrus.Entry
}

func New(logger *logrus.Entry) *Sender {
	return &Sender{logger: logger.WithField("component", "log_sender")}
}

func (s *Sender) Send(ctx context.Context, msg messaging.Message) error {
	s.logger.WithFields(logrus.Fields{"to": msg.To, "from": msg.From}).Info(msg.Body)
	return nil
}
