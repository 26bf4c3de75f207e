package messaging

import "context"

// Message is a single text addressed to one recipient.
type Message struct {
	From string
	To   string
	Body string
}

// Sender defines an interface for delivering one message.
// This helps in decoupling the application logic from the specific SMS or chat library.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
