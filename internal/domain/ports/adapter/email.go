package adapter

import "context"

type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailSender delivers one message and returns the provider's message id.
// Any error is a dispatch failure for the caller to schedule a retry.
type EmailSender interface {
	Name() string
	Send(ctx context.Context, msg EmailMessage) (messageID string, err error)
}
