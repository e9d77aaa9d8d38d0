package email

import (
	"context"
	"fmt"
	"strings"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain/ports/adapter"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

var _ adapter.EmailSender = (*SMTPSender)(nil)

type SMTPSender struct {
	fromAddress string
	fromName    string
	dialer      *gomail.Dialer
}

func NewSMTPSender(smtp config.SMTPConfig, fromAddress, fromName string) *SMTPSender {
	return &SMTPSender{
		fromAddress: fromAddress,
		fromName:    fromName,
		dialer:      gomail.NewDialer(smtp.Host, smtp.Port, smtp.Username, smtp.Password),
	}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) message(msg adapter.EmailMessage) (*gomail.Message, string) {
	domain := s.fromAddress[strings.LastIndex(s.fromAddress, "@")+1:]
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)

	m := gomail.NewMessage()
	m.SetHeader("Message-ID", messageID)
	m.SetAddressHeader("From", s.fromAddress, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}
	return m, messageID
}

// Send dials the server for every message. gomail has no context support, so
// a cancelled ctx abandons the wait but not the underlying dial.
func (s *SMTPSender) Send(ctx context.Context, msg adapter.EmailMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, messageID := s.message(msg)

	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send email: %w", err)
		}
		return messageID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
