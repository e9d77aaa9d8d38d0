package email

import (
	"fmt"

	"activation-code-service/internal/config"
	"activation-code-service/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

// NewSender picks the provider named by cfg.Provider.
func NewSender(cfg config.EmailConfig, logger *zerolog.Logger, dev bool) (adapter.EmailSender, error) {
	switch cfg.Provider {
	case "smtp":
		return NewSMTPSender(cfg.SMTP, cfg.SenderEmail, cfg.SenderName), nil
	case "brevo":
		return NewBrevoSender(cfg.Brevo, cfg.SenderEmail, cfg.SenderName), nil
	case "noop", "":
		return NewNoopSender(logger, dev), nil
	}
	return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
}
