package email

import (
	"context"

	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/infra/logging"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var _ adapter.EmailSender = (*NoopSender)(nil)

// NoopSender only logs. Used in dev and when no provider is configured.
type NoopSender struct {
	log *zerolog.Logger
	dev bool
}

func NewNoopSender(logger *zerolog.Logger, dev bool) *NoopSender {
	return &NoopSender{log: logger, dev: dev}
}

func (s *NoopSender) Name() string { return "noop" }

func (s *NoopSender) Send(ctx context.Context, msg adapter.EmailMessage) (string, error) {
	id := "noop-" + uuid.NewString()
	s.log.Info().
		Str("to", logging.Redact(msg.To, s.dev)).
		Str("subject", msg.Subject).
		Str("message_id", id).
		Msg("email suppressed")
	return id, nil
}
