// File: internal/usecase/notification_uc.go
package usecase

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/domain/ports/repository"
	"activation-code-service/internal/infra/i18n"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var mailTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html.tmpl"))

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// NotificationUseCase is the email outbox. Rows are written after the state
// change they announce and delivered independently of the request.
type NotificationUseCase interface {
	EnqueueCodeIssued(ctx context.Context, n CodeNotice) (*model.Notification, error)
	// Deliver attempts one row now if it is still due.
	Deliver(ctx context.Context, id string) error
	DispatchDue(ctx context.Context, limit int) (DispatchStats, error)
}

// CodeNotice is everything the customer email needs. Order fields are empty for trials.
type CodeNotice struct {
	Email    string
	Name     string
	Code     *model.Code
	OrderID  string
	Amount   int64
	Currency string
	PaidAt   time.Time
}

type DispatchStats struct {
	Sent    int
	Retried int
	Dead    int
}

type NotificationOptions struct {
	// Copy supplies subjects and plain-text bodies; English when nil.
	Copy            *i18n.Translator
	Brand           string
	SupportEmail    string
	DownloadURL     string
	TrialExpiryDays int
	MaxAttempts     int
	RetryBase       time.Duration
	RetryMax        time.Duration
	SendTimeout     time.Duration
	Lease           time.Duration
}

type notificationUC struct {
	repo   repository.NotificationRepository
	sender adapter.EmailSender
	opts   NotificationOptions
	now    func() time.Time
	log    *zerolog.Logger
}

func NewNotificationUseCase(repo repository.NotificationRepository, sender adapter.EmailSender, opts NotificationOptions, logger *zerolog.Logger) *notificationUC {
	if opts.Brand == "" {
		opts.Brand = "MyShop"
	}
	if opts.Copy == nil {
		opts.Copy = i18n.English()
	}
	if opts.TrialExpiryDays <= 0 {
		opts.TrialExpiryDays = 7
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 6
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 30 * time.Second
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = time.Hour
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 15 * time.Second
	}
	if opts.Lease <= 0 {
		opts.Lease = 2 * opts.SendTimeout
	}
	compLog := logger.With().Str("component", "NotificationUC").Logger()
	return &notificationUC{repo: repo, sender: sender, opts: opts, now: time.Now, log: &compLog}
}

type mailView struct {
	Brand        string
	Name         string
	Code         string
	TrialDays    int
	ExpiresAt    string
	OrderID      string
	Amount       string
	Currency     string
	PaidAt       string
	DownloadURL  string
	SupportEmail string
}

func (u *notificationUC) EnqueueCodeIssued(ctx context.Context, cn CodeNotice) (*model.Notification, error) {
	if cn.Code == nil || strings.TrimSpace(cn.Email) == "" {
		return nil, fmt.Errorf("%w: notice needs a code and a recipient", domain.ErrInvalidArgument)
	}
	view := mailView{
		Brand:        u.opts.Brand,
		Name:         cn.Name,
		Code:         cn.Code.Code,
		TrialDays:    u.opts.TrialExpiryDays,
		OrderID:      cn.OrderID,
		Amount:       groupThousands(cn.Amount),
		Currency:     cn.Currency,
		DownloadURL:  u.opts.DownloadURL,
		SupportEmail: u.opts.SupportEmail,
	}
	if cn.Code.ExpiresAt != nil {
		view.ExpiresAt = cn.Code.ExpiresAt.Format("02/01/2006")
	}
	if !cn.PaidAt.IsZero() {
		view.PaidAt = cn.PaidAt.Format("02/01/2006 15:04")
	}
	if view.Name == "" {
		view.Name = cn.Email
	}

	tr := u.opts.Copy
	kind := model.NotificationKindCodeIssued
	tmpl := "premium_code.html.tmpl"
	subject := tr.T("email.premium.subject", u.opts.Brand)
	text := tr.T("email.premium.text", view.Name, u.opts.Brand, view.Code, view.OrderID, view.Amount, view.Currency)
	if cn.Code.Kind == model.CodeKindTrial {
		kind = model.NotificationKindTrialIssued
		tmpl = "trial_code.html.tmpl"
		subject = tr.T("email.trial.subject", u.opts.Brand, u.opts.TrialExpiryDays)
		text = tr.T("email.trial.text", view.Name, u.opts.Brand, view.Code, u.opts.TrialExpiryDays)
		if view.ExpiresAt != "" {
			text += tr.T("email.trial.expires", view.ExpiresAt)
		}
	}

	var html bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&html, tmpl, view); err != nil {
		return nil, fmt.Errorf("render %s: %w", tmpl, err)
	}

	now := u.now()
	n := &model.Notification{
		ID:            uuid.NewString(),
		Kind:          kind,
		Recipient:     cn.Email,
		RecipientName: cn.Name,
		Subject:       subject,
		HTMLBody:      html.String(),
		TextBody:      text,
		CodeID:        &cn.Code.ID,
		Status:        model.NotificationStatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cn.OrderID != "" {
		n.OrderID = &cn.OrderID
	}
	if err := u.repo.Enqueue(ctx, repository.NoTX, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (u *notificationUC) Deliver(ctx context.Context, id string) error {
	n, err := u.repo.ClaimOne(ctx, id, u.opts.Lease)
	if errors.Is(err, domain.ErrNotFound) {
		// already sent, dead, or leased by the dispatcher
		return nil
	}
	if err != nil {
		return err
	}
	_, err = u.send(ctx, n)
	return err
}

func (u *notificationUC) DispatchDue(ctx context.Context, limit int) (DispatchStats, error) {
	defer logging.TraceDuration(u.log, "NotificationUC.DispatchDue")()

	var stats DispatchStats
	due, err := u.repo.ClaimDue(ctx, limit, u.opts.Lease)
	if err != nil {
		return stats, err
	}
	for _, n := range due {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		status, err := u.send(ctx, n)
		switch {
		case status == model.NotificationStatusSent:
			stats.Sent++
		case status == model.NotificationStatusDead:
			stats.Dead++
		case err != nil:
			stats.Retried++
		}
	}
	return stats, nil
}

// send makes one delivery attempt and records its result. The returned error
// wraps domain.ErrDispatch when the provider refused the message.
func (u *notificationUC) send(ctx context.Context, n *model.Notification) (model.NotificationStatus, error) {
	log := u.log.With().Str("notification_id", n.ID).Logger()

	sctx, cancel := context.WithTimeout(ctx, u.opts.SendTimeout)
	msgID, sendErr := u.sender.Send(sctx, adapter.EmailMessage{
		To:       n.Recipient,
		ToName:   n.RecipientName,
		Subject:  n.Subject,
		HTMLBody: n.HTMLBody,
		TextBody: n.TextBody,
	})
	cancel()

	if sendErr == nil {
		metrics.IncNotification(u.sender.Name(), "sent")
		if err := u.repo.MarkSent(ctx, repository.NoTX, n.ID, msgID); err != nil {
			return n.Status, err
		}
		log.Info().Str("to", logging.Redact(n.Recipient, false)).Msg("notification sent")
		return model.NotificationStatusSent, nil
	}

	attempts := n.Attempts + 1
	if attempts >= u.opts.MaxAttempts {
		metrics.IncNotification(u.sender.Name(), "dead")
		log.Error().Err(sendErr).Int("attempts", attempts).Msg("notification dead-lettered")
		if err := u.repo.MarkDead(ctx, repository.NoTX, n.ID, attempts, sendErr.Error()); err != nil {
			return n.Status, err
		}
		return model.NotificationStatusDead, fmt.Errorf("%w: %v", domain.ErrDispatch, sendErr)
	}

	next := u.now().Add(u.backoff(attempts))
	metrics.IncNotification(u.sender.Name(), "retry")
	log.Warn().Err(sendErr).Int("attempts", attempts).Time("next_attempt_at", next).Msg("notification send failed")
	if err := u.repo.MarkRetry(ctx, repository.NoTX, n.ID, attempts, next, sendErr.Error()); err != nil {
		return n.Status, err
	}
	return model.NotificationStatusPending, fmt.Errorf("%w: %v", domain.ErrDispatch, sendErr)
}

// backoff doubles from RetryBase after each failed attempt, capped at RetryMax.
func (u *notificationUC) backoff(attempts int) time.Duration {
	d := u.opts.RetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= u.opts.RetryMax {
			return u.opts.RetryMax
		}
	}
	return d
}

// groupThousands formats 199000 as 199.000, the way VND amounts are written.
func groupThousands(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
