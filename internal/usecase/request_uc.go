// File: internal/usecase/request_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/domain/ports/repository"
	"activation-code-service/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ RequestUseCase = (*requestUC)(nil)

// RequestUseCase serves customer requests for codes.
type RequestUseCase interface {
	// RequestTrial issues one trial code per national id, whatever email is used.
	RequestTrial(ctx context.Context, req CodeRequest) (*TrialResult, error)
	// RequestPremium opens a pending order and returns the wallet payment page.
	RequestPremium(ctx context.Context, req CodeRequest) (*PremiumResult, error)
}

type CodeRequest struct {
	Email       string
	NameCompany string
	NationalID  string
}

type TrialResult struct {
	User   *model.User
	Code   *model.Code
	Source adapter.TokenSource
}

type PremiumResult struct {
	Transaction *model.Transaction
	PayURL      string
}

type RequestOptions struct {
	PremiumPrice  int64
	Currency      string
	OrderInfo     string
	MaxRegenerate int
}

type requestUC struct {
	users    repository.UserRepository
	codes    CodeUseCase
	txns     TransactionUseCase
	tokens   adapter.TokenGateway
	payments adapter.PaymentGateway
	notifier NotificationUseCase
	runner   adapter.TaskRunner
	opts     RequestOptions
	log      *zerolog.Logger
}

func NewRequestUseCase(
	users repository.UserRepository,
	codes CodeUseCase,
	txns TransactionUseCase,
	tokens adapter.TokenGateway,
	payments adapter.PaymentGateway,
	notifier NotificationUseCase,
	runner adapter.TaskRunner,
	opts RequestOptions,
	logger *zerolog.Logger,
) *requestUC {
	if opts.PremiumPrice <= 0 {
		opts.PremiumPrice = 199000
	}
	if opts.Currency == "" {
		opts.Currency = "VND"
	}
	if opts.OrderInfo == "" {
		opts.OrderInfo = "Premium activation code"
	}
	if opts.MaxRegenerate <= 0 {
		opts.MaxRegenerate = 3
	}
	compLog := logger.With().Str("component", "RequestUC").Logger()
	return &requestUC{
		users:    users,
		codes:    codes,
		txns:     txns,
		tokens:   tokens,
		payments: payments,
		notifier: notifier,
		runner:   runner,
		opts:     opts,
		log:      &compLog,
	}
}

func (r CodeRequest) normalized() (CodeRequest, error) {
	r.Email = strings.TrimSpace(r.Email)
	r.NameCompany = strings.TrimSpace(r.NameCompany)
	r.NationalID = strings.TrimSpace(r.NationalID)
	if r.Email == "" || r.NameCompany == "" || r.NationalID == "" {
		return r, fmt.Errorf("%w: email, nameCompany and cccd are required", domain.ErrInvalidArgument)
	}
	return r, nil
}

// resolveUser returns the user holding the national id, creating one keyed by
// email when none exists yet. An email already bound to another national id is
// refused so that id cannot be released for a second trial.
func (u *requestUC) resolveUser(ctx context.Context, req CodeRequest) (*model.User, error) {
	existing, err := u.users.FindByNationalID(ctx, repository.NoTX, req.NationalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	candidate, err := model.NewUser("", req.Email, req.NameCompany, req.NationalID)
	if err != nil {
		return nil, err
	}
	saved, err := u.users.Upsert(ctx, repository.NoTX, candidate)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// lost a race with a concurrent request for the same national id
		return u.users.FindByNationalID(ctx, repository.NoTX, req.NationalID)
	}
	if err != nil {
		return nil, err
	}
	if saved.NationalID != nil && *saved.NationalID != req.NationalID {
		return nil, domain.ErrNationalIDMismatch
	}
	return saved, nil
}

func (u *requestUC) RequestTrial(ctx context.Context, req CodeRequest) (*TrialResult, error) {
	defer logging.TraceDuration(u.log, "RequestUC.RequestTrial")()

	req, err := req.normalized()
	if err != nil {
		return nil, err
	}
	user, err := u.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(ctx, user.ID)
	log := logging.With(ctx, u.log)
	if user.TrialCodeReceived {
		return nil, domain.ErrTrialAlreadyGranted
	}
	marked, err := u.users.MarkTrialReceived(ctx, repository.NoTX, user.ID)
	if err != nil {
		return nil, err
	}
	if !marked {
		return nil, domain.ErrTrialAlreadyGranted
	}

	code, source, err := u.issueTrial(ctx, user, req)
	if err != nil {
		if cerr := u.users.ClearTrialReceived(context.WithoutCancel(ctx), repository.NoTX, user.ID); cerr != nil {
			log.Error().Err(cerr).Msg("roll back trial flag")
		}
		return nil, err
	}
	user.TrialCodeReceived = true
	log.Info().Str("code_id", code.ID).Str("source", string(source)).Msg("trial code issued")

	if u.notifier != nil {
		n, err := u.notifier.EnqueueCodeIssued(context.WithoutCancel(ctx), CodeNotice{
			Email: req.Email,
			Name:  req.NameCompany,
			Code:  code,
		})
		if err != nil {
			log.Error().Err(err).Msg("enqueue trial notification")
		} else {
			kick(u.runner, u.notifier, n.ID, log)
		}
	}
	return &TrialResult{User: user, Code: code, Source: source}, nil
}

func (u *requestUC) issueTrial(ctx context.Context, user *model.User, req CodeRequest) (*model.Code, adapter.TokenSource, error) {
	tok := u.tokens.Acquire(ctx, adapter.TokenRequest{
		Kind:        model.CodeKindTrial,
		CompanyName: req.NameCompany,
		Email:       req.Email,
		NationalID:  req.NationalID,
	})
	if tok.Reason != "" {
		logging.With(ctx, u.log).Warn().Str("reason", tok.Reason).Msg("token fallback")
	}
	code, err := issueToken(ctx, u.codes, u.tokens, model.CodeKindTrial, &user.ID, tok, u.opts.MaxRegenerate)
	if err != nil {
		return nil, "", err
	}
	return code, tok.Source, nil
}

func (u *requestUC) RequestPremium(ctx context.Context, req CodeRequest) (*PremiumResult, error) {
	defer logging.TraceDuration(u.log, "RequestUC.RequestPremium")()

	req, err := req.normalized()
	if err != nil {
		return nil, err
	}
	user, err := u.resolveUser(ctx, req)
	if err != nil {
		return nil, err
	}

	orderID := u.payments.NewOrderID()
	ctx = logging.WithOrderID(logging.WithUserID(ctx, user.ID), orderID)
	log := logging.With(ctx, u.log)

	t, err := u.txns.Open(ctx, OpenParams{
		OrderID:  orderID,
		UserID:   &user.ID,
		Amount:   u.opts.PremiumPrice,
		Currency: u.opts.Currency,
		Gateway:  u.payments.Name(),
		Context: model.PaymentContext{
			ProductType: model.CodeKindPremium,
			Email:       req.Email,
			NameCompany: req.NameCompany,
			NationalID:  req.NationalID,
		},
	})
	if err != nil {
		return nil, err
	}

	payURL, err := u.payments.CreatePayment(ctx, adapter.PaymentRequest{
		OrderID:   orderID,
		RequestID: orderID,
		Amount:    t.Amount,
		OrderInfo: u.opts.OrderInfo,
	})
	if err != nil {
		msg := err.Error()
		if _, aerr := u.txns.Advance(context.WithoutCancel(ctx), orderID, model.TransactionStatusFailed, model.CallbackUpdate{Message: &msg}); aerr != nil {
			log.Error().Err(aerr).Msg("mark order failed")
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	log.Info().Int64("amount", t.Amount).Msg("payment initiated")
	return &PremiumResult{Transaction: t, PayURL: payURL}, nil
}
