// File: internal/usecase/transaction_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/repository"
	"activation-code-service/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ TransactionUseCase = (*transactionUC)(nil)

// TransactionUseCase records payment attempts keyed by order id.
type TransactionUseCase interface {
	Open(ctx context.Context, p OpenParams) (*model.Transaction, error)
	// Advance overwrites status and any supplied callback fields. A terminal
	// transaction cannot be moved back to pending.
	Advance(ctx context.Context, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error)
	LinkCode(ctx context.Context, orderID, codeID string) (*model.Transaction, error)
	// LinkCodeIfAbsent reports whether this call set the link. When it did not,
	// the returned transaction carries the code linked by the winner.
	LinkCodeIfAbsent(ctx context.Context, orderID, codeID string) (*model.Transaction, bool, error)
	ClaimIssuance(ctx context.Context, orderID, token string, lease time.Duration) (bool, error)
	ReleaseIssuance(ctx context.Context, orderID, token string) error
	ByOrderID(ctx context.Context, orderID string) (*model.Transaction, error)
}

type OpenParams struct {
	OrderID  string
	UserID   *string
	Amount   int64
	Currency string
	Gateway  string
	Context  model.PaymentContext
}

type transactionUC struct {
	txns repository.TransactionRepository
	log  *zerolog.Logger
}

func NewTransactionUseCase(txns repository.TransactionRepository, logger *zerolog.Logger) *transactionUC {
	compLog := logger.With().Str("component", "TransactionUC").Logger()
	return &transactionUC{txns: txns, log: &compLog}
}

func (u *transactionUC) Open(ctx context.Context, p OpenParams) (*model.Transaction, error) {
	if strings.TrimSpace(p.OrderID) == "" {
		return nil, fmt.Errorf("%w: order id", domain.ErrInvalidArgument)
	}
	if p.Amount < 0 {
		return nil, fmt.Errorf("%w: amount", domain.ErrInvalidArgument)
	}
	now := time.Now()
	t := &model.Transaction{
		ID:        uuid.NewString(),
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		Gateway:   p.Gateway,
		Status:    model.TransactionStatusPending,
		Context:   p.Context,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.txns.Create(ctx, repository.NoTX, t); err != nil {
		return nil, err
	}
	metrics.IncTransaction(t.Gateway, string(t.Status))
	u.log.Info().Str("order_id", t.OrderID).Int64("amount", t.Amount).Msg("transaction opened")
	return t, nil
}

func (u *transactionUC) Advance(ctx context.Context, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: status %q", domain.ErrInvalidArgument, status)
	}
	t, err := u.txns.UpdateStatus(ctx, repository.NoTX, orderID, status, upd)
	if err != nil {
		return nil, err
	}
	metrics.IncTransaction(t.Gateway, string(t.Status))
	if t.Status == model.TransactionStatusSuccess {
		metrics.AddPaymentRevenue(string(t.ProductKind()), t.Amount)
	}
	return t, nil
}

func (u *transactionUC) LinkCode(ctx context.Context, orderID, codeID string) (*model.Transaction, error) {
	return u.txns.LinkCode(ctx, repository.NoTX, orderID, codeID)
}

func (u *transactionUC) LinkCodeIfAbsent(ctx context.Context, orderID, codeID string) (*model.Transaction, bool, error) {
	return u.txns.LinkCodeIfAbsent(ctx, repository.NoTX, orderID, codeID)
}

func (u *transactionUC) ClaimIssuance(ctx context.Context, orderID, token string, lease time.Duration) (bool, error) {
	return u.txns.ClaimIssuance(ctx, repository.NoTX, orderID, token, lease)
}

func (u *transactionUC) ReleaseIssuance(ctx context.Context, orderID, token string) error {
	return u.txns.ReleaseIssuance(ctx, repository.NoTX, orderID, token)
}

func (u *transactionUC) ByOrderID(ctx context.Context, orderID string) (*model.Transaction, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.txns.FindByOrderID(ctx, repository.NoTX, orderID)
}
