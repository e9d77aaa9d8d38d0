package repository

import (
	"context"
	"time"

	"activation-code-service/internal/domain/model"
)

// -----------------------------
// Transactions
// -----------------------------

type TransactionRepository interface {
	// Create inserts a pending transaction; a duplicate order id returns domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.Transaction, error)
	// UpdateStatus overwrites status and every non-nil callback field. Moving a
	// terminal order back to pending, or a successful one to any other status,
	// returns domain.ErrInvalidState.
	UpdateStatus(ctx context.Context, tx Tx, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error)
	LinkCode(ctx context.Context, tx Tx, orderID, codeID string) (*model.Transaction, error)
	// LinkCodeIfAbsent sets the code reference only when none is set yet and
	// returns the row as it stands afterwards.
	LinkCodeIfAbsent(ctx context.Context, tx Tx, orderID, codeID string) (*model.Transaction, bool, error)
	// ClaimIssuance marks the order as being issued by token unless another
	// unexpired claim exists or a code is already linked.
	ClaimIssuance(ctx context.Context, tx Tx, orderID, token string, lease time.Duration) (bool, error)
	ReleaseIssuance(ctx context.Context, tx Tx, orderID, token string) error
}
