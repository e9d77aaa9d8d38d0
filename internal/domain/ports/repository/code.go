package repository

import (
	"context"
	"time"

	"activation-code-service/internal/domain/model"
)

// -----------------------------
// Codes
// -----------------------------

type CodeRepository interface {
	// Create inserts a new code; a duplicate code string returns domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, c *model.Code) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Code, error)
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Code, error)
	// UpdateStatusIfActive moves an active code to status. userID and
	// activatedAt are written only when non-nil. Reports false when the code
	// was no longer active.
	UpdateStatusIfActive(ctx context.Context, tx Tx, id string, status model.CodeStatus, userID *string, activatedAt *time.Time) (bool, error)
	// ExpireOverdue flips every active code whose expiry is at or before now.
	ExpireOverdue(ctx context.Context, tx Tx, now time.Time) ([]*model.Code, error)
}
