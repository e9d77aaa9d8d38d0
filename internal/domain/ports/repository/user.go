package repository

import (
	"context"

	"activation-code-service/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	// Upsert inserts by email or refreshes the name of the existing row. The
	// national id is only filled in when the row has none.
	Upsert(ctx context.Context, tx Tx, u *model.User) (*model.User, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByNationalID(ctx context.Context, tx Tx, nationalID string) (*model.User, error)
	// MarkTrialReceived flips the trial flag only if it is still false.
	MarkTrialReceived(ctx context.Context, tx Tx, id string) (bool, error)
	ClearTrialReceived(ctx context.Context, tx Tx, id string) error
}
