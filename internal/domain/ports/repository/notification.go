package repository

import (
	"context"
	"time"

	"activation-code-service/internal/domain/model"
)

// -----------------------------
// Notification outbox
// -----------------------------

type NotificationRepository interface {
	Enqueue(ctx context.Context, tx Tx, n *model.Notification) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Notification, error)
	// ClaimDue leases up to limit pending rows whose next attempt is due,
	// pushing their next attempt past lease so no other dispatcher picks them.
	ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Notification, error)
	// ClaimOne leases a single pending row if it is due.
	ClaimOne(ctx context.Context, id string, lease time.Duration) (*model.Notification, error)
	MarkSent(ctx context.Context, tx Tx, id string, providerMessageID string) error
	MarkRetry(ctx context.Context, tx Tx, id string, attempts int, nextAttemptAt time.Time, lastErr string) error
	MarkDead(ctx context.Context, tx Tx, id string, attempts int, lastErr string) error
}
