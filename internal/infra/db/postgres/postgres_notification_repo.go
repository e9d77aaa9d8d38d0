package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/repository"
)

var _ repository.NotificationRepository = (*notificationRepo)(nil)

type notificationRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewNotificationRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *notificationRepo {
	return &notificationRepo{
		pool: pool,
		tm:   tm,
	}
}

const notificationColumns = `id, kind, recipient, recipient_name, subject, html_body, text_body, order_id, code_id,
       status, attempts, next_attempt_at, last_error, provider_message_id, created_at, updated_at`

func scanNotification(row interface{ Scan(dest ...interface{}) error }) (*model.Notification, error) {
	var (
		n      model.Notification
		kind   string
		status string
	)
	if err := row.Scan(&n.ID, &kind, &n.Recipient, &n.RecipientName, &n.Subject, &n.HTMLBody, &n.TextBody,
		&n.OrderID, &n.CodeID, &status, &n.Attempts, &n.NextAttemptAt, &n.LastError, &n.ProviderMessageID,
		&n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	n.Kind = model.NotificationKind(kind)
	n.Status = model.NotificationStatus(status)
	return &n, nil
}

// Enqueue inserts a pending row; a zero NextAttemptAt means due now by the database clock.
func (r *notificationRepo) Enqueue(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = model.NotificationStatusPending
	}
	var next *time.Time
	if !n.NextAttemptAt.IsZero() {
		next = &n.NextAttemptAt
	}
	const q = `
INSERT INTO notifications (id, kind, recipient, recipient_name, subject, html_body, text_body, order_id, code_id,
                           status, attempts, next_attempt_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, COALESCE($11, NOW()))
RETURNING next_attempt_at, created_at, updated_at;`
	row, err := pickRow(ctx, r.pool, tx, q, n.ID, string(n.Kind), n.Recipient, n.RecipientName, n.Subject,
		n.HTMLBody, n.TextBody, n.OrderID, n.CodeID, string(n.Status), next)
	if err != nil {
		return err
	}
	if err := row.Scan(&n.NextAttemptAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *notificationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Notification, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+notificationColumns+` FROM notifications WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanNotification(row)
}

func (r *notificationRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Notification, error) {
	var claimed []*model.Notification

	err := r.tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + notificationColumns + `
  FROM notifications
 WHERE status = 'pending' AND next_attempt_at <= NOW()
 ORDER BY next_attempt_at
 LIMIT $1
   FOR UPDATE SKIP LOCKED;`
		rows, err := queryRows(ctx, r.pool, tx, fetchQuery, limit)
		if err != nil {
			return writeErr(err)
		}
		for rows.Next() {
			n, err := scanNotification(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return writeErr(err)
		}

		// Push the schedule past the lease so no other dispatcher picks them up.
		for _, n := range claimed {
			const leaseQuery = `
UPDATE notifications SET next_attempt_at = NOW() + make_interval(secs => $2::double precision), updated_at = NOW()
 WHERE id = $1;`
			if _, err := execSQL(ctx, r.pool, tx, leaseQuery, n.ID, lease.Seconds()); err != nil {
				return writeErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *notificationRepo) ClaimOne(ctx context.Context, id string, lease time.Duration) (*model.Notification, error) {
	const q = `
UPDATE notifications SET next_attempt_at = NOW() + make_interval(secs => $2::double precision), updated_at = NOW()
 WHERE id = $1 AND status = 'pending' AND next_attempt_at <= NOW()
RETURNING ` + notificationColumns + `;`
	row, err := pickRow(ctx, r.pool, nil, q, id, lease.Seconds())
	if err != nil {
		return nil, err
	}
	return scanNotification(row)
}

func (r *notificationRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, providerMessageID string) error {
	const q = `
UPDATE notifications
   SET status = 'sent', attempts = attempts + 1, provider_message_id = NULLIF($2, ''), last_error = NULL, updated_at = NOW()
 WHERE id = $1;`
	return r.expectOne(execSQL(ctx, r.pool, tx, q, id, providerMessageID))
}

func (r *notificationRepo) MarkRetry(ctx context.Context, tx repository.Tx, id string, attempts int, nextAttemptAt time.Time, lastErr string) error {
	const q = `
UPDATE notifications
   SET attempts = $2, next_attempt_at = $3, last_error = $4, updated_at = NOW()
 WHERE id = $1 AND status = 'pending';`
	return r.expectOne(execSQL(ctx, r.pool, tx, q, id, attempts, nextAttemptAt, lastErr))
}

func (r *notificationRepo) MarkDead(ctx context.Context, tx repository.Tx, id string, attempts int, lastErr string) error {
	const q = `
UPDATE notifications
   SET status = 'dead', attempts = $2, last_error = $3, updated_at = NOW()
 WHERE id = $1;`
	return r.expectOne(execSQL(ctx, r.pool, tx, q, id, attempts, lastErr))
}

func (r *notificationRepo) expectOne(tag interface{ RowsAffected() int64 }, err error) error {
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
