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

var _ repository.CodeRepository = (*codeRepo)(nil)

type codeRepo struct {
	pool *pgxpool.Pool
}

func NewCodeRepo(pool *pgxpool.Pool) *codeRepo {
	return &codeRepo{pool: pool}
}

const codeColumns = `id, code, kind, status, user_id, expires_at, activated_at, created_at, updated_at`

func scanCode(row interface{ Scan(dest ...interface{}) error }) (*model.Code, error) {
	var (
		c      model.Code
		kind   string
		status string
	)
	if err := row.Scan(&c.ID, &c.Code, &kind, &status, &c.UserID, &c.ExpiresAt, &c.ActivatedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	c.Kind = model.CodeKind(kind)
	c.Status = model.CodeStatus(status)
	return &c, nil
}

func (r *codeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = model.CodeStatusActive
	}

	const q = `
INSERT INTO codes (id, code, kind, status, user_id, expires_at, activated_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.Code, string(c.Kind), string(c.Status), c.UserID, c.ExpiresAt, c.ActivatedAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *codeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Code, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM codes WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

func (r *codeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+codeColumns+` FROM codes WHERE code=$1;`, code)
	if err != nil {
		return nil, err
	}
	return scanCode(row)
}

func (r *codeRepo) UpdateStatusIfActive(ctx context.Context, tx repository.Tx, id string, status model.CodeStatus, userID *string, activatedAt *time.Time) (bool, error) {
	if status != model.CodeStatusUsed && status != model.CodeStatusExpired {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE codes
   SET status = $2,
       user_id = COALESCE($3, user_id),
       activated_at = COALESCE($4, activated_at),
       updated_at = NOW()
 WHERE id = $1 AND status = 'active';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), userID, activatedAt)
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *codeRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Code, error) {
	const q = `
UPDATE codes
   SET status = 'expired', updated_at = NOW()
 WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
RETURNING ` + codeColumns + `;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, writeErr(err)
	}
	defer rows.Close()

	var out []*model.Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, writeErr(err)
	}
	return out, nil
}
