package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*PostgresUserRepo)(nil)

type PostgresUserRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{pool: pool}
}

const userColumns = `id, email, name, national_id, trial_code_received, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...interface{}) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.NationalID, &u.TrialCodeReceived, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return &u, nil
}

// Upsert keys on email. A stored national id is never replaced; callers compare
// the returned row against the one they sent.
func (r *PostgresUserRepo) Upsert(ctx context.Context, tx repository.Tx, u *model.User) (*model.User, error) {
	if u == nil || u.Email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	const q = `
INSERT INTO users (id, email, name, national_id, trial_code_received, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $6)
ON CONFLICT (email) DO UPDATE SET
  name = EXCLUDED.name,
  national_id = COALESCE(users.national_id, EXCLUDED.national_id),
  updated_at = EXCLUDED.updated_at
RETURNING ` + userColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, u.ID, u.Email, u.Name, u.NationalID, u.CreatedAt, now)
	if err != nil {
		return nil, err
	}
	// a national id already held by another email surfaces as ErrAlreadyExists
	return scanUser(row)
}

func (r *PostgresUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE email=$1;`, email)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) FindByNationalID(ctx context.Context, tx repository.Tx, nationalID string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE national_id=$1;`, nationalID)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *PostgresUserRepo) MarkTrialReceived(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE users SET trial_code_received = TRUE, updated_at = NOW()
 WHERE id = $1 AND trial_code_received = FALSE;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresUserRepo) ClearTrialReceived(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `UPDATE users SET trial_code_received = FALSE, updated_at = NOW() WHERE id = $1;`, id)
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
