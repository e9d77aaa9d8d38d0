package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

// PayloadCipher protects the payment context at rest.
type PayloadCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type transactionRepo struct {
	pool   *pgxpool.Pool
	cipher PayloadCipher // nil stores the context as plain JSON
}

func NewTransactionRepo(pool *pgxpool.Pool, cipher PayloadCipher) *transactionRepo {
	return &transactionRepo{pool: pool, cipher: cipher}
}

const transactionColumns = `id, order_id, user_id, code_id, amount, currency, gateway, status,
       gateway_txn_id, result_code, message, payment_data, created_at, updated_at`

func (r *transactionRepo) scan(row interface{ Scan(dest ...interface{}) error }) (*model.Transaction, error) {
	var (
		t       model.Transaction
		status  string
		payload string
	)
	if err := row.Scan(&t.ID, &t.OrderID, &t.UserID, &t.CodeID, &t.Amount, &t.Currency, &t.Gateway, &status,
		&t.GatewayTxnID, &t.ResultCode, &t.Message, &payload, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	t.Status = model.TransactionStatus(status)
	ctxBlob, err := r.decodeContext(payload)
	if err != nil {
		return nil, err
	}
	t.Context = ctxBlob
	return &t, nil
}

func (r *transactionRepo) encodeContext(pc model.PaymentContext) (string, error) {
	b, err := json.Marshal(pc)
	if err != nil {
		return "", fmt.Errorf("encode payment context: %w", err)
	}
	if r.cipher == nil {
		return string(b), nil
	}
	return r.cipher.Encrypt(string(b))
}

func (r *transactionRepo) decodeContext(payload string) (model.PaymentContext, error) {
	var pc model.PaymentContext
	raw := payload
	// Rows written before encryption was enabled are still plain JSON.
	if r.cipher != nil && !strings.HasPrefix(strings.TrimSpace(payload), "{") {
		pt, err := r.cipher.Decrypt(payload)
		if err != nil {
			return pc, fmt.Errorf("%w: payment context: %v", domain.ErrReadDatabaseRow, err)
		}
		raw = pt
	}
	if raw == "" {
		return pc, nil
	}
	if err := json.Unmarshal([]byte(raw), &pc); err != nil {
		return pc, fmt.Errorf("%w: payment context: %v", domain.ErrReadDatabaseRow, err)
	}
	return pc, nil
}

func (r *transactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.TransactionStatusPending
	}
	payload, err := r.encodeContext(t.Context)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO transactions (id, order_id, user_id, code_id, amount, currency, gateway, status,
                          gateway_txn_id, result_code, message, payment_data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);`
	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.OrderID, t.UserID, t.CodeID, t.Amount, t.Currency, t.Gateway, string(t.Status),
		t.GatewayTxnID, t.ResultCode, t.Message, payload, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return writeErr(err)
	}
	return nil
}

func (r *transactionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+transactionColumns+` FROM transactions WHERE order_id=$1;`, orderID)
	if err != nil {
		return nil, err
	}
	return r.scan(row)
}

// UpdateStatus refuses to move a terminal order back to pending or a successful
// order anywhere else. A refusal is domain.ErrInvalidState.
func (r *transactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	const q = `
UPDATE transactions
   SET status = $2,
       gateway_txn_id = COALESCE($3, gateway_txn_id),
       result_code = COALESCE($4, result_code),
       message = COALESCE($5, message),
       updated_at = NOW()
 WHERE order_id = $1
   AND NOT (status <> 'pending' AND $2 = 'pending')
   AND NOT (status = 'success' AND $2 <> 'success')
RETURNING ` + transactionColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID, string(status), upd.GatewayTxnID, upd.ResultCode, upd.Message)
	if err != nil {
		return nil, err
	}
	t, err := r.scan(row)
	if errors.Is(err, domain.ErrNotFound) {
		// distinguish an unknown order from a refused regression
		cur, findErr := r.FindByOrderID(ctx, tx, orderID)
		if findErr != nil {
			return nil, findErr
		}
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrInvalidState, orderID, cur.Status)
	}
	return t, err
}

func (r *transactionRepo) LinkCode(ctx context.Context, tx repository.Tx, orderID, codeID string) (*model.Transaction, error) {
	const q = `
UPDATE transactions SET code_id = $2, updated_at = NOW()
 WHERE order_id = $1
RETURNING ` + transactionColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID, codeID)
	if err != nil {
		return nil, err
	}
	return r.scan(row)
}

func (r *transactionRepo) LinkCodeIfAbsent(ctx context.Context, tx repository.Tx, orderID, codeID string) (*model.Transaction, bool, error) {
	const q = `
UPDATE transactions
   SET code_id = $2, issuance_token = NULL, issuance_claimed_at = NULL, updated_at = NOW()
 WHERE order_id = $1 AND code_id IS NULL;`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID, codeID)
	if err != nil {
		return nil, false, writeErr(err)
	}
	t, err := r.FindByOrderID(ctx, tx, orderID)
	if err != nil {
		return nil, false, err
	}
	return t, tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ClaimIssuance(ctx context.Context, tx repository.Tx, orderID, token string, lease time.Duration) (bool, error) {
	const q = `
UPDATE transactions
   SET issuance_token = $2, issuance_claimed_at = NOW(), updated_at = NOW()
 WHERE order_id = $1
   AND code_id IS NULL
   AND (issuance_token IS NULL OR issuance_claimed_at < NOW() - make_interval(secs => $3::double precision));`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID, token, lease.Seconds())
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *transactionRepo) ReleaseIssuance(ctx context.Context, tx repository.Tx, orderID, token string) error {
	const q = `
UPDATE transactions SET issuance_token = NULL, issuance_claimed_at = NULL, updated_at = NOW()
 WHERE order_id = $1 AND issuance_token = $2;`
	if _, err := execSQL(ctx, r.pool, tx, q, orderID, token); err != nil {
		return writeErr(err)
	}
	return nil
}
