//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/domain/ports/repository"
)

// =============================
// Repositories (in-memory)
// =============================

// ---- MockUserRepo ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	UpsertFunc            func(ctx context.Context, tx repository.Tx, u *model.User) (*model.User, error)
	MarkTrialReceivedFunc func(ctx context.Context, tx repository.Tx, id string) (bool, error)
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}}
}

func (r *MockUserRepo) Upsert(ctx context.Context, tx repository.Tx, u *model.User) (*model.User, error) {
	if r.UpsertFunc != nil {
		return r.UpsertFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if u.NationalID != nil && existing.NationalID != nil && *existing.NationalID == *u.NationalID && existing.Email != u.Email {
			return nil, domain.ErrAlreadyExists
		}
	}
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			existing.Name = u.Name
			if existing.NationalID == nil {
				existing.NationalID = u.NationalID
			}
			cp := *existing
			return &cp, nil
		}
	}
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	r.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) FindByNationalID(ctx context.Context, tx repository.Tx, nationalID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.NationalID != nil && *u.NationalID == nationalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockUserRepo) MarkTrialReceived(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	if r.MarkTrialReceivedFunc != nil {
		return r.MarkTrialReceivedFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if u.TrialCodeReceived {
		return false, nil
	}
	u.TrialCodeReceived = true
	return true, nil
}

func (r *MockUserRepo) ClearTrialReceived(ctx context.Context, tx repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.TrialCodeReceived = false
	return nil
}

// ---- MockCodeRepo ----

type MockCodeRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.Code
	byCode map[string]string

	CreateFunc func(ctx context.Context, tx repository.Tx, c *model.Code) error
}

var _ repository.CodeRepository = (*MockCodeRepo)(nil)

func NewMockCodeRepo() *MockCodeRepo {
	return &MockCodeRepo{byID: map[string]*model.Code{}, byCode: map[string]string{}}
}

func (r *MockCodeRepo) Create(ctx context.Context, tx repository.Tx, c *model.Code) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byCode[c.Code]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *c
	r.byID[c.ID] = &cp
	r.byCode[c.Code] = c.ID
	return nil
}

func (r *MockCodeRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockCodeRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Code, error) {
	r.mu.Lock()
	id, ok := r.byCode[code]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, tx, id)
}

func (r *MockCodeRepo) UpdateStatusIfActive(ctx context.Context, tx repository.Tx, id string, status model.CodeStatus, userID *string, activatedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Status != model.CodeStatusActive {
		return false, nil
	}
	c.Status = status
	if userID != nil {
		c.UserID = userID
	}
	if activatedAt != nil {
		c.ActivatedAt = activatedAt
	}
	return true, nil
}

func (r *MockCodeRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time) ([]*model.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Code
	for _, c := range r.byID {
		if c.Status == model.CodeStatusActive && c.IsExpired(now) {
			c.Status = model.CodeStatusExpired
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Count returns how many codes are stored.
func (r *MockCodeRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Put stores c as is, bypassing uniqueness checks.
func (r *MockCodeRepo) Put(c *model.Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.byID[c.ID] = &cp
	r.byCode[c.Code] = c.ID
}

// ---- MockTransactionRepo ----

type claim struct {
	token string
	until time.Time
}

type MockTransactionRepo struct {
	mu      sync.Mutex
	byOrder map[string]*model.Transaction
	claims  map[string]claim

	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error)
	// BeforeUpdate runs ahead of the default UpdateStatus, outside the lock.
	BeforeUpdate func(orderID string, status model.TransactionStatus)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{byOrder: map[string]*model.Transaction{}, claims: map[string]claim{}}
}

func (r *MockTransactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byOrder[t.OrderID]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *t
	r.byOrder[t.OrderID] = &cp
	return nil
}

func (r *MockTransactionRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byOrder[orderID]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockTransactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, status model.TransactionStatus, upd model.CallbackUpdate) (*model.Transaction, error) {
	if r.UpdateStatusFunc != nil {
		return r.UpdateStatusFunc(ctx, tx, orderID, status, upd)
	}
	if r.BeforeUpdate != nil {
		r.BeforeUpdate(orderID, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !model.CanAdvance(t.Status, status) {
		return nil, domain.ErrInvalidState
	}
	t.Status = status
	if upd.GatewayTxnID != nil {
		t.GatewayTxnID = upd.GatewayTxnID
	}
	if upd.ResultCode != nil {
		t.ResultCode = upd.ResultCode
	}
	if upd.Message != nil {
		t.Message = upd.Message
	}
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (r *MockTransactionRepo) LinkCode(ctx context.Context, tx repository.Tx, orderID, codeID string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	id := codeID
	t.CodeID = &id
	cp := *t
	return &cp, nil
}

func (r *MockTransactionRepo) LinkCodeIfAbsent(ctx context.Context, tx repository.Tx, orderID, codeID string) (*model.Transaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byOrder[orderID]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	linked := false
	if t.CodeID == nil {
		id := codeID
		t.CodeID = &id
		linked = true
		delete(r.claims, orderID)
	}
	cp := *t
	return &cp, linked, nil
}

func (r *MockTransactionRepo) ClaimIssuance(ctx context.Context, tx repository.Tx, orderID, token string, lease time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byOrder[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if t.CodeID != nil {
		return false, nil
	}
	if c, held := r.claims[orderID]; held && c.token != token && time.Now().Before(c.until) {
		return false, nil
	}
	r.claims[orderID] = claim{token: token, until: time.Now().Add(lease)}
	return true, nil
}

func (r *MockTransactionRepo) ReleaseIssuance(ctx context.Context, tx repository.Tx, orderID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.claims[orderID]; ok && c.token == token {
		delete(r.claims, orderID)
	}
	return nil
}

// ---- MockNotificationRepo ----

type MockNotificationRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Notification

	EnqueueFunc func(ctx context.Context, tx repository.Tx, n *model.Notification) error
}

var _ repository.NotificationRepository = (*MockNotificationRepo)(nil)

func NewMockNotificationRepo() *MockNotificationRepo {
	return &MockNotificationRepo{byID: map[string]*model.Notification{}}
}

func (r *MockNotificationRepo) Enqueue(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	if r.EnqueueFunc != nil {
		return r.EnqueueFunc(ctx, tx, n)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.byID[n.ID] = &cp
	return nil
}

func (r *MockNotificationRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.byID[id]; ok {
		cp := *n
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockNotificationRepo) ClaimDue(ctx context.Context, limit int, lease time.Duration) ([]*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*model.Notification
	for _, n := range r.byID {
		if len(out) >= limit {
			break
		}
		if n.Status == model.NotificationStatusPending && !n.NextAttemptAt.After(now) {
			n.NextAttemptAt = now.Add(lease)
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockNotificationRepo) ClaimOne(ctx context.Context, id string, lease time.Duration) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok || n.Status != model.NotificationStatusPending || n.NextAttemptAt.After(time.Now()) {
		return nil, domain.ErrNotFound
	}
	n.NextAttemptAt = time.Now().Add(lease)
	cp := *n
	return &cp, nil
}

func (r *MockNotificationRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, providerMessageID string) error {
	return r.update(id, func(n *model.Notification) {
		n.Status = model.NotificationStatusSent
		n.Attempts++
		n.ProviderMessageID = &providerMessageID
	})
}

func (r *MockNotificationRepo) MarkRetry(ctx context.Context, tx repository.Tx, id string, attempts int, nextAttemptAt time.Time, lastErr string) error {
	return r.update(id, func(n *model.Notification) {
		n.Attempts = attempts
		n.NextAttemptAt = nextAttemptAt
		n.LastError = &lastErr
	})
}

func (r *MockNotificationRepo) MarkDead(ctx context.Context, tx repository.Tx, id string, attempts int, lastErr string) error {
	return r.update(id, func(n *model.Notification) {
		n.Status = model.NotificationStatusDead
		n.Attempts = attempts
		n.LastError = &lastErr
	})
}

func (r *MockNotificationRepo) update(id string, fn func(n *model.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	fn(n)
	return nil
}

func (r *MockNotificationRepo) All() []*model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Notification, 0, len(r.byID))
	for _, n := range r.byID {
		cp := *n
		out = append(out, &cp)
	}
	return out
}

// =============================
// Adapters
// =============================

// ---- MockTokenGateway ----

type MockTokenGateway struct {
	calls atomic.Int32
	seq   atomic.Int32

	// Delay makes Acquire slow so concurrent callers overlap.
	Delay       time.Duration
	AcquireFunc func(ctx context.Context, req adapter.TokenRequest) adapter.TokenResult
}

var _ adapter.TokenGateway = (*MockTokenGateway)(nil)

func (m *MockTokenGateway) Acquire(ctx context.Context, req adapter.TokenRequest) adapter.TokenResult {
	m.calls.Add(1)
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, req)
	}
	return adapter.TokenResult{Token: m.Regenerate(req.Kind), Source: adapter.TokenSourceLocal}
}

func (m *MockTokenGateway) Regenerate(kind model.CodeKind) string {
	return fmt.Sprintf("%s-%04d", strings.ToUpper(string(kind)), m.seq.Add(1))
}

func (m *MockTokenGateway) Calls() int { return int(m.calls.Load()) }

// ---- MockPaymentGateway ----

type MockPaymentGateway struct {
	mu       sync.Mutex
	Requests []adapter.PaymentRequest

	CreatePaymentFunc func(ctx context.Context, req adapter.PaymentRequest) (string, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string { return "momo" }

func (m *MockPaymentGateway) NewOrderID() string { return "MOMO" + uuid.NewString() }

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (string, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, req)
	}
	return "https://pay.example/" + req.OrderID, nil
}

// ---- MockEmailSender ----

type MockEmailSender struct {
	mu   sync.Mutex
	Sent []adapter.EmailMessage

	SendFunc func(ctx context.Context, msg adapter.EmailMessage) (string, error)
}

var _ adapter.EmailSender = (*MockEmailSender)(nil)

func (m *MockEmailSender) Name() string { return "mock" }

func (m *MockEmailSender) Send(ctx context.Context, msg adapter.EmailMessage) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, msg)
	return fmt.Sprintf("msg-%d", len(m.Sent)), nil
}

// ---- MockRunner ----

// MockRunner runs submitted tasks synchronously.
type MockRunner struct {
	Err error
	ran atomic.Int32
}

var _ adapter.TaskRunner = (*MockRunner)(nil)

func (m *MockRunner) Submit(task func(ctx context.Context) error) error {
	if m.Err != nil {
		return m.Err
	}
	m.ran.Add(1)
	_ = task(context.Background())
	return nil
}

// =============================
// Helpers
// =============================

var errBoom = errors.New("boom")

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func ptr[T any](v T) *T { return &v }
