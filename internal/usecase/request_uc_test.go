//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/usecase"
)

type requestTestDeps struct {
	users     *MockUserRepo
	codeRepo  *MockCodeRepo
	txRepo    *MockTransactionRepo
	notifRepo *MockNotificationRepo
	tokens    *MockTokenGateway
	payments  *MockPaymentGateway
	sender    *MockEmailSender
}

func newRequestDeps() *requestTestDeps {
	return &requestTestDeps{
		users:     NewMockUserRepo(),
		codeRepo:  NewMockCodeRepo(),
		txRepo:    NewMockTransactionRepo(),
		notifRepo: NewMockNotificationRepo(),
		tokens:    &MockTokenGateway{},
		payments:  &MockPaymentGateway{},
		sender:    &MockEmailSender{},
	}
}

func (d *requestTestDeps) build() usecase.RequestUseCase {
	codes := usecase.NewCodeUseCase(d.codeRepo, usecase.CodeOptions{TrialExpiryDays: 15}, newTestLogger())
	txns := usecase.NewTransactionUseCase(d.txRepo, newTestLogger())
	notifier := usecase.NewNotificationUseCase(d.notifRepo, d.sender, usecase.NotificationOptions{TrialExpiryDays: 15}, newTestLogger())
	return usecase.NewRequestUseCase(d.users, codes, txns, d.tokens, d.payments, notifier, &MockRunner{},
		usecase.RequestOptions{PremiumPrice: 199000, Currency: "VND"}, newTestLogger())
}

func TestRequestUseCase_RequestTrial(t *testing.T) {
	ctx := context.Background()

	t.Run("one trial per national id regardless of email", func(t *testing.T) {
		// --- Arrange ---
		d := newRequestDeps()
		uc := d.build()

		// --- Act ---
		first, err := uc.RequestTrial(ctx, usecase.CodeRequest{Email: "a@x.com", NameCompany: "Acme", NationalID: "079"})
		if err != nil {
			t.Fatalf("first trial: %v", err)
		}
		_, err = uc.RequestTrial(ctx, usecase.CodeRequest{Email: "other@x.com", NameCompany: "Acme", NationalID: "079"})

		// --- Assert ---
		if !errors.Is(err, domain.ErrTrialAlreadyGranted) {
			t.Fatalf("expected ErrTrialAlreadyGranted, got %v", err)
		}
		if first.Code.Kind != model.CodeKindTrial || first.Code.ExpiresAt == nil {
			t.Errorf("unexpected trial code %+v", first.Code)
		}
		if until := time.Until(*first.Code.ExpiresAt); until < 14*24*time.Hour {
			t.Errorf("trial must use the configured 15 days, expires in %v", until)
		}
		if len(d.sender.Sent) != 1 || !strings.Contains(d.sender.Sent[0].Subject, "15 days") {
			t.Errorf("trial email must quote the configured days: %+v", d.sender.Sent)
		}
	})

	t.Run("email cannot move its national id to free it for another trial", func(t *testing.T) {
		d := newRequestDeps()
		uc := d.build()

		if _, err := uc.RequestTrial(ctx, usecase.CodeRequest{Email: "a@x.com", NameCompany: "Acme", NationalID: "079"}); err != nil {
			t.Fatalf("first trial: %v", err)
		}
		_, err := uc.RequestTrial(ctx, usecase.CodeRequest{Email: "a@x.com", NameCompany: "Acme", NationalID: "080"})
		if !errors.Is(err, domain.ErrNationalIDMismatch) {
			t.Fatalf("expected ErrNationalIDMismatch, got %v", err)
		}
		_, err = uc.RequestTrial(ctx, usecase.CodeRequest{Email: "b@x.com", NameCompany: "Acme", NationalID: "079"})
		if !errors.Is(err, domain.ErrTrialAlreadyGranted) {
			t.Fatalf("expected ErrTrialAlreadyGranted, got %v", err)
		}

		u, err := d.users.FindByNationalID(ctx, nil, "079")
		if err != nil || u.Email != "a@x.com" {
			t.Fatalf("079 must still belong to a@x.com, got %+v err=%v", u, err)
		}
		if n := d.codeRepo.Count(); n != 1 {
			t.Errorf("expected exactly one issued code, got %d", n)
		}
	})

	t.Run("upstream expiry wins over configured days", func(t *testing.T) {
		d := newRequestDeps()
		exp := time.Now().Add(48 * time.Hour).Truncate(time.Second)
		d.tokens.AcquireFunc = func(ctx context.Context, req adapter.TokenRequest) adapter.TokenResult {
			return adapter.TokenResult{Token: "TRIAL-UP", Source: adapter.TokenSourceUpstream, ExpiresAt: &exp}
		}
		res, err := d.build().RequestTrial(ctx, usecase.CodeRequest{Email: "b@x.com", NameCompany: "B", NationalID: "080"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Code.Code != "TRIAL-UP" || !res.Code.ExpiresAt.Equal(exp) || res.Source != adapter.TokenSourceUpstream {
			t.Errorf("unexpected result %+v", res.Code)
		}
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := newRequestDeps().build().RequestTrial(ctx, usecase.CodeRequest{Email: "c@x.com", NameCompany: "C"})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("failed issuance rolls the trial flag back", func(t *testing.T) {
		d := newRequestDeps()
		d.codeRepo.Put(&model.Code{ID: "x", Code: "TAKEN", Kind: model.CodeKindTrial, Status: model.CodeStatusActive})
		d.tokens.AcquireFunc = func(ctx context.Context, req adapter.TokenRequest) adapter.TokenResult {
			return adapter.TokenResult{Token: "TAKEN", Source: adapter.TokenSourceUpstream}
		}
		uc := d.build()

		_, err := uc.RequestTrial(ctx, usecase.CodeRequest{Email: "d@x.com", NameCompany: "D", NationalID: "081"})
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
		u, _ := d.users.FindByNationalID(ctx, nil, "081")
		if u.TrialCodeReceived {
			t.Error("trial flag must be cleared after a failed issuance")
		}

		d.tokens.AcquireFunc = nil
		if _, err := uc.RequestTrial(ctx, usecase.CodeRequest{Email: "d@x.com", NameCompany: "D", NationalID: "081"}); err != nil {
			t.Fatalf("retry after rollback: %v", err)
		}
	})
}

func TestRequestUseCase_RequestPremium(t *testing.T) {
	ctx := context.Background()

	t.Run("opens a pending order and returns the pay url", func(t *testing.T) {
		d := newRequestDeps()
		res, err := d.build().RequestPremium(ctx, usecase.CodeRequest{Email: "U@X.com", NameCompany: "Acme", NationalID: "001"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		txn := res.Transaction
		if txn.Status != model.TransactionStatusPending || txn.Amount != 199000 || txn.Currency != "VND" || txn.Gateway != "momo" {
			t.Errorf("unexpected transaction %+v", txn)
		}
		if txn.Context.ProductType != model.CodeKindPremium || txn.Context.NationalID != "001" {
			t.Errorf("payment context not captured: %+v", txn.Context)
		}
		if !strings.HasSuffix(res.PayURL, txn.OrderID) {
			t.Errorf("unexpected pay url %q", res.PayURL)
		}
		if len(d.payments.Requests) != 1 || d.payments.Requests[0].Amount != 199000 {
			t.Errorf("gateway not called with the order amount: %+v", d.payments.Requests)
		}
	})

	t.Run("email bound to another national id opens no order", func(t *testing.T) {
		d := newRequestDeps()
		uc := d.build()
		if _, err := uc.RequestPremium(ctx, usecase.CodeRequest{Email: "f@x.com", NameCompany: "F", NationalID: "003"}); err != nil {
			t.Fatalf("first premium: %v", err)
		}

		_, err := uc.RequestPremium(ctx, usecase.CodeRequest{Email: "f@x.com", NameCompany: "F", NationalID: "004"})

		if !errors.Is(err, domain.ErrNationalIDMismatch) {
			t.Fatalf("expected ErrNationalIDMismatch, got %v", err)
		}
		if len(d.payments.Requests) != 1 {
			t.Errorf("no payment may be created for the mismatched request: %+v", d.payments.Requests)
		}
		if _, err := d.users.FindByNationalID(ctx, nil, "003"); err != nil {
			t.Errorf("003 must stay bound to f@x.com: %v", err)
		}
	})

	t.Run("gateway failure marks the order failed", func(t *testing.T) {
		d := newRequestDeps()
		d.payments.CreatePaymentFunc = func(ctx context.Context, req adapter.PaymentRequest) (string, error) {
			return "", errBoom
		}
		_, err := d.build().RequestPremium(ctx, usecase.CodeRequest{Email: "e@x.com", NameCompany: "E", NationalID: "002"})
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected gateway error, got %v", err)
		}
		orderID := d.payments.Requests[0].OrderID
		txn, _ := d.txRepo.FindByOrderID(ctx, nil, orderID)
		if txn.Status != model.TransactionStatusFailed {
			t.Errorf("status = %s, want failed", txn.Status)
		}
	})
}
