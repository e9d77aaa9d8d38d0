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
	"activation-code-service/internal/infra/i18n"
	"activation-code-service/internal/usecase"
)

func premiumCode() *model.Code {
	return &model.Code{ID: "code-1", Code: "PRM-AAAA", Kind: model.CodeKindPremium, Status: model.CodeStatusActive}
}

func TestNotificationUseCase_EnqueueRendersTemplates(t *testing.T) {
	ctx := context.Background()
	repo := NewMockNotificationRepo()
	uc := usecase.NewNotificationUseCase(repo, &MockEmailSender{}, usecase.NotificationOptions{Brand: "MyShop", TrialExpiryDays: 9}, newTestLogger())

	n, err := uc.EnqueueCodeIssued(ctx, usecase.CodeNotice{
		Email: "u@x.com", Name: "Acme <b>", Code: premiumCode(), OrderID: "ORD1", Amount: 199000, Currency: "VND", PaidAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n.Kind != model.NotificationKindCodeIssued || n.Status != model.NotificationStatusPending {
		t.Errorf("unexpected notification %+v", n)
	}
	if !strings.Contains(n.HTMLBody, "PRM-AAAA") || !strings.Contains(n.HTMLBody, "199.000") {
		t.Errorf("premium body missing code or amount: %s", n.HTMLBody)
	}
	if strings.Contains(n.HTMLBody, "<b>") {
		t.Error("recipient name must be escaped")
	}

	expires := time.Now().Add(9 * 24 * time.Hour)
	trial := &model.Code{ID: "code-2", Code: "TRL-BBBB", Kind: model.CodeKindTrial, ExpiresAt: &expires}
	n, err = uc.EnqueueCodeIssued(ctx, usecase.CodeNotice{Email: "t@x.com", Code: trial})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n.Kind != model.NotificationKindTrialIssued || !strings.Contains(n.Subject, "9 days") || !strings.Contains(n.TextBody, "9 days") {
		t.Errorf("trial copy must use the configured days: %q / %q", n.Subject, n.TextBody)
	}

	if _, err := uc.EnqueueCodeIssued(ctx, usecase.CodeNotice{Code: trial}); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument without recipient, got %v", err)
	}
}

func TestNotificationUseCase_LocalizedCopy(t *testing.T) {
	vi, err := i18n.NewTranslator(i18n.LocalesFS, "vi")
	if err != nil {
		t.Fatalf("load vi catalog: %v", err)
	}
	uc := usecase.NewNotificationUseCase(NewMockNotificationRepo(), &MockEmailSender{}, usecase.NotificationOptions{Copy: vi, TrialExpiryDays: 7}, newTestLogger())

	expires := time.Now().Add(7 * 24 * time.Hour)
	n, err := uc.EnqueueCodeIssued(context.Background(), usecase.CodeNotice{
		Email: "t@x.com", Code: &model.Code{ID: "c", Code: "TRL-VI", Kind: model.CodeKindTrial, ExpiresAt: &expires},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.Contains(n.Subject, "7 ngày") || !strings.Contains(n.TextBody, "TRL-VI") || !strings.Contains(n.TextBody, "Hết hạn") {
		t.Errorf("expected Vietnamese copy, got %q / %q", n.Subject, n.TextBody)
	}
}

func TestNotificationUseCase_DispatchRetriesThenDeadLetters(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	repo := NewMockNotificationRepo()
	sender := &MockEmailSender{SendFunc: func(ctx context.Context, msg adapter.EmailMessage) (string, error) {
		return "", errBoom
	}}
	uc := usecase.NewNotificationUseCase(repo, sender, usecase.NotificationOptions{
		MaxAttempts: 2,
		RetryBase:   time.Millisecond,
		RetryMax:    time.Millisecond,
	}, newTestLogger())
	n, err := uc.EnqueueCodeIssued(ctx, usecase.CodeNotice{Email: "u@x.com", Code: premiumCode()})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// --- Act ---
	first, err := uc.DispatchDue(ctx, 10)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := uc.DispatchDue(ctx, 10)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}

	// --- Assert ---
	if first.Retried != 1 || second.Dead != 1 {
		t.Errorf("expected one retry then dead, got %+v then %+v", first, second)
	}
	stored, _ := repo.FindByID(ctx, nil, n.ID)
	if stored.Status != model.NotificationStatusDead || stored.Attempts != 2 || stored.LastError == nil {
		t.Errorf("unexpected stored row %+v", stored)
	}
}

func TestNotificationUseCase_DeliverSendsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMockNotificationRepo()
	sender := &MockEmailSender{}
	uc := usecase.NewNotificationUseCase(repo, sender, usecase.NotificationOptions{}, newTestLogger())
	n, err := uc.EnqueueCodeIssued(ctx, usecase.CodeNotice{Email: "u@x.com", Code: premiumCode()})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := uc.Deliver(ctx, n.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := uc.Deliver(ctx, n.ID); err != nil {
		t.Fatalf("second deliver must be a no-op, got %v", err)
	}
	stats, err := uc.DispatchDue(ctx, 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(sender.Sent) != 1 || stats.Sent != 0 {
		t.Errorf("expected a single send, got %d sends and %+v", len(sender.Sent), stats)
	}
	stored, _ := repo.FindByID(ctx, nil, n.ID)
	if stored.Status != model.NotificationStatusSent || stored.ProviderMessageID == nil {
		t.Errorf("unexpected stored row %+v", stored)
	}
}
