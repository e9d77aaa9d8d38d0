//go:build !integration

package model

import (
	"errors"
	"testing"
	"time"

	"activation-code-service/internal/domain"
)

// --- User Model Tests ---

func TestNewUser(t *testing.T) {
	t.Run("should create a new user successfully", func(t *testing.T) {
		user, err := NewUser("", " U@X.com ", "Acme", "079123456789")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if user.ID == "" {
			t.Error("expected user ID to be non-empty")
		}
		if user.Email != "u@x.com" {
			t.Errorf("expected normalized email, got %q", user.Email)
		}
		if user.NationalID == nil || *user.NationalID != "079123456789" {
			t.Errorf("expected national id to be set, got %v", user.NationalID)
		}
		if user.TrialCodeReceived {
			t.Error("new user must not have a trial flag")
		}
	})

	t.Run("should leave national id nil when blank", func(t *testing.T) {
		user, err := NewUser("", "u@x.com", "Acme", "  ")
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if user.NationalID != nil {
			t.Errorf("expected nil national id, got %q", *user.NationalID)
		}
	})

	t.Run("should fail with invalid email", func(t *testing.T) {
		_, err := NewUser("", "not-an-email", "Acme", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("should fail with empty name", func(t *testing.T) {
		_, err := NewUser("", "u@x.com", "", "")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

// --- Code Model Tests ---

func TestCode_Lifecycle(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	t.Run("expiry", func(t *testing.T) {
		c := &Code{Status: CodeStatusActive, ExpiresAt: &past}
		if !c.IsExpired(now) {
			t.Error("expected code with past expiry to be expired")
		}
		c.ExpiresAt = &future
		if c.IsExpired(now) {
			t.Error("expected code with future expiry to be live")
		}
		c.ExpiresAt = nil
		if c.IsExpired(now) {
			t.Error("premium code without expiry must never expire")
		}
	})

	t.Run("status only moves forward", func(t *testing.T) {
		c := &Code{Status: CodeStatusActive}
		if !c.CanTransition(CodeStatusUsed) || !c.CanTransition(CodeStatusExpired) {
			t.Error("active code should move to used or expired")
		}
		if c.CanTransition(CodeStatusActive) {
			t.Error("active -> active is not a transition")
		}
		c.Status = CodeStatusUsed
		if c.CanTransition(CodeStatusExpired) {
			t.Error("used is terminal")
		}
		c.Status = CodeStatusExpired
		if c.CanTransition(CodeStatusUsed) {
			t.Error("expired is terminal")
		}
	})
}

// --- Transaction Model Tests ---

func TestCanAdvance(t *testing.T) {
	cases := []struct {
		from, to TransactionStatus
		want     bool
	}{
		{TransactionStatusPending, TransactionStatusSuccess, true},
		{TransactionStatusPending, TransactionStatusPending, true},
		{TransactionStatusSuccess, TransactionStatusSuccess, true},
		{TransactionStatusFailed, TransactionStatusSuccess, true},
		{TransactionStatusSuccess, TransactionStatusPending, false},
		{TransactionStatusSuccess, TransactionStatusFailed, false},
		{TransactionStatusSuccess, TransactionStatusCancelled, false},
		{TransactionStatusFailed, TransactionStatusCancelled, true},
		{TransactionStatusCancelled, TransactionStatusPending, false},
		{TransactionStatusPending, TransactionStatus("bogus"), false},
	}
	for _, tc := range cases {
		if got := CanAdvance(tc.from, tc.to); got != tc.want {
			t.Errorf("CanAdvance(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransaction_ProductKind(t *testing.T) {
	txn := &Transaction{Status: TransactionStatusPending}
	if txn.ProductKind() != CodeKindPremium {
		t.Errorf("expected premium default, got %s", txn.ProductKind())
	}
	txn.Context.ProductType = CodeKindTrial
	if txn.ProductKind() != CodeKindTrial {
		t.Errorf("expected trial, got %s", txn.ProductKind())
	}
	if txn.CallbackReceived() {
		t.Error("pending transaction reported a callback")
	}
	txn.Status = TransactionStatusSuccess
	if !txn.CallbackReceived() {
		t.Error("success transaction must report a callback")
	}
}
