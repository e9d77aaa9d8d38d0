//go:build !integration

package usecase_test

import (
	"testing"

	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/usecase"
)

func TestOutcomePolicy_Strict(t *testing.T) {
	p, err := usecase.NewOutcomePolicy("", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Mode() != usecase.OutcomeModeStrict {
		t.Fatalf("default mode = %s", p.Mode())
	}

	tests := []struct {
		code       string
		amountOK   bool
		wantAction usecase.OutcomeAction
		wantStatus model.TransactionStatus
	}{
		{"0", true, usecase.OutcomeIssue, model.TransactionStatusSuccess},
		{"9000", true, usecase.OutcomeIssue, model.TransactionStatusSuccess},
		{"0", false, usecase.OutcomeHold, model.TransactionStatusPending},
		{"7000", true, usecase.OutcomeHold, model.TransactionStatusPending},
		{"1006", true, usecase.OutcomeReject, model.TransactionStatusCancelled},
		{"1005", true, usecase.OutcomeReject, model.TransactionStatusCancelled},
		{"1001", true, usecase.OutcomeReject, model.TransactionStatusFailed},
		{"", true, usecase.OutcomeReject, model.TransactionStatusFailed},
	}
	for _, tc := range tests {
		a := p.Decide(tc.code, tc.amountOK)
		if a != tc.wantAction {
			t.Errorf("Decide(%q, %v) = %s, want %s", tc.code, tc.amountOK, a, tc.wantAction)
		}
		if s := p.StatusFor(a, tc.code); s != tc.wantStatus {
			t.Errorf("StatusFor(%s, %q) = %s, want %s", a, tc.code, s, tc.wantStatus)
		}
	}
}

func TestOutcomePolicy_AlwaysIssueAndOverrides(t *testing.T) {
	always, err := usecase.NewOutcomePolicy("always_issue", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for _, code := range []string{"0", "1006", "49"} {
		if a := always.Decide(code, false); a != usecase.OutcomeIssue {
			t.Errorf("always_issue Decide(%q) = %s", code, a)
		}
	}

	p, err := usecase.NewOutcomePolicy("strict", map[string]string{"49": "Issue", "7000": "reject"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if a := p.Decide("49", true); a != usecase.OutcomeIssue {
		t.Errorf("override 49 = %s", a)
	}
	if a := p.Decide("7000", true); a != usecase.OutcomeReject {
		t.Errorf("override 7000 = %s", a)
	}

	if _, err := usecase.NewOutcomePolicy("yolo", nil); err == nil {
		t.Error("expected error for unknown mode")
	}
	if _, err := usecase.NewOutcomePolicy("strict", map[string]string{"0": "maybe"}); err == nil {
		t.Error("expected error for unknown action")
	}
}
