package usecase

import (
	"fmt"
	"strings"

	"activation-code-service/internal/domain/model"
)

// OutcomeAction is what the reconciler does with a gateway result code.
type OutcomeAction string

const (
	OutcomeIssue  OutcomeAction = "issue"
	OutcomeReject OutcomeAction = "reject"
	OutcomeHold   OutcomeAction = "hold"
)

func (a OutcomeAction) Valid() bool {
	switch a {
	case OutcomeIssue, OutcomeReject, OutcomeHold:
		return true
	}
	return false
}

const (
	OutcomeModeStrict      = "strict"
	OutcomeModeAlwaysIssue = "always_issue"
)

// MoMo result codes with a non-default meaning.
var strictOutcomes = map[string]OutcomeAction{
	"0":    OutcomeIssue, // successful
	"9000": OutcomeIssue, // authorized
	"1000": OutcomeHold,  // initiated, waiting for user confirmation
	"7000": OutcomeHold,  // being processed
	"7002": OutcomeHold,  // being processed by the payment provider
}

// Result codes for a payment the user walked away from rather than one that failed.
var cancelledResults = map[string]bool{
	"1003": true,
	"1005": true,
	"1006": true,
}

// OutcomePolicy maps a gateway result code to an action and a transaction status.
type OutcomePolicy struct {
	mode  string
	table map[string]OutcomeAction
}

// NewOutcomePolicy builds a policy for mode with overrides applied over the
// built-in strict table. Overrides are ignored in always_issue mode.
func NewOutcomePolicy(mode string, overrides map[string]string) (*OutcomePolicy, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = OutcomeModeStrict
	}
	if mode != OutcomeModeStrict && mode != OutcomeModeAlwaysIssue {
		return nil, fmt.Errorf("unknown outcome mode %q", mode)
	}
	table := make(map[string]OutcomeAction, len(strictOutcomes)+len(overrides))
	for k, v := range strictOutcomes {
		table[k] = v
	}
	for k, v := range overrides {
		a := OutcomeAction(strings.ToLower(strings.TrimSpace(v)))
		if !a.Valid() {
			return nil, fmt.Errorf("unknown outcome action %q for result %q", v, k)
		}
		table[strings.TrimSpace(k)] = a
	}
	return &OutcomePolicy{mode: mode, table: table}, nil
}

func (p *OutcomePolicy) Mode() string { return p.mode }

// Decide returns the action for resultCode. amountMatches is false when the
// callback amount disagrees with the stored order; strict mode then holds
// instead of issuing.
func (p *OutcomePolicy) Decide(resultCode string, amountMatches bool) OutcomeAction {
	if p.mode == OutcomeModeAlwaysIssue {
		return OutcomeIssue
	}
	a, ok := p.table[strings.TrimSpace(resultCode)]
	if !ok {
		a = OutcomeReject
	}
	if a == OutcomeIssue && !amountMatches {
		return OutcomeHold
	}
	return a
}

// StatusFor is the transaction status recorded for an action.
func (p *OutcomePolicy) StatusFor(a OutcomeAction, resultCode string) model.TransactionStatus {
	switch a {
	case OutcomeIssue:
		return model.TransactionStatusSuccess
	case OutcomeHold:
		return model.TransactionStatusPending
	}
	if cancelledResults[strings.TrimSpace(resultCode)] {
		return model.TransactionStatusCancelled
	}
	return model.TransactionStatusFailed
}
