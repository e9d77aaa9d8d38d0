package model

import (
	"time"
)

type CodeKind string

const (
	CodeKindTrial      CodeKind = "trial"
	CodeKindPremium    CodeKind = "premium"
	CodeKindEnterprise CodeKind = "enterprise"
)

func (k CodeKind) Valid() bool {
	switch k {
	case CodeKindTrial, CodeKindPremium, CodeKindEnterprise:
		return true
	}
	return false
}

type CodeStatus string

const (
	CodeStatusActive  CodeStatus = "active"
	CodeStatusUsed    CodeStatus = "used"    // terminal
	CodeStatusExpired CodeStatus = "expired" // terminal
)

// Code is a redeemable activation token. The code string is unique across
// all kinds and the status only moves forward from active.
type Code struct {
	ID          string
	Code        string
	Kind        CodeKind
	Status      CodeStatus
	UserID      *string
	ExpiresAt   *time.Time // trial only; premium codes never expire
	ActivatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExpired reports whether the code carries an expiry that has passed.
func (c *Code) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

func (c *Code) IsActive() bool { return c.Status == CodeStatusActive }

// CanTransition enforces active -> {used, expired}.
func (c *Code) CanTransition(to CodeStatus) bool {
	if c.Status != CodeStatusActive {
		return false
	}
	return to == CodeStatusUsed || to == CodeStatusExpired
}
