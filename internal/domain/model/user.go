package model

import (
	"net/mail"
	"strings"
	"time"

	"activation-code-service/internal/domain"

	"github.com/google/uuid"
)

// User is the identity anchor for code ownership. It is created on the
// first trial or premium request and never deleted by the service.
type User struct {
	ID                string
	Email             string
	Name              string
	NationalID        *string // "cccd"; unique when present
	TrialCodeReceived bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewUser(id, email, name, nationalID string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	u := &User{
		ID:        id,
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nid := strings.TrimSpace(nationalID); nid != "" {
		u.NationalID = &nid
	}
	return u, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
