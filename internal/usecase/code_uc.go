// File: internal/usecase/code_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/repository"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ CodeUseCase = (*codeUC)(nil)

// CodeUseCase owns uniqueness and lifecycle of activation codes.
type CodeUseCase interface {
	// Issue persists a new active code. An ExternalToken is used verbatim and a
	// collision is returned as domain.ErrAlreadyExists; generated codes are
	// redrawn on collision a bounded number of times.
	Issue(ctx context.Context, p IssueParams) (*model.Code, error)
	Lookup(ctx context.Context, code string) (*model.Code, error)
	ByID(ctx context.Context, id string) (*model.Code, error)
	// Validate is the only read path that writes: an overdue active code is
	// flipped to expired as a side effect.
	Validate(ctx context.Context, code string) (*ValidationResult, error)
	Activate(ctx context.Context, code, userID string) (*model.Code, error)
	// Deactivate revokes an active code without an owning activation.
	Deactivate(ctx context.Context, code string) (*model.Code, error)
	SweepExpired(ctx context.Context) ([]*model.Code, error)
}

type IssueParams struct {
	Kind          model.CodeKind
	OwnerUserID   *string
	ExternalToken string
	ExpiresAt     *time.Time
}

type ValidationResult struct {
	Valid  bool
	Reason string
	Code   *model.Code
}

const (
	ReasonNotFound = "Code not found"
	ReasonExpired  = "Code has expired"
	ReasonValid    = "Code is valid"
)

// CodeOptions configures issuance.
type CodeOptions struct {
	TrialExpiryDays     int
	MaxGenerateAttempts int
}

type codeUC struct {
	codes       repository.CodeRepository
	trialTTL    time.Duration
	maxAttempts int
	generate    func() (string, error)
	now         func() time.Time
	log         *zerolog.Logger
}

func NewCodeUseCase(codes repository.CodeRepository, opts CodeOptions, logger *zerolog.Logger) *codeUC {
	if opts.TrialExpiryDays <= 0 {
		opts.TrialExpiryDays = 7
	}
	if opts.MaxGenerateAttempts <= 0 {
		opts.MaxGenerateAttempts = 5
	}
	compLog := logger.With().Str("component", "CodeUC").Logger()
	return &codeUC{
		codes:       codes,
		trialTTL:    time.Duration(opts.TrialExpiryDays) * 24 * time.Hour,
		maxAttempts: opts.MaxGenerateAttempts,
		generate:    generateActivationCode,
		now:         time.Now,
		log:         &compLog,
	}
}

// statusReason words a non-active status. Expired always reads the same
// whether this call or an earlier one flipped the code.
func statusReason(s model.CodeStatus) string {
	if s == model.CodeStatusExpired {
		return ReasonExpired
	}
	return "Code is " + string(s)
}

func (u *codeUC) Issue(ctx context.Context, p IssueParams) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "CodeUC.Issue")()

	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown code kind %q", domain.ErrInvalidArgument, p.Kind)
	}
	now := u.now()
	expiresAt := p.ExpiresAt
	if p.Kind == model.CodeKindTrial && expiresAt == nil {
		exp := now.Add(u.trialTTL)
		expiresAt = &exp
	}
	if p.Kind != model.CodeKindTrial {
		expiresAt = nil
	}

	external := strings.TrimSpace(p.ExternalToken)
	attempts := u.maxAttempts
	if external != "" {
		attempts = 1
	}

	for i := 0; i < attempts; i++ {
		value := external
		if value == "" {
			v, err := u.generate()
			if err != nil {
				return nil, fmt.Errorf("generate code: %w", err)
			}
			value = v
		}
		c := &model.Code{
			ID:        uuid.NewString(),
			Code:      value,
			Kind:      p.Kind,
			Status:    model.CodeStatusActive,
			UserID:    p.OwnerUserID,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err := u.codes.Create(ctx, repository.NoTX, c)
		if err == nil {
			metrics.IncCodeIssued(string(c.Kind))
			u.log.Info().Str("code_id", c.ID).Str("kind", string(c.Kind)).Msg("code issued")
			return c, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		metrics.IncCodeCollision()
		u.log.Warn().Int("attempt", i+1).Bool("external", external != "").Msg("code collision")
	}
	if external != "" {
		return nil, fmt.Errorf("%w: code %s", domain.ErrAlreadyExists, external)
	}
	return nil, fmt.Errorf("%w: no unique code after %d attempts", domain.ErrAlreadyExists, attempts)
}

func (u *codeUC) Lookup(ctx context.Context, code string) (*model.Code, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.codes.FindByCode(ctx, repository.NoTX, code)
}

func (u *codeUC) ByID(ctx context.Context, id string) (*model.Code, error) {
	return u.codes.FindByID(ctx, repository.NoTX, id)
}

func (u *codeUC) Validate(ctx context.Context, code string) (*ValidationResult, error) {
	c, err := u.Lookup(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if c.IsActive() && c.IsExpired(u.now()) {
		if c, err = u.expire(ctx, c); err != nil {
			return nil, err
		}
	}
	if !c.IsActive() {
		return &ValidationResult{Valid: false, Reason: statusReason(c.Status), Code: c}, nil
	}
	return &ValidationResult{Valid: true, Reason: ReasonValid, Code: c}, nil
}

// expire flips an overdue code and returns its current state. A concurrent
// writer that got there first wins; the stored row is reloaded.
func (u *codeUC) expire(ctx context.Context, c *model.Code) (*model.Code, error) {
	ok, err := u.codes.UpdateStatusIfActive(ctx, repository.NoTX, c.ID, model.CodeStatusExpired, nil, nil)
	if err != nil {
		return nil, err
	}
	if ok {
		metrics.AddCodeTransitions(string(model.CodeStatusExpired), 1)
		c.Status = model.CodeStatusExpired
		return c, nil
	}
	return u.codes.FindByID(ctx, repository.NoTX, c.ID)
}

func (u *codeUC) Activate(ctx context.Context, code, userID string) (*model.Code, error) {
	defer logging.TraceDuration(u.log, "CodeUC.Activate")()

	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("%w: user id", domain.ErrInvalidArgument)
	}
	c, err := u.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: code is %s", domain.ErrInvalidState, c.Status)
	}
	now := u.now()
	if c.IsExpired(now) {
		if _, err := u.expire(ctx, c); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidState, domain.ErrCodeExpired)
	}

	ok, err := u.codes.UpdateStatusIfActive(ctx, repository.NoTX, c.ID, model.CodeStatusUsed, &userID, &now)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := u.codes.FindByID(ctx, repository.NoTX, c.ID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: code is %s", domain.ErrInvalidState, cur.Status)
	}
	metrics.AddCodeTransitions(string(model.CodeStatusUsed), 1)
	c.Status = model.CodeStatusUsed
	c.UserID = &userID
	c.ActivatedAt = &now
	u.log.Info().Str("code_id", c.ID).Str("user_id", userID).Msg("code activated")
	return c, nil
}

func (u *codeUC) Deactivate(ctx context.Context, code string) (*model.Code, error) {
	c, err := u.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !c.IsActive() {
		return nil, fmt.Errorf("%w: code is %s", domain.ErrInvalidState, c.Status)
	}
	ok, err := u.codes.UpdateStatusIfActive(ctx, repository.NoTX, c.ID, model.CodeStatusUsed, nil, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		cur, err := u.codes.FindByID(ctx, repository.NoTX, c.ID)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: code is %s", domain.ErrInvalidState, cur.Status)
	}
	metrics.AddCodeTransitions("revoked", 1)
	c.Status = model.CodeStatusUsed
	u.log.Info().Str("code_id", c.ID).Msg("code deactivated")
	return c, nil
}

func (u *codeUC) SweepExpired(ctx context.Context) ([]*model.Code, error) {
	defer logging.TraceDuration(u.log, "CodeUC.SweepExpired")()

	expired, err := u.codes.ExpireOverdue(ctx, repository.NoTX, u.now())
	if err != nil {
		return nil, err
	}
	metrics.AddCodeTransitions(string(model.CodeStatusExpired), len(expired))
	return expired, nil
}
