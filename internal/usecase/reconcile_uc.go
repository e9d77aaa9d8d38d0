// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/domain/model"
	"activation-code-service/internal/domain/ports/adapter"
	"activation-code-service/internal/infra/logging"
	"activation-code-service/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase turns a gateway callback into at most one linked code per order.
// It is safe to call concurrently and repeatedly for the same order from
// either transport; later calls return the code issued by the first.
type ReconcileUseCase interface {
	Reconcile(ctx context.Context, cb Callback) (*ReconcileResult, error)
}

const (
	TransportNotify   = "notify"
	TransportRedirect = "redirect"
)

// Callback is the outcome of a payment as reported by the gateway.
type Callback struct {
	OrderID      string
	ResultCode   string
	GatewayTxnID string
	Message      string
	Amount       *int64
	Transport    string
}

type ReconcileResult struct {
	Action      OutcomeAction
	Transaction *model.Transaction
	Code        *model.Code // nil unless Action is issue
	Replayed    bool        // the code was issued by an earlier call
}

type ReconcileOptions struct {
	IssuanceLease time.Duration
	WaitTimeout   time.Duration
	PollInterval  time.Duration
	MaxRegenerate int
}

type reconcileUC struct {
	txns     TransactionUseCase
	codes    CodeUseCase
	tokens   adapter.TokenGateway
	notifier NotificationUseCase
	runner   adapter.TaskRunner
	policy   *OutcomePolicy
	opts     ReconcileOptions
	log      *zerolog.Logger
}

func NewReconcileUseCase(
	txns TransactionUseCase,
	codes CodeUseCase,
	tokens adapter.TokenGateway,
	notifier NotificationUseCase,
	runner adapter.TaskRunner,
	policy *OutcomePolicy,
	opts ReconcileOptions,
	logger *zerolog.Logger,
) *reconcileUC {
	if opts.IssuanceLease <= 0 {
		opts.IssuanceLease = 30 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 7 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	if opts.MaxRegenerate <= 0 {
		opts.MaxRegenerate = 3
	}
	compLog := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		txns:     txns,
		codes:    codes,
		tokens:   tokens,
		notifier: notifier,
		runner:   runner,
		policy:   policy,
		opts:     opts,
		log:      &compLog,
	}
}

func (u *reconcileUC) Reconcile(ctx context.Context, cb Callback) (res *ReconcileResult, err error) {
	defer logging.TraceDuration(u.log, "ReconcileUC.Reconcile")()
	start := time.Now()
	ctx = logging.WithOrderID(ctx, cb.OrderID)
	log := logging.With(ctx, u.log)
	defer func() {
		metrics.ObserveReconcile(cb.Transport, reconcileOutcome(res, err), time.Since(start))
	}()

	t, err := u.txns.ByOrderID(ctx, cb.OrderID)
	if err != nil {
		return nil, err
	}
	if t.HasCode() {
		return u.replay(ctx, t)
	}

	amountMatches := cb.Amount == nil || *cb.Amount == t.Amount
	action := u.policy.Decide(cb.ResultCode, amountMatches)
	if !amountMatches {
		log.Warn().Int64("expected", t.Amount).Int64("got", *cb.Amount).Msg("callback amount mismatch")
	}
	if t.Status != model.TransactionStatusSuccess {
		t, err = u.advance(ctx, t, action, cb)
		if err != nil {
			return nil, err
		}
	}
	// a recorded success is never downgraded by a later contradictory callback
	if t.Status == model.TransactionStatusSuccess {
		action = OutcomeIssue
	}
	log.Info().Str("transport", cb.Transport).Str("result_code", cb.ResultCode).
		Str("action", string(action)).Str("status", string(t.Status)).Msg("callback applied")

	if action != OutcomeIssue {
		return &ReconcileResult{Action: action, Transaction: t}, nil
	}
	return u.issueOnce(ctx, t)
}

func (u *reconcileUC) advance(ctx context.Context, t *model.Transaction, action OutcomeAction, cb Callback) (*model.Transaction, error) {
	upd := model.CallbackUpdate{
		GatewayTxnID: optional(cb.GatewayTxnID),
		ResultCode:   optional(cb.ResultCode),
		Message:      optional(cb.Message),
	}
	status := u.policy.StatusFor(action, cb.ResultCode)
	updated, err := u.txns.Advance(ctx, t.OrderID, status, upd)
	if errors.Is(err, domain.ErrInvalidState) {
		// the store refused the move; a concurrent success or an earlier
		// terminal state wins, and the caller continues from the stored row
		cur, ferr := u.txns.ByOrderID(ctx, t.OrderID)
		if ferr != nil {
			return nil, ferr
		}
		if cur.Status == model.TransactionStatusSuccess || action == OutcomeHold {
			return cur, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// issueOnce claims the order for issuance. The holder of the claim acquires a
// token and links the code; everyone else waits for the link to appear.
func (u *reconcileUC) issueOnce(ctx context.Context, t *model.Transaction) (*ReconcileResult, error) {
	claim := uuid.NewString()
	deadline := time.Now().Add(u.opts.WaitTimeout)
	for {
		won, err := u.txns.ClaimIssuance(ctx, t.OrderID, claim, u.opts.IssuanceLease)
		if err != nil {
			return nil, err
		}
		if won {
			return u.issue(ctx, t, claim)
		}

		cur, err := u.txns.ByOrderID(ctx, t.OrderID)
		if err != nil {
			return nil, err
		}
		if cur.HasCode() {
			return u.replay(ctx, cur)
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: order %s", domain.ErrReconcileInProgress, t.OrderID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(u.opts.PollInterval):
		}
	}
}

func (u *reconcileUC) issue(ctx context.Context, t *model.Transaction, claim string) (*ReconcileResult, error) {
	log := logging.With(ctx, u.log)
	linked := false
	defer func() {
		if linked {
			return
		}
		if err := u.txns.ReleaseIssuance(context.WithoutCancel(ctx), t.OrderID, claim); err != nil {
			log.Warn().Err(err).Msg("release issuance claim")
		}
	}()

	kind := t.ProductKind()
	tok := u.tokens.Acquire(ctx, adapter.TokenRequest{
		Kind:        kind,
		CompanyName: t.Context.NameCompany,
		Email:       t.Context.Email,
		NationalID:  t.Context.NationalID,
	})
	if tok.Reason != "" {
		log.Warn().Str("source", string(tok.Source)).Str("reason", tok.Reason).Msg("token fallback")
	}

	code, err := issueToken(ctx, u.codes, u.tokens, kind, t.UserID, tok, u.opts.MaxRegenerate)
	if err != nil {
		return nil, err
	}

	after, won, err := u.txns.LinkCodeIfAbsent(ctx, t.OrderID, code.ID)
	if err != nil {
		return nil, err
	}
	linked = true
	if !won {
		// a concurrent reconciliation linked first; ours must never be redeemable
		if _, derr := u.codes.Deactivate(ctx, code.Code); derr != nil {
			log.Error().Err(derr).Str("code_id", code.ID).Msg("revoke orphaned code")
		}
		return u.replay(ctx, after)
	}

	log.Info().Str("code_id", code.ID).Str("source", string(tok.Source)).Msg("code linked")
	u.notify(ctx, after, code)
	return &ReconcileResult{Action: OutcomeIssue, Transaction: after, Code: code}, nil
}

// issueToken persists tok, redrawing a local token when a non-upstream token
// collides. Upstream tokens are trusted to be unique and a collision is returned.
func issueToken(ctx context.Context, codes CodeUseCase, tokens adapter.TokenGateway, kind model.CodeKind, owner *string, tok adapter.TokenResult, maxAttempts int) (*model.Code, error) {
	token := tok.Token
	for attempt := 1; ; attempt++ {
		code, err := codes.Issue(ctx, IssueParams{
			Kind:          kind,
			OwnerUserID:   owner,
			ExternalToken: token,
			ExpiresAt:     tok.ExpiresAt,
		})
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) || tok.Source == adapter.TokenSourceUpstream || attempt >= maxAttempts {
			return nil, err
		}
		token = tokens.Regenerate(kind)
	}
}

func (u *reconcileUC) replay(ctx context.Context, t *model.Transaction) (*ReconcileResult, error) {
	code, err := u.codes.ByID(ctx, *t.CodeID)
	if err != nil {
		return nil, err
	}
	return &ReconcileResult{Action: OutcomeIssue, Transaction: t, Code: code, Replayed: true}, nil
}

// notify writes the outbox row and asks the pool for an immediate attempt.
// Failures are logged; the periodic dispatcher picks up whatever is left.
func (u *reconcileUC) notify(ctx context.Context, t *model.Transaction, code *model.Code) {
	if u.notifier == nil || t.Context.Email == "" {
		return
	}
	log := logging.With(ctx, u.log)
	n, err := u.notifier.EnqueueCodeIssued(context.WithoutCancel(ctx), CodeNotice{
		Email:    t.Context.Email,
		Name:     t.Context.NameCompany,
		Code:     code,
		OrderID:  t.OrderID,
		Amount:   t.Amount,
		Currency: t.Currency,
		PaidAt:   t.UpdatedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("enqueue code notification")
		return
	}
	kick(u.runner, u.notifier, n.ID, log)
}

func kick(runner adapter.TaskRunner, notifier NotificationUseCase, id string, log *zerolog.Logger) {
	if runner == nil {
		return
	}
	err := runner.Submit(func(ctx context.Context) error {
		return notifier.Deliver(ctx, id)
	})
	if err != nil {
		log.Debug().Err(err).Str("notification_id", id).Msg("deferred to dispatcher")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func reconcileOutcome(res *ReconcileResult, err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrReconcileInProgress):
		return "in_progress"
	case err != nil:
		return "error"
	case res.Replayed:
		return "replayed"
	case res.Action == OutcomeIssue:
		return "issued"
	case res.Action == OutcomeHold:
		return "held"
	}
	return "rejected"
}
