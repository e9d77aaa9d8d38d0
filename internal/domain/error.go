package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidState       = errors.New("invalid state")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Codes and trials
	ErrCodeExpired         = errors.New("activation code has expired")
	ErrTrialAlreadyGranted = errors.New("trial code already issued for this national id")
	ErrNationalIDMismatch  = errors.New("email is registered with a different national id")

	// Reconciliation
	ErrReconcileInProgress = errors.New("reconciliation already in progress for this order")

	// Collaborators; absorbed before reaching a caller.
	ErrUpstreamTimeout = errors.New("upstream token service timed out")
	ErrUpstreamFormat  = errors.New("upstream token service returned a malformed response")
	ErrDispatch        = errors.New("notification dispatch failed")

	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrLockNotAcquired = errors.New("lock not acquired")
)
