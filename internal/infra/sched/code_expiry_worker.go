package sched

import (
	"context"
	"errors"
	"time"

	"activation-code-service/internal/domain"
	"activation-code-service/internal/infra/redis"
	"activation-code-service/internal/usecase"

	"github.com/rs/zerolog"
)

const sweepLockKey = "lock:codes:sweep"

// CodeExpiryWorker periodically flips overdue trial codes to expired.
// With a Locker only one instance sweeps per tick.
type CodeExpiryWorker struct {
	interval time.Duration
	codeUC   usecase.CodeUseCase
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewCodeExpiryWorker(interval time.Duration, codeUC usecase.CodeUseCase, locker redis.Locker, logger *zerolog.Logger) *CodeExpiryWorker {
	exprLog := logger.With().Str("component", "CodeExpiryWorker").Logger()
	return &CodeExpiryWorker{
		interval: interval,
		codeUC:   codeUC,
		locker:   locker,
		log:      &exprLog,
	}
}

func (w *CodeExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting code expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping code expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *CodeExpiryWorker) sweep(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval/2)
		if errors.Is(err, domain.ErrLockNotAcquired) {
			w.log.Debug().Msg("sweep skipped, another instance holds the lock")
			return 0
		}
		if err != nil {
			// redis trouble must not stop expiry; sweeping twice is harmless
			w.log.Warn().Err(err).Msg("sweep lock unavailable")
		} else {
			defer func() {
				if err := w.locker.Unlock(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
					w.log.Warn().Err(err).Msg("sweep unlock failed")
				}
			}()
		}
	}

	expired, err := w.codeUC.SweepExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("code expiry sweep error")
		return 0
	}
	if n := len(expired); n > 0 {
		w.log.Info().Int("count", n).Msg("expired codes swept")
	}
	return len(expired)
}
