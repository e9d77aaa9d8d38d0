package sched

import (
	"context"
	"time"

	"activation-code-service/internal/usecase"

	"github.com/rs/zerolog"
)

// maxRoundsPerTick bounds back-to-back batches when the outbox is backed up.
const maxRoundsPerTick = 10

// NotificationWorker drains the email outbox: first attempts whose in-process
// kick was lost, and retries whose backoff has elapsed.
type NotificationWorker struct {
	interval time.Duration
	batch    int
	notifUC  usecase.NotificationUseCase
	log      *zerolog.Logger
}

func NewNotificationWorker(interval time.Duration, batch int, notifUC usecase.NotificationUseCase, logger *zerolog.Logger) *NotificationWorker {
	if batch <= 0 {
		batch = 20
	}
	compLog := logger.With().Str("component", "NotificationWorker").Logger()
	return &NotificationWorker{interval: interval, batch: batch, notifUC: notifUC, log: &compLog}
}

// Run drains once immediately, then on every tick until ctx ends.
func (w *NotificationWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Int("batch", w.batch).Msg("notification worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			w.log.Info().Msg("notification worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain keeps pulling batches while they come back full.
func (w *NotificationWorker) drain(ctx context.Context) usecase.DispatchStats {
	var total usecase.DispatchStats
	for round := 0; round < maxRoundsPerTick && ctx.Err() == nil; round++ {
		stats, err := w.notifUC.DispatchDue(ctx, w.batch)
		total.Sent += stats.Sent
		total.Retried += stats.Retried
		total.Dead += stats.Dead
		if err != nil {
			w.log.Error().Err(err).Int("round", round).Msg("outbox dispatch failed")
			break
		}
		if stats.Sent+stats.Retried+stats.Dead < w.batch {
			break
		}
	}
	if total.Sent+total.Retried+total.Dead > 0 {
		w.log.Info().
			Int("sent", total.Sent).
			Int("retried", total.Retried).
			Int("dead", total.Dead).
			Msg("outbox dispatched")
	}
	return total
}
