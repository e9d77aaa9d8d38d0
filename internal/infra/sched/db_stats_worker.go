package sched

import (
	"context"
	"time"

	"activation-code-service/internal/infra/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
)

// PoolStatFunc reports total, idle and in-use connections.
type PoolStatFunc func() (total, idle, inUse int32)

// PgxPoolStats adapts a pgx pool to PoolStatFunc.
func PgxPoolStats(pool *pgxpool.Pool) PoolStatFunc {
	return func() (int32, int32, int32) {
		s := pool.Stat()
		return s.TotalConns(), s.IdleConns(), s.AcquiredConns()
	}
}

// DBStatsWorker publishes connection pool gauges.
type DBStatsWorker struct {
	interval time.Duration
	stat     PoolStatFunc
}

func NewDBStatsWorker(interval time.Duration, stat PoolStatFunc) *DBStatsWorker {
	return &DBStatsWorker{interval: interval, stat: stat}
}

func (w *DBStatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.refresh()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.refresh()
		}
	}
}

func (w *DBStatsWorker) refresh() {
	metrics.SetDBPoolStats(w.stat())
}
