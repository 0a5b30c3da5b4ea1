package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// RollupWorker periodically materializes the per-tenant daily rollups.
// The job is idempotent: re-running a day upserts the same row.
type RollupWorker struct {
	store    store.AnalyticsStore
	interval time.Duration
	logger   *slog.Logger
}

// NewRollupWorker creates the rollup worker.
func NewRollupWorker(st store.AnalyticsStore, interval time.Duration, logger *slog.Logger) *RollupWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RollupWorker{store: st, interval: interval, logger: logger}
}

// Run loops until ctx is done, rolling up today (and yesterday shortly
// after midnight, to catch late writes).
func (w *RollupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RollupWorker) tick(ctx context.Context) {
	now := time.Now().UTC()
	days := []time.Time{now}
	if now.Hour() < 2 {
		days = append(days, now.Add(-24*time.Hour))
	}

	tenants, err := w.store.Tenants(ctx)
	if err != nil {
		w.logger.Warn("rollup tenant list failed", "error", err)
		return
	}
	for _, tenant := range tenants {
		for _, day := range days {
			if err := w.RollupOne(ctx, tenant, day); err != nil {
				w.logger.Warn("daily rollup failed", "tenant_id", tenant, "day", day.Format("2006-01-02"), "error", err)
			}
		}
	}
}

// RollupOne recomputes and stores one tenant day.
func (w *RollupWorker) RollupOne(ctx context.Context, tenantID string, day time.Time) error {
	r, err := w.store.RollupDay(ctx, tenantID, day)
	if err != nil {
		return err
	}
	return w.store.UpsertDailyRollup(ctx, r)
}
