// Package scheduler runs the periodic workers: due scheduled messages
// and the handover timeout rescue.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/channel"
	"github.com/nextlevelbuilder/leadflow/internal/pipeline"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Advisory lock keys; one per worker so replicas coordinate per duty.
const (
	lockScheduled = int64(0x6c66736368656431) // "lfsched1"
	lockRescue    = int64(0x6c66726573637531) // "lfrescu1"
)

// Config tunes the worker cadences.
type Config struct {
	Interval       time.Duration
	RescueInterval time.Duration
	// RescueStages are the progressive-update marks since handover.
	RescueStages  []time.Duration
	RescueTimeout time.Duration
}

// Worker is the scheduled-message and rescue driver.
type Worker struct {
	cfg Config

	scheduled     store.ScheduledStore
	conversations store.ConversationStore
	contacts      store.ContactStore
	messages      store.MessageStore
	locks         store.AdvisoryLocker
	sender        pipeline.ChannelSender
	logger        *slog.Logger
}

// NewWorker creates the scheduler worker.
func NewWorker(cfg Config, scheduled store.ScheduledStore, conversations store.ConversationStore,
	contacts store.ContactStore, messages store.MessageStore, locks store.AdvisoryLocker,
	sender pipeline.ChannelSender, logger *slog.Logger) *Worker {

	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.RescueInterval <= 0 {
		cfg.RescueInterval = 2 * time.Minute
	}
	if len(cfg.RescueStages) == 0 {
		cfg.RescueStages = []time.Duration{10 * time.Minute, 20 * time.Minute, 30 * time.Minute, 45 * time.Minute}
	}
	if cfg.RescueTimeout <= 0 {
		cfg.RescueTimeout = time.Hour
	}
	return &Worker{
		cfg:           cfg,
		scheduled:     scheduled,
		conversations: conversations,
		contacts:      contacts,
		messages:      messages,
		locks:         locks,
		sender:        sender,
		logger:        logger,
	}
}

// Run drives both loops until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	schedTicker := time.NewTicker(w.cfg.Interval)
	rescueTicker := time.NewTicker(w.cfg.RescueInterval)
	defer schedTicker.Stop()
	defer rescueTicker.Stop()

	w.logger.Info("scheduler started",
		"interval", w.cfg.Interval, "rescue_interval", w.cfg.RescueInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-schedTicker.C:
			w.withLock(ctx, lockScheduled, w.processDue)
		case <-rescueTicker.C:
			w.withLock(ctx, lockRescue, w.rescueHandovers)
		}
	}
}

// withLock runs fn only when this replica holds the advisory lock, so
// at most one replica fires a duty per tick.
func (w *Worker) withLock(ctx context.Context, key int64, fn func(context.Context)) {
	ok, err := w.locks.TryLock(ctx, key)
	if err != nil {
		w.logger.Warn("advisory lock failed", "key", key, "error", err)
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := w.locks.Unlock(ctx, key); err != nil {
			w.logger.Warn("advisory unlock failed", "key", key, "error", err)
		}
	}()
	fn(ctx)
}

// processDue claims due jobs and sends them. Errors are isolated per
// job; one failing job never blocks the rest.
func (w *Worker) processDue(ctx context.Context) {
	jobs, err := w.scheduled.ClaimDue(ctx, time.Now(), 20)
	if err != nil {
		w.logger.Error("claim due scheduled messages failed", "error", err)
		return
	}
	for i := range jobs {
		job := &jobs[i]
		if err := w.sendScheduled(ctx, job); err != nil {
			w.logger.Error("scheduled message failed",
				"id", job.ID, "tenant_id", job.TenantID, "error", err)
			if failErr := w.scheduled.Fail(ctx, job.ID, err.Error()); failErr != nil {
				w.logger.Warn("mark scheduled failed errored", "id", job.ID, "error", failErr)
			}
		}
	}
}

func (w *Worker) sendScheduled(ctx context.Context, job *store.ScheduledMessage) error {
	sent, failed := 0, 0
	for _, target := range job.TargetGroups {
		outcome := store.ResultSent
		var sendErr string

		to, err := store.CanonicalPhone(target)
		if err != nil {
			outcome = store.ResultSkipped
			sendErr = err.Error()
			failed++
		} else if err := w.sendOne(ctx, job, to); err != nil {
			outcome = store.ResultFailed
			sendErr = err.Error()
			failed++
		} else {
			sent++
		}

		if err := w.scheduled.AddResult(ctx, &store.MessageResult{
			ParentID: job.ID,
			TenantID: job.TenantID,
			Target:   target,
			Outcome:  outcome,
			Error:    sendErr,
		}); err != nil {
			w.logger.Warn("record scheduled result failed", "id", job.ID, "error", err)
		}
	}

	now := time.Now()
	if job.RecurringPattern != "" {
		next, err := NextSend(job, now)
		if err != nil {
			return err
		}
		w.logger.Info("scheduled message re-armed",
			"id", job.ID, "next", next, "sent", sent, "failed", failed)
		return w.scheduled.Reschedule(ctx, job.ID, next, now, sent, failed)
	}
	w.logger.Info("scheduled message completed", "id", job.ID, "sent", sent, "failed", failed)
	return w.scheduled.Complete(ctx, job.ID, now, sent, failed)
}

func (w *Worker) sendOne(ctx context.Context, job *store.ScheduledMessage, to string) error {
	if job.MediaURL != "" {
		kind := channel.MediaKind(job.MessageType)
		if kind == "" || kind == "text" {
			kind = channel.MediaImage
		}
		_, err := w.sender.SendMedia(ctx, job.TenantID, to, kind, job.MediaURL, job.MessageContent)
		return err
	}
	_, err := w.sender.SendText(ctx, job.TenantID, to, job.MessageContent)
	return err
}
