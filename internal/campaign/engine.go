// Package campaign runs one-shot bulk sends: per-recipient pacing,
// retries via the gateway client, per-target results, and mid-run
// cancellation.
package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/channel"
	"github.com/nextlevelbuilder/leadflow/internal/pipeline"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// SessionChecker reports whether the channel session is live; runs are
// skipped while disconnected so targets are not burned on a dead link.
type SessionChecker interface {
	GetSessionStatus(ctx context.Context) (*channel.SessionStatus, error)
}

// Engine executes campaigns sequentially per campaign; separate
// campaigns run on separate goroutines.
type Engine struct {
	store    store.CampaignStore
	sender   pipeline.ChannelSender
	sessions SessionChecker
	pacing   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewEngine creates the campaign engine. pacing is the sleep between
// consecutive sends. sessions may be nil to skip the pre-run check.
func NewEngine(st store.CampaignStore, sender pipeline.ChannelSender, sessions SessionChecker, pacing time.Duration, logger *slog.Logger) *Engine {
	if pacing <= 0 {
		pacing = 10 * time.Second
	}
	return &Engine{
		store:    st,
		sender:   sender,
		sessions: sessions,
		pacing:   pacing,
		logger:   logger,
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Poll claims pending campaigns written by the management surface and
// runs them. Blocks until ctx is cancelled.
func (e *Engine) Poll(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.claimAndRun(ctx)
		}
	}
}

func (e *Engine) claimAndRun(ctx context.Context) {
	if !e.sessionLive(ctx) {
		e.logger.Warn("channel session down, deferring pending campaigns")
		return
	}
	claimed, err := e.store.ClaimPending(ctx, 5)
	if err != nil {
		e.logger.Error("claim pending campaigns failed", "error", err)
		return
	}
	for i := range claimed {
		e.start(ctx, &claimed[i])
	}
}

func (e *Engine) sessionLive(ctx context.Context) bool {
	if e.sessions == nil {
		return true
	}
	status, err := e.sessions.GetSessionStatus(ctx)
	if err != nil {
		e.logger.Warn("session status check failed", "error", err)
		return false
	}
	return status.Connected
}

// Launch persists the campaign and starts its send loop in the
// background. ctx bounds the whole run.
func (e *Engine) Launch(ctx context.Context, c *store.Campaign) error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("campaign has no targets")
	}
	if !e.sessionLive(ctx) {
		return fmt.Errorf("channel session disconnected")
	}
	if err := e.store.Create(ctx, c); err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	e.start(ctx, c)
	return nil
}

func (e *Engine) start(ctx context.Context, c *store.Campaign) {
	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[c.ID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.cancels, c.ID)
			e.mu.Unlock()
			cancel()
		}()
		e.run(runCtx, c)
	}()
}

// Cancel stops a running campaign; unsent targets are logged as
// skipped.
func (e *Engine) Cancel(campaignID uuid.UUID) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[campaignID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (e *Engine) run(ctx context.Context, c *store.Campaign) {
	log := e.logger.With("campaign_id", c.ID, "tenant_id", c.TenantID)
	if err := e.store.SetStatus(ctx, c.ID, store.CampaignRunning, nil); err != nil {
		log.Error("mark campaign running failed", "error", err)
	}
	log.Info("campaign started", "targets", len(c.Targets))

	success, failure := 0, 0
	cancelled := false

	for i, target := range c.Targets {
		if i > 0 && !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
			case <-time.After(e.pacing):
			}
		}
		if ctx.Err() != nil {
			cancelled = true
		}

		if cancelled {
			e.addResult(c, target, store.ResultSkipped, "campaign cancelled")
			continue
		}

		outcome, errMsg := e.sendTarget(ctx, c, target)
		if outcome == store.ResultSent {
			success++
		} else {
			failure++
		}
		e.addResult(c, target, outcome, errMsg)

		if err := e.store.IncrementCounters(context.WithoutCancel(ctx), c.ID, boolInt(outcome == store.ResultSent), boolInt(outcome != store.ResultSent)); err != nil {
			log.Warn("increment counters failed", "error", err)
		}
	}

	now := time.Now()
	status := finalStatus(cancelled, success, failure)
	if err := e.store.SetStatus(context.WithoutCancel(ctx), c.ID, status, &now); err != nil {
		log.Error("finalize campaign failed", "error", err)
	}
	log.Info("campaign finished", "status", status, "success", success, "failure", failure)
}

func (e *Engine) sendTarget(ctx context.Context, c *store.Campaign, target string) (string, string) {
	to, err := store.CanonicalPhone(target)
	if err != nil {
		return store.ResultSkipped, err.Error()
	}
	if _, err := e.sender.SendText(ctx, c.TenantID, to, c.Message); err != nil {
		return store.ResultFailed, err.Error()
	}
	return store.ResultSent, ""
}

func (e *Engine) addResult(c *store.Campaign, target, outcome, errMsg string) {
	if err := e.store.AddResult(context.Background(), &store.MessageResult{
		ParentID: c.ID,
		TenantID: c.TenantID,
		Target:   target,
		Outcome:  outcome,
		Error:    errMsg,
	}); err != nil {
		e.logger.Warn("record campaign result failed", "campaign_id", c.ID, "error", err)
	}
}

func finalStatus(cancelled bool, success, failure int) store.CampaignStatus {
	switch {
	case cancelled:
		return store.CampaignCancelled
	case failure == 0:
		return store.CampaignCompleted
	case success == 0:
		return store.CampaignFailed
	default:
		return store.CampaignPartial
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
