package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Resolution reason recorded when the timeout re-enables the bot.
const rescueResolution = "timeout-auto-rescue"

var stageMessages = map[string]string{
	"10m": "Just a quick update: our team has been notified and someone will be with you soon. Thanks for your patience!",
	"20m": "Still working on connecting you with the right person. We haven't forgotten about you!",
	"30m": "Apologies for the wait. Your request is in the queue and a team member will reach out as soon as possible.",
	"45m": "We're sorry this is taking longer than usual. Your message is flagged as priority and someone will be with you shortly.",
}

const rescueApology = "Sorry we couldn't connect you with a team member in time. " +
	"I'm back to help with anything I can, and a colleague will follow up as soon as possible."

// rescueHandovers walks pending handovers and applies the stage
// cadence: progressive updates at the configured marks, then bot
// re-enablement with an apology at the timeout.
func (w *Worker) rescueHandovers(ctx context.Context) {
	pending, err := w.conversations.PendingHandovers(ctx)
	if err != nil {
		w.logger.Error("list pending handovers failed", "error", err)
		return
	}
	now := time.Now()
	for i := range pending {
		conv := &pending[i]
		if conv.HandoverAt == nil {
			continue
		}
		if err := w.rescueOne(ctx, conv, now.Sub(*conv.HandoverAt)); err != nil {
			w.logger.Error("handover rescue failed",
				"conversation_id", conv.ID, "tenant_id", conv.TenantID, "error", err)
		}
	}
}

func (w *Worker) rescueOne(ctx context.Context, conv *store.Conversation, elapsed time.Duration) error {
	phone, err := w.contactPhone(ctx, conv)
	if err != nil {
		return err
	}

	if elapsed >= w.cfg.RescueTimeout {
		return w.timeoutRescue(ctx, conv, phone)
	}

	// Highest due stage first; earlier tags a replica may have missed
	// stay skipped once a later one is sent.
	for i := len(w.cfg.RescueStages) - 1; i >= 0; i-- {
		mark := w.cfg.RescueStages[i]
		if elapsed < mark {
			continue
		}
		tag := StageTag(mark)
		claimed, err := w.conversations.MarkHandoverUpdate(ctx, conv.ID, tag, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
		body, ok := stageMessages[tag]
		if !ok {
			body = stageMessages["30m"]
		}
		if _, err := w.sender.SendText(ctx, conv.TenantID, phone, body); err != nil {
			return fmt.Errorf("send stage %s update: %w", tag, err)
		}
		w.appendSystemNote(ctx, conv, body)
		w.logger.Info("handover progressive update sent",
			"conversation_id", conv.ID, "stage", tag, "elapsed", elapsed)
		return nil
	}
	return nil
}

// timeoutRescue re-enables the bot with an apology and clears the
// episode tracker.
func (w *Worker) timeoutRescue(ctx context.Context, conv *store.Conversation, phone string) error {
	if err := w.conversations.ResolveHandover(ctx, conv.ID, time.Now(), rescueResolution); err != nil {
		return fmt.Errorf("resolve handover: %w", err)
	}
	if _, err := w.sender.SendText(ctx, conv.TenantID, phone, rescueApology); err != nil {
		return fmt.Errorf("send apology: %w", err)
	}
	w.appendSystemNote(ctx, conv, rescueApology)
	w.logger.Info("handover timed out, bot re-enabled",
		"conversation_id", conv.ID, "tenant_id", conv.TenantID)
	return nil
}

func (w *Worker) appendSystemNote(ctx context.Context, conv *store.Conversation, body string) {
	if err := w.messages.Append(ctx, &store.Message{
		ConversationID: conv.ID,
		TenantID:       conv.TenantID,
		Role:           store.RoleAssistant,
		Content:        body,
		Status:         store.StatusSent,
	}); err != nil {
		w.logger.Warn("persist rescue message failed", "conversation_id", conv.ID, "error", err)
	}
}

// contactPhone resolves the canonical phone for a conversation's
// contact.
func (w *Worker) contactPhone(ctx context.Context, conv *store.Conversation) (string, error) {
	c, err := w.contactByID(ctx, conv)
	if err != nil {
		return "", err
	}
	return c.Phone, nil
}

func (w *Worker) contactByID(ctx context.Context, conv *store.Conversation) (*store.Contact, error) {
	c, err := w.contacts.GetByID(ctx, conv.ContactID)
	if err != nil {
		return nil, fmt.Errorf("load contact %s: %w", conv.ContactID, err)
	}
	return c, nil
}

// StageTag renders a cadence mark as the tracker key, e.g. "10m".
func StageTag(d time.Duration) string {
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
