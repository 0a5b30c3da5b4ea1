package pipeline

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/channel"
	"github.com/nextlevelbuilder/leadflow/internal/contact"
	"github.com/nextlevelbuilder/leadflow/internal/extract"
	"github.com/nextlevelbuilder/leadflow/internal/respond"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

const handoverAck = "Thanks for reaching out! I'm connecting you with a member of our team. " +
	"Someone will be with you shortly."

// sessionGap is the idle time after which the next inbound message
// counts as a new conversation session.
const sessionGap = time.Hour

// isNewSession reports whether an inbound message at the given time
// opens a new session, judged against the conversation's last message
// before this one.
func isNewSession(lastMessageAt, at time.Time) bool {
	return lastMessageAt.IsZero() || at.Sub(lastMessageAt) > sessionGap
}

// process runs steps 4-10 for one inbound message. Each step either
// completes or short-circuits with the reason logged.
func (p *Pipeline) process(ctx context.Context, j job) {
	ev := j.event
	log := p.logger.With("tenant_id", ev.TenantID, "contact", ev.From)

	// Step 4: context updates (journey, behavior, extraction, state).
	c := p.updateContext(ctx, j)
	p.sink.SessionActivity(ev.TenantID, c.ID, store.RoleUser, string(c.JourneyStage), 0, false)

	// Step 5: bot-enabled gating.
	conv, err := p.stores.Conversations.Get(ctx, j.conversation.ID)
	if err != nil {
		log.Error("reload conversation failed", "error", err)
		conv = j.conversation
	}
	if !conv.BotEnabled {
		log.Info("bot disabled, skipping reply", "conversation_id", conv.ID)
		return
	}

	// Step 6: handover check.
	decision := p.handover.Classify(ctx, ev.TenantID, ev.Text)
	if decision.Triggered() {
		p.startHandover(ctx, j, c, decision.Reason)
		return
	}

	// Step 7: lead qualification.
	history, err := p.stores.Messages.History(ctx, conv.ID, 50)
	if err != nil {
		log.Warn("load history failed", "error", err)
	}
	offerDiscovery := false
	assessment := p.qualifier.Assess(ctx, ev.TenantID, ev.Text, history, c)
	if assessment.Score > 0 {
		p.sink.LeadScore(&store.LeadScore{
			TenantID:  ev.TenantID,
			ContactID: c.ID,
			Overall:   assessment.Score,
			Intent:    assessment.Score,
			Behavior:  c.DecisionMakingStyle,
		})
	}
	if assessment.Qualified {
		log.Info("lead qualified", "score", assessment.Score, "confidence", assessment.Confidence)
	}
	// Qualification or an explicit call/pricing intent opens the offer
	// gate; the cooldown closes it either way.
	intents := respond.AnalyzeIntents(ev.Text)
	if (assessment.Qualified || intents.ShouldOfferDiscovery) && p.qualifier.OfferAllowed(c, time.Now()) {
		offerDiscovery = true
		now := time.Now()
		if _, err := p.contacts.Update(ctx, ev.TenantID, ev.From, store.ContactUpdate{LastOfferAt: &now}); err != nil {
			log.Warn("stamp offer cooldown failed", "error", err)
		}
	}

	// Step 8: generate the reply.
	st, err := p.contacts.State(ctx, c.ID)
	if err != nil {
		log.Warn("load conversation state failed", "error", err)
		st = nil
	}
	resp, err := p.responder.Generate(ctx, respond.Request{
		TenantID:       ev.TenantID,
		Contact:        c,
		Utterance:      ev.Text,
		History:        history,
		State:          st,
		OfferDiscovery: offerDiscovery,
	})
	if err != nil || resp.Text == "" {
		log.Error("reply generation failed", "error", err)
		return
	}

	// Steps 9-10: send, persist, and leave status reconciliation to the
	// receipt path.
	p.sendReply(ctx, j, c, resp.Text)
	p.sink.SessionActivity(ev.TenantID, c.ID, store.RoleAssistant, string(c.JourneyStage), assessment.Score, false)
}

// updateContext folds the utterance into the contact: journey,
// behavior, extracted fields, and conversation state. Failures degrade
// to the pre-update contact; the reply must still go out.
func (p *Pipeline) updateContext(ctx context.Context, j job) *store.Contact {
	ev := j.event
	c := j.contact

	responseTime := -1.0
	if !c.UpdatedAt.IsZero() && ev.Timestamp.After(c.UpdatedAt) {
		responseTime = ev.Timestamp.Sub(c.UpdatedAt).Seconds()
	}

	// j.conversation still carries the last-message time from before this
	// message was persisted, so the gap check sees the true idle period.
	newSession := isNewSession(j.conversation.LastMessageAt, ev.Timestamp)
	updated, err := p.contacts.ObserveUtterance(ctx, c, ev.Text, responseTime, newSession)
	if err != nil {
		p.logger.Warn("context update failed", "tenant_id", ev.TenantID, "error", err)
		updated = c
	}

	ext := p.extractor.Extract(ctx, ev.TenantID, ev.Text)
	if ext != nil {
		upd := extract.Apply(updated, ext)
		if c2, err := p.contacts.Update(ctx, ev.TenantID, ev.From, upd); err == nil {
			updated = c2
		} else {
			p.logger.Warn("extraction merge failed", "tenant_id", ev.TenantID, "error", err)
		}
	}

	if _, err := p.contacts.UpdateState(ctx, updated.ID, contact.StateUpdate{
		AddQuestions: questionsIn(ev.Text),
	}); err != nil {
		p.logger.Warn("state update failed", "tenant_id", ev.TenantID, "error", err)
	}
	return updated
}

// startHandover flips the conversation to a human and sends one
// acknowledgement.
func (p *Pipeline) startHandover(ctx context.Context, j job, c *store.Contact, reason string) {
	ev := j.event
	now := time.Now()
	if err := p.stores.Conversations.RequestHandover(ctx, j.conversation.ID, now); err != nil {
		p.logger.Error("request handover failed", "conversation_id", j.conversation.ID, "error", err)
		return
	}
	p.logger.Info("handover requested",
		"tenant_id", ev.TenantID, "contact", ev.From, "reason", reason)
	p.sink.SessionActivity(ev.TenantID, c.ID, store.RoleAssistant, string(c.JourneyStage), 0, true)
	p.sendReply(ctx, j, c, handoverAck)
}

// sendReply delivers the assistant message and persists it with the
// outcome: sent with its channel id, or failed with the error reason.
// The gateway client already retries transient failures.
func (p *Pipeline) sendReply(ctx context.Context, j job, c *store.Contact, text string) {
	ev := j.event

	msg := &store.Message{
		ConversationID: j.conversation.ID,
		TenantID:       ev.TenantID,
		Role:           store.RoleAssistant,
		Content:        text,
	}

	channelID, _, err := sendFragments(ctx, p.sender, ev.TenantID, ev.From, text)
	if err != nil {
		kind := channel.KindOf(err)
		p.logger.Error("send reply failed",
			"tenant_id", ev.TenantID, "contact", ev.From, "kind", kind, "error", err)
		msg.Status = store.StatusFailed
		msg.ErrorReason = err.Error()
	} else {
		msg.Status = store.StatusSent
		msg.ChannelMessageID = channelID
		if channelID != "" {
			// Remember our own id so the echo webhook is dropped at step 1.
			p.dedupe.Seen(ev.TenantID + ":" + channelID)
		}
	}

	if err := p.stores.Messages.Append(ctx, msg); err != nil {
		p.logger.Error("persist reply failed", "tenant_id", ev.TenantID, "error", err)
		return
	}
	if err := p.stores.Conversations.TouchLastMessage(ctx, j.conversation.ID, time.Now()); err != nil {
		p.logger.Warn("touch conversation failed", "error", err)
	}
}

// questionsIn collects sentences ending in a question mark.
func questionsIn(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		switch r {
		case '?':
			q := trimSentence(text[start : i+1])
			if q != "" {
				out = append(out, q)
			}
			start = i + 1
		case '.', '!', '\n':
			start = i + 1
		}
	}
	return out
}

func trimSentence(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	if len(s) < 8 {
		return ""
	}
	return s
}
