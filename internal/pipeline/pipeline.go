// Package pipeline drives inbound messages from webhook to reply:
// idempotency, gating, handover, qualification, generation, and the
// outbound send, with per-contact serialization.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/bus"
	"github.com/nextlevelbuilder/leadflow/internal/contact"
	"github.com/nextlevelbuilder/leadflow/internal/extract"
	"github.com/nextlevelbuilder/leadflow/internal/handover"
	"github.com/nextlevelbuilder/leadflow/internal/qualify"
	"github.com/nextlevelbuilder/leadflow/internal/respond"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// ErrQueueFull is returned when the processing queue is saturated; the
// webhook maps it to 503 so the upstream retries.
var ErrQueueFull = errors.New("pipeline: queue full")

// IngestResult tells the webhook how the fast path ended.
type IngestResult string

const (
	IngestQueued    IngestResult = "queued"
	IngestDuplicate IngestResult = "duplicate"
	IngestIgnored   IngestResult = "ignored"
)

// job carries the fast-path output to a processing worker.
type job struct {
	event        bus.InboundEvent
	contact      *store.Contact
	conversation *store.Conversation
	inbound      *store.Message
}

// Config tunes the pipeline.
type Config struct {
	QueueSize int
	Workers   int
	// Budget bounds one event's processing; overruns are recorded as
	// timeout samples but the reply is still sent.
	Budget time.Duration
}

// Stores is the subset of persistence the pipeline touches directly.
type Stores struct {
	Conversations store.ConversationStore
	Messages      store.MessageStore
}

// Pipeline is the message processor.
type Pipeline struct {
	cfg Config

	contacts  *contact.Service
	stores    Stores
	extractor *extract.Agent
	handover  *handover.Classifier
	qualifier *qualify.Qualifier
	responder *respond.Handler
	sender    ChannelSender
	dedupe    *bus.DedupeCache
	sink      Sink
	logger    *slog.Logger

	queue  chan job
	serial *keyedMutex

	wg sync.WaitGroup
}

// Sink is the analytics surface the pipeline emits to.
type Sink interface {
	respond.Recorder
	SessionActivity(tenantID string, contactID uuid.UUID, role store.MessageRole, journeyStage string, leadScore int, handover bool)
	LeadScore(sc *store.LeadScore)
}

// New creates the pipeline.
func New(cfg Config, contacts *contact.Service, stores Stores, extractor *extract.Agent,
	classifier *handover.Classifier, qualifier *qualify.Qualifier, responder *respond.Handler,
	sender ChannelSender, dedupe *bus.DedupeCache, sink Sink, logger *slog.Logger) *Pipeline {

	if cfg.QueueSize < 1024 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 60 * time.Second
	}
	return &Pipeline{
		cfg:       cfg,
		contacts:  contacts,
		stores:    stores,
		extractor: extractor,
		handover:  classifier,
		qualifier: qualifier,
		responder: responder,
		sender:    sender,
		dedupe:    dedupe,
		sink:      sink,
		logger:    logger,
		queue:     make(chan job, cfg.QueueSize),
		serial:    newKeyedMutex(),
	}
}

// Start launches the processing workers.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Wait blocks until all workers have exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Ingest runs the synchronous fast path: idempotency, contact and
// conversation resolution, and persisting the inbound message. The
// remaining steps run on a worker. Called from the webhook handler.
func (p *Pipeline) Ingest(ctx context.Context, ev bus.InboundEvent) (IngestResult, error) {
	// Echoes of our own outbound messages never enter the pipeline.
	if ev.FromSelf {
		return IngestIgnored, nil
	}
	if ev.Text == "" && ev.MediaURL == "" {
		return IngestIgnored, nil
	}

	dedupeKey := ev.TenantID + ":" + ev.ChannelMessageID
	if ev.ChannelMessageID != "" {
		if p.dedupe.Seen(dedupeKey) {
			return IngestDuplicate, nil
		}
		seen, err := p.stores.Messages.SeenChannelID(ctx, ev.TenantID, ev.ChannelMessageID)
		if err != nil {
			p.dedupe.Forget(dedupeKey)
			return "", fmt.Errorf("idempotency check: %w", err)
		}
		if seen {
			return IngestDuplicate, nil
		}
	}

	c, err := p.contacts.GetOrCreate(ctx, ev.TenantID, ev.From)
	if err != nil {
		p.dedupe.Forget(dedupeKey)
		return "", fmt.Errorf("resolve contact: %w", err)
	}
	conv, err := p.stores.Conversations.GetOrCreate(ctx, ev.TenantID, c.ID)
	if err != nil {
		p.dedupe.Forget(dedupeKey)
		return "", fmt.Errorf("resolve conversation: %w", err)
	}

	inbound := &store.Message{
		ConversationID:   conv.ID,
		TenantID:         ev.TenantID,
		Role:             store.RoleUser,
		Content:          ev.Text,
		ChannelMessageID: ev.ChannelMessageID,
		Status:           store.StatusDelivered,
		CreatedAt:        ev.Timestamp,
	}
	if err := p.stores.Messages.Append(ctx, inbound); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Unique index caught a race between replicas; idempotency success.
			return IngestDuplicate, nil
		}
		p.dedupe.Forget(dedupeKey)
		return "", fmt.Errorf("persist inbound: %w", err)
	}
	if err := p.stores.Conversations.TouchLastMessage(ctx, conv.ID, ev.Timestamp); err != nil {
		p.logger.Warn("touch conversation failed", "conversation_id", conv.ID, "error", err)
	}

	select {
	case p.queue <- job{event: ev, contact: c, conversation: conv, inbound: inbound}:
		return IngestQueued, nil
	default:
		return "", ErrQueueFull
	}
}

// UpdateMessageStatus advances a message's delivery status from a
// receipt; regressions are ignored by the store.
func (p *Pipeline) UpdateMessageStatus(ctx context.Context, tenantID, channelMessageID string, status store.MessageStatus) error {
	return p.stores.Messages.UpdateStatusByChannelID(ctx, tenantID, channelMessageID, status, "")
}

// worker drains the queue under a supervisor: a panic in one job is
// logged and the worker resumes.
func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-p.queue:
			p.runJob(ctx, j)
		}
	}
}

func (p *Pipeline) runJob(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline worker panic",
				"tenant_id", j.event.TenantID, "contact", j.event.From, "panic", r)
			p.sink.PerformanceSample(&store.PerformanceSample{
				TenantID:    j.event.TenantID,
				Endpoint:    "pipeline",
				Op:          "process",
				Status:      "error",
				ErrorReason: fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	key := j.event.TenantID + ":" + j.contact.ID.String()
	p.serial.Lock(key)
	defer p.serial.Unlock(key)

	// The budget is observational: each external call carries its own
	// timeout, and a partially generated reply is still sent, so the job
	// itself is not cancelled at the budget mark.
	start := time.Now()
	p.process(ctx, j)

	if elapsed := time.Since(start); elapsed > p.cfg.Budget {
		p.sink.PerformanceSample(&store.PerformanceSample{
			TenantID:  j.event.TenantID,
			Endpoint:  "pipeline",
			Op:        "process",
			LatencyMS: int(elapsed.Milliseconds()),
			Status:    "timeout",
		})
	}
}
