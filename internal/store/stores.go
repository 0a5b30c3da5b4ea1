// Package store defines the domain model and persistence interfaces for the
// conversation engine. Implementations live in store/pg; tests use in-memory
// fakes behind the same interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned on unique-constraint conflicts. Callers treat a
// duplicate channel message id as idempotency success.
var ErrDuplicate = errors.New("store: duplicate")

// GenID returns a new time-ordered id.
func GenID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ContactStore manages contacts and their ephemeral conversation state.
type ContactStore interface {
	// GetOrCreate returns the contact for (tenant, phone), creating it with
	// defaults (stage=discovery, engagement=medium) when missing.
	GetOrCreate(ctx context.Context, tenantID, phone string) (*Contact, error)
	Get(ctx context.Context, tenantID, phone string) (*Contact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Contact, error)
	// Update applies a partial update. List fields are set-merged.
	Update(ctx context.Context, tenantID, phone string, upd ContactUpdate) (*Contact, error)

	State(ctx context.Context, contactID uuid.UUID) (*ConversationState, error)
	SaveState(ctx context.Context, st *ConversationState) error
}

// ConversationStore manages the one-per-contact conversation rows.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, tenantID string, contactID uuid.UUID) (*Conversation, error)
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	SetBotEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	RequestHandover(ctx context.Context, id uuid.UUID, at time.Time) error
	// ResolveHandover re-enables the bot, records the resolution, and clears
	// the progressive-update tracker.
	ResolveHandover(ctx context.Context, id uuid.UUID, at time.Time, reason string) error
	// MarkHandoverUpdate records a rescue stage tag with compare-and-set
	// semantics: it returns false when the tag was already sent for the
	// current handover episode.
	MarkHandoverUpdate(ctx context.Context, id uuid.UUID, stageTag string, at time.Time) (bool, error)
	// PendingHandovers lists conversations awaiting a human
	// (handover_requested AND NOT bot_enabled).
	PendingHandovers(ctx context.Context) ([]Conversation, error)
	TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MessageStore is append-only message persistence with monotonic status.
type MessageStore interface {
	// Append inserts a message. A conflicting channel_message_id returns
	// ErrDuplicate.
	Append(ctx context.Context, m *Message) error
	// UpdateStatus advances a message status by id; regressions are ignored.
	UpdateStatus(ctx context.Context, id uuid.UUID, status MessageStatus, reason string) error
	// UpdateStatusByChannelID advances status for the message carrying the
	// given channel message id. Missing ids are tolerated (no error).
	UpdateStatusByChannelID(ctx context.Context, tenantID, channelMessageID string, status MessageStatus, reason string) error
	// SeenChannelID reports whether an inbound channel message id was
	// already persisted (durable idempotency check behind the LRU).
	SeenChannelID(ctx context.Context, tenantID, channelMessageID string) (bool, error)
	// History returns the most recent messages of a conversation in
	// chronological order.
	History(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
}

// APIKeyStore manages encrypted tenant credentials.
type APIKeyStore interface {
	// Upsert stores a key, encrypting the secret at rest.
	Upsert(ctx context.Context, key *APIKey, secret string) error
	// ActiveSecret returns the decrypted active secret for (tenant, kind)
	// and stamps last_used_at. ErrNotFound when no active key exists.
	ActiveSecret(ctx context.Context, tenantID string, kind APIKeyKind) (string, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// KnowledgeFilter narrows a similarity search.
type KnowledgeFilter struct {
	Category string
	// BoostCategories get a score bonus for qualified/hot leads.
	BoostCategories []string
}

// KnowledgeStore persists the vector-indexed document corpus.
type KnowledgeStore interface {
	// Upsert stores a document by (tenant, source). The embedding dimension
	// must match the corpus; mismatches are rejected.
	Upsert(ctx context.Context, doc *KnowledgeDocument) error
	// Search returns up to k documents with cosine similarity >= minScore,
	// ordered by score desc, then updated_at desc, then source.
	Search(ctx context.Context, tenantID string, embedding []float32, filter KnowledgeFilter, k int, minScore float64) ([]ScoredDocument, error)
	All(ctx context.Context, tenantID string) ([]KnowledgeDocument, error)
	Stats(ctx context.Context, tenantID string) (*KnowledgeStats, error)
}

// ScheduledStore manages future-dated outbound messages.
type ScheduledStore interface {
	Create(ctx context.Context, m *ScheduledMessage) error
	Get(ctx context.Context, id uuid.UUID) (*ScheduledMessage, error)
	// ClaimDue atomically flips due pending rows to processing and returns
	// them, so only one worker sends a given job.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledMessage, error)
	// Reschedule re-arms a recurring job: pending again at next, counters
	// bumped.
	Reschedule(ctx context.Context, id uuid.UUID, next time.Time, sentAt time.Time, sent, failed int) error
	// Complete finishes a one-shot job as sent.
	Complete(ctx context.Context, id uuid.UUID, sentAt time.Time, sent, failed int) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID) error
	AddResult(ctx context.Context, r *MessageResult) error
}

// CampaignStore manages bulk campaigns and per-target results.
type CampaignStore interface {
	Create(ctx context.Context, c *Campaign) error
	Get(ctx context.Context, id uuid.UUID) (*Campaign, error)
	// ClaimPending atomically flips pending campaigns to running and
	// returns them, so only one engine replica picks up a given run.
	ClaimPending(ctx context.Context, limit int) ([]Campaign, error)
	SetStatus(ctx context.Context, id uuid.UUID, status CampaignStatus, endedAt *time.Time) error
	IncrementCounters(ctx context.Context, id uuid.UUID, success, failure int) error
	AddResult(ctx context.Context, r *MessageResult) error
}

// EventStore is the append-only webhook audit trail.
type EventStore interface {
	Append(ctx context.Context, e *WebhookEvent) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
}

// AnalyticsStore persists append-only analytics records and rollups.
type AnalyticsStore interface {
	// ActiveSession returns the most recent session for a contact whose
	// last activity is within the inactivity window, or ErrNotFound.
	ActiveSession(ctx context.Context, tenantID string, contactID uuid.UUID, since time.Time) (*ConversationSession, error)
	UpsertSession(ctx context.Context, s *ConversationSession) error
	InsertMessageAnalytics(ctx context.Context, m *MessageAnalytics) error
	UpsertLeadScore(ctx context.Context, s *LeadScore) error
	InsertPerformanceSample(ctx context.Context, p *PerformanceSample) error
	UpsertDailyRollup(ctx context.Context, r *DailyRollup) error
	// RollupDay computes the aggregation inputs for one tenant day.
	RollupDay(ctx context.Context, tenantID string, day time.Time) (*DailyRollup, error)
	Tenants(ctx context.Context) ([]string, error)
}

// AdvisoryLocker coordinates single-replica workers via session-level
// database locks.
type AdvisoryLocker interface {
	TryLock(ctx context.Context, key int64) (bool, error)
	Unlock(ctx context.Context, key int64) error
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores aggregates all persistence interfaces for wiring at the
// composition root.
type Stores struct {
	Contacts      ContactStore
	Conversations ConversationStore
	Messages      MessageStore
	APIKeys       APIKeyStore
	Knowledge     KnowledgeStore
	Scheduled     ScheduledStore
	Campaigns     CampaignStore
	Events        EventStore
	Analytics     AnalyticsStore
	Locks         AdvisoryLocker
	Ping          Pinger
}
