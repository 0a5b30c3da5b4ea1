package store

import (
	"time"

	"github.com/google/uuid"
)

// JourneyStage is the coarse funnel state of a contact.
type JourneyStage string

const (
	StageDiscovery  JourneyStage = "discovery"
	StageInterest   JourneyStage = "interest"
	StageEvaluation JourneyStage = "evaluation"
	StageDecision   JourneyStage = "decision"
)

// StageRank orders journey stages; automated updates only move forward.
func StageRank(s JourneyStage) int {
	switch s {
	case StageDiscovery:
		return 0
	case StageInterest:
		return 1
	case StageEvaluation:
		return 2
	case StageDecision:
		return 3
	default:
		return -1
	}
}

// Contact is an addressable end-user plus the enhanced context the
// personalization engine reads. Phone is canonical (see CanonicalPhone)
// and unique per tenant.
type Contact struct {
	ID       uuid.UUID `json:"id"`
	TenantID string    `json:"tenant_id"`
	Phone    string    `json:"phone"`

	Name     string `json:"name,omitempty"`
	Company  string `json:"company,omitempty"`
	Email    string `json:"email,omitempty"`
	Position string `json:"position,omitempty"`

	LeadStatus      string       `json:"lead_status"`
	JourneyStage    JourneyStage `json:"journey_stage"`
	EngagementLevel string       `json:"engagement_level"`

	InformationPreference string `json:"information_preference,omitempty"`
	ResponseTimePattern   string `json:"response_time_pattern,omitempty"`
	DecisionMakingStyle   string `json:"decision_making_style,omitempty"`
	TechnicalLevel        string `json:"technical_level,omitempty"`
	ResponseUrgency       string `json:"response_urgency,omitempty"`
	DecisionMaker         bool   `json:"decision_maker"`

	BudgetRange      string `json:"budget_range,omitempty"`
	Timeline         string `json:"timeline,omitempty"`
	IndustryFocus    string `json:"industry_focus,omitempty"`
	CompanySize      string `json:"company_size,omitempty"`
	PreferAsExamples bool   `json:"prefer_as_examples"`

	TopicsDiscussed      []string `json:"topics_discussed,omitempty"`
	QuestionsAsked       []string `json:"questions_asked,omitempty"`
	PainPointsMentioned  []string `json:"pain_points_mentioned,omitempty"`
	GoalsExpressed       []string `json:"goals_expressed,omitempty"`
	CompetitorsMentioned []string `json:"competitors_mentioned,omitempty"`
	CurrentTools         []string `json:"current_tools,omitempty"`

	ConversationCount int        `json:"conversation_count"`
	TotalInteractions int        `json:"total_interactions"`
	LastOfferAt       *time.Time `json:"last_offer_at,omitempty"`

	FirstContactAt time.Time `json:"first_contact_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ContactUpdate is a partial contact update. Pointer fields overwrite
// when non-nil; slice fields are set-merged into the existing lists.
type ContactUpdate struct {
	Name     *string
	Company  *string
	Email    *string
	Position *string

	LeadStatus      *string
	JourneyStage    *JourneyStage
	EngagementLevel *string

	InformationPreference *string
	ResponseTimePattern   *string
	DecisionMakingStyle   *string
	TechnicalLevel        *string
	ResponseUrgency       *string
	DecisionMaker         *bool

	BudgetRange   *string
	Timeline      *string
	IndustryFocus *string
	CompanySize   *string

	TopicsDiscussed      []string
	QuestionsAsked       []string
	PainPointsMentioned  []string
	GoalsExpressed       []string
	CompetitorsMentioned []string
	CurrentTools         []string

	IncrementConversations bool
	IncrementInteractions  bool
	LastOfferAt            *time.Time
}

// ConversationState is the ephemeral personalization state of one
// contact, upserted on every inbound message.
type ConversationState struct {
	ContactID           uuid.UUID         `json:"contact_id"`
	CurrentTopic        string            `json:"current_topic,omitempty"`
	UnresolvedQuestions []string          `json:"unresolved_questions,omitempty"`
	ActionItems         []string          `json:"action_items,omitempty"`
	ContextContinuity   map[string]string `json:"context_continuity,omitempty"`
	LastMessageAt       time.Time         `json:"last_message_at"`
}

// Conversation is the one durable thread per (tenant, contact).
type Conversation struct {
	ID         uuid.UUID `json:"id"`
	TenantID   string    `json:"tenant_id"`
	ContactID  uuid.UUID `json:"contact_id"`
	BotEnabled bool      `json:"bot_enabled"`

	HandoverRequested bool       `json:"handover_requested"`
	HandoverAt        *time.Time `json:"handover_at,omitempty"`
	// HandoverUpdatesSent tracks which rescue stage tags have fired for
	// the current handover episode.
	HandoverUpdatesSent      map[string]time.Time `json:"handover_updates_sent,omitempty"`
	HandoverResolvedAt       *time.Time           `json:"handover_resolved_at,omitempty"`
	HandoverResolutionReason string               `json:"handover_resolution_reason,omitempty"`

	LastMessageAt time.Time `json:"last_message_at"`
}

// MessageRole labels who authored a message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusQueued    MessageStatus = "queued"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// StatusRank orders message statuses. Transitions only apply when the
// rank increases; failed is terminal.
func StatusRank(s MessageStatus) int {
	switch s {
	case StatusQueued:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 4
	default:
		return -1
	}
}

// Message is one side of a conversation turn. Append-only.
type Message struct {
	ID               uuid.UUID     `json:"id"`
	ConversationID   uuid.UUID     `json:"conversation_id"`
	TenantID         string        `json:"tenant_id"`
	Role             MessageRole   `json:"role"`
	Content          string        `json:"content"`
	ChannelMessageID string        `json:"channel_message_id,omitempty"`
	Status           MessageStatus `json:"status"`
	ErrorReason      string        `json:"error_reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	StatusUpdatedAt  time.Time     `json:"status_updated_at"`
}

// APIKeyKind distinguishes what a stored credential authenticates.
type APIKeyKind string

const (
	APIKeyLLM     APIKeyKind = "llm"
	APIKeyChannel APIKeyKind = "channel"
)

// APIKey is a tenant credential, encrypted at rest.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Kind       APIKeyKind `json:"kind"`
	Name       string     `json:"name"`
	Active     bool       `json:"active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// KnowledgeDocument is one entry of the vector-indexed corpus, unique
// by (tenant, source).
type KnowledgeDocument struct {
	TenantID  string            `json:"tenant_id"`
	Source    string            `json:"source"`
	Category  string            `json:"category"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"-"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ScoredDocument is a search hit with its boosted similarity score.
type ScoredDocument struct {
	KnowledgeDocument
	Score float64 `json:"score"`
}

// KnowledgeStats summarizes the corpus of one tenant.
type KnowledgeStats struct {
	Count      int            `json:"count"`
	Categories map[string]int `json:"categories"`
	AvgLength  int            `json:"avg_length"`
	LastUpdate time.Time      `json:"last_update"`
}

// ScheduledStatus is the lifecycle state of a scheduled message.
type ScheduledStatus string

const (
	SchedPending    ScheduledStatus = "pending"
	SchedProcessing ScheduledStatus = "processing"
	SchedSent       ScheduledStatus = "sent"
	SchedFailed     ScheduledStatus = "failed"
	SchedCancelled  ScheduledStatus = "cancelled"
)

// ScheduledMessage is a future-dated outbound, optionally recurring.
// RecurringPattern is one of daily, weekly, monthly, or cron; a cron
// pattern keeps its expression in Metadata["cron_expr"].
type ScheduledMessage struct {
	ID             uuid.UUID `json:"id"`
	TenantID       string    `json:"tenant_id"`
	MessageContent string    `json:"message_content"`
	MessageType    string    `json:"message_type"`
	MediaURL       string    `json:"media_url,omitempty"`
	TargetGroups   []string  `json:"target_groups"`

	ScheduledAt time.Time       `json:"scheduled_at"`
	Status      ScheduledStatus `json:"status"`

	RecurringPattern  string     `json:"recurring_pattern,omitempty"`
	RecurringInterval int        `json:"recurring_interval,omitempty"`
	NextSendAt        *time.Time `json:"next_send_at,omitempty"`
	LastSentAt        *time.Time `json:"last_sent_at,omitempty"`

	TotalSent     int               `json:"total_sent"`
	TotalFailed   int               `json:"total_failed"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// CampaignStatus is the lifecycle state of a bulk campaign.
type CampaignStatus string

const (
	CampaignPending   CampaignStatus = "pending"
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignPartial   CampaignStatus = "partial"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign is a one-shot bulk outbound to many targets.
type Campaign struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Message      string         `json:"message"`
	Targets      []string       `json:"targets"`
	Status       CampaignStatus `json:"status"`
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at,omitempty"`
}

// Per-target outcomes of scheduled and campaign sends.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// MessageResult records one target's outcome for a scheduled message or
// campaign (ParentID points at either).
type MessageResult struct {
	ID       uuid.UUID `json:"id"`
	ParentID uuid.UUID `json:"parent_id"`
	TenantID string    `json:"tenant_id"`
	Target   string    `json:"target"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// WebhookEvent is one row of the append-only inbound audit trail.
type WebhookEvent struct {
	ID               uuid.UUID `json:"id"`
	TenantID         string    `json:"tenant_id"`
	Kind             string    `json:"kind"`
	Payload          []byte    `json:"payload"`
	ReceivedAt       time.Time `json:"received_at"`
	ProcessingStatus string    `json:"processing_status"`
}
