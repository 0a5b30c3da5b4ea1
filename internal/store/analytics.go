package store

import (
	"time"

	"github.com/google/uuid"
)

// ConversationSession is an activity window of one contact; inactivity
// beyond the session window opens a new session.
type ConversationSession struct {
	SessionID      uuid.UUID `json:"session_id"`
	TenantID       string    `json:"tenant_id"`
	ContactID      uuid.UUID `json:"contact_id"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	JourneyStart   string    `json:"journey_start"`
	JourneyEnd     string    `json:"journey_end"`
	UserMessages   int       `json:"user_messages"`
	BotMessages    int       `json:"bot_messages"`
	LeadScore      int       `json:"lead_score"`
	EngagementRate float64   `json:"engagement_rate"`
	HandoverFlag   bool      `json:"handover_flag"`
}

// MessageAnalytics is the per-message record behind the rollups.
// Sentiment is carried but never populated by the engine.
type MessageAnalytics struct {
	MessageID uuid.UUID `json:"message_id"`
	TenantID  string    `json:"tenant_id"`
	ContactID uuid.UUID `json:"contact_id"`
	Role      string    `json:"role"`
	Length    int       `json:"length"`

	HandlerKind  string `json:"handler_kind"` // rag, personalized, degraded
	RAGDocs      int    `json:"rag_docs"`
	RAGLatencyMS int    `json:"rag_latency_ms"`

	PersonalizationLevel string   `json:"personalization_level,omitempty"`
	ResponseStrategy     string   `json:"response_strategy,omitempty"`
	CommunicationStyle   string   `json:"communication_style,omitempty"`
	Intents              []string `json:"intents,omitempty"`
	BusinessCategory     string   `json:"business_category,omitempty"`
	Urgency              string   `json:"urgency,omitempty"`

	LatencyMS        int      `json:"latency_ms"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	CostEstimate     float64  `json:"cost_estimate"`
	Sentiment        *float64 `json:"sentiment,omitempty"`

	RecordedAt time.Time `json:"recorded_at"`
}

// LeadScore is the latest multi-signal score per contact.
type LeadScore struct {
	TenantID     string    `json:"tenant_id"`
	ContactID    uuid.UUID `json:"contact_id"`
	Overall      int       `json:"overall"`
	Engagement   int       `json:"engagement"`
	Intent       int       `json:"intent"`
	Fit          int       `json:"fit"`
	Timing       int       `json:"timing"`
	Behavior     string    `json:"behavior,omitempty"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// PerformanceSample is one timed operation of the hot path.
type PerformanceSample struct {
	TenantID    string    `json:"tenant_id"`
	Endpoint    string    `json:"endpoint"`
	Op          string    `json:"op"`
	LatencyMS   int       `json:"latency_ms"`
	Status      string    `json:"status"` // ok, error, timeout
	Model       string    `json:"model,omitempty"`
	Tokens      int       `json:"tokens,omitempty"`
	Cost        float64   `json:"cost,omitempty"`
	ErrorReason string    `json:"error_reason,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// DailyRollup is the idempotent per-tenant day aggregate.
type DailyRollup struct {
	TenantID       string         `json:"tenant_id"`
	Day            time.Time      `json:"day"`
	Sessions       int            `json:"sessions"`
	UserMessages   int            `json:"user_messages"`
	BotMessages    int            `json:"bot_messages"`
	Handovers      int            `json:"handovers"`
	QualifiedLeads int            `json:"qualified_leads"`
	JourneyMix     map[string]int `json:"journey_mix"`
	HandlerMix     map[string]int `json:"handler_mix"`
	AvgLatencyMS   int            `json:"avg_latency_ms"`
	ErrorCount     int            `json:"error_count"`
	TotalTokens    int            `json:"total_tokens"`
	TotalCostUSD   float64        `json:"total_cost_usd"`
	ConversionRate float64        `json:"conversion_rate"`
	ComputedAt     time.Time      `json:"computed_at"`
}
