// Package qualify scores leads and gates the discovery-call offer.
package qualify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

const (
	// Qualification thresholds.
	minScore      = 80
	minConfidence = 0.85

	minUtteranceLen = 5
	minHistory      = 3
)

// Assessment is the qualifier output.
type Assessment struct {
	Qualified  bool     `json:"qualified"`
	Score      int      `json:"score"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// Completer is the LLM call the qualifier needs.
type Completer interface {
	CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error)
}

// Qualifier assesses whether a lead is ready for a discovery call.
type Qualifier struct {
	llm      Completer
	cooldown time.Duration
	logger   *slog.Logger
}

// NewQualifier creates a qualifier. cooldown gates repeat offers to the
// same contact.
func NewQualifier(completer Completer, cooldown time.Duration, logger *slog.Logger) *Qualifier {
	if cooldown <= 0 {
		cooldown = 24 * time.Hour
	}
	return &Qualifier{llm: completer, cooldown: cooldown, logger: logger}
}

var trivialGreetings = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "sup": true,
	"good morning": true, "good afternoon": true, "good evening": true,
	"thanks": true, "thank you": true, "ok": true, "okay": true,
}

// PreGate applies the cheap checks that skip the LLM entirely.
// Returns false with a reason when assessment is pointless.
func PreGate(utterance string, historyLen int) (bool, string) {
	trimmed := strings.TrimSpace(utterance)
	if len(trimmed) < minUtteranceLen {
		return false, "too short"
	}
	if trivialGreetings[strings.ToLower(strings.Trim(trimmed, ".,!?"))] {
		return false, "trivial greeting"
	}
	if historyLen < minHistory {
		return false, "no history"
	}
	return true, ""
}

const qualifySystemPrompt = `You assess whether a prospect's chat message
signals readiness for a sales discovery call. Consider concrete volume or
scale mentions, budget signals, urgency, and explicit buying intent.
Respond ONLY with JSON:
{"score": integer 0-100, "confidence": number 0-1, "reasons": [string]}`

// Assess scores one utterance against its conversation context.
func (q *Qualifier) Assess(ctx context.Context, tenantID, utterance string, history []store.Message, c *store.Contact) Assessment {
	if ok, reason := PreGate(utterance, len(history)); !ok {
		return Assessment{Qualified: false, Reasons: []string{reason}}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Journey stage: %s\nEngagement: %s\n", c.JourneyStage, c.EngagementLevel)
	if c.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", c.Company)
	}
	if len(c.PainPointsMentioned) > 0 {
		fmt.Fprintf(&b, "Pain points: %s\n", strings.Join(c.PainPointsMentioned, ", "))
	}
	b.WriteString("\nRecent messages:\n")
	for _, m := range tail(history, 5) {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "\nLatest message: %s", utterance)

	raw, _, err := q.llm.CompleteChat(ctx, tenantID,
		[]llm.ChatMessage{
			{Role: "system", Content: qualifySystemPrompt},
			{Role: "user", Content: b.String()},
		},
		llm.ChatParams{MaxTokens: 200, Temperature: 0},
	)
	if err != nil {
		q.logger.Warn("lead qualification llm failed", "error", err)
		return Assessment{Qualified: false, Reasons: []string{"llm unavailable"}}
	}

	var parsed struct {
		Score      int      `json:"score"`
		Confidence float64  `json:"confidence"`
		Reasons    []string `json:"reasons"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		q.logger.Warn("lead qualification parse failed", "error", err)
		return Assessment{Qualified: false, Reasons: []string{"unparseable assessment"}}
	}

	return Assessment{
		Qualified:  parsed.Score >= minScore && parsed.Confidence >= minConfidence,
		Score:      parsed.Score,
		Confidence: parsed.Confidence,
		Reasons:    parsed.Reasons,
	}
}

// OfferAllowed reports whether the discovery-call offer may be sent,
// honouring the per-contact cooldown.
func (q *Qualifier) OfferAllowed(c *store.Contact, now time.Time) bool {
	if c.LastOfferAt == nil {
		return true
	}
	return now.Sub(*c.LastOfferAt) >= q.cooldown
}

func tail(in []store.Message, n int) []store.Message {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
