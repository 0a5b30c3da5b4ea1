// Package handover decides whether an utterance asks for a human,
// LLM-first with a keyword fallback.
package handover

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
)

// TriggerThreshold is the confidence below which a positive
// classification is ignored by the pipeline.
const TriggerThreshold = 0.6

// Decision is the classifier output.
type Decision struct {
	RequiresHuman bool    `json:"requires_human"`
	Reason        string  `json:"reason"`
	Confidence    float64 `json:"confidence"`
}

// Triggered reports whether the decision should flip the conversation
// to a human.
func (d Decision) Triggered() bool {
	return d.RequiresHuman && d.Confidence >= TriggerThreshold
}

// Completer is the LLM call the classifier needs.
type Completer interface {
	CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error)
}

// Classifier decides handover per utterance.
type Classifier struct {
	llm    Completer
	logger *slog.Logger
}

// NewClassifier creates a handover classifier.
func NewClassifier(completer Completer, logger *slog.Logger) *Classifier {
	return &Classifier{llm: completer, logger: logger}
}

const classifySystemPrompt = `You decide whether a chat message asks to
speak with a human instead of a bot. Consider explicit requests,
complaints, and frustration. Respond ONLY with JSON:
{"requires_human": boolean, "reason": string, "confidence": number between 0 and 1}`

// Classify runs the LLM classifier, falling back to keyword matching on
// any LLM failure.
func (c *Classifier) Classify(ctx context.Context, tenantID, utterance string) Decision {
	raw, _, err := c.llm.CompleteChat(ctx, tenantID,
		[]llm.ChatMessage{
			{Role: "system", Content: classifySystemPrompt},
			{Role: "user", Content: utterance},
		},
		llm.ChatParams{MaxTokens: 120, Temperature: 0},
	)
	if err == nil {
		var d Decision
		if jsonErr := json.Unmarshal([]byte(stripFences(raw)), &d); jsonErr == nil {
			if d.Confidence < 0 {
				d.Confidence = 0
			}
			if d.Confidence > 1 {
				d.Confidence = 1
			}
			return d
		}
	}
	if err != nil {
		c.logger.Warn("handover classifier llm failed, using keywords", "error", err)
	}
	return ClassifyKeywords(utterance)
}

var explicitRequests = []string{
	"speak to a human", "talk to a human", "speak with a human",
	"real person", "human agent", "speak to someone", "talk to a person",
	"speak to an agent", "talk to someone real", "human please",
	"i want a human", "connect me to a person",
}

var complaintCues = []string{
	"frustrated", "cancel my", "this is ridiculous", "not helping",
	"useless", "terrible service", "want a refund", "speak to your manager",
	"i give up", "stop sending",
}

// ClassifyKeywords is the deterministic fallback classifier.
func ClassifyKeywords(utterance string) Decision {
	lower := strings.ToLower(utterance)
	for _, kw := range explicitRequests {
		if strings.Contains(lower, kw) {
			return Decision{RequiresHuman: true, Reason: "explicit request for human", Confidence: 0.9}
		}
	}
	for _, kw := range complaintCues {
		if strings.Contains(lower, kw) {
			return Decision{RequiresHuman: true, Reason: "complaint or frustration", Confidence: 0.7}
		}
	}
	return Decision{RequiresHuman: false, Reason: "no handover signal", Confidence: 0.8}
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
