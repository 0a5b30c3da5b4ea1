// Package extract pulls structured contact fields out of a user
// utterance, LLM-first with a deterministic regex fallback.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Confidence distinguishes an explicit LLM extraction from a heuristic
// fallback match; lower confidence never overwrites a known value.
type Confidence int

const (
	ConfidenceHeuristic Confidence = 1
	ConfidenceExplicit  Confidence = 2
)

// Extraction is the typed result of one pass over an utterance.
type Extraction struct {
	Name            string
	Email           string
	Company         string
	Position        string
	IndustryFocus   string
	CompanySize     string
	TechnicalLevel  string
	ResponseUrgency string
	BudgetRange     string
	Timeline        string
	CurrentTools    []string
	PainPoints      []string
	Goals           []string
	DecisionMaker   *bool

	Confidence Confidence
}

// Completer is the LLM call the extractor needs.
type Completer interface {
	CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error)
}

// Agent extracts contact fields.
type Agent struct {
	llm    Completer
	logger *slog.Logger
}

// NewAgent creates an extraction agent.
func NewAgent(completer Completer, logger *slog.Logger) *Agent {
	return &Agent{llm: completer, logger: logger}
}

const extractSystemPrompt = `You extract CRM fields from one chat message.
Return ONLY a JSON object. Include a field ONLY when it is explicitly
present in the message; use null otherwise. Never guess.

Schema:
{
  "name": string|null, "email": string|null, "company": string|null,
  "position": string|null, "industry_focus": string|null,
  "company_size": string|null,
  "technical_level": "non_technical"|"business_user"|"technical"|"developer"|"executive"|null,
  "response_urgency": "low"|"medium"|"high"|null,
  "budget_range": string|null, "timeline": string|null,
  "current_tools": [string]|null, "pain_points": [string]|null,
  "goals": [string]|null, "decision_maker": boolean|null
}`

var knownTechnicalLevels = map[string]bool{
	"non_technical": true, "business_user": true, "technical": true,
	"developer": true, "executive": true,
}

var knownUrgencies = map[string]bool{"low": true, "medium": true, "high": true}

// Extract runs the LLM pass and falls back to the deterministic
// extractor on any LLM failure.
func (a *Agent) Extract(ctx context.Context, tenantID, utterance string) *Extraction {
	ext, err := a.extractLLM(ctx, tenantID, utterance)
	if err != nil {
		a.logger.Warn("llm extraction failed, using fallback", "error", err)
		return fallbackExtract(utterance)
	}
	return ext
}

func (a *Agent) extractLLM(ctx context.Context, tenantID, utterance string) (*Extraction, error) {
	raw, _, err := a.llm.CompleteChat(ctx, tenantID,
		[]llm.ChatMessage{
			{Role: "system", Content: extractSystemPrompt},
			{Role: "user", Content: utterance},
		},
		llm.ChatParams{MaxTokens: 400, Temperature: 0},
	)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Name            *string  `json:"name"`
		Email           *string  `json:"email"`
		Company         *string  `json:"company"`
		Position        *string  `json:"position"`
		IndustryFocus   *string  `json:"industry_focus"`
		CompanySize     *string  `json:"company_size"`
		TechnicalLevel  *string  `json:"technical_level"`
		ResponseUrgency *string  `json:"response_urgency"`
		BudgetRange     *string  `json:"budget_range"`
		Timeline        *string  `json:"timeline"`
		CurrentTools    []string `json:"current_tools"`
		PainPoints      []string `json:"pain_points"`
		Goals           []string `json:"goals"`
		DecisionMaker   *bool    `json:"decision_maker"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}

	ext := &Extraction{Confidence: ConfidenceExplicit, DecisionMaker: parsed.DecisionMaker}
	ext.Name = titleCase(deref(parsed.Name))
	ext.Email = strings.ToLower(strings.TrimSpace(deref(parsed.Email)))
	ext.Company = titleCase(deref(parsed.Company))
	ext.Position = titleCase(deref(parsed.Position))
	ext.IndustryFocus = strings.TrimSpace(deref(parsed.IndustryFocus))
	ext.CompanySize = strings.TrimSpace(deref(parsed.CompanySize))
	ext.BudgetRange = strings.TrimSpace(deref(parsed.BudgetRange))
	ext.Timeline = strings.TrimSpace(deref(parsed.Timeline))
	if lvl := strings.ToLower(strings.TrimSpace(deref(parsed.TechnicalLevel))); knownTechnicalLevels[lvl] {
		ext.TechnicalLevel = lvl
	}
	if urg := strings.ToLower(strings.TrimSpace(deref(parsed.ResponseUrgency))); knownUrgencies[urg] {
		ext.ResponseUrgency = urg
	}
	ext.CurrentTools = trimAll(parsed.CurrentTools)
	ext.PainPoints = trimAll(parsed.PainPoints)
	ext.Goals = trimAll(parsed.Goals)
	return ext, nil
}

// Apply folds an extraction into a contact update. A value only lands
// when the target field is empty, or when the extraction's confidence
// is explicit. List fields always merge (unions never lose data).
func Apply(c *store.Contact, ext *Extraction) store.ContactUpdate {
	var upd store.ContactUpdate
	explicit := ext.Confidence >= ConfidenceExplicit

	set := func(dst *(*string), current, v string) {
		if v == "" {
			return
		}
		if current == "" || explicit {
			val := v
			*dst = &val
		}
	}
	set(&upd.Name, c.Name, ext.Name)
	set(&upd.Email, c.Email, ext.Email)
	set(&upd.Company, c.Company, ext.Company)
	set(&upd.Position, c.Position, ext.Position)
	set(&upd.IndustryFocus, c.IndustryFocus, ext.IndustryFocus)
	set(&upd.CompanySize, c.CompanySize, ext.CompanySize)
	set(&upd.TechnicalLevel, c.TechnicalLevel, ext.TechnicalLevel)
	set(&upd.ResponseUrgency, c.ResponseUrgency, ext.ResponseUrgency)
	set(&upd.BudgetRange, c.BudgetRange, ext.BudgetRange)
	set(&upd.Timeline, c.Timeline, ext.Timeline)

	if ext.DecisionMaker != nil && explicit {
		upd.DecisionMaker = ext.DecisionMaker
	}

	upd.CurrentTools = ext.CurrentTools
	upd.PainPointsMentioned = ext.PainPoints
	upd.GoalsExpressed = ext.Goals
	return upd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func trimAll(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// titleCase trims and title-cases a name-like value word by word,
// leaving already-capitalized acronyms alone.
func titleCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	words := strings.Fields(s)
	for i, w := range words {
		if w == strings.ToUpper(w) && len(w) > 1 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// stripFences removes a markdown code fence around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
