// Package respond orchestrates the AI reply: intent analysis,
// retrieval, prompt selection, completion, and post-processing.
package respond

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/persona"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

var tracer = otel.Tracer("leadflow/respond")

// DegradedReply is the brand-safe fallback when every generation path
// has failed.
const DegradedReply = "Thanks for your message! I'm having a little trouble responding right now. " +
	"Please give me a moment, or a member of our team will get back to you shortly."

// Handler kinds recorded in analytics.
const (
	HandlerRAG          = "rag"
	HandlerPersonalized = "personalized"
	HandlerDegraded     = "degraded"
)

// Searcher is the retrieval dependency.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, c *store.Contact, k int) ([]store.ScoredDocument, error)
}

// Completer is the LLM dependency.
type Completer interface {
	CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error)
}

// Recorder receives analytics without blocking the reply path.
type Recorder interface {
	MessageAnalytics(m *store.MessageAnalytics)
	PerformanceSample(p *store.PerformanceSample)
}

// Request is one reply-generation job.
type Request struct {
	TenantID       string
	Contact        *store.Contact
	Utterance      string
	History        []store.Message
	State          *store.ConversationState
	OfferDiscovery bool
}

// Response is the generated reply plus its provenance.
type Response struct {
	Text        string
	HandlerKind string
	Strategy    persona.Strategy
	Intents     []string
	RAGDocs     int
	RAGLatency  time.Duration
	Usage       *llm.Usage
}

// Handler generates replies.
type Handler struct {
	search       Searcher
	llm          Completer
	recorder     Recorder
	discoveryURL string
	logger       *slog.Logger
}

// NewHandler creates the AI handler. discoveryURL is the scheduling
// link appended to schedule_call CTAs; empty disables the link.
func NewHandler(search Searcher, completer Completer, recorder Recorder, discoveryURL string, logger *slog.Logger) *Handler {
	return &Handler{
		search:       search,
		llm:          completer,
		recorder:     recorder,
		discoveryURL: discoveryURL,
		logger:       logger,
	}
}

// Generate produces the assistant reply. It degrades in order: RAG,
// personalized-only, then the fixed degradation message. The returned
// error is nil unless even the degraded reply could not be produced.
func (h *Handler) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "respond.Generate")
	defer span.End()

	start := time.Now()
	strat := persona.Plan(req.Contact)
	intents := AnalyzeIntents(req.Utterance)
	// The offer gate is decided upstream (qualification + cooldown);
	// intent keywords alone must not reopen it.
	offerDiscovery := req.OfferDiscovery

	span.SetAttributes(
		attribute.String("tenant_id", req.TenantID),
		attribute.String("strategy", strat.ResponseStrategy),
		attribute.StringSlice("intents", intents.Intents),
	)

	resp := &Response{Strategy: strat, Intents: intents.Intents}

	// Retrieval. A failure here only loses grounding, not the reply.
	var docs []store.ScoredDocument
	ragStart := time.Now()
	docs, err := h.search.Search(ctx, req.TenantID, EnrichQuery(req.Utterance, req.Contact), req.Contact, 5)
	resp.RAGLatency = time.Since(ragStart)
	if err != nil {
		h.logger.Warn("retrieval failed, continuing without docs",
			"tenant_id", req.TenantID, "error", err)
		docs = nil
	}
	resp.RAGDocs = len(docs)

	text, usage, genErr := h.complete(ctx, req, strat, docs, offerDiscovery)
	if genErr != nil && len(docs) > 0 {
		// RAG path failed; retry without retrieval before degrading.
		h.logger.Warn("rag completion failed, retrying personalized",
			"tenant_id", req.TenantID, "error", genErr)
		text, usage, genErr = h.complete(ctx, req, strat, nil, offerDiscovery)
		docs = nil
		resp.RAGDocs = 0
	}

	switch {
	case genErr == nil && len(docs) > 0:
		resp.HandlerKind = HandlerRAG
	case genErr == nil:
		resp.HandlerKind = HandlerPersonalized
	default:
		h.logger.Error("all generation paths failed, degrading",
			"tenant_id", req.TenantID, "error", genErr)
		resp.HandlerKind = HandlerDegraded
		text = DegradedReply
		h.recorder.PerformanceSample(&store.PerformanceSample{
			TenantID:    req.TenantID,
			Endpoint:    "respond",
			Op:          "generate",
			LatencyMS:   int(time.Since(start).Milliseconds()),
			Status:      "error",
			ErrorReason: genErr.Error(),
		})
	}

	resp.Usage = usage
	resp.Text = h.postProcess(text, req, offerDiscovery)

	h.recordAnalytics(req, resp, strat, intents, start)
	return resp, nil
}

func (h *Handler) complete(ctx context.Context, req Request, strat persona.Strategy, docs []store.ScoredDocument, offerDiscovery bool) (string, *llm.Usage, error) {
	var system string
	if len(docs) > 0 {
		system = ragPrompt(req.Contact, strat, docs)
	} else {
		system = personalizedPrompt(req.Contact, strat)
	}
	if offerDiscovery {
		system += discoveryGuidance(h.discoveryURL)
	}
	system += continuityGuidance(req.State)

	messages := []llm.ChatMessage{{Role: "system", Content: system}}
	for _, m := range tailMessages(req.History, HistoryN(strat.PersonalizationLevel)) {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: req.Utterance})

	maxTokens, temperature := modelParams(strat.CommunicationStyle)
	return h.llm.CompleteChat(ctx, req.TenantID, messages, llm.ChatParams{
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// postProcess applies the deterministic touches the model cannot be
// trusted with: the first-contact name prefix and the CTA link.
func (h *Handler) postProcess(text string, req Request, offerDiscovery bool) string {
	text = strings.TrimSpace(text)

	if req.Contact.Name != "" && req.Contact.ConversationCount == 0 {
		first := firstName(req.Contact.Name)
		if first != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(first)) {
			text = first + ", " + lowerFirst(text)
		}
	}

	wantLink := h.discoveryURL != "" && offerDiscovery
	if wantLink && !strings.Contains(text, h.discoveryURL) {
		text += "\n\nYou can grab a time that suits you here: " + h.discoveryURL
	}
	return text
}

func (h *Handler) recordAnalytics(req Request, resp *Response, strat persona.Strategy, intents IntentAnalysis, start time.Time) {
	m := &store.MessageAnalytics{
		TenantID:             req.TenantID,
		ContactID:            req.Contact.ID,
		Role:                 string(store.RoleAssistant),
		Length:               len(resp.Text),
		HandlerKind:          resp.HandlerKind,
		RAGDocs:              resp.RAGDocs,
		RAGLatencyMS:         int(resp.RAGLatency.Milliseconds()),
		PersonalizationLevel: strat.PersonalizationLevel,
		ResponseStrategy:     strat.ResponseStrategy,
		CommunicationStyle:   strat.CommunicationStyle,
		Intents:              intents.Intents,
		BusinessCategory:     intents.PrimaryBusinessCategory,
		Urgency:              strat.UrgencyLevel,
		LatencyMS:            int(time.Since(start).Milliseconds()),
	}
	if resp.Usage != nil {
		m.PromptTokens = resp.Usage.PromptTokens
		m.CompletionTokens = resp.Usage.CompletionTokens
		m.CostEstimate = estimateCost(resp.Usage)
	}
	h.recorder.MessageAnalytics(m)
}

// estimateCost is a rough blended per-token estimate; good enough for
// relative dashboards, not billing.
func estimateCost(u *llm.Usage) float64 {
	return float64(u.PromptTokens)*0.15/1e6 + float64(u.CompletionTokens)*0.60/1e6
}

func tailMessages(in []store.Message, n int) []store.Message {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
