package respond

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/leadflow/internal/persona"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

const (
	// maxDocsInPrompt bounds how many retrieved documents reach the prompt.
	maxDocsInPrompt = 3
	// maxDocChars bounds each document's content slice.
	maxDocChars = 1200
)

// historyWindow maps personalization level to how many prior turns the
// prompt carries.
var historyWindow = map[string]int{
	"basic":        5,
	"contextual":   8,
	"relationship": 12,
	"closing":      15,
}

// HistoryN returns the history window for a personalization level.
func HistoryN(level string) int {
	if n, ok := historyWindow[level]; ok {
		return n
	}
	return historyWindow["basic"]
}

// modelParams maps communication style to completion knobs.
func modelParams(style string) (maxTokens int, temperature float32) {
	switch style {
	case "technical":
		return 1200, 0.5
	case "business":
		return 1000, 0.6
	case "formal":
		return 900, 0.55
	case "conversational":
		return 800, 0.8
	default:
		return 1000, 0.7
	}
}

// customerBlock summarizes what we know about the prospect for the
// system prompt.
func customerBlock(c *store.Contact, strat persona.Strategy) string {
	var b strings.Builder
	b.WriteString("Customer profile:\n")
	if c.Name != "" {
		fmt.Fprintf(&b, "- Name: %s\n", c.Name)
	}
	if c.Company != "" {
		fmt.Fprintf(&b, "- Company: %s\n", c.Company)
	}
	if c.IndustryFocus != "" {
		fmt.Fprintf(&b, "- Industry: %s\n", c.IndustryFocus)
	}
	if c.CompanySize != "" {
		fmt.Fprintf(&b, "- Company size: %s\n", c.CompanySize)
	}
	fmt.Fprintf(&b, "- Journey stage: %s\n", c.JourneyStage)
	fmt.Fprintf(&b, "- Engagement: %s\n", c.EngagementLevel)
	if len(strat.PainPointsToAddress) > 0 {
		fmt.Fprintf(&b, "- Pain points to address: %s\n", strings.Join(strat.PainPointsToAddress, "; "))
	}
	if len(strat.GoalsToHighlight) > 0 {
		fmt.Fprintf(&b, "- Goals to highlight: %s\n", strings.Join(strat.GoalsToHighlight, "; "))
	}
	fmt.Fprintf(&b, "- Response strategy: %s\n- Communication style: %s\n- Relationship approach: %s\n",
		strat.ResponseStrategy, strat.CommunicationStyle, strat.RelationshipApproach)
	return b.String()
}

// truncateRunes caps s at max bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ragPrompt builds the system prompt grounded on retrieved documents.
func ragPrompt(c *store.Contact, strat persona.Strategy, docs []store.ScoredDocument) string {
	var b strings.Builder
	b.WriteString("You are a helpful sales assistant replying on a chat channel.\n\n")
	b.WriteString("Knowledge base excerpts:\n")
	for i, d := range docs {
		if i >= maxDocsInPrompt {
			break
		}
		content := truncateRunes(d.Content, maxDocChars)
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, d.Title, d.Category, content)
	}
	b.WriteString("\n")
	b.WriteString(customerBlock(c, strat))
	b.WriteString(`
Response rules:
- Base every factual claim on the knowledge excerpts above.
- If the excerpts do not cover the question, say so plainly instead of inventing details.
- Keep replies short enough for a chat message; plain text only, no markdown headings.
- Match the communication style and strategy above.`)
	return b.String()
}

// personalizedPrompt is the no-retrieval fallback built from the
// contact alone.
func personalizedPrompt(c *store.Contact, strat persona.Strategy) string {
	var b strings.Builder
	b.WriteString("You are a helpful sales assistant replying on a chat channel.\n\n")
	b.WriteString(customerBlock(c, strat))
	b.WriteString(`
Response rules:
- Do not invent pricing, feature claims, or guarantees; offer to find out instead.
- Keep replies short enough for a chat message; plain text only.
- Ask at most one clarifying question when more context would help.`)
	return b.String()
}

// discoveryGuidance is appended when the offer gate is open.
func discoveryGuidance(url string) string {
	g := "\n\nThe prospect looks ready for a discovery call. Naturally work in an invitation to schedule one"
	if url != "" {
		g += " (the scheduling link will be appended automatically, do not write a link yourself)"
	}
	return g + "."
}

// continuityGuidance folds unresolved questions into the prompt.
func continuityGuidance(st *store.ConversationState) string {
	if st == nil || len(st.UnresolvedQuestions) == 0 {
		return ""
	}
	return "\n\nOpen questions from earlier in the conversation, address them if natural:\n- " +
		strings.Join(st.UnresolvedQuestions, "\n- ")
}
