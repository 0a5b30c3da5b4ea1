// Package persona derives the response strategy for a contact. Plan is
// a pure function over the contact snapshot; it never touches I/O.
package persona

import "github.com/nextlevelbuilder/leadflow/internal/store"

// Strategy tells the AI handler how to shape a reply.
type Strategy struct {
	ResponseStrategy     string   // closing, solution_focused, consultative, educational
	CommunicationStyle   string   // technical, business, conversational, formal
	PersonalizationLevel string   // basic, contextual, relationship, closing
	FocusAreas           []string // <= 3
	PainPointsToAddress  []string // <= 2
	GoalsToHighlight     []string // <= 2
	ExamplesToInclude    []string // <= 2
	CTAType              string   // schedule_call, ask_question, share_info, none
	UrgencyLevel         string   // low, medium, high
	RelationshipApproach string   // professional, warm, direct
}

// Plan derives the strategy from the contact's journey stage,
// engagement, and accumulated context.
func Plan(c *store.Contact) Strategy {
	s := Strategy{
		ResponseStrategy:     responseStrategy(c),
		CommunicationStyle:   communicationStyle(c),
		PersonalizationLevel: personalizationLevel(c),
		FocusAreas:           head(c.TopicsDiscussed, 3),
		PainPointsToAddress:  head(c.PainPointsMentioned, 2),
		GoalsToHighlight:     head(c.GoalsExpressed, 2),
		UrgencyLevel:         urgencyLevel(c),
		RelationshipApproach: relationshipApproach(c),
	}
	if c.PreferAsExamples {
		s.ExamplesToInclude = head(c.TopicsDiscussed, 2)
	}
	s.CTAType = ctaType(c, s)
	return s
}

func responseStrategy(c *store.Contact) string {
	// Engagement extremes override the stage mapping.
	switch c.EngagementLevel {
	case "high":
		return "solution_focused"
	case "low":
		return "educational"
	}
	switch c.JourneyStage {
	case store.StageDecision:
		return "closing"
	case store.StageEvaluation:
		return "solution_focused"
	case store.StageInterest:
		return "consultative"
	default:
		return "educational"
	}
}

func communicationStyle(c *store.Contact) string {
	switch {
	case c.TechnicalLevel == "technical" || c.TechnicalLevel == "developer":
		return "technical"
	case c.DecisionMakingStyle == "analytical":
		return "business"
	case c.EngagementLevel == "high":
		return "conversational"
	case c.DecisionMaker:
		return "formal"
	default:
		return "business"
	}
}

func personalizationLevel(c *store.Contact) string {
	switch {
	case c.JourneyStage == store.StageDecision || c.DecisionMaker || c.EngagementLevel == "high":
		return "closing"
	case c.JourneyStage == store.StageEvaluation || c.ConversationCount >= 3 || len(c.TopicsDiscussed) >= 3:
		return "relationship"
	case c.JourneyStage == store.StageInterest || c.ConversationCount >= 1 || len(c.PainPointsMentioned) > 0:
		return "contextual"
	default:
		return "basic"
	}
}

func urgencyLevel(c *store.Contact) string {
	switch {
	case c.ResponseUrgency == "high" || c.JourneyStage == store.StageDecision:
		return "high"
	case c.JourneyStage == store.StageEvaluation || c.EngagementLevel == "high":
		return "medium"
	default:
		return "low"
	}
}

func relationshipApproach(c *store.Contact) string {
	switch {
	case c.DecisionMaker && c.JourneyStage == store.StageDecision:
		return "direct"
	case c.ConversationCount >= 3 || c.EngagementLevel == "high":
		return "warm"
	default:
		return "professional"
	}
}

func ctaType(c *store.Contact, s Strategy) string {
	switch {
	case c.JourneyStage == store.StageDecision || s.PersonalizationLevel == "closing":
		return "schedule_call"
	case c.JourneyStage == store.StageEvaluation:
		return "share_info"
	case c.JourneyStage == store.StageInterest:
		return "ask_question"
	default:
		return "none"
	}
}

func head(in []string, n int) []string {
	if len(in) <= n {
		return in
	}
	return in[:n]
}
