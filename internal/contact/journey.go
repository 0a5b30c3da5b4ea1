package contact

import (
	"strings"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// journeySignals maps a current stage to the keywords that advance it
// one step. Advancement is forward-only; no signal ever moves a contact
// back.
var journeySignals = map[store.JourneyStage]struct {
	next     store.JourneyStage
	keywords []string
}{
	store.StageDiscovery: {
		next:     store.StageInterest,
		keywords: []string{"interested", "tell me more", "pricing", "demo", "trial", "examples", "automate"},
	},
	store.StageInterest: {
		next:     store.StageEvaluation,
		keywords: []string{"compare", "vs", "alternatives", "timeline", "integration", "security"},
	},
	store.StageEvaluation: {
		next:     store.StageDecision,
		keywords: []string{"ready to", "sign up", "get started", "next steps", "schedule", "contract"},
	},
}

// AdvanceJourney returns the stage after scanning the utterance for
// transition signals, and whether it moved. A single utterance advances
// at most one step.
func AdvanceJourney(current store.JourneyStage, utterance string) (store.JourneyStage, bool) {
	sig, ok := journeySignals[current]
	if !ok {
		return current, false
	}
	lower := strings.ToLower(utterance)
	for _, kw := range sig.keywords {
		if strings.Contains(lower, kw) {
			return sig.next, true
		}
	}
	return current, false
}
