package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

func TestAdvanceJourney(t *testing.T) {
	tests := []struct {
		name      string
		current   store.JourneyStage
		utterance string
		want      store.JourneyStage
		moved     bool
	}{
		{"discovery to interest on pricing", store.StageDiscovery, "What's your pricing?", store.StageInterest, true},
		{"discovery to interest on demo", store.StageDiscovery, "can I get a demo", store.StageInterest, true},
		{"discovery stays without signal", store.StageDiscovery, "hello there", store.StageDiscovery, false},
		{"interest to evaluation on compare", store.StageInterest, "how do you compare to others", store.StageEvaluation, true},
		{"interest to evaluation on integration", store.StageInterest, "does the integration support SSO?", store.StageEvaluation, true},
		{"evaluation to decision on sign up", store.StageEvaluation, "we're ready to sign up", store.StageDecision, true},
		{"decision is terminal", store.StageDecision, "pricing demo sign up", store.StageDecision, false},
		{"unknown stage untouched", store.JourneyStage("bogus"), "pricing", store.JourneyStage("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, moved := AdvanceJourney(tt.current, tt.utterance)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.moved, moved)
		})
	}
}

func TestAdvanceJourneySingleStep(t *testing.T) {
	// One utterance carrying signals for several transitions still moves
	// only one step.
	got, moved := AdvanceJourney(store.StageDiscovery, "interested, ready to sign up, let's compare")
	assert.True(t, moved)
	assert.Equal(t, store.StageInterest, got)
}

func TestAdvanceJourneyNeverBackward(t *testing.T) {
	for _, stage := range []store.JourneyStage{
		store.StageInterest, store.StageEvaluation, store.StageDecision,
	} {
		got, _ := AdvanceJourney(stage, "just saying hi")
		assert.GreaterOrEqual(t, store.StageRank(got), store.StageRank(stage))
	}
}
