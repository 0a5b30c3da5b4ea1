package qualify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type fakeCompleter struct {
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error) {
	f.calls++
	return f.reply, nil, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestPreGate(t *testing.T) {
	tests := []struct {
		name       string
		utterance  string
		historyLen int
		ok         bool
		reason     string
	}{
		{"too short", "yes", 10, false, "too short"},
		{"greeting", "hello", 10, false, "trivial greeting"},
		{"greeting with punctuation", "Hello!", 10, false, "trivial greeting"},
		{"thanks", "thank you", 10, false, "trivial greeting"},
		{"no history", "we handle 500 orders a day", 2, false, "no history"},
		{"passes", "we handle 500 orders a day", 3, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := PreGate(tt.utterance, tt.historyLen)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func history(n int) []store.Message {
	msgs := make([]store.Message, n)
	for i := range msgs {
		msgs[i] = store.Message{Role: store.RoleUser, Content: "msg"}
	}
	return msgs
}

func TestAssessQualified(t *testing.T) {
	f := &fakeCompleter{reply: `{"score": 85, "confidence": 0.9, "reasons": ["volume", "urgency"]}`}
	q := NewQualifier(f, 0, discard())

	a := q.Assess(context.Background(), "t1", "we need this for 2000 daily inquiries", history(5), &store.Contact{})
	assert.True(t, a.Qualified)
	assert.Equal(t, 85, a.Score)
	assert.Equal(t, []string{"volume", "urgency"}, a.Reasons)
}

func TestAssessThresholds(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		qualified bool
	}{
		{"score too low", `{"score": 79, "confidence": 0.95, "reasons": []}`, false},
		{"confidence too low", `{"score": 95, "confidence": 0.8, "reasons": []}`, false},
		{"both at minimum", `{"score": 80, "confidence": 0.85, "reasons": []}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQualifier(&fakeCompleter{reply: tt.reply}, 0, discard())
			a := q.Assess(context.Background(), "t1", "we need automation at scale", history(5), &store.Contact{})
			assert.Equal(t, tt.qualified, a.Qualified)
		})
	}
}

func TestAssessPreGateSkipsLLM(t *testing.T) {
	f := &fakeCompleter{reply: `{"score": 99, "confidence": 1, "reasons": []}`}
	q := NewQualifier(f, 0, discard())

	a := q.Assess(context.Background(), "t1", "hi", history(10), &store.Contact{})
	assert.False(t, a.Qualified)
	assert.Zero(t, f.calls, "trivial utterances never reach the LLM")
}

func TestAssessLLMFailureIsNotQualified(t *testing.T) {
	q := NewQualifier(&fakeCompleter{err: errors.New("down")}, 0, discard())
	a := q.Assess(context.Background(), "t1", "we need this urgently for our team", history(5), &store.Contact{})
	assert.False(t, a.Qualified)
}

func TestOfferAllowedCooldown(t *testing.T) {
	q := NewQualifier(&fakeCompleter{}, 24*time.Hour, discard())
	now := time.Now()

	assert.True(t, q.OfferAllowed(&store.Contact{}, now), "never offered before")

	recent := now.Add(-2 * time.Hour)
	assert.False(t, q.OfferAllowed(&store.Contact{LastOfferAt: &recent}, now))

	stale := now.Add(-25 * time.Hour)
	assert.True(t, q.OfferAllowed(&store.Contact{LastOfferAt: &stale}, now))
}
