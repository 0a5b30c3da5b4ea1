package handover

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
)

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) CompleteChat(ctx context.Context, tenantID string, messages []llm.ChatMessage, params llm.ChatParams) (string, *llm.Usage, error) {
	return f.reply, nil, f.err
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestClassifyKeywordsExplicit(t *testing.T) {
	tests := []string{
		"I want to speak to a human",
		"can I talk to a person please",
		"get me a real person",
		"HUMAN PLEASE",
	}
	for _, u := range tests {
		t.Run(u, func(t *testing.T) {
			d := ClassifyKeywords(u)
			assert.True(t, d.RequiresHuman)
			assert.Equal(t, 0.9, d.Confidence)
			assert.True(t, d.Triggered())
		})
	}
}

func TestClassifyKeywordsComplaint(t *testing.T) {
	d := ClassifyKeywords("this is ridiculous, I want a refund")
	assert.True(t, d.RequiresHuman)
	assert.Equal(t, 0.7, d.Confidence)
	assert.True(t, d.Triggered())
}

func TestClassifyKeywordsNegative(t *testing.T) {
	d := ClassifyKeywords("what integrations do you support?")
	assert.False(t, d.RequiresHuman)
	assert.False(t, d.Triggered())
}

func TestTriggeredThreshold(t *testing.T) {
	assert.False(t, Decision{RequiresHuman: true, Confidence: 0.5}.Triggered())
	assert.True(t, Decision{RequiresHuman: true, Confidence: 0.6}.Triggered())
	assert.False(t, Decision{RequiresHuman: false, Confidence: 1}.Triggered())
}

func TestClassifyUsesLLM(t *testing.T) {
	c := NewClassifier(&fakeCompleter{
		reply: `{"requires_human": true, "reason": "upset customer", "confidence": 0.85}`,
	}, discard())

	d := c.Classify(context.Background(), "t1", "whatever")
	assert.True(t, d.RequiresHuman)
	assert.Equal(t, "upset customer", d.Reason)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
}

func TestClassifyClampsConfidence(t *testing.T) {
	c := NewClassifier(&fakeCompleter{
		reply: `{"requires_human": true, "reason": "x", "confidence": 3.5}`,
	}, discard())
	assert.Equal(t, 1.0, c.Classify(context.Background(), "t1", "x").Confidence)
}

func TestClassifyFallsBackOnLLMError(t *testing.T) {
	c := NewClassifier(&fakeCompleter{err: errors.New("provider down")}, discard())
	d := c.Classify(context.Background(), "t1", "I want to speak to a human")
	assert.True(t, d.RequiresHuman)
	assert.Equal(t, 0.9, d.Confidence)
}

func TestClassifyFallsBackOnBadJSON(t *testing.T) {
	c := NewClassifier(&fakeCompleter{reply: "sorry, I cannot answer that"}, discard())
	d := c.Classify(context.Background(), "t1", "just a normal question")
	assert.False(t, d.RequiresHuman)
}

func TestClassifyHandlesFencedJSON(t *testing.T) {
	c := NewClassifier(&fakeCompleter{
		reply: "```json\n{\"requires_human\": false, \"reason\": \"faq\", \"confidence\": 0.9}\n```",
	}, discard())
	d := c.Classify(context.Background(), "t1", "pricing?")
	assert.False(t, d.RequiresHuman)
	assert.Equal(t, "faq", d.Reason)
}
