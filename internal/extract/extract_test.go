package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

func TestFallbackExtractEmail(t *testing.T) {
	ext := fallbackExtract("reach me at John.Doe@Example.COM thanks")
	assert.Equal(t, "john.doe@example.com", ext.Email)
	assert.Equal(t, ConfidenceHeuristic, ext.Confidence)
}

func TestFallbackExtractName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hi, my name is Jane Smith", "Jane Smith"},
		{"this is Carlos", "Carlos"},
		{"I'm Maria, I run ops", "Maria"},
		{"no name here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackExtract(tt.in).Name)
		})
	}
}

func TestFallbackExtractLexicons(t *testing.T) {
	ext := fallbackExtract("We're a fintech company using Salesforce and Excel, drowning in manual work, want to automate and scale")

	assert.Equal(t, "finance", ext.IndustryFocus)
	assert.Contains(t, ext.CurrentTools, "salesforce")
	assert.Contains(t, ext.CurrentTools, "excel")
	assert.Contains(t, ext.PainPoints, "manual work")
	assert.Contains(t, ext.Goals, "automation")
	assert.Contains(t, ext.Goals, "scaling operations")
}

func TestApplyHeuristicNeverOverwrites(t *testing.T) {
	c := &store.Contact{Name: "Jane Smith", Email: "jane@acme.com"}
	ext := &Extraction{Name: "John", Email: "other@x.com", Confidence: ConfidenceHeuristic}

	upd := Apply(c, ext)
	assert.Nil(t, upd.Name, "heuristic value must not replace a known name")
	assert.Nil(t, upd.Email)
}

func TestApplyHeuristicFillsEmpty(t *testing.T) {
	c := &store.Contact{}
	ext := &Extraction{Name: "John", Company: "Acme", Confidence: ConfidenceHeuristic}

	upd := Apply(c, ext)
	require.NotNil(t, upd.Name)
	assert.Equal(t, "John", *upd.Name)
	require.NotNil(t, upd.Company)
	assert.Equal(t, "Acme", *upd.Company)
}

func TestApplyExplicitOverwrites(t *testing.T) {
	c := &store.Contact{Name: "Wrong Name", DecisionMaker: false}
	dm := true
	ext := &Extraction{Name: "Right Name", DecisionMaker: &dm, Confidence: ConfidenceExplicit}

	upd := Apply(c, ext)
	require.NotNil(t, upd.Name)
	assert.Equal(t, "Right Name", *upd.Name)
	require.NotNil(t, upd.DecisionMaker)
	assert.True(t, *upd.DecisionMaker)
}

func TestApplyDecisionMakerNeedsExplicit(t *testing.T) {
	dm := true
	ext := &Extraction{DecisionMaker: &dm, Confidence: ConfidenceHeuristic}
	upd := Apply(&store.Contact{}, ext)
	assert.Nil(t, upd.DecisionMaker)
}

func TestApplyListsAlwaysMerge(t *testing.T) {
	c := &store.Contact{PainPointsMentioned: []string{"churn"}}
	ext := &Extraction{
		PainPoints:   []string{"slow replies"},
		Goals:        []string{"growth"},
		CurrentTools: []string{"hubspot"},
		Confidence:   ConfidenceHeuristic,
	}

	upd := Apply(c, ext)
	assert.Equal(t, []string{"slow replies"}, upd.PainPointsMentioned)
	assert.Equal(t, []string{"growth"}, upd.GoalsExpressed)
	assert.Equal(t, []string{"hubspot"}, upd.CurrentTools)
}

func TestTitleCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"jane smith", "Jane Smith"},
		{"JANE", "JANE"}, // acronym-style stays
		{"aCME corp", "Acme Corp"},
		{"  trimmed  ", "Trimmed"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titleCase(tt.in))
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
