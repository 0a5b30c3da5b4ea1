package knowledge

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, tenantID, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type flakyEmbedder struct {
	failOn int
	calls  int
}

func (f *flakyEmbedder) Embed(ctx context.Context, tenantID, text string) ([]float32, error) {
	f.calls++
	if f.calls == f.failOn {
		return nil, errors.New("provider hiccup")
	}
	return []float32{0.1}, nil
}

type fakeKnowledgeStore struct {
	upserted   []store.KnowledgeDocument
	all        []store.KnowledgeDocument
	lastFilter store.KnowledgeFilter
	filters    []store.KnowledgeFilter
	// byCategory maps filter.Category to the docs the search returns.
	byCategory map[string][]store.ScoredDocument
}

func (f *fakeKnowledgeStore) Upsert(ctx context.Context, doc *store.KnowledgeDocument) error {
	f.upserted = append(f.upserted, *doc)
	return nil
}

func (f *fakeKnowledgeStore) Search(ctx context.Context, tenantID string, embedding []float32, filter store.KnowledgeFilter, k int, minScore float64) ([]store.ScoredDocument, error) {
	f.lastFilter = filter
	f.filters = append(f.filters, filter)
	return f.byCategory[filter.Category], nil
}

func (f *fakeKnowledgeStore) All(ctx context.Context, tenantID string) ([]store.KnowledgeDocument, error) {
	return f.all, nil
}

func (f *fakeKnowledgeStore) Stats(ctx context.Context, tenantID string) (*store.KnowledgeStats, error) {
	return &store.KnowledgeStats{Count: len(f.all)}, nil
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestIngestValidation(t *testing.T) {
	s := NewService(&fakeKnowledgeStore{}, &fakeEmbedder{}, discard())

	err := s.Ingest(context.Background(), "t1", Document{Content: "body"})
	assert.ErrorContains(t, err, "source")

	err = s.Ingest(context.Background(), "t1", Document{Source: "faq.md", Content: "   "})
	assert.ErrorContains(t, err, "empty content")
}

func TestIngestEmbedsAndUpserts(t *testing.T) {
	st := &fakeKnowledgeStore{}
	s := NewService(st, &fakeEmbedder{}, discard())

	err := s.Ingest(context.Background(), "t1", Document{
		Source:   "pricing.md",
		Category: "pricing",
		Title:    "Pricing",
		Content:  "Plans start at $49 per month.",
		Filename: "pricing.md",
	})
	require.NoError(t, err)

	require.Len(t, st.upserted, 1)
	doc := st.upserted[0]
	assert.Equal(t, "t1", doc.TenantID)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, doc.Embedding)
	assert.Equal(t, "6", doc.Metadata["word_count"])
	assert.Equal(t, "pricing.md", doc.Metadata["filename"])
}

func TestSearchBoostsCommercialDocsForQualifiedLeads(t *testing.T) {
	st := &fakeKnowledgeStore{}
	s := NewService(st, &fakeEmbedder{}, discard())

	_, err := s.Search(context.Background(), "t1", "pricing", &store.Contact{LeadStatus: "qualified"}, 5)
	require.NoError(t, err)
	assert.Equal(t, boostCategories, st.lastFilter.BoostCategories)

	_, err = s.Search(context.Background(), "t1", "pricing", &store.Contact{LeadStatus: "new"}, 5)
	require.NoError(t, err)
	assert.Empty(t, st.lastFilter.BoostCategories)
}

func TestSearchNarrowsByIndustryFocus(t *testing.T) {
	st := &fakeKnowledgeStore{byCategory: map[string][]store.ScoredDocument{
		"healthcare": {{KnowledgeDocument: store.KnowledgeDocument{Category: "healthcare"}, Score: 0.8}},
	}}
	s := NewService(st, &fakeEmbedder{}, discard())

	docs, err := s.Search(context.Background(), "t1", "compliance", &store.Contact{IndustryFocus: "Healthcare"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "healthcare", st.lastFilter.Category)

	// No contact, no narrowing.
	_, err = s.Search(context.Background(), "t1", "compliance", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, st.lastFilter.Category)
}

func TestSearchFallsBackToWholeCorpus(t *testing.T) {
	// Nothing under the industry category: the search widens instead of
	// coming back empty.
	st := &fakeKnowledgeStore{byCategory: map[string][]store.ScoredDocument{
		"": {{KnowledgeDocument: store.KnowledgeDocument{Category: "services"}, Score: 0.7}},
	}}
	s := NewService(st, &fakeEmbedder{}, discard())

	docs, err := s.Search(context.Background(), "t1", "pricing", &store.Contact{IndustryFocus: "fintech"}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	require.Len(t, st.filters, 2)
	assert.Equal(t, "fintech", st.filters[0].Category)
	assert.Empty(t, st.filters[1].Category)
}

func TestSearchEmbedFailure(t *testing.T) {
	s := NewService(&fakeKnowledgeStore{}, &fakeEmbedder{err: errors.New("quota")}, discard())
	_, err := s.Search(context.Background(), "t1", "pricing", nil, 5)
	assert.Error(t, err)
}

func TestRefreshSkipsFailedDocs(t *testing.T) {
	st := &fakeKnowledgeStore{
		all: []store.KnowledgeDocument{
			{Source: "a.md", Title: "A", Content: "alpha"},
			{Source: "b.md", Title: "B", Content: "beta"},
			{Source: "c.md", Title: "C", Content: "gamma"},
		},
	}
	s := NewService(st, &flakyEmbedder{failOn: 2}, discard())

	n, err := s.Refresh(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, st.upserted, 2)
}
