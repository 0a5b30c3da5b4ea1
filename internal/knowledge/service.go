// Package knowledge manages the vector-indexed document corpus: ingest,
// similarity search with lead-aware boosting, and corpus stats.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/leadflow/internal/llm"
	"github.com/nextlevelbuilder/leadflow/internal/store"
)

const (
	defaultTopK     = 5
	defaultMinScore = 0.5
)

// boostCategories get a score bonus when the lead is far enough along
// that commercial material matters most.
var boostCategories = []string{"services", "pricing", "sales"}

// boostedLeadStatuses trigger the category boost.
var boostedLeadStatuses = map[string]bool{
	"qualified": true,
	"hot":       true,
	"proposal":  true,
}

// Embedder computes one embedding vector for a tenant's text.
type Embedder interface {
	Embed(ctx context.Context, tenantID, text string) ([]float32, error)
}

var _ Embedder = (*llm.Client)(nil)

// Document is the ingest input before embedding.
type Document struct {
	Source   string
	Category string
	Title    string
	Content  string
	Filename string
	Modified time.Time
}

// Service wraps the knowledge store with embedding and search policy.
type Service struct {
	store    store.KnowledgeStore
	embedder Embedder
	logger   *slog.Logger
}

// NewService creates a knowledge service.
func NewService(st store.KnowledgeStore, embedder Embedder, logger *slog.Logger) *Service {
	return &Service{store: st, embedder: embedder, logger: logger}
}

// Ingest upserts one document by source, computing its embedding.
func (s *Service) Ingest(ctx context.Context, tenantID string, doc Document) error {
	if doc.Source == "" {
		return fmt.Errorf("ingest: source is required")
	}
	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return fmt.Errorf("ingest %s: empty content", doc.Source)
	}

	embedding, err := s.embedder.Embed(ctx, tenantID, doc.Title+"\n\n"+content)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", doc.Source, err)
	}

	meta := map[string]string{
		"word_count": fmt.Sprintf("%d", len(strings.Fields(content))),
	}
	if doc.Filename != "" {
		meta["filename"] = doc.Filename
	}
	if !doc.Modified.IsZero() {
		meta["modified"] = doc.Modified.UTC().Format(time.RFC3339)
	}

	return s.store.Upsert(ctx, &store.KnowledgeDocument{
		TenantID:  tenantID,
		Source:    doc.Source,
		Category:  doc.Category,
		Title:     doc.Title,
		Content:   content,
		Metadata:  meta,
		Embedding: embedding,
		UpdatedAt: time.Now(),
	})
}

// Search embeds the query and returns the top-k similar documents. The
// contact shapes retrieval: industry focus narrows the category and a
// far-along lead status boosts commercial categories.
func (s *Service) Search(ctx context.Context, tenantID, query string, contact *store.Contact, k int) ([]store.ScoredDocument, error) {
	if k <= 0 {
		k = defaultTopK
	}
	embedding, err := s.embedder.Embed(ctx, tenantID, query)
	if err != nil {
		return nil, fmt.Errorf("search embed: %w", err)
	}

	filter := store.KnowledgeFilter{}
	if contact != nil {
		filter.Category = strings.ToLower(strings.TrimSpace(contact.IndustryFocus))
		if boostedLeadStatuses[strings.ToLower(contact.LeadStatus)] {
			filter.BoostCategories = boostCategories
		}
	}

	docs, err := s.store.Search(ctx, tenantID, embedding, filter, k, defaultMinScore)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	if len(docs) == 0 && filter.Category != "" {
		// A corpus without industry-specific material still has to answer;
		// drop the category and search the whole corpus.
		filter.Category = ""
		docs, err = s.store.Search(ctx, tenantID, embedding, filter, k, defaultMinScore)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
	}
	return docs, nil
}

// Refresh re-ingests every stored document, recomputing embeddings.
// Used after the embedding model changes.
func (s *Service) Refresh(ctx context.Context, tenantID string) (int, error) {
	docs, err := s.store.All(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("refresh: %w", err)
	}
	var refreshed int
	for i := range docs {
		d := docs[i]
		embedding, err := s.embedder.Embed(ctx, tenantID, d.Title+"\n\n"+d.Content)
		if err != nil {
			s.logger.Warn("refresh embed failed", "source", d.Source, "error", err)
			continue
		}
		d.Embedding = embedding
		d.UpdatedAt = time.Now()
		if err := s.store.Upsert(ctx, &d); err != nil {
			s.logger.Warn("refresh upsert failed", "source", d.Source, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

// Stats reports the corpus shape for one tenant.
func (s *Service) Stats(ctx context.Context, tenantID string) (*store.KnowledgeStats, error) {
	return s.store.Stats(ctx, tenantID)
}
