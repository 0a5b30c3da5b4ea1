package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGKnowledgeStore implements store.KnowledgeStore on a pgvector column.
type PGKnowledgeStore struct {
	db  *sql.DB
	dim int
}

// NewPGKnowledgeStore creates the store. dim is the embedding dimension of
// the corpus; documents with a different dimension are rejected.
func NewPGKnowledgeStore(db *sql.DB, dim int) *PGKnowledgeStore {
	return &PGKnowledgeStore{db: db, dim: dim}
}

func (s *PGKnowledgeStore) Upsert(ctx context.Context, doc *store.KnowledgeDocument) error {
	if len(doc.Embedding) != s.dim {
		return fmt.Errorf("embedding dimension %d, corpus expects %d", len(doc.Embedding), s.dim)
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge_documents
			(tenant_id, source, category, title, content, metadata, embedding, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tenant_id, source) DO UPDATE SET
			category = EXCLUDED.category,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at`,
		doc.TenantID, doc.Source, doc.Category, doc.Title, doc.Content,
		jsonMap(doc.Metadata), pgvector.NewVector(doc.Embedding), doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert knowledge document: %w", err)
	}
	return nil
}

// Search ranks by cosine similarity (1 - cosine distance). The lead-status
// boost is applied in SQL so the ordering contract (score desc, updated_at
// desc, source) holds over the boosted score.
func (s *PGKnowledgeStore) Search(ctx context.Context, tenantID string, embedding []float32, filter store.KnowledgeFilter, k int, minScore float64) ([]store.ScoredDocument, error) {
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("query embedding dimension %d, corpus expects %d", len(embedding), s.dim)
	}
	if k <= 0 {
		k = 5
	}

	boost := filter.BoostCategories
	if boost == nil {
		boost = []string{}
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, category, title, content, metadata, updated_at,
		        (1 - (embedding <=> $1))
		          + CASE WHEN category = ANY($2::text[]) THEN 0.05 ELSE 0 END AS score
		 FROM knowledge_documents
		 WHERE tenant_id = $3
		   AND ($4 = '' OR category = $4)
		   AND (1 - (embedding <=> $1)) >= $5
		 ORDER BY score DESC, updated_at DESC, source
		 LIMIT $6`,
		vec, pqStringArray(boost), tenantID, filter.Category, minScore, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge search: %w", err)
	}
	defer rows.Close()

	var out []store.ScoredDocument
	for rows.Next() {
		var d store.ScoredDocument
		var meta []byte
		if err := rows.Scan(&d.Source, &d.Category, &d.Title, &d.Content, &meta, &d.UpdatedAt, &d.Score); err != nil {
			return nil, err
		}
		d.TenantID = tenantID
		d.Metadata = scanMap(meta)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGKnowledgeStore) All(ctx context.Context, tenantID string) ([]store.KnowledgeDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, category, title, content, metadata, updated_at
		 FROM knowledge_documents WHERE tenant_id = $1 ORDER BY source`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge documents: %w", err)
	}
	defer rows.Close()

	var out []store.KnowledgeDocument
	for rows.Next() {
		var d store.KnowledgeDocument
		var meta []byte
		if err := rows.Scan(&d.Source, &d.Category, &d.Title, &d.Content, &meta, &d.UpdatedAt); err != nil {
			return nil, err
		}
		d.TenantID = tenantID
		d.Metadata = scanMap(meta)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PGKnowledgeStore) Stats(ctx context.Context, tenantID string) (*store.KnowledgeStats, error) {
	stats := &store.KnowledgeStats{Categories: map[string]int{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(LENGTH(content)), 0), COALESCE(MAX(updated_at), 'epoch'::timestamptz)
		 FROM knowledge_documents WHERE tenant_id = $1`, tenantID,
	).Scan(&stats.Count, &avgScanner{&stats.AvgLength}, &stats.LastUpdate)
	if err != nil {
		return nil, fmt.Errorf("knowledge stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM knowledge_documents
		 WHERE tenant_id = $1 GROUP BY category`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("knowledge categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var n int
		if err := rows.Scan(&cat, &n); err != nil {
			return nil, err
		}
		stats.Categories[cat] = n
	}
	return stats, rows.Err()
}

// avgScanner truncates the numeric AVG into an int field.
type avgScanner struct{ dst *int }

func (a *avgScanner) Scan(src interface{}) error {
	switch v := src.(type) {
	case float64:
		*a.dst = int(v)
	case int64:
		*a.dst = int(v)
	case []byte:
		var f float64
		fmt.Sscanf(string(v), "%f", &f)
		*a.dst = int(f)
	case nil:
		*a.dst = 0
	default:
		return fmt.Errorf("unsupported avg type %T", src)
	}
	return nil
}
