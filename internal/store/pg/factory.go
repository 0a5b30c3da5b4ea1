package pg

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// Config carries the store-layer settings resolved at startup.
type Config struct {
	DSN           string
	EncryptionKey string
	EmbeddingDim  int
}

// NewPGStores creates all stores backed by Postgres.
func NewPGStores(ctx context.Context, cfg Config) (*store.Stores, error) {
	db, err := OpenDB(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	keys, err := NewPGAPIKeyStore(db, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	locks, err := NewPGAdvisoryLocker(ctx, db)
	if err != nil {
		return nil, err
	}

	dim := cfg.EmbeddingDim
	if dim <= 0 {
		dim = 1536
	}

	return &store.Stores{
		Contacts:      NewPGContactStore(db),
		Conversations: NewPGConversationStore(db),
		Messages:      NewPGMessageStore(db),
		APIKeys:       keys,
		Knowledge:     NewPGKnowledgeStore(db, dim),
		Scheduled:     NewPGScheduledStore(db),
		Campaigns:     NewPGCampaignStore(db),
		Events:        NewPGEventStore(db),
		Analytics:     NewPGAnalyticsStore(db),
		Locks:         locks,
		Ping:          NewDBPinger(db),
	}, nil
}
