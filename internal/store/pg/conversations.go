package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGConversationStore implements store.ConversationStore backed by Postgres.
type PGConversationStore struct {
	db *sql.DB
}

func NewPGConversationStore(db *sql.DB) *PGConversationStore {
	return &PGConversationStore{db: db}
}

const conversationCols = `id, tenant_id, contact_id, bot_enabled,
	handover_requested, handover_at, handover_updates_sent,
	handover_resolved_at, handover_resolution_reason, last_message_at`

func (s *PGConversationStore) GetOrCreate(ctx context.Context, tenantID string, contactID uuid.UUID) (*store.Conversation, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, tenant_id, contact_id, bot_enabled, handover_updates_sent, last_message_at)
		 VALUES ($1, $2, $3, TRUE, '{}', $4)
		 ON CONFLICT (tenant_id, contact_id) DO NOTHING`,
		store.GenID(), tenantID, contactID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE tenant_id = $1 AND contact_id = $2`,
		tenantID, contactID)
	return scanConversation(row)
}

func (s *PGConversationStore) Get(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *PGConversationStore) SetBotEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET bot_enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("set bot_enabled: %w", err)
	}
	return nil
}

func (s *PGConversationStore) RequestHandover(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
			handover_requested = TRUE, bot_enabled = FALSE, handover_at = $1,
			handover_resolved_at = NULL, handover_resolution_reason = NULL,
			handover_updates_sent = '{}'
		 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("request handover: %w", err)
	}
	return nil
}

func (s *PGConversationStore) ResolveHandover(ctx context.Context, id uuid.UUID, at time.Time, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET
			handover_requested = FALSE, bot_enabled = TRUE,
			handover_resolved_at = $1, handover_resolution_reason = $2,
			handover_updates_sent = '{}'
		 WHERE id = $3`, at, reason, id)
	if err != nil {
		return fmt.Errorf("resolve handover: %w", err)
	}
	return nil
}

// MarkHandoverUpdate claims a rescue stage tag with compare-and-set on the
// JSONB tracker: the update only lands when the tag is absent, so each tag
// is sent at most once per handover episode even across replicas.
func (s *PGConversationStore) MarkHandoverUpdate(ctx context.Context, id uuid.UUID, stageTag string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET handover_updates_sent = handover_updates_sent || jsonb_build_object($1::text, $2::timestamptz)
		 WHERE id = $3 AND NOT handover_updates_sent ? $1`,
		stageTag, at, id)
	if err != nil {
		return false, fmt.Errorf("mark handover update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PGConversationStore) PendingHandovers(ctx context.Context) ([]store.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationCols+` FROM conversations
		 WHERE handover_requested AND NOT bot_enabled
		 ORDER BY handover_at`)
	if err != nil {
		return nil, fmt.Errorf("pending handovers: %w", err)
	}
	defer rows.Close()

	var out []store.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *PGConversationStore) TouchLastMessage(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = $1 WHERE id = $2 AND last_message_at < $1`, at, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func scanConversation(row rowScanner) (*store.Conversation, error) {
	var c store.Conversation
	var handoverAt, resolvedAt sql.NullTime
	var reason *string
	var tracker []byte

	err := row.Scan(&c.ID, &c.TenantID, &c.ContactID, &c.BotEnabled,
		&c.HandoverRequested, &handoverAt, &tracker,
		&resolvedAt, &reason, &c.LastMessageAt)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	if handoverAt.Valid {
		t := handoverAt.Time
		c.HandoverAt = &t
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		c.HandoverResolvedAt = &t
	}
	c.HandoverResolutionReason = derefStr(reason)
	if len(tracker) > 0 {
		var m map[string]time.Time
		if err := json.Unmarshal(tracker, &m); err == nil {
			c.HandoverUpdatesSent = m
		}
	}
	return &c, nil
}
