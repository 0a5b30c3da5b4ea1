package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGMessageStore implements store.MessageStore backed by Postgres.
type PGMessageStore struct {
	db *sql.DB
}

func NewPGMessageStore(db *sql.DB) *PGMessageStore {
	return &PGMessageStore{db: db}
}

func (s *PGMessageStore) Append(ctx context.Context, m *store.Message) error {
	if m.ID == uuid.Nil {
		m.ID = store.GenID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.StatusUpdatedAt.IsZero() {
		m.StatusUpdatedAt = m.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages
			(id, conversation_id, tenant_id, role, content, channel_message_id,
			 status, error_reason, created_at, status_updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		m.ID, m.ConversationID, m.TenantID, m.Role, m.Content,
		nilStr(m.ChannelMessageID), m.Status, nilStr(m.ErrorReason),
		m.CreatedAt, m.StatusUpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// statusRankSQL mirrors store.StatusRank so monotonicity is enforced in the
// database even under concurrent receipt updates.
const statusRankSQL = `CASE %s
	WHEN 'queued' THEN 0 WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2
	WHEN 'read' THEN 3 WHEN 'failed' THEN 4 ELSE -1 END`

func (s *PGMessageStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.MessageStatus, reason string) error {
	q := fmt.Sprintf(
		`UPDATE messages SET status = $1, error_reason = $2, status_updated_at = $3
		 WHERE id = $4 AND `+statusRankSQL+` < `+statusRankSQL,
		"status", "$1::text")
	_, err := s.db.ExecContext(ctx, q, status, nilStr(reason), time.Now(), id)
	if err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}

func (s *PGMessageStore) UpdateStatusByChannelID(ctx context.Context, tenantID, channelMessageID string, status store.MessageStatus, reason string) error {
	if channelMessageID == "" {
		return nil
	}
	q := fmt.Sprintf(
		`UPDATE messages SET status = $1, error_reason = $2, status_updated_at = $3
		 WHERE tenant_id = $4 AND channel_message_id = $5
		   AND `+statusRankSQL+` < `+statusRankSQL,
		"status", "$1::text")
	_, err := s.db.ExecContext(ctx, q, status, nilStr(reason), time.Now(), tenantID, channelMessageID)
	if err != nil {
		return fmt.Errorf("update status by channel id: %w", err)
	}
	return nil
}

func (s *PGMessageStore) SeenChannelID(ctx context.Context, tenantID, channelMessageID string) (bool, error) {
	if channelMessageID == "" {
		return false, nil
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE tenant_id = $1 AND channel_message_id = $2)`,
		tenantID, channelMessageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("seen channel id: %w", err)
	}
	return exists, nil
}

func (s *PGMessageStore) History(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, tenant_id, role, content, channel_message_id,
		        status, error_reason, created_at, status_updated_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("message history: %w", err)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var channelID, reason *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.TenantID, &m.Role, &m.Content,
			&channelID, &m.Status, &reason, &m.CreatedAt, &m.StatusUpdatedAt); err != nil {
			return nil, err
		}
		m.ChannelMessageID = derefStr(channelID)
		m.ErrorReason = derefStr(reason)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
