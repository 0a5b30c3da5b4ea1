package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGScheduledStore implements store.ScheduledStore backed by Postgres.
type PGScheduledStore struct {
	db *sql.DB
}

func NewPGScheduledStore(db *sql.DB) *PGScheduledStore {
	return &PGScheduledStore{db: db}
}

const scheduledCols = `id, tenant_id, message_content, message_type, media_url,
	target_groups, scheduled_at, status, recurring_pattern, recurring_interval,
	next_send_at, last_sent_at, total_sent, total_failed, failure_reason, metadata`

func (s *PGScheduledStore) Create(ctx context.Context, m *store.ScheduledMessage) error {
	if m.ID == uuid.Nil {
		m.ID = store.GenID()
	}
	if m.Status == "" {
		m.Status = store.SchedPending
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_messages (`+scheduledCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		m.ID, m.TenantID, m.MessageContent, m.MessageType, nilStr(m.MediaURL),
		jsonList(m.TargetGroups), m.ScheduledAt, m.Status,
		nilStr(m.RecurringPattern), m.RecurringInterval,
		nilTime(m.NextSendAt), nilTime(m.LastSentAt),
		m.TotalSent, m.TotalFailed, nilStr(m.FailureReason), jsonMap(m.Metadata),
	)
	if err != nil {
		return fmt.Errorf("create scheduled message: %w", err)
	}
	return nil
}

func (s *PGScheduledStore) Get(ctx context.Context, id uuid.UUID) (*store.ScheduledMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduledCols+` FROM scheduled_messages WHERE id = $1`, id)
	return scanScheduled(row)
}

// ClaimDue flips due pending rows to processing and returns them in one
// statement, so a job is never claimed by two workers.
func (s *PGScheduledStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]store.ScheduledMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE scheduled_messages SET status = 'processing'
		 WHERE id IN (
			SELECT id FROM scheduled_messages
			WHERE status = 'pending' AND scheduled_at <= $1
			ORDER BY scheduled_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+scheduledCols, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due scheduled messages: %w", err)
	}
	defer rows.Close()

	var out []store.ScheduledMessage
	for rows.Next() {
		m, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PGScheduledStore) Reschedule(ctx context.Context, id uuid.UUID, next time.Time, sentAt time.Time, sent, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET
			status = 'pending', scheduled_at = $1, next_send_at = $1, last_sent_at = $2,
			total_sent = total_sent + $3, total_failed = total_failed + $4
		 WHERE id = $5`,
		next, sentAt, sent, failed, id)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	return nil
}

func (s *PGScheduledStore) Complete(ctx context.Context, id uuid.UUID, sentAt time.Time, sent, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET
			status = 'sent', last_sent_at = $1,
			total_sent = total_sent + $2, total_failed = total_failed + $3
		 WHERE id = $4`,
		sentAt, sent, failed, id)
	if err != nil {
		return fmt.Errorf("complete scheduled message: %w", err)
	}
	return nil
}

func (s *PGScheduledStore) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET status = 'failed', failure_reason = $1 WHERE id = $2`,
		reason, id)
	if err != nil {
		return fmt.Errorf("fail scheduled message: %w", err)
	}
	return nil
}

// Cancel is a no-op for already-terminal jobs.
func (s *PGScheduledStore) Cancel(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_messages SET status = 'cancelled'
		 WHERE id = $1 AND status IN ('pending', 'processing')`, id)
	if err != nil {
		return fmt.Errorf("cancel scheduled message: %w", err)
	}
	return nil
}

func (s *PGScheduledStore) AddResult(ctx context.Context, r *store.MessageResult) error {
	return insertMessageResult(ctx, s.db, r)
}

func insertMessageResult(ctx context.Context, db *sql.DB, r *store.MessageResult) error {
	if r.ID == uuid.Nil {
		r.ID = store.GenID()
	}
	if r.SentAt.IsZero() {
		r.SentAt = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO message_results (id, parent_id, tenant_id, target, outcome, error, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.ParentID, r.TenantID, r.Target, r.Outcome, nilStr(r.Error), r.SentAt)
	if err != nil {
		return fmt.Errorf("insert message result: %w", err)
	}
	return nil
}

func scanScheduled(row rowScanner) (*store.ScheduledMessage, error) {
	var m store.ScheduledMessage
	var mediaURL, pattern, reason *string
	var targets, meta []byte
	var next, last sql.NullTime

	err := row.Scan(&m.ID, &m.TenantID, &m.MessageContent, &m.MessageType, &mediaURL,
		&targets, &m.ScheduledAt, &m.Status, &pattern, &m.RecurringInterval,
		&next, &last, &m.TotalSent, &m.TotalFailed, &reason, &meta)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan scheduled message: %w", err)
	}
	m.MediaURL = derefStr(mediaURL)
	m.RecurringPattern = derefStr(pattern)
	m.FailureReason = derefStr(reason)
	m.TargetGroups = scanList(targets)
	m.Metadata = scanMap(meta)
	if next.Valid {
		t := next.Time
		m.NextSendAt = &t
	}
	if last.Valid {
		t := last.Time
		m.LastSentAt = &t
	}
	return &m, nil
}
