package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGCampaignStore implements store.CampaignStore backed by Postgres.
type PGCampaignStore struct {
	db *sql.DB
}

func NewPGCampaignStore(db *sql.DB) *PGCampaignStore {
	return &PGCampaignStore{db: db}
}

func (s *PGCampaignStore) Create(ctx context.Context, c *store.Campaign) error {
	if c.ID == uuid.Nil {
		c.ID = store.GenID()
	}
	if c.Status == "" {
		c.Status = store.CampaignPending
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, tenant_id, message, targets, status,
			success_count, failure_count, started_at)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, $6)`,
		c.ID, c.TenantID, c.Message, jsonList(c.Targets), c.Status, c.StartedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (s *PGCampaignStore) Get(ctx context.Context, id uuid.UUID) (*store.Campaign, error) {
	var c store.Campaign
	var targets []byte
	var ended sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, message, targets, status, success_count, failure_count,
		        started_at, ended_at
		 FROM campaigns WHERE id = $1`, id,
	).Scan(&c.ID, &c.TenantID, &c.Message, &targets, &c.Status,
		&c.SuccessCount, &c.FailureCount, &c.StartedAt, &ended)
	if err != nil {
		if noRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	c.Targets = scanList(targets)
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return &c, nil
}

func (s *PGCampaignStore) ClaimPending(ctx context.Context, limit int) ([]store.Campaign, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`UPDATE campaigns SET status = 'running'
		 WHERE id IN (
			SELECT id FROM campaigns
			WHERE status = 'pending'
			ORDER BY started_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, tenant_id, message, targets, status, success_count, failure_count,
		           started_at, ended_at`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim pending campaigns: %w", err)
	}
	defer rows.Close()

	var out []store.Campaign
	for rows.Next() {
		var c store.Campaign
		var targets []byte
		var ended sql.NullTime
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Message, &targets, &c.Status,
			&c.SuccessCount, &c.FailureCount, &c.StartedAt, &ended); err != nil {
			return nil, fmt.Errorf("scan claimed campaign: %w", err)
		}
		c.Targets = scanList(targets)
		if ended.Valid {
			t := ended.Time
			c.EndedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGCampaignStore) SetStatus(ctx context.Context, id uuid.UUID, status store.CampaignStatus, endedAt *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $1, ended_at = $2 WHERE id = $3`,
		status, nilTime(endedAt), id)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	return nil
}

func (s *PGCampaignStore) IncrementCounters(ctx context.Context, id uuid.UUID, success, failure int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET success_count = success_count + $1, failure_count = failure_count + $2
		 WHERE id = $3`, success, failure, id)
	if err != nil {
		return fmt.Errorf("increment campaign counters: %w", err)
	}
	return nil
}

func (s *PGCampaignStore) AddResult(ctx context.Context, r *store.MessageResult) error {
	return insertMessageResult(ctx, s.db, r)
}
