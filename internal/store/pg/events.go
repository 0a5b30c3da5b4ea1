package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGEventStore is the append-only webhook audit trail.
type PGEventStore struct {
	db *sql.DB
}

func NewPGEventStore(db *sql.DB) *PGEventStore {
	return &PGEventStore{db: db}
}

func (s *PGEventStore) Append(ctx context.Context, e *store.WebhookEvent) error {
	if e.ID == uuid.Nil {
		e.ID = store.GenID()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	if e.ProcessingStatus == "" {
		e.ProcessingStatus = "received"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, tenant_id, kind, payload, received_at, processing_status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.TenantID, e.Kind, e.Payload, e.ReceivedAt, e.ProcessingStatus)
	if err != nil {
		return fmt.Errorf("append webhook event: %w", err)
	}
	return nil
}

func (s *PGEventStore) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE webhook_events SET processing_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("set webhook event status: %w", err)
	}
	return nil
}
