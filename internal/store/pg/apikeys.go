package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/leadflow/internal/store"
)

// PGAPIKeyStore implements store.APIKeyStore. Secrets are sealed with
// AES-256-GCM before they touch the database.
type PGAPIKeyStore struct {
	db  *sql.DB
	box *secretBox
}

func NewPGAPIKeyStore(db *sql.DB, encryptionKey string) (*PGAPIKeyStore, error) {
	box, err := newSecretBox(encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("api key store: %w", err)
	}
	return &PGAPIKeyStore{db: db, box: box}, nil
}

func (s *PGAPIKeyStore) Upsert(ctx context.Context, key *store.APIKey, secret string) error {
	if key.ID == uuid.Nil {
		key.ID = store.GenID()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now()
	}
	sealed, err := s.box.Seal(secret)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO api_keys (id, tenant_id, kind, name, encrypted_secret, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (tenant_id, kind, name) DO UPDATE SET
			encrypted_secret = EXCLUDED.encrypted_secret,
			active = EXCLUDED.active`,
		key.ID, key.TenantID, key.Kind, key.Name, sealed, key.Active, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", err)
	}
	return nil
}

func (s *PGAPIKeyStore) ActiveSecret(ctx context.Context, tenantID string, kind store.APIKeyKind) (string, error) {
	var id uuid.UUID
	var sealed string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, encrypted_secret FROM api_keys
		 WHERE tenant_id = $1 AND kind = $2 AND active
		 ORDER BY created_at DESC LIMIT 1`,
		tenantID, kind,
	).Scan(&id, &sealed)
	if err != nil {
		if noRows(err) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("active secret: %w", err)
	}
	plain, err := s.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open secret for key %s: %w", id, err)
	}
	// Usage stamp is best-effort; losing it never fails the caller.
	s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, time.Now(), id)
	return plain, nil
}

func (s *PGAPIKeyStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	return nil
}
