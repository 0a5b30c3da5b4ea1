package pg

import (
	"context"
	"database/sql"
	"fmt"
)

// PGAdvisoryLocker holds session-level advisory locks on a dedicated
// connection so TryLock/Unlock pair on the same backend session.
type PGAdvisoryLocker struct {
	conn *sql.Conn
}

func NewPGAdvisoryLocker(ctx context.Context, db *sql.DB) (*PGAdvisoryLocker, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisory locker: %w", err)
	}
	return &PGAdvisoryLocker{conn: conn}, nil
}

func (l *PGAdvisoryLocker) TryLock(ctx context.Context, key int64) (bool, error) {
	var got bool
	err := l.conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got)
	if err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return got, nil
}

func (l *PGAdvisoryLocker) Unlock(ctx context.Context, key int64) error {
	var released bool
	err := l.conn.QueryRowContext(ctx, `SELECT pg_advisory_unlock($1)`, key).Scan(&released)
	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// Close releases the pinned connection (and with it any held locks).
func (l *PGAdvisoryLocker) Close() error {
	return l.conn.Close()
}
