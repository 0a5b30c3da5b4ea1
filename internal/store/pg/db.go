// Package pg implements the store interfaces on PostgreSQL using
// database/sql over the pgx stdlib driver. All queries use positional
// parameters; JSON list fields live in JSONB columns.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
)

// OpenDB opens a pooled connection to Postgres and verifies it.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// DBPinger exposes connection liveness for the health endpoint.
type DBPinger struct {
	db *sql.DB
}

func NewDBPinger(db *sql.DB) *DBPinger {
	return &DBPinger{db: db}
}

func (p *DBPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
