package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps the Postgres connection pool used for billing data.
type DB struct {
	*sql.DB
}

// New opens databaseURL with the lib/pq driver and verifies the connection.
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: sqlDB}, nil
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS billing_usage (
	month        CHAR(7)     NOT NULL,
	whitelabel   TEXT        NOT NULL DEFAULT '',
	customer     TEXT        NOT NULL DEFAULT '',
	stage        TEXT        NOT NULL DEFAULT '',
	api          TEXT        NOT NULL DEFAULT '',
	total_calls  BIGINT      NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (month, whitelabel, customer, stage, api)
)`

// Migrate creates the billing tables when they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate billing schema: %w", err)
	}
	return nil
}
