package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/campus-ledger-api/pkg/config"
)

// NewPostgres returns a configured PostgreSQL client for the decision outbox.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping %s/%s: %w", cfg.Host, cfg.Name, err)
	}

	return db, nil
}

// Schema creates the decision outbox table when missing and adds the delivery state
// columns to tables created before they existed.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS promotion_decisions (
    id UUID PRIMARY KEY,
    enrollment_id BIGINT NOT NULL UNIQUE,
    decision VARCHAR(16) NOT NULL,
    decided_at TIMESTAMPTZ NOT NULL,
    free_units_count INTEGER NOT NULL,
    billing_start_date TIMESTAMPTZ NULL,
    forwarded_at TIMESTAMPTZ NULL,
    failed_at TIMESTAMPTZ NULL,
    next_attempt_at TIMESTAMPTZ NULL,
    forward_attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NULL
)`,
	`ALTER TABLE promotion_decisions ADD COLUMN IF NOT EXISTS failed_at TIMESTAMPTZ NULL`,
	`ALTER TABLE promotion_decisions ADD COLUMN IF NOT EXISTS next_attempt_at TIMESTAMPTZ NULL`,
	`CREATE INDEX IF NOT EXISTS promotion_decisions_pending_idx ON promotion_decisions (decided_at)
    WHERE forwarded_at IS NULL AND failed_at IS NULL`,
}

// Migrate applies Schema in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate promotion_decisions: %w", err)
		}
	}
	return nil
}
