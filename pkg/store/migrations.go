package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema DDL for the guarded collections and API tokens. Documents are stored
// as JSON text with the fields the loader queries on extracted into columns,
// so the mirrors scan and profile lookups stay indexable on both PostgreSQL
// and SQLite.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS stalls (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS stock_items (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		site_id TEXT NOT NULL DEFAULT '',
		stall_id TEXT,
		original_master_item_id TEXT,
		quantity REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_stock_items_master
		ON stock_items (original_master_item_id)`,

	`CREATE INDEX IF NOT EXISTS idx_stock_items_site
		ON stock_items (site_id)`,

	`CREATE TABLE IF NOT EXISTS sales_transactions (
		id TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		staff_id TEXT NOT NULL DEFAULT '',
		site_id TEXT NOT NULL DEFAULT '',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_sales_transactions_staff
		ON sales_transactions (staff_id)`,

	`CREATE TABLE IF NOT EXISTS api_tokens (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		token_hash TEXT NOT NULL UNIQUE,
		token_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		expires_at TIMESTAMP,
		last_used_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		revoked_at TIMESTAMP,
		revoked_by TEXT NOT NULL DEFAULT '',
		revoke_reason TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_tokens_user
		ON api_tokens (user_id)`,
}

// Migrate applies the schema. Statements are idempotent; running against an
// initialized database is a no-op.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
