package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order. Statements are idempotent so Apply can
// run on every startup.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS bridge_transactions (
		id         TEXT PRIMARY KEY,
		protocol   TEXT NOT NULL,
		status     TEXT NOT NULL,
		record     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bridge_transactions_status
		ON bridge_transactions (status)`,
	`CREATE TABLE IF NOT EXISTS bridge_leg_audit (
		id          TEXT PRIMARY KEY,
		transfer_id TEXT NOT NULL,
		leg_role    TEXT NOT NULL,
		from_state  TEXT NOT NULL,
		to_state    TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		observed_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bridge_leg_audit_transfer
		ON bridge_leg_audit (transfer_id, observed_at)`,
}

// Apply runs the schema migrations.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
