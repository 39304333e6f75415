package database

import (
	"context"
	"fmt"
)

// schema is the bootstrap DDL for Verdant Core.
//
// Structured device records live in the devices table; adapter
// settings/stats snapshots and per-user configuration aggregates are
// serialized blobs in kv_store (last-write-wins per key).
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	type TEXT NOT NULL,
	connection_type TEXT NOT NULL,
	connection_status TEXT NOT NULL DEFAULT 'disconnected',
	capabilities TEXT NOT NULL DEFAULT '[]',
	manufacturer TEXT,
	model TEXT,
	metadata TEXT NOT NULL DEFAULT '{}',
	last_sync INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
) STRICT;

CREATE INDEX IF NOT EXISTS idx_devices_type ON devices(type);
CREATE INDEX IF NOT EXISTS idx_devices_status ON devices(connection_status);

CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
) STRICT;
`

// Migrate applies the bootstrap schema. It is idempotent: all
// statements use IF NOT EXISTS and existing data is never touched.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any DDL statement fails
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
