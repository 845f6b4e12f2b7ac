package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema changes made after the initial
// schema. Fresh databases get the final shape from schema.sql; these bring
// older installs up to date. Each must be idempotent.
var migrations = []migration{
	{
		name: "add payload_mappings table",
		sql: `CREATE TABLE IF NOT EXISTS payload_mappings (
			id uuid PRIMARY KEY,
			name text NOT NULL,
			description text,
			mapping_json jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now())`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_tables WHERE schemaname = 'public' AND tablename = 'payload_mappings')`,
	},
	{
		name: "add now_playing_connections.payload_mapping_id",
		sql: `ALTER TABLE now_playing_connections
			ADD COLUMN IF NOT EXISTS payload_mapping_id uuid REFERENCES payload_mappings (id) ON DELETE SET NULL`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'now_playing_connections' AND column_name = 'payload_mapping_id')`,
	},
	{
		name: "add adaptive polling columns",
		sql: `ALTER TABLE now_playing_connections
			ADD COLUMN IF NOT EXISTS use_duration_polling boolean NOT NULL DEFAULT false,
			ADD COLUMN IF NOT EXISTS next_poll_at timestamptz,
			ADD COLUMN IF NOT EXISTS same_song_backoff_seconds int NOT NULL DEFAULT 0,
			ADD COLUMN IF NOT EXISTS error_backoff_seconds int NOT NULL DEFAULT 0`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'now_playing_connections' AND column_name = 'use_duration_polling')`,
	},
	{
		name:  "add events connection/observed index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_events_connection_observed ON raw_now_playing_events (connection_id, observed_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_events_connection_observed')`,
	},
}

// Migrate runs all pending schema migrations. For each migration, it first
// checks whether the change is already present. A failed apply is fatal to
// startup since the engine's queries depend on these columns existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		db.log.Debug().Msg("no pending migrations")
		return nil
	}

	names := make([]string, len(pending))
	for i, m := range pending {
		names[i] = m.name
	}
	db.log.Info().Str("migrations", strings.Join(names, ", ")).Msg("applying pending migrations")

	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
		db.log.Info().Str("migration", m.name).Msg("migration applied")
	}

	return nil
}
