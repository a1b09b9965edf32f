package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS plates (
		id              BIGSERIAL PRIMARY KEY,
		number          TEXT NOT NULL,
		normalized      TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_plates_normalized ON plates(normalized);`,
	`CREATE TABLE IF NOT EXISTS lists (
		id          BIGSERIAL PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		group_name  TEXT,
		description TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_lists_name ON lists(name);`,
	`ALTER TABLE lists ADD COLUMN IF NOT EXISTS group_name TEXT;`,
	`UPDATE lists SET type = 'allowed' WHERE type = 'WHITELIST';`,
	`UPDATE lists SET type = 'denied' WHERE type = 'BLACKLIST';`,
	`CREATE TABLE IF NOT EXISTS list_items (
		list_id     BIGINT REFERENCES lists(id),
		plate_id    BIGINT REFERENCES plates(id),
		note        TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (list_id, plate_id)
	);`,
	`CREATE TABLE IF NOT EXISTS gate_decisions (
		id          UUID PRIMARY KEY,
		camera_id   TEXT,
		track_id    TEXT,
		plate       TEXT,
		action      TEXT NOT NULL,
		category    TEXT,
		direction   TEXT NOT NULL,
		crossed     BOOLEAN NOT NULL DEFAULT false,
		notified    BOOLEAN NOT NULL DEFAULT false,
		suppressed  TEXT,
		dropped     TEXT,
		group_name  TEXT,
		route       TEXT,
		caption     TEXT,
		event_time  TIMESTAMPTZ,
		decided_at  TIMESTAMPTZ NOT NULL,
		raw_event   JSONB,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_decisions_plate ON gate_decisions(plate);`,
	`CREATE INDEX IF NOT EXISTS idx_gate_decisions_decided_at ON gate_decisions(decided_at);`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM lists WHERE name = 'default_allowed') THEN
			INSERT INTO lists (name, type, description) VALUES ('default_allowed', 'allowed', 'Plates that open the gate');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM lists WHERE name = 'default_denied') THEN
			INSERT INTO lists (name, type, description) VALUES ('default_denied', 'denied', 'Plates that trigger the alarm');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM lists WHERE name = 'default_ignored') THEN
			INSERT INTO lists (name, type, description) VALUES ('default_ignored', 'ignored', 'Plates never reported');
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
