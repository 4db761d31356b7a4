// Package migrations holds the database schema. Statements are idempotent
// and applied in order on startup; there is no down path.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id         TEXT PRIMARY KEY,
		username   TEXT NOT NULL,
		email      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT tenants_username_key UNIQUE (username)
	)`,
	`CREATE TABLE IF NOT EXISTS applications (
		id            TEXT PRIMARY KEY,
		tenant_id     TEXT NOT NULL,
		name          TEXT NOT NULL,
		kind          TEXT NOT NULL,
		domain        TEXT NOT NULL,
		path          TEXT NOT NULL DEFAULT '',
		url           TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		port          INTEGER NOT NULL DEFAULT 0,
		start_command TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		public        BOOLEAN NOT NULL DEFAULT FALSE,
		visits        BIGINT NOT NULL DEFAULT 0,
		last_accessed TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT applications_domain_key UNIQUE (domain)
	)`,
	// application_id is a soft reference: backup and event rows may outlive
	// the application they were recorded for, so there is no FK.
	`CREATE TABLE IF NOT EXISTS backups (
		id             TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		path           TEXT NOT NULL,
		size_bytes     BIGINT NOT NULL DEFAULT 0,
		triggered_by   TEXT NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_events (
		id             TEXT PRIMARY KEY,
		application_id TEXT NOT NULL,
		kind           TEXT NOT NULL,
		ip_address     TEXT NOT NULL DEFAULT '',
		user_agent     TEXT NOT NULL DEFAULT '',
		metadata       JSONB NOT NULL DEFAULT '{}',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id           TEXT PRIMARY KEY,
		tenant_id    TEXT NOT NULL,
		name         TEXT NOT NULL,
		path         TEXT NOT NULL,
		size_bytes   BIGINT NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_applications_tenant ON applications (tenant_id)`,
	`CREATE INDEX IF NOT EXISTS idx_backups_application ON backups (application_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_events_app ON analytics_events (application_id, kind, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_files_tenant ON files (tenant_id)`,
}

// Apply runs every schema statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
