package db

import (
	"database/sql"
	"fmt"

	apperrors "github.com/telos-app/telos-offline/internal/errors"
)

// SchemaVersion is the current schema version, bumped on structural change.
// The version is stored in SQLite's user_version pragma.
const SchemaVersion = 1

// schemaStatements create the three offline collections and their secondary
// indexes. Every statement is idempotent, so Migrate is safe to run against
// an already-current database: it only creates what is absent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS cached_items (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		thumbnail TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL DEFAULT '',
		folder_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		reading_time INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		cached_at INTEGER NOT NULL
	);`,
	// cached_at index supports future eviction policies; none is implemented.
	`CREATE INDEX IF NOT EXISTS idx_cached_items_cached_at ON cached_items(cached_at);`,
	`CREATE TABLE IF NOT EXISTS cached_highlights (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0,
		cached_at INTEGER NOT NULL
	);`,
	// No foreign key to cached_items: a dangling highlight is tolerated.
	`CREATE INDEX IF NOT EXISTS idx_cached_highlights_item_id ON cached_highlights(item_id);`,
	`CREATE TABLE IF NOT EXISTS pending_actions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pending_actions_created_at ON pending_actions(created_at);`,
}

// Migrate brings the database schema up to the current version.
func Migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to apply schema statement", err)
		}
	}

	if version < SchemaVersion {
		// PRAGMA does not accept bind parameters
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration, "failed to bump schema version", err)
		}
	}

	return nil
}

// CurrentVersion returns the schema version recorded in the database.
func CurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("PRAGMA user_version").Scan(&version)
	return version, err
}
