package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is bumped with every migration.
const currentSchemaVersion = 2

// Open opens the database at path, creating it if needed.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("failed to get user_version: %w", err)
	}
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS preferences (
		  workspace_id       TEXT PRIMARY KEY,
		  theme              TEXT NOT NULL,
		  font_size          INTEGER NOT NULL,
		  voice              TEXT NOT NULL,
		  adhan_enabled      INTEGER NOT NULL,
		  adhan_prayers_json TEXT NOT NULL,
		  adhan_sound_url    TEXT NOT NULL,
		  microphone_granted INTEGER NOT NULL,
		  updated_at         INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
	}
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS telegram_links (
		  telegram_id  INTEGER PRIMARY KEY,
		  workspace_id TEXT NOT NULL,
		  created_at   INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("failed to set user_version: %w", err)
		}
	}
	return nil
}
