package state

import (
	"database/sql"
)

const currentSchemaVersion = 1

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS playback_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			repeat_mode INTEGER NOT NULL DEFAULT 0,
			shuffle INTEGER NOT NULL DEFAULT 0,
			songs_played INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS queue_items (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL UNIQUE,
			kind INTEGER NOT NULL,
			content TEXT NOT NULL,
			source_url TEXT,
			title TEXT,
			artist TEXT,
			requester_id TEXT,
			origin_channel TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			download_status TEXT NOT NULL DEFAULT 'pending',
			download_progress INTEGER NOT NULL DEFAULT 0,
			thumbnail TEXT,
			duration_ms INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_queue_items_position ON queue_items(position);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	return err
}
