// package repositories provides the bridge's SQLite persistence: the OAuth
// token cache and the playback transition history.
//
// Both stores are conveniences, not correctness requirements: the bridge
// runs without a database, re-authenticating from config credentials and
// skipping history.
package repositories

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expiry DATETIME
);

CREATE TABLE IF NOT EXISTS playback_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	track_id TEXT NOT NULL,
	track_uri TEXT NOT NULL,
	track_name TEXT NOT NULL,
	artists TEXT NOT NULL,
	is_playing INTEGER NOT NULL,
	canvas_url TEXT NOT NULL DEFAULT '',
	observed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_playback_history_observed
	ON playback_history(observed_at);
`

// Setup creates the schema. Safe to call on every startup.
func Setup(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
