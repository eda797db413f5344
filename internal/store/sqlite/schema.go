package sqlite

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id               TEXT PRIMARY KEY,
	space_id         TEXT NOT NULL,
	discussion_id    TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	external_room_id TEXT,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ended_at         DATETIME
);

CREATE INDEX IF NOT EXISTS idx_meetings_discussion
	ON meetings (space_id, discussion_id, status);

CREATE TABLE IF NOT EXISTS meeting_participants (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	meeting_id    TEXT NOT NULL REFERENCES meetings (id) ON DELETE CASCADE,
	user_id       TEXT NOT NULL,
	username      TEXT NOT NULL DEFAULT '',
	attendee_id   TEXT,
	registered_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	joined_at     DATETIME,
	left_at       DATETIME,
	UNIQUE (meeting_id, user_id)
);
`

// ApplySchema creates the tables if they do not exist yet. It matches the
// setup signature of NewWithSetup.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
