package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create transcripts and turns",
		SQL: `
			CREATE TABLE transcripts (
				session_id  TEXT PRIMARY KEY,
				created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
				updated_at  TEXT NOT NULL
			);

			CREATE TABLE turns (
				id          INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id  TEXT NOT NULL REFERENCES transcripts(session_id) ON DELETE CASCADE,
				seq         INTEGER NOT NULL,
				role        TEXT NOT NULL,
				content     TEXT NOT NULL,
				timestamp   TEXT NOT NULL DEFAULT ''
			);

			CREATE UNIQUE INDEX idx_turns_session_seq ON turns (session_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "mark partial assistant turns",
		SQL: `
			ALTER TABLE turns ADD COLUMN partial INTEGER NOT NULL DEFAULT 0;
		`,
	},
}
