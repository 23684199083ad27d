package store

// SchemaVersion is bumped whenever the DDL below changes incompatibly.
const SchemaVersion = 1

// Timestamps are RFC 3339 text; a DATETIME declared type would make the
// driver hand back time.Time for some rows and strings for others.
const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS "user" (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	username  TEXT NOT NULL UNIQUE,
	email     TEXT NOT NULL UNIQUE,
	about_me  TEXT NOT NULL DEFAULT '',
	last_seen TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS post (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	body      TEXT NOT NULL,
	timestamp TEXT NOT NULL,
	user_id   INTEGER NOT NULL REFERENCES "user"(id),
	language  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS ix_post_timestamp ON post(timestamp);
CREATE INDEX IF NOT EXISTS ix_post_user_id ON post(user_id);

CREATE TABLE IF NOT EXISTS message (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id    INTEGER NOT NULL REFERENCES "user"(id),
	recipient_id INTEGER NOT NULL REFERENCES "user"(id),
	body         TEXT NOT NULL,
	timestamp    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS ix_message_timestamp ON message(timestamp);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`
