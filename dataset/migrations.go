package dataset

type migration struct {
	version int
	sql     string
}

// migrations must stay in version order.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS labeled_emails (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL UNIQUE,
	thread_id  TEXT NOT NULL DEFAULT '',
	date       TEXT NOT NULL DEFAULT '',
	sender     TEXT NOT NULL DEFAULT '',
	receiver   TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	keywords   TEXT NOT NULL DEFAULT '[]',
	label      INTEGER NOT NULL CHECK(label BETWEEN 0 AND 4),
	labeled_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_labeled_emails_label ON labeled_emails(label);
CREATE INDEX IF NOT EXISTS idx_labeled_emails_sender ON labeled_emails(sender);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
