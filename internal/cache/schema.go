package cache

// schema is applied on every Open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS correspondences (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	branch       TEXT NOT NULL,
	local_commit TEXT NOT NULL,
	fingerprint  TEXT NOT NULL,
	origin       TEXT NOT NULL CHECK (origin IN ('import', 'checkin')),
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_correspondences_commit
	ON correspondences(local_commit);

CREATE INDEX IF NOT EXISTS idx_correspondences_fingerprint
	ON correspondences(fingerprint);

CREATE INDEX IF NOT EXISTS idx_correspondences_branch
	ON correspondences(branch, id);

CREATE TABLE IF NOT EXISTS correspondence_versions (
	correspondence_id INTEGER NOT NULL REFERENCES correspondences(id) ON DELETE CASCADE,
	element           TEXT NOT NULL,
	version           TEXT NOT NULL,
	removed           INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (correspondence_id, element)
);

CREATE INDEX IF NOT EXISTS idx_correspondence_versions_element
	ON correspondence_versions(element);

CREATE TABLE IF NOT EXISTS sync_points (
	branch            TEXT PRIMARY KEY,
	correspondence_id INTEGER NOT NULL REFERENCES correspondences(id)
);
`
