package index

import (
	"database/sql"
	"fmt"
)

const createFilesTable = `
CREATE TABLE IF NOT EXISTS files (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL CHECK (name != ''),
	path         TEXT NOT NULL UNIQUE,
	parent_path  TEXT NOT NULL,
	size         INTEGER NOT NULL DEFAULT 0,
	mod_time     TEXT NOT NULL DEFAULT '',
	is_directory INTEGER NOT NULL DEFAULT 0 CHECK (is_directory IN (0, 1)),
	is_synced    INTEGER NOT NULL DEFAULT 0 CHECK (is_synced IN (0, 1)),
	local_path   TEXT NOT NULL DEFAULT '',
	extension    TEXT NOT NULL DEFAULT '',
	indexed_at   TEXT NOT NULL DEFAULT ''
);
`

const createFilesIndexes = `
CREATE INDEX IF NOT EXISTS idx_files_parent_path ON files(parent_path);
CREATE INDEX IF NOT EXISTS idx_files_extension ON files(extension);
CREATE INDEX IF NOT EXISTS idx_files_mod_time ON files(mod_time);
CREATE INDEX IF NOT EXISTS idx_files_is_directory ON files(is_directory);
`

const createIndexMetaTable = `
CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

const seedIndexMeta = `
INSERT OR IGNORE INTO index_meta (key, value) VALUES ('last_full_index', '');
INSERT OR IGNORE INTO index_meta (key, value) VALUES ('last_partial_index', '');
`

// createFTSTable and its triggers are applied separately from the base
// schema since FTS5 may not be compiled into the sqlite build; failure here
// is a warning, not fatal (§7 "Schema creation failure").
const createFTSTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
	name, path, extension,
	content='files',
	content_rowid='id'
);
`

const createFTSTriggers = `
CREATE TRIGGER IF NOT EXISTS files_fts_ai AFTER INSERT ON files BEGIN
	INSERT INTO files_fts(rowid, name, path, extension) VALUES (new.id, new.name, new.path, new.extension);
END;
CREATE TRIGGER IF NOT EXISTS files_fts_ad AFTER DELETE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, name, path, extension) VALUES ('delete', old.id, old.name, old.path, old.extension);
END;
CREATE TRIGGER IF NOT EXISTS files_fts_au AFTER UPDATE ON files BEGIN
	INSERT INTO files_fts(files_fts, rowid, name, path, extension) VALUES ('delete', old.id, old.name, old.path, old.extension);
	INSERT INTO files_fts(rowid, name, path, extension) VALUES (new.id, new.name, new.path, new.extension);
END;
`

// createSchema creates the base tables and indexes. A failure here is
// fatal for the store per §7.
func createSchema(db *sql.DB) error {
	for _, stmt := range []string{createFilesTable, createFilesIndexes, createIndexMetaTable, seedIndexMeta} {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("index: create schema: %w", err)
		}
	}
	return nil
}

// createFTS attempts to create the FTS5 shadow table and sync triggers. It
// returns false (not an error) when FTS5 is unavailable in the linked
// sqlite build, so the caller can fall back to substring search.
func createFTS(db *sql.DB) bool {
	if _, err := db.Exec(createFTSTable); err != nil {
		return false
	}
	if _, err := db.Exec(createFTSTriggers); err != nil {
		return false
	}
	// Backfill the shadow index for any rows already present (e.g. FTS5
	// was unavailable on a prior run and has since become available).
	_, _ = db.Exec(`INSERT INTO files_fts(files_fts) VALUES ('rebuild')`)
	return true
}
