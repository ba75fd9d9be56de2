package store

import "fmt"

// SchemaVersion is the current schema version understood by this binary.
// Migrations are forward-only; a database stamped with a higher version
// than this fails to open with IncompatibleSchemaError.
const SchemaVersion = 1

// metaSchema is shared by every database this package opens.
const metaSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// rawSchema is the episodic store: raw.db.
const rawSchema = `
CREATE TABLE IF NOT EXISTS raw_memories (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	content       TEXT NOT NULL,
	kind          TEXT NOT NULL CHECK (kind IN ('bugfix','decision','pattern','preference','observation')),
	created_at    DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
	consolidated  BOOLEAN NOT NULL DEFAULT 0,
	session_id    TEXT NOT NULL DEFAULT '',
	access_count  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_raw_consolidated ON raw_memories(consolidated);
CREATE INDEX IF NOT EXISTS idx_raw_created_at ON raw_memories(created_at);
CREATE INDEX IF NOT EXISTS idx_raw_kind_content ON raw_memories(kind, content);
CREATE INDEX IF NOT EXISTS idx_raw_session ON raw_memories(session_id);
`

// rawFTSSchema keeps a standalone FTS5 table in sync with raw_memories via
// triggers, with a porter unicode61 tokenizer and an 8 KiB indexing cap.
var rawFTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS raw_fts USING fts5(
	id UNINDEXED,
	content,
	tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS raw_fts_insert AFTER INSERT ON raw_memories BEGIN
	INSERT INTO raw_fts(id, content) VALUES (new.id, substr(new.content, 1, ` + fmt.Sprint(maxFTSIndexChars) + `));
END;

CREATE TRIGGER IF NOT EXISTS raw_fts_delete AFTER DELETE ON raw_memories BEGIN
	DELETE FROM raw_fts WHERE id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS raw_fts_update AFTER UPDATE ON raw_memories BEGIN
	UPDATE raw_fts SET content = substr(new.content, 1, ` + fmt.Sprint(maxFTSIndexChars) + `) WHERE id = old.id;
END;
`

// consolidatedSchema is shared by consolidated.db (project) and the global
// store; both carry the same schema.
const consolidatedSchema = `
CREATE TABLE IF NOT EXISTS consolidated_memories (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	content       TEXT NOT NULL,
	kind          TEXT NOT NULL CHECK (kind IN ('bugfix','decision','pattern','preference','observation')),
	confidence    REAL NOT NULL DEFAULT 0.5 CHECK (confidence >= 0.0 AND confidence <= 1.0),
	created_at    DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
	updated_at    DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f','now')),
	source_ids    TEXT NOT NULL DEFAULT '[]',
	access_count  INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_consolidated_kind_content ON consolidated_memories(kind, content);
CREATE INDEX IF NOT EXISTS idx_consolidated_updated_at ON consolidated_memories(updated_at);
CREATE INDEX IF NOT EXISTS idx_consolidated_confidence ON consolidated_memories(confidence);
`

var consolidatedFTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS consolidated_fts USING fts5(
	id UNINDEXED,
	content,
	tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS consolidated_fts_insert AFTER INSERT ON consolidated_memories BEGIN
	INSERT INTO consolidated_fts(id, content) VALUES (new.id, substr(new.content, 1, ` + fmt.Sprint(maxFTSIndexChars) + `));
END;

CREATE TRIGGER IF NOT EXISTS consolidated_fts_delete AFTER DELETE ON consolidated_memories BEGIN
	DELETE FROM consolidated_fts WHERE id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS consolidated_fts_update AFTER UPDATE ON consolidated_memories BEGIN
	UPDATE consolidated_fts SET content = substr(new.content, 1, ` + fmt.Sprint(maxFTSIndexChars) + `) WHERE id = old.id;
END;
`
