package store

import (
	"database/sql"
	"fmt"
)

// dbKind distinguishes which schema a handle gets initialized with.
type dbKind int

const (
	kindRaw dbKind = iota
	kindConsolidated
)

// ensureSchema creates the schema if absent and checks the stamped version:
// a transactional create-if-missing step followed by a version check. The
// version lives in the generic meta table rather than its own
// schema_version table.
func ensureSchema(db *sql.DB, path string, kind dbKind) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(metaSchema); err != nil {
		return fmt.Errorf("create meta schema: %w", err)
	}

	switch kind {
	case kindRaw:
		if _, err := tx.Exec(rawSchema); err != nil {
			return fmt.Errorf("create raw schema: %w", err)
		}
		if _, err := tx.Exec(rawFTSSchema); err != nil {
			return fmt.Errorf("create raw FTS schema: %w", err)
		}
	case kindConsolidated:
		if _, err := tx.Exec(consolidatedSchema); err != nil {
			return fmt.Errorf("create consolidated schema: %w", err)
		}
		if _, err := tx.Exec(consolidatedFTSSchema); err != nil {
			return fmt.Errorf("create consolidated FTS schema: %w", err)
		}
	}

	var version int
	row := tx.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`)
	var raw string
	if err := row.Scan(&raw); err == sql.ErrNoRows {
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	} else {
		fmt.Sscanf(raw, "%d", &version)
	}

	if version > SchemaVersion {
		return &IncompatibleSchemaError{Path: path, Found: version, Want: SchemaVersion}
	}

	if version < SchemaVersion {
		if _, err := tx.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, fmt.Sprint(SchemaVersion)); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		// Future forward migrations, gated on `version`, would run here
		// before the stamp above. None exist yet at SchemaVersion 1.
	}

	return tx.Commit()
}

func getMeta(db *sql.DB, key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func setMeta(db *sql.DB, key, value string) error {
	_, err := db.Exec(`INSERT INTO meta(key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
