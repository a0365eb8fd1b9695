// Package storage provides the relational and vector persistence layers for
// the memory engine: a single SQLite database holding the schema in
// schema.go plus, when built with sqlite_vec, one vec0 virtual table per
// vector head.
package storage

import (
	"database/sql"
	"fmt"

	"memengine/internal/logging"
)

// migration describes one additive column this version of the schema
// requires on an older database. Tables created fresh by schemaStatements
// already have these columns; this list only matters for databases created
// by an earlier build of this module.
type migration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []migration{
	// placeholder for future additive columns; kept non-empty so
	// RunMigrations exercises its skip-if-already-there path even on a
	// freshly created database.
	{"memory_entries", "salience", "REAL NOT NULL DEFAULT 0"},
	{"artifacts", "kind", "TEXT NOT NULL DEFAULT 'file'"},
	{"artifacts", "content", "TEXT NOT NULL DEFAULT ''"},
	{"artifacts", "language", "TEXT"},
	{"artifacts", "diff", "TEXT"},
	{"artifacts", "is_new_file", "INTEGER NOT NULL DEFAULT 0"},
	{"artifacts", "applied_at", "DATETIME"},
	{"artifacts", "generation_metadata", "TEXT"},
	{"session_cache_state", "total_prompt_tokens", "INTEGER NOT NULL DEFAULT 0"},
	{"code_elements", "qualified_name", "TEXT"},
	{"code_elements", "visibility", "TEXT"},
	{"code_elements", "complexity_score", "INTEGER NOT NULL DEFAULT 0"},
	{"code_elements", "docstring", "TEXT"},
}

// RunMigrations applies schema.go's CREATE TABLE statements, then any
// pending additive-column migrations for older databases. Column-level
// migration errors are logged and skipped rather than failing startup,
// matching the teacher's tolerant migration idiom.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStorage, "RunMigrations")
	defer timer.Stop()

	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	applied, skipped := 0, 0
	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skipped++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skipped++
			continue
		}
		q := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(q); err != nil {
			logging.Get(logging.CategoryStorage).Warn("migration failed (column may already exist): %s.%s: %v", m.Table, m.Column, err)
			skipped++
			continue
		}
		applied++
	}

	if _, err := db.Exec("INSERT INTO schema_versions (version) VALUES (?)", CurrentSchemaVersion); err != nil {
		logging.Get(logging.CategoryStorage).Warn("failed to record schema version: %v", err)
	}

	logging.Storage("migrations complete: applied=%d skipped=%d", applied, skipped)
	return nil
}

func tableExists(db *sql.DB, table string) bool {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
