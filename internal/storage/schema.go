package storage

// schemaStatements creates every relational table the engine needs. It is
// run once per database open; CREATE TABLE IF NOT EXISTS makes it idempotent
// across restarts, matching the teacher's initialize() idiom.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		root_path TEXT NOT NULL,
		label TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_session ON attachments(session_id)`,

	`CREATE TABLE IF NOT EXISTS memory_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attachment_id INTEGER,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'message',
		salience REAL NOT NULL DEFAULT 0,
		embedded INTEGER NOT NULL DEFAULT 0,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memory_entries_session ON memory_entries(session_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS repository_files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attachment_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		language TEXT,
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(attachment_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_repo_files_attachment ON repository_files(attachment_id)`,

	`CREATE TABLE IF NOT EXISTS code_elements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT,
		visibility TEXT,
		signature TEXT,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		complexity_score INTEGER NOT NULL DEFAULT 0,
		docstring TEXT,
		embedded INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_code_elements_file ON code_elements(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_code_elements_name ON code_elements(name)`,
	`CREATE INDEX IF NOT EXISTS idx_code_elements_qualified_name ON code_elements(qualified_name)`,

	`CREATE TABLE IF NOT EXISTS imports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_id INTEGER NOT NULL,
		path TEXT NOT NULL,
		is_external INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_imports_file ON imports(file_id)`,

	`CREATE TABLE IF NOT EXISTS code_quality_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		element_id INTEGER NOT NULL,
		severity TEXT NOT NULL,
		kind TEXT NOT NULL,
		details TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_quality_issues_element ON code_quality_issues(element_id)`,

	`CREATE TABLE IF NOT EXISTS call_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attachment_id INTEGER NOT NULL,
		file_id INTEGER NOT NULL,
		caller_name TEXT NOT NULL,
		callee_name TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_edges_caller ON call_edges(caller_name)`,
	`CREATE INDEX IF NOT EXISTS idx_call_edges_callee ON call_edges(callee_name)`,
	`CREATE INDEX IF NOT EXISTS idx_call_edges_file ON call_edges(file_id)`,

	`CREATE TABLE IF NOT EXISTS cochange_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attachment_id INTEGER NOT NULL,
		path_a TEXT NOT NULL,
		path_b TEXT NOT NULL,
		occurrences INTEGER NOT NULL DEFAULT 1,
		last_seen_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(attachment_id, path_a, path_b)
	)`,

	`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		status TEXT NOT NULL,
		goal TEXT NOT NULL,
		escalation_reason TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		completed_at DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_operations_session ON operations(session_id)`,

	`CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		operation_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'file',
		path TEXT,
		content TEXT NOT NULL DEFAULT '',
		language TEXT,
		content_hash TEXT NOT NULL,
		previous_artifact_id TEXT,
		diff TEXT,
		is_new_file INTEGER NOT NULL DEFAULT 0,
		applied_at DATETIME,
		generation_metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_operation ON artifacts(operation_id)`,

	`CREATE TABLE IF NOT EXISTS corrections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		original_text TEXT NOT NULL,
		corrected_text TEXT NOT NULL,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS rejected_approaches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		description TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS error_fixes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		error_signature TEXT NOT NULL,
		fix_description TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_error_fixes_signature ON error_fixes(error_signature)`,

	`CREATE TABLE IF NOT EXISTS session_cache_state (
		session_id TEXT PRIMARY KEY,
		static_prefix_hash TEXT NOT NULL,
		static_prefix_tokens INTEGER NOT NULL DEFAULT 0,
		context_hashes TEXT NOT NULL DEFAULT '{}',
		last_call_at DATETIME,
		last_reported_cached_tokens INTEGER NOT NULL DEFAULT 0,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_cached_tokens INTEGER NOT NULL DEFAULT 0,
		total_prompt_tokens INTEGER NOT NULL DEFAULT 0
	)`,

	// Vector heads: one row per (owner kind, owner id) per head, JSON-encoded
	// embedding for the brute-force fallback path. The sqlite-vec vec0
	// tables (one per head) are created lazily by ensureVecTable in
	// vector.go when the extension is registered (init_vec.go, under the
	// sqlite_vec and cgo build tags).
	`CREATE TABLE IF NOT EXISTS vectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		head TEXT NOT NULL,
		owner_kind TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(head, owner_kind, owner_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_head ON vectors(head)`,
	`CREATE INDEX IF NOT EXISTS idx_vectors_owner ON vectors(owner_kind, owner_id)`,

	`CREATE TABLE IF NOT EXISTS schema_versions (
		version INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
}

// CurrentSchemaVersion tracks additive schema changes the way the teacher's
// store package does: bump when pendingMigrations grows, never when an
// existing column's meaning changes.
const CurrentSchemaVersion = 2
