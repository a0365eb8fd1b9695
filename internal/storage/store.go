package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"memengine/internal/domain"
	"memengine/internal/embedding"
	"memengine/internal/logging"
	"memengine/internal/promptcache"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the engine's relational store layered with per-head vector
// search, mirroring the teacher's LocalStore: one *sql.DB, one RWMutex, and
// an optional embedding engine that upgrades vector writes/reads from
// keyword-only to true semantic search.
type Store struct {
	db              *sql.DB
	mu              sync.RWMutex
	dbPath          string
	embeddingEngine embedding.EmbeddingEngine
	vectorExt       bool
	vecDims         map[string]int
}

// New opens (and, if necessary, creates) the SQLite database at path and
// runs migrations.
func New(path string, vectorDims map[string]int) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStorage, "New")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, dbPath: path, vecDims: vectorDims}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	s.detectVecExtension()

	logging.Storage("store ready at %s (sqlite-vec=%v)", path, s.vectorExt)
	return s, nil
}

// detectVecExtension probes whether the vec0 module is registered by
// attempting to create a throwaway virtual table.
func (s *Store) detectVecExtension() {
	_, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS __vec_probe USING vec0(embedding float[4])")
	if err == nil {
		s.vectorExt = true
		s.db.Exec("DROP TABLE IF EXISTS __vec_probe")
	}
}

// SetEmbeddingEngine configures the engine used for StoreVector/SearchVector.
// When created, head tables for sqlite-vec are initialized lazily per head
// on first write (see vector.go), since dimensionality can differ by head.
func (s *Store) SetEmbeddingEngine(engine embedding.EmbeddingEngine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embeddingEngine = engine
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for callers (e.g. codeindex sync) that need
// transactional control spanning multiple tables.
func (s *Store) DB() *sql.DB { return s.db }

// Lock/Unlock/RLock/RUnlock are exposed so collaborators that need
// multi-statement consistency with vector writes can participate in the
// same RWMutex the teacher's LocalStore uses throughout.
func (s *Store) Lock()    { s.mu.Lock() }
func (s *Store) Unlock()  { s.mu.Unlock() }
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }

// ---- Attachments ----------------------------------------------------------

func (s *Store) UpsertAttachment(a *domain.Attachment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO attachments (session_id, root_path, label, active) VALUES (?, ?, ?, ?)`,
		a.SessionID, a.RootPath, a.Label, boolToInt(a.Active),
	)
	if err != nil {
		return 0, fmt.Errorf("upsert attachment: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) GetAttachment(id int64) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var a domain.Attachment
	var active int
	row := s.db.QueryRow(`SELECT id, session_id, root_path, label, active, created_at FROM attachments WHERE id = ?`, id)
	if err := row.Scan(&a.ID, &a.SessionID, &a.RootPath, &a.Label, &active, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.NewError(domain.ErrKindNotFound, "attachment not found", err)
		}
		return nil, err
	}
	a.Active = active != 0
	return &a, nil
}

func (s *Store) ListActiveAttachments() ([]*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, session_id, root_path, label, active, created_at FROM attachments WHERE active = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var active int
		if err := rows.Scan(&a.ID, &a.SessionID, &a.RootPath, &a.Label, &active, &a.CreatedAt); err != nil {
			continue
		}
		a.Active = active != 0
		out = append(out, &a)
	}
	return out, nil
}

// ---- Memory entries ---------------------------------------------------------

func (s *Store) InsertMemoryEntry(e *domain.MemoryEntry) (int64, error) {
	metaJSON, _ := json.Marshal(e.Metadata)
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO memory_entries (attachment_id, session_id, role, content, content_type, salience, embedded, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfZero(e.AttachmentID), e.SessionID, e.Role, e.Content, e.ContentType, e.Salience, boolToInt(e.Embedded), string(metaJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert memory entry: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) MarkMemoryEmbedded(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE memory_entries SET embedded = 1 WHERE id = ?`, id)
	return err
}

// RecentMemoryEntries returns the most recent n entries for a session,
// newest-first: entries[0] is the latest, matching load_recent's contract
// (§4.A) and the id-monotonicity testable property (strictly decreasing
// (timestamp, id) tuples).
func (s *Store) RecentMemoryEntries(sessionID string, n int) ([]*domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT id, attachment_id, session_id, role, content, content_type, salience, embedded, metadata, created_at
		 FROM memory_entries WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.MemoryEntry
	for rows.Next() {
		e, err := scanMemoryEntry(rows)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MemoryEntryByID fetches a single memory entry, used by the recall engine
// to confirm a semantic hit still belongs to the querying session.
func (s *Store) MemoryEntryByID(id int64) (*domain.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRow(
		`SELECT id, attachment_id, session_id, role, content, content_type, salience, embedded, metadata, created_at
		 FROM memory_entries WHERE id = ?`,
		id,
	)
	return scanMemoryEntry(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemoryEntry(r rowScanner) (*domain.MemoryEntry, error) {
	var e domain.MemoryEntry
	var attachmentID sql.NullInt64
	var embedded int
	var metaJSON sql.NullString
	if err := r.Scan(&e.ID, &attachmentID, &e.SessionID, &e.Role, &e.Content, &e.ContentType, &e.Salience, &embedded, &metaJSON, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.AttachmentID = attachmentID.Int64
	e.Embedded = embedded != 0
	if metaJSON.Valid && metaJSON.String != "" {
		json.Unmarshal([]byte(metaJSON.String), &e.Metadata)
	}
	return &e, nil
}

// ---- Repository files -------------------------------------------------------

// UpsertRepositoryFile inserts or updates a file row keyed by
// (attachment_id, path), returning the row id and whether the content hash
// changed (false means the sync caller should skip reparsing).
func (s *Store) UpsertRepositoryFile(f *domain.RepositoryFile) (id int64, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existingID int64
	var existingHash string
	row := s.db.QueryRow(`SELECT id, content_hash FROM repository_files WHERE attachment_id = ? AND path = ?`, f.AttachmentID, f.Path)
	switch scanErr := row.Scan(&existingID, &existingHash); scanErr {
	case nil:
		if existingHash == f.ContentHash {
			return existingID, false, nil
		}
		_, err = s.db.Exec(
			`UPDATE repository_files SET content_hash = ?, size_bytes = ?, language = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
			f.ContentHash, f.SizeBytes, f.Language, existingID,
		)
		return existingID, true, err
	case sql.ErrNoRows:
		res, insErr := s.db.Exec(
			`INSERT INTO repository_files (attachment_id, path, language, content_hash, size_bytes) VALUES (?, ?, ?, ?, ?)`,
			f.AttachmentID, f.Path, f.Language, f.ContentHash, f.SizeBytes,
		)
		if insErr != nil {
			return 0, false, insErr
		}
		newID, _ := res.LastInsertId()
		return newID, true, nil
	default:
		return 0, false, scanErr
	}
}

// DeleteCodeElementsForFile removes every parsed element for a file ahead of
// reinsertion, matching the sync task's delete-then-reinsert step.
func (s *Store) DeleteCodeElementsForFile(fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM code_elements WHERE file_id = ?`, fileID)
	return err
}

func (s *Store) InsertCodeElement(e *domain.CodeElement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO code_elements (file_id, kind, name, qualified_name, visibility, signature, start_line, end_line, complexity_score, docstring)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FileID, e.Kind, e.Name, e.QualifiedName, string(e.Visibility), e.Signature, e.StartLine, e.EndLine, e.ComplexityScore, e.Docstring,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanCodeElement(rows *sql.Rows) (*domain.CodeElement, error) {
	var e domain.CodeElement
	var qualifiedName, visibility, docstring sql.NullString
	var embedded int
	if err := rows.Scan(&e.ID, &e.FileID, &e.Kind, &e.Name, &qualifiedName, &visibility,
		&e.Signature, &e.StartLine, &e.EndLine, &e.ComplexityScore, &docstring, &embedded); err != nil {
		return nil, err
	}
	e.QualifiedName = qualifiedName.String
	e.Visibility = domain.ElementVisibility(visibility.String)
	e.Docstring = docstring.String
	e.Embedded = embedded != 0
	return &e, nil
}

const codeElementColumns = `id, file_id, kind, name, qualified_name, visibility, signature, start_line, end_line, complexity_score, docstring, embedded`

func (s *Store) SearchElementsByName(namePattern string, limit int) ([]*domain.CodeElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+codeElementColumns+` FROM code_elements WHERE name LIKE ? LIMIT ?`,
		"%"+namePattern+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CodeElement
	for rows.Next() {
		e, err := scanCodeElement(rows)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// SymbolsForFile returns every CodeElement parsed out of fileID, in
// declaration order, matching get_symbols_for_file(project_id, path)'s
// contract (the caller resolves path to a fileID via UpsertRepositoryFile).
func (s *Store) SymbolsForFile(fileID int64) ([]*domain.CodeElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+codeElementColumns+` FROM code_elements WHERE file_id = ? ORDER BY start_line`,
		fileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CodeElement
	for rows.Next() {
		e, err := scanCodeElement(rows)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ---- Imports ----------------------------------------------------------------

// InsertImport persists one parsed import/use/require statement for a file.
func (s *Store) InsertImport(imp *domain.Import) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO imports (file_id, path, is_external) VALUES (?, ?, ?)`,
		imp.FileID, imp.Path, boolToInt(imp.IsExternal),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteImportsForFile removes every import row for a file ahead of
// reinsertion, mirroring DeleteCodeElementsForFile's delete-then-reinsert step.
func (s *Store) DeleteImportsForFile(fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM imports WHERE file_id = ?`, fileID)
	return err
}

// ImportsForFile returns every import recorded for fileID.
func (s *Store) ImportsForFile(fileID int64) ([]*domain.Import, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`SELECT id, file_id, path, is_external FROM imports WHERE file_id = ?`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Import
	for rows.Next() {
		var imp domain.Import
		var external int
		if err := rows.Scan(&imp.ID, &imp.FileID, &imp.Path, &external); err != nil {
			continue
		}
		imp.IsExternal = external != 0
		out = append(out, &imp)
	}
	return out, nil
}

// ---- Call graph ---------------------------------------------------------------

// InsertCallEdge records one observed call from callerName to calleeName.
func (s *Store) InsertCallEdge(edge *domain.CallEdge) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO call_edges (attachment_id, file_id, caller_name, callee_name) VALUES (?, ?, ?, ?)`,
		edge.AttachmentID, edge.FileID, edge.CallerName, edge.CalleeName,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteCallEdgesForFile removes every call edge recorded for a file ahead
// of reinsertion.
func (s *Store) DeleteCallEdgesForFile(fileID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM call_edges WHERE file_id = ?`, fileID)
	return err
}

// FindCallers returns the distinct names of symbols observed calling symbol,
// matching find_callers(symbol)'s contract.
func (s *Store) FindCallers(symbol string, limit int) ([]string, error) {
	return s.queryCallGraph(`SELECT DISTINCT caller_name FROM call_edges WHERE callee_name = ? LIMIT ?`, symbol, limit)
}

// FindCallees returns the distinct names of symbols symbol is observed
// calling, matching find_callees(symbol)'s contract.
func (s *Store) FindCallees(symbol string, limit int) ([]string, error) {
	return s.queryCallGraph(`SELECT DISTINCT callee_name FROM call_edges WHERE caller_name = ? LIMIT ?`, symbol, limit)
}

func (s *Store) queryCallGraph(query, symbol string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// ---- Code quality issues -------------------------------------------------------

// InsertCodeQualityIssue persists one quality finding against an element.
func (s *Store) InsertCodeQualityIssue(issue *domain.CodeQualityIssue) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO code_quality_issues (element_id, severity, kind, details) VALUES (?, ?, ?, ?)`,
		issue.ElementID, issue.Severity, issue.Kind, issue.Details,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// QualityIssuesForElement returns every recorded issue against elementID.
func (s *Store) QualityIssuesForElement(elementID int64) ([]*domain.CodeQualityIssue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT id, element_id, severity, kind, details FROM code_quality_issues WHERE element_id = ?`,
		elementID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CodeQualityIssue
	for rows.Next() {
		var issue domain.CodeQualityIssue
		if err := rows.Scan(&issue.ID, &issue.ElementID, &issue.Severity, &issue.Kind, &issue.Details); err != nil {
			continue
		}
		out = append(out, &issue)
	}
	return out, nil
}

// ---- Co-change patterns -----------------------------------------------------

// RecordCochange increments (or creates) the occurrence counter for an
// unordered pair of paths observed changing in the same sync run.
func (s *Store) RecordCochange(attachmentID int64, pathA, pathB string) error {
	if pathA > pathB {
		pathA, pathB = pathB, pathA
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO cochange_patterns (attachment_id, path_a, path_b, occurrences, last_seen_at)
		 VALUES (?, ?, ?, 1, CURRENT_TIMESTAMP)
		 ON CONFLICT(attachment_id, path_a, path_b)
		 DO UPDATE SET occurrences = occurrences + 1, last_seen_at = CURRENT_TIMESTAMP`,
		attachmentID, pathA, pathB,
	)
	return err
}

func (s *Store) FindCochange(attachmentID int64, path string, limit int) ([]*domain.CochangePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(
		`SELECT id, attachment_id, path_a, path_b, occurrences, last_seen_at FROM cochange_patterns
		 WHERE attachment_id = ? AND (path_a = ? OR path_b = ?) ORDER BY occurrences DESC LIMIT ?`,
		attachmentID, path, path, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CochangePattern
	for rows.Next() {
		var p domain.CochangePattern
		if err := rows.Scan(&p.ID, &p.AttachmentID, &p.PathA, &p.PathB, &p.Occurrences, &p.LastSeenAt); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// ---- Operations & artifacts --------------------------------------------------

func (s *Store) InsertOperation(op *domain.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO operations (id, session_id, status, goal, escalation_reason, started_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		op.ID, op.SessionID, string(op.Status), op.Goal, string(op.EscalationReason), op.StartedAt, op.UpdatedAt,
	)
	return err
}

func (s *Store) UpdateOperationStatus(id string, status domain.OperationStatus, reason domain.EscalationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var completedAt interface{}
	if status == domain.OperationCompleted || status == domain.OperationFailed {
		completedAt = now
	}
	_, err := s.db.Exec(
		`UPDATE operations SET status = ?, escalation_reason = ?, updated_at = ?, completed_at = ? WHERE id = ?`,
		string(status), string(reason), now, completedAt, id,
	)
	return err
}

func (s *Store) InsertArtifact(a *domain.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	metaJSON, _ := json.Marshal(a.GenerationMeta)
	var appliedAt interface{}
	if a.AppliedAt != nil {
		appliedAt = *a.AppliedAt
	}
	kind := a.Kind
	if kind == "" {
		kind = domain.ArtifactFile
	}
	_, err := s.db.Exec(
		`INSERT INTO artifacts (id, operation_id, kind, path, content, language, content_hash, previous_artifact_id, diff, is_new_file, applied_at, generation_metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OperationID, string(kind), nullIfEmpty(a.Path), a.Content, nullIfEmpty(a.Language),
		a.ContentHash, nullIfEmpty(a.PreviousArtifactID), nullIfEmpty(a.Diff), a.IsNewFile, appliedAt, string(metaJSON), a.CreatedAt,
	)
	return err
}

// ArtifactChainHasCycle walks previous_artifact_id pointers starting at id
// and reports whether it revisits a node, which would make the revision
// chain invalid.
func (s *Store) ArtifactChainHasCycle(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	cur := id
	for cur != "" {
		if seen[cur] {
			return true, nil
		}
		seen[cur] = true
		var prev sql.NullString
		err := s.db.QueryRow(`SELECT previous_artifact_id FROM artifacts WHERE id = ?`, cur).Scan(&prev)
		if err == sql.ErrNoRows {
			break
		}
		if err != nil {
			return false, err
		}
		cur = prev.String
	}
	return false, nil
}

// ---- Corrections, rejections, error fixes -----------------------------------

func (s *Store) InsertCorrection(c *domain.Correction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO corrections (session_id, original_text, corrected_text, reason) VALUES (?, ?, ?, ?)`,
		c.SessionID, c.OriginalText, c.CorrectedText, c.Reason,
	)
	return err
}

func (s *Store) InsertRejectedApproach(r *domain.RejectedApproach) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO rejected_approaches (session_id, description) VALUES (?, ?)`,
		r.SessionID, r.Description,
	)
	return err
}

func (s *Store) InsertErrorFix(f *domain.ErrorFix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO error_fixes (session_id, error_signature, fix_description) VALUES (?, ?, ?)`,
		f.SessionID, f.ErrorSignature, f.FixDescription,
	)
	return err
}

func (s *Store) FindErrorFix(signature string) (*domain.ErrorFix, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var f domain.ErrorFix
	row := s.db.QueryRow(
		`SELECT id, session_id, error_signature, fix_description, created_at FROM error_fixes WHERE error_signature = ? ORDER BY created_at DESC LIMIT 1`,
		signature,
	)
	if err := row.Scan(&f.ID, &f.SessionID, &f.ErrorSignature, &f.FixDescription, &f.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &f, nil
}

// LoadSessionCacheState reads the persisted prompt-cache digest for a
// session, or nil if none has been saved yet.
func (s *Store) LoadSessionCacheState(sessionID string) (*promptcache.SessionCacheState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		state                                                       promptcache.SessionCacheState
		contextHashesJSON                                           string
		lastCallAt                                                  sql.NullTime
	)
	row := s.db.QueryRow(
		`SELECT session_id, static_prefix_hash, static_prefix_tokens, context_hashes, last_call_at,
		        last_reported_cached_tokens, total_requests, total_cached_tokens, total_prompt_tokens
		 FROM session_cache_state WHERE session_id = ?`,
		sessionID,
	)
	err := row.Scan(&state.SessionID, &state.StaticPrefixHash, &state.StaticPrefixTokens, &contextHashesJSON, &lastCallAt,
		&state.LastReportedCachedTokens, &state.TotalRequests, &state.TotalCachedTokens, &state.TotalPromptTokens)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastCallAt.Valid {
		state.LastCallAt = lastCallAt.Time
	}
	state.ContextHashes = promptcache.ContextHashes{FileContents: make(map[string]promptcache.FileContentHash)}
	if contextHashesJSON != "" {
		if err := json.Unmarshal([]byte(contextHashesJSON), &state.ContextHashes); err != nil {
			logging.Get(logging.CategoryStorage).Warn("corrupt context_hashes for session %s: %v", sessionID, err)
		}
	}
	return &state, nil
}

// SaveSessionCacheState persists state, overwriting any prior row for the
// same session (the assembler owns exactly one live state per session).
func (s *Store) SaveSessionCacheState(state *promptcache.SessionCacheState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashesJSON, err := json.Marshal(state.ContextHashes)
	if err != nil {
		return fmt.Errorf("marshal context hashes: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO session_cache_state (
			session_id, static_prefix_hash, static_prefix_tokens, context_hashes, last_call_at,
			last_reported_cached_tokens, total_requests, total_cached_tokens, total_prompt_tokens
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			static_prefix_hash = excluded.static_prefix_hash,
			static_prefix_tokens = excluded.static_prefix_tokens,
			context_hashes = excluded.context_hashes,
			last_call_at = excluded.last_call_at,
			last_reported_cached_tokens = excluded.last_reported_cached_tokens,
			total_requests = excluded.total_requests,
			total_cached_tokens = excluded.total_cached_tokens,
			total_prompt_tokens = excluded.total_prompt_tokens`,
		state.SessionID, state.StaticPrefixHash, state.StaticPrefixTokens, string(hashesJSON), state.LastCallAt,
		state.LastReportedCachedTokens, state.TotalRequests, state.TotalCachedTokens, state.TotalPromptTokens,
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfZero(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
