package storage

import (
	"path/filepath"
	"testing"
	"time"

	"memengine/internal/domain"
	"memengine/internal/promptcache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := New(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertRepositoryFile_HashSkip(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)

	f := &domain.RepositoryFile{AttachmentID: aID, Path: "main.go", ContentHash: "abc", SizeBytes: 10}
	id1, changed1, err := s.UpsertRepositoryFile(f)
	require.NoError(t, err)
	assert.True(t, changed1)

	id2, changed2, err := s.UpsertRepositoryFile(f)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.False(t, changed2, "unchanged content hash must be skipped")

	f.ContentHash = "def"
	id3, changed3, err := s.UpsertRepositoryFile(f)
	require.NoError(t, err)
	assert.Equal(t, id1, id3)
	assert.True(t, changed3)
}

func TestRecentMemoryEntries_OrderedNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 3; i++ {
		_, err := s.InsertMemoryEntry(&domain.MemoryEntry{SessionID: "sess", Role: "user", Content: "msg", ContentType: "message"})
		require.NoError(t, err)
	}

	entries, err := s.RecentMemoryEntries("sess", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].ID > entries[1].ID)
	assert.True(t, entries[1].ID > entries[2].ID)
}

func TestArtifactChainHasCycle(t *testing.T) {
	s := newTestStore(t)
	op := &domain.Operation{ID: "op1", SessionID: "sess", Status: domain.OperationExecuting, Goal: "do thing"}
	require.NoError(t, s.InsertOperation(op))

	require.NoError(t, s.InsertArtifact(&domain.Artifact{ID: "a1", OperationID: "op1", Path: "x.go", ContentHash: "h1"}))
	require.NoError(t, s.InsertArtifact(&domain.Artifact{ID: "a2", OperationID: "op1", Path: "x.go", ContentHash: "h2", PreviousArtifactID: "a1"}))

	cyc, err := s.ArtifactChainHasCycle("a2")
	require.NoError(t, err)
	assert.False(t, cyc)
}

func TestRecordCochange_SymmetricPair(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)

	require.NoError(t, s.RecordCochange(aID, "b.go", "a.go"))
	require.NoError(t, s.RecordCochange(aID, "a.go", "b.go"))

	patterns, err := s.FindCochange(aID, "a.go", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 2, patterns[0].Occurrences)
}

func TestSessionCacheState_RoundTripsThroughStore(t *testing.T) {
	s := newTestStore(t)

	missing, err := s.LoadSessionCacheState("sess-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	state := promptcache.NewSessionCacheState("sess-1", "static-hash", 1200)
	state.ContextHashes.ProjectContext = "proj-hash"
	state.ContextHashes.FileContents["a.go"] = promptcache.FileContentHash{Path: "a.go", ContentHash: "filehash"}
	state.UpdateAfterCall(state.ContextHashes, 300, 900)
	require.NoError(t, s.SaveSessionCacheState(state))

	loaded, err := s.LoadSessionCacheState("sess-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, state.StaticPrefixHash, loaded.StaticPrefixHash)
	assert.Equal(t, state.ContextHashes.ProjectContext, loaded.ContextHashes.ProjectContext)
	assert.Equal(t, "filehash", loaded.ContextHashes.FileContents["a.go"].ContentHash)
	assert.Equal(t, int64(300), loaded.TotalCachedTokens)
	assert.Equal(t, int64(900), loaded.TotalPromptTokens)
	assert.WithinDuration(t, state.LastCallAt, loaded.LastCallAt, time.Second)

	// Saving again for the same session overwrites rather than duplicating.
	state.UpdateAfterCall(state.ContextHashes, 50, 100)
	require.NoError(t, s.SaveSessionCacheState(state))
	reloaded, err := s.LoadSessionCacheState("sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.TotalRequests)
}

func TestInsertArtifact_PersistsContentAndKind(t *testing.T) {
	s := newTestStore(t)
	op := &domain.Operation{ID: "op-artifact", SessionID: "sess", Status: domain.OperationExecuting, Goal: "write a file"}
	require.NoError(t, s.InsertOperation(op))

	a := &domain.Artifact{
		ID:          "art-1",
		OperationID: "op-artifact",
		Kind:        domain.ArtifactFile,
		Path:        "rate_limiter.rs",
		Content:     "pub struct RateLimiter;",
		Language:    "rust",
		ContentHash: domain.HashContent("pub struct RateLimiter;"),
		IsNewFile:   true,
	}
	require.NoError(t, s.InsertArtifact(a))

	var gotKind, gotContent, gotPath string
	var gotIsNew int
	row := s.db.QueryRow(`SELECT kind, content, path, is_new_file FROM artifacts WHERE id = ?`, "art-1")
	require.NoError(t, row.Scan(&gotKind, &gotContent, &gotPath, &gotIsNew))
	assert.Equal(t, "file", gotKind)
	assert.Equal(t, a.Content, gotContent)
	assert.Equal(t, a.Path, gotPath)
	assert.Equal(t, 1, gotIsNew)
}

func TestSweepOrphans_RemovesDanglingVectorRows(t *testing.T) {
	s := newTestStore(t)
	id, err := s.InsertMemoryEntry(&domain.MemoryEntry{SessionID: "sess", Role: "user", Content: "hello", ContentType: "message"})
	require.NoError(t, err)

	_, err = s.db.Exec(`INSERT INTO vectors (head, owner_kind, owner_id, content) VALUES (?, ?, ?, ?)`, "semantic", "memory_entry", id, "hello")
	require.NoError(t, err)
	_, err = s.db.Exec(`INSERT INTO vectors (head, owner_kind, owner_id, content) VALUES (?, ?, ?, ?)`, "semantic", "memory_entry", id+999, "orphan")
	require.NoError(t, err)

	results, err := s.SweepOrphans(t.Context(), []string{"semantic"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Removed)
}

func TestInsertCodeElement_PersistsQualifiedNameVisibilityAndComplexity(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)
	fileID, _, err := s.UpsertRepositoryFile(&domain.RepositoryFile{AttachmentID: aID, Path: "button.go", ContentHash: "h1"})
	require.NoError(t, err)

	elID, err := s.InsertCodeElement(&domain.CodeElement{
		FileID:          fileID,
		Kind:            "method",
		Name:            "Render",
		QualifiedName:   "widgets.Button.Render",
		Visibility:      domain.VisibilityPublic,
		StartLine:       10,
		EndLine:         20,
		ComplexityScore: 3,
		Docstring:       "renders the button",
	})
	require.NoError(t, err)

	symbols, err := s.SymbolsForFile(fileID)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, elID, symbols[0].ID)
	assert.Equal(t, "widgets.Button.Render", symbols[0].QualifiedName)
	assert.Equal(t, domain.VisibilityPublic, symbols[0].Visibility)
	assert.Equal(t, 3, symbols[0].ComplexityScore)
	assert.Equal(t, "renders the button", symbols[0].Docstring)
}

func TestImports_RoundTripAndExternalFlag(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)
	fileID, _, err := s.UpsertRepositoryFile(&domain.RepositoryFile{AttachmentID: aID, Path: "main.go", ContentHash: "h1"})
	require.NoError(t, err)

	_, err = s.InsertImport(&domain.Import{FileID: fileID, Path: "fmt", IsExternal: true})
	require.NoError(t, err)
	_, err = s.InsertImport(&domain.Import{FileID: fileID, Path: "./local", IsExternal: false})
	require.NoError(t, err)

	imports, err := s.ImportsForFile(fileID)
	require.NoError(t, err)
	require.Len(t, imports, 2)
	assert.True(t, imports[0].IsExternal)
	assert.False(t, imports[1].IsExternal)

	require.NoError(t, s.DeleteImportsForFile(fileID))
	imports, err = s.ImportsForFile(fileID)
	require.NoError(t, err)
	assert.Empty(t, imports)
}

func TestCallGraph_FindCallersAndCallees(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)
	fileID, _, err := s.UpsertRepositoryFile(&domain.RepositoryFile{AttachmentID: aID, Path: "main.go", ContentHash: "h1"})
	require.NoError(t, err)

	_, err = s.InsertCallEdge(&domain.CallEdge{AttachmentID: aID, FileID: fileID, CallerName: "main.main", CalleeName: "widgets.NewButton"})
	require.NoError(t, err)
	_, err = s.InsertCallEdge(&domain.CallEdge{AttachmentID: aID, FileID: fileID, CallerName: "main.run", CalleeName: "widgets.NewButton"})
	require.NoError(t, err)

	callers, err := s.FindCallers("widgets.NewButton", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.main", "main.run"}, callers)

	callees, err := s.FindCallees("main.main", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets.NewButton"}, callees)

	require.NoError(t, s.DeleteCallEdgesForFile(fileID))
	callers, err = s.FindCallers("widgets.NewButton", 10)
	require.NoError(t, err)
	assert.Empty(t, callers)
}

func TestCodeQualityIssues_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	aID, err := s.UpsertAttachment(&domain.Attachment{SessionID: "sess", RootPath: "/repo", Active: true})
	require.NoError(t, err)
	fileID, _, err := s.UpsertRepositoryFile(&domain.RepositoryFile{AttachmentID: aID, Path: "main.go", ContentHash: "h1"})
	require.NoError(t, err)
	elID, err := s.InsertCodeElement(&domain.CodeElement{FileID: fileID, Kind: "function", Name: "Run", StartLine: 1, EndLine: 100, ComplexityScore: 15})
	require.NoError(t, err)

	_, err = s.InsertCodeQualityIssue(&domain.CodeQualityIssue{ElementID: elID, Severity: "warning", Kind: "complexity", Details: "too branchy"})
	require.NoError(t, err)

	issues, err := s.QualityIssuesForElement(elID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "complexity", issues[0].Kind)
}
