package codeindex

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"memengine/internal/domain"
	"memengine/internal/logging"
)

// ignoredDirs mirrors the original sync task's is_ignored check: directories
// that are never worth walking into.
var ignoredDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "target": {}, "dist": {}, "build": {},
	".next": {}, "vendor": {}, ".cargo": {}, ".venv": {}, "venv": {},
	".cache": {}, "__pycache__": {}, ".terraform": {},
}

func isIgnored(relPath string) bool {
	for _, part := range strings.Split(relPath, string(filepath.Separator)) {
		if _, ok := ignoredDirs[part]; ok {
			return true
		}
	}
	return false
}

func shouldParse(path string) bool {
	return DetectLanguage(path) != ""
}

// SyncStore is the subset of storage.Store the sync task needs, kept narrow
// so this package does not import storage directly and can be tested with a
// fake.
type SyncStore interface {
	UpsertRepositoryFile(f *domain.RepositoryFile) (id int64, changed bool, err error)
	DeleteCodeElementsForFile(fileID int64) error
	InsertCodeElement(e *domain.CodeElement) (int64, error)
	DeleteImportsForFile(fileID int64) error
	InsertImport(imp *domain.Import) (int64, error)
	DeleteCallEdgesForFile(fileID int64) error
	InsertCallEdge(edge *domain.CallEdge) (int64, error)
	InsertCodeQualityIssue(issue *domain.CodeQualityIssue) (int64, error)
	DeleteVectorsForOwner(ownerKind string, ownerID int64) error
	RecordCochange(attachmentID int64, pathA, pathB string) error
	StoreVector(ctx context.Context, head, ownerKind string, ownerID int64, content string, isQuery bool) error
}

// Quality thresholds a parsed element is checked against right after
// insertion, recorded as code_quality_issues rather than surfaced only in
// logs so the Oracle can query them later.
const (
	complexityWarnThreshold     = 10
	elementLengthWarnThreshold  = 80 // lines
)

// SyncTask walks one attachment's working tree, skipping files whose
// content hash hasn't changed, and reparses everything else. Grounded on
// the original code-sync task: walk -> ignore/extension filter -> hash ->
// compare -> skip-if-unchanged -> else delete-old-elements, reinsert,
// invalidate embeddings, reparse, reembed. Per-file failures are logged and
// skipped; they never fail the whole run.
type SyncTask struct {
	store   SyncStore
	parsers *ParserFactory
}

// NewSyncTask constructs a SyncTask over store using the default parser
// registry.
func NewSyncTask(store SyncStore) *SyncTask {
	return &SyncTask{store: store, parsers: NewParserFactory()}
}

// SyncResult summarizes one run of Run.
type SyncResult struct {
	FilesScanned int
	FilesChanged int
	FilesFailed  int
}

// Run walks rootPath under attachmentID, syncing every file whose content
// changed since the last run.
func (t *SyncTask) Run(ctx context.Context, attachmentID int64, rootPath string) (SyncResult, error) {
	timer := logging.StartTimer(logging.CategoryCodeIndex, "SyncTask.Run")
	defer timer.Stop()

	var result SyncResult
	var changedPaths []string

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort walk, matches the original's warn-only stance
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(rootPath, path)
		if relErr != nil {
			return nil
		}
		if info.IsDir() {
			if isIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if isIgnored(rel) || !shouldParse(path) {
			return nil
		}

		result.FilesScanned++
		changed, syncErr := t.syncFile(ctx, attachmentID, rootPath, rel)
		if syncErr != nil {
			result.FilesFailed++
			logging.Get(logging.CategoryCodeIndex).Warn("sync failed for %s: %v", rel, syncErr)
			return nil
		}
		if changed {
			result.FilesChanged++
			changedPaths = append(changedPaths, rel)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	for i := 0; i < len(changedPaths); i++ {
		for j := i + 1; j < len(changedPaths); j++ {
			if err := t.store.RecordCochange(attachmentID, changedPaths[i], changedPaths[j]); err != nil {
				logging.Get(logging.CategoryCodeIndex).Warn("cochange record failed: %v", err)
			}
		}
	}

	logging.CodeIndex("sync complete: scanned=%d changed=%d failed=%d", result.FilesScanned, result.FilesChanged, result.FilesFailed)
	return result, nil
}

// syncFile hashes one file and, if its content changed, reparses it into
// fresh CodeElement rows. Returns whether the file's content changed.
func (t *SyncTask) syncFile(ctx context.Context, attachmentID int64, rootPath, relPath string) (bool, error) {
	absPath := filepath.Join(rootPath, relPath)
	content, err := os.ReadFile(absPath)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", relPath, err)
	}

	hash := hashContent(content)
	fileRow := &domain.RepositoryFile{
		AttachmentID: attachmentID,
		Path:         relPath,
		Language:     DetectLanguage(relPath),
		ContentHash:  hash,
		SizeBytes:    int64(len(content)),
	}

	fileID, changed, err := t.store.UpsertRepositoryFile(fileRow)
	if err != nil {
		return false, fmt.Errorf("upsert file row: %w", err)
	}
	if !changed {
		return false, nil
	}

	if err := t.store.DeleteCodeElementsForFile(fileID); err != nil {
		return true, fmt.Errorf("delete stale elements: %w", err)
	}
	if err := t.store.DeleteImportsForFile(fileID); err != nil {
		return true, fmt.Errorf("delete stale imports: %w", err)
	}
	if err := t.store.DeleteCallEdgesForFile(fileID); err != nil {
		return true, fmt.Errorf("delete stale call edges: %w", err)
	}

	parser := t.parsers.ForPath(relPath)
	if parser == nil {
		return true, nil
	}

	result, err := parser.Parse(ctx, relPath, content)
	if err != nil {
		logging.Get(logging.CategoryCodeIndex).Warn("parse failed for %s: %v (file row kept, no elements)", relPath, err)
		return true, nil
	}

	for _, el := range result.Elements {
		el.FileID = fileID
		elID, err := t.store.InsertCodeElement(&el)
		if err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("insert element %s in %s failed: %v", el.Name, relPath, err)
			continue
		}
		if err := t.store.DeleteVectorsForOwner("code_element", elID); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("invalidate embedding for element %d failed: %v", elID, err)
		}
		embedText := el.Kind + " " + el.Name + "\n" + el.Signature
		if err := t.store.StoreVector(ctx, "code", "code_element", elID, embedText, false); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("embed element %d failed: %v", elID, err)
		}
		t.recordQualityIssues(elID, el, relPath)
	}

	for _, imp := range result.Imports {
		imp.FileID = fileID
		if _, err := t.store.InsertImport(&imp); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("insert import %s in %s failed: %v", imp.Path, relPath, err)
		}
	}

	for _, edge := range result.CallEdges {
		edge.AttachmentID = attachmentID
		edge.FileID = fileID
		if _, err := t.store.InsertCallEdge(&edge); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("insert call edge %s->%s in %s failed: %v", edge.CallerName, edge.CalleeName, relPath, err)
		}
	}

	return true, nil
}

// recordQualityIssues checks el against the fixed heuristic thresholds and
// persists any breach as a code_quality_issue row the Oracle can surface
// later as a Suggestion.
func (t *SyncTask) recordQualityIssues(elementID int64, el domain.CodeElement, relPath string) {
	if el.ComplexityScore > complexityWarnThreshold {
		issue := &domain.CodeQualityIssue{
			ElementID: elementID,
			Severity:  "warning",
			Kind:      "complexity",
			Details:   fmt.Sprintf("%s in %s has complexity score %d (warn threshold %d)", el.Name, relPath, el.ComplexityScore, complexityWarnThreshold),
		}
		if _, err := t.store.InsertCodeQualityIssue(issue); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("record complexity issue for %s failed: %v", el.Name, err)
		}
	}
	if length := el.EndLine - el.StartLine + 1; length > elementLengthWarnThreshold {
		issue := &domain.CodeQualityIssue{
			ElementID: elementID,
			Severity:  "info",
			Kind:      "length",
			Details:   fmt.Sprintf("%s in %s spans %d lines (warn threshold %d)", el.Name, relPath, length, elementLengthWarnThreshold),
		}
		if _, err := t.store.InsertCodeQualityIssue(issue); err != nil {
			logging.Get(logging.CategoryCodeIndex).Warn("record length issue for %s failed: %v", el.Name, err)
		}
	}
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
