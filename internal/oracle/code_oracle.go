// Package oracle implements the recall Engine's optional code-intelligence
// collaborator: it turns a query, the current file, and an error message
// into related files, key symbols, and suggestions drawn from the code
// index's own tables instead of a fresh analysis pass.
package oracle

import (
	"context"
	"strconv"
	"strings"

	"memengine/internal/domain"
	"memengine/internal/logging"
	"memengine/internal/recall"
)

// Store is the storage surface the code oracle needs.
type Store interface {
	SearchElementsByName(namePattern string, limit int) ([]*domain.CodeElement, error)
	FindCochange(attachmentID int64, path string, limit int) ([]*domain.CochangePattern, error)
	FindErrorFix(signature string) (*domain.ErrorFix, error)
	FindCallees(symbol string, limit int) ([]string, error)
	QualityIssuesForElement(elementID int64) ([]*domain.CodeQualityIssue, error)
}

const (
	maxRelatedFiles = 5
	maxKeySymbols   = 8
	maxCallees      = 5
)

// CodeOracle implements recall.Oracle over a Store, grounding every field of
// the returned CodeIntelBundle in something the code index has already
// observed: co-change history for RelatedFiles, name search for KeySymbols,
// and recorded error fixes for Suggestions.
type CodeOracle struct {
	store Store
}

// New constructs a CodeOracle.
func New(store Store) *CodeOracle {
	return &CodeOracle{store: store}
}

var _ recall.Oracle = (*CodeOracle)(nil)

// Enrich implements recall.Oracle.
func (o *CodeOracle) Enrich(ctx context.Context, query, projectID, currentFile, errorMessage string) (*recall.CodeIntelBundle, error) {
	bundle := &recall.CodeIntelBundle{}

	if currentFile != "" {
		if attachmentID, err := strconv.ParseInt(projectID, 10, 64); err == nil {
			patterns, err := o.store.FindCochange(attachmentID, currentFile, maxRelatedFiles)
			if err != nil {
				logging.RecallWarn("oracle cochange lookup failed for %s: %v", currentFile, err)
			}
			for _, p := range patterns {
				other := p.PathA
				if other == currentFile {
					other = p.PathB
				}
				bundle.RelatedFiles = append(bundle.RelatedFiles, other)
			}
		}
	}

	if term := symbolSearchTerm(query, currentFile); term != "" {
		elements, err := o.store.SearchElementsByName(term, maxKeySymbols)
		if err != nil {
			logging.RecallWarn("oracle symbol search failed for %q: %v", term, err)
		}
		for _, e := range elements {
			bundle.KeySymbols = append(bundle.KeySymbols, e.Name)
		}

		// The call graph expands the first match's neighborhood: what it
		// calls is as relevant to the query as the symbol itself.
		if len(elements) > 0 && elements[0].QualifiedName != "" {
			callees, err := o.store.FindCallees(elements[0].QualifiedName, maxCallees)
			if err != nil {
				logging.RecallWarn("oracle callee lookup failed for %q: %v", elements[0].QualifiedName, err)
			}
			bundle.KeySymbols = append(bundle.KeySymbols, callees...)
		}

		for _, e := range elements {
			issues, err := o.store.QualityIssuesForElement(e.ID)
			if err != nil {
				logging.RecallWarn("oracle quality issue lookup failed for element %d: %v", e.ID, err)
				continue
			}
			for _, issue := range issues {
				bundle.Suggestions = append(bundle.Suggestions, recall.Suggestion{
					Severity: issue.Severity,
					Metric:   issue.Kind,
				})
			}
		}
	}

	if errorMessage != "" {
		signature := errorSignature(errorMessage)
		fix, err := o.store.FindErrorFix(signature)
		if err != nil {
			logging.RecallWarn("oracle error-fix lookup failed: %v", err)
		}
		if fix != nil {
			bundle.Suggestions = append(bundle.Suggestions, recall.Suggestion{
				Severity: "known_fix",
				Metric:   fix.FixDescription,
			})
		}
	}

	if len(bundle.RelatedFiles) == 0 && len(bundle.KeySymbols) == 0 && len(bundle.Suggestions) == 0 {
		return nil, nil
	}
	return bundle, nil
}

// symbolSearchTerm picks a best-effort identifier to search code elements
// for: the base name of the current file (without its extension), falling
// back to the first query token longer than two characters once
// surrounding punctuation is trimmed.
func symbolSearchTerm(query, currentFile string) string {
	if currentFile != "" {
		base := currentFile
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		if idx := strings.LastIndexByte(base, '.'); idx > 0 {
			base = base[:idx]
		}
		return base
	}
	for _, word := range strings.Fields(query) {
		trimmed := strings.Trim(word, ".,:;!?()[]{}\"'")
		if len(trimmed) > 2 {
			return trimmed
		}
	}
	return ""
}

// errorSignature normalizes an error message into the coarse signature
// FindErrorFix was recorded under, stripping the variable tail most error
// strings carry after their first colon.
func errorSignature(errorMessage string) string {
	if idx := strings.IndexByte(errorMessage, ':'); idx > 0 {
		return strings.TrimSpace(errorMessage[:idx])
	}
	return strings.TrimSpace(errorMessage)
}
