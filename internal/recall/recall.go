// Package recall assembles the per-query context bundle an LLM turn is
// grounded on: the recent window, semantic search hits, optional rolling
// and session summaries, and an optional code-intelligence enrichment.
package recall

import (
	"context"
	"fmt"
	"sort"

	"memengine/internal/domain"
	"memengine/internal/logging"
	"memengine/internal/storage"

	"golang.org/x/sync/errgroup"
)

// Store is the storage surface the recall engine needs.
type Store interface {
	RecentMemoryEntries(sessionID string, n int) ([]*domain.MemoryEntry, error)
	SearchVector(ctx context.Context, head, query string, k int) ([]storage.VectorEntry, error)
	MemoryEntryByID(id int64) (*domain.MemoryEntry, error)
}

// Suggestion is one improvement flagged by the Oracle.
type Suggestion struct {
	Severity  string
	Metric    string
	Threshold float64
}

// CodeIntelBundle is the Oracle's enrichment of a recall query: related
// files, key symbols, and improvement suggestions.
type CodeIntelBundle struct {
	RelatedFiles []string
	KeySymbols   []string
	Suggestions  []Suggestion
}

// Oracle is an optional code-intelligence collaborator. When no Oracle is
// wired, Context.CodeIntelligence is nil and every downstream consumer
// tolerates that.
type Oracle interface {
	Enrich(ctx context.Context, query, projectID, currentFile, errorMessage string) (*CodeIntelBundle, error)
}

// Context is the aggregate recall_context result for one query.
type Context struct {
	Recent           []*domain.MemoryEntry
	Semantic         []*domain.MemoryEntry
	RollingSummary   string
	SessionSummary   string
	CodeIntelligence *CodeIntelBundle
}

// Query carries the optional parameters recall_context accepts beyond the
// session id and the query text itself.
type Query struct {
	SessionID    string
	QueryText    string
	RecentN      int
	SemanticK    int
	ProjectID    string
	CurrentFile  string
	ErrorMessage string
}

// Engine aggregates recent and semantic recall concurrently, optionally
// enriched by an Oracle.
type Engine struct {
	store  Store
	oracle Oracle

	summaries SummaryProvider
}

// SummaryProvider supplies the optional rolling/session summary text. A nil
// provider leaves both fields empty, which every consumer tolerates.
type SummaryProvider interface {
	RollingSummary(sessionID string) string
	SessionSummary(sessionID string) string
}

// New constructs an Engine. oracle and summaries may be nil.
func New(store Store, oracle Oracle, summaries SummaryProvider) *Engine {
	return &Engine{store: store, oracle: oracle, summaries: summaries}
}

// RecallContext assembles the aggregate. The recent-window fetch and the
// semantic search run concurrently; the result is returned only once both
// complete, matching the ordering guarantee that neither blocks on the
// other's round trip.
func (e *Engine) RecallContext(ctx context.Context, q Query) (*Context, error) {
	timer := logging.StartTimer(logging.CategoryRecall, "RecallContext")
	defer timer.Stop()

	if q.RecentN <= 0 {
		q.RecentN = 10
	}
	if q.SemanticK <= 0 {
		q.SemanticK = 10
	}

	result := &Context{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		entries, err := e.store.RecentMemoryEntries(q.SessionID, q.RecentN)
		if err != nil {
			return fmt.Errorf("recent entries: %w", err)
		}
		result.Recent = entries
		return nil
	})

	g.Go(func() error {
		hits, err := e.semanticSearch(gctx, q)
		if err != nil {
			logging.RecallWarn("semantic search failed for session %s: %v", q.SessionID, err)
			return nil
		}
		result.Semantic = hits
		return nil
	})

	var oracleErr error
	if e.oracle != nil {
		g.Go(func() error {
			bundle, err := e.oracle.Enrich(gctx, q.QueryText, q.ProjectID, q.CurrentFile, q.ErrorMessage)
			if err != nil {
				logging.RecallWarn("oracle enrichment failed: %v", err)
				oracleErr = err
				return nil
			}
			result.CodeIntelligence = bundle
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = oracleErr

	if e.summaries != nil {
		result.RollingSummary = e.summaries.RollingSummary(q.SessionID)
		result.SessionSummary = e.summaries.SessionSummary(q.SessionID)
	}

	logging.Recall("recall_context session=%s recent=%d semantic=%d code_intel=%v",
		q.SessionID, len(result.Recent), len(result.Semantic), result.CodeIntelligence != nil)

	return result, nil
}

// semanticSearch runs the vector search against the semantic head and keeps
// only hits whose owning entry belongs to q.SessionID, ordered by
// similarity descending with ties broken by id descending.
func (e *Engine) semanticSearch(ctx context.Context, q Query) ([]*domain.MemoryEntry, error) {
	hits, err := e.store.SearchVector(ctx, "semantic", q.QueryText, q.SemanticK*3)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].OwnerID > hits[j].OwnerID
	})

	var out []*domain.MemoryEntry
	for _, h := range hits {
		if len(out) >= q.SemanticK {
			break
		}
		if h.OwnerKind != "memory_entry" {
			continue
		}
		entry, err := e.store.MemoryEntryByID(h.OwnerID)
		if err != nil {
			continue
		}
		if entry.SessionID != q.SessionID {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
