// Package memorypipeline ingests raw conversational turns into durable
// MemoryEntry rows, running an advisory analysis pass that decides salience
// and routing before the (optional) embedding step.
package memorypipeline

import (
	"context"
	"fmt"
	"strings"

	"memengine/internal/domain"
	"memengine/internal/logging"
)

// DefaultSalienceThreshold is the minimum analyzed salience an entry needs
// before it is worth embedding; below this the entry is still persisted
// relationally (so recent-window recall still sees it) but skips the
// embedding call entirely.
const DefaultSalienceThreshold = 0.2

// PipelineStore is the storage surface the pipeline needs.
type PipelineStore interface {
	InsertMemoryEntry(e *domain.MemoryEntry) (int64, error)
	MarkMemoryEmbedded(id int64) error
	StoreVector(ctx context.Context, head, ownerKind string, ownerID int64, content string, isQuery bool) error
}

// RoutingDecision is the UnifiedAnalyzer's advisory verdict on one inbound
// turn: which vector head (if any) it belongs in, and how salient it is.
type RoutingDecision struct {
	Head        string
	Salience    float64
	ContentType string
	ShouldEmbed bool
}

// Analyzer scores and routes one inbound turn. The default implementation is
// a lightweight heuristic; a real deployment can swap in an LLM-backed
// analyzer behind the same interface.
type Analyzer interface {
	Analyze(ctx context.Context, role, content string) RoutingDecision
}

// HeuristicAnalyzer is a dependency-free Analyzer good enough to drive the
// pipeline without an LLM round trip: longer, more code-like, or
// correction-flavored turns score higher.
type HeuristicAnalyzer struct {
	SalienceThreshold float64
}

// NewHeuristicAnalyzer returns an analyzer using DefaultSalienceThreshold.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return &HeuristicAnalyzer{SalienceThreshold: DefaultSalienceThreshold}
}

func (a *HeuristicAnalyzer) Analyze(ctx context.Context, role, content string) RoutingDecision {
	salience := 0.1
	contentType := "message"
	head := "semantic"

	trimmed := strings.TrimSpace(content)
	wordCount := len(strings.Fields(trimmed))

	switch {
	case wordCount == 0:
		salience = 0.0
	case wordCount < 5:
		salience = 0.15
	case wordCount < 40:
		salience = 0.4
	default:
		salience = 0.6
	}

	lower := strings.ToLower(trimmed)
	if strings.Contains(lower, "```") || strings.Contains(trimmed, "func ") || strings.Contains(trimmed, "def ") {
		head = "code"
		salience += 0.15
	}
	if strings.Contains(lower, "no, ") || strings.Contains(lower, "actually") || strings.Contains(lower, "instead") {
		contentType = "correction"
		salience += 0.2
	}
	if role == "system" {
		salience = 0.05
	}

	if salience > 1.0 {
		salience = 1.0
	}

	return RoutingDecision{
		Head:        head,
		Salience:    salience,
		ContentType: contentType,
		ShouldEmbed: salience >= a.SalienceThreshold,
	}
}

// Pipeline wires an Analyzer to a PipelineStore.
type Pipeline struct {
	store    PipelineStore
	analyzer Analyzer
}

// New constructs a Pipeline. A nil analyzer defaults to HeuristicAnalyzer.
func New(store PipelineStore, analyzer Analyzer) *Pipeline {
	if analyzer == nil {
		analyzer = NewHeuristicAnalyzer()
	}
	return &Pipeline{store: store, analyzer: analyzer}
}

// Ingest persists one turn and, if the analyzer's routing decision clears
// the salience threshold, embeds it into the decided head. Ingestion is
// idempotent on the caller's id de-duplication (not modeled here; callers
// that redeliver the same turn are expected to dedupe by their own message
// id before calling Ingest, per the pipeline's at-least-once delivery
// contract).
func (p *Pipeline) Ingest(ctx context.Context, attachmentID int64, sessionID, role, content string) (*domain.MemoryEntry, error) {
	timer := logging.StartTimer(logging.CategoryMemoryPipeline, "Ingest")
	defer timer.Stop()

	decision := p.analyzer.Analyze(ctx, role, content)

	entry := &domain.MemoryEntry{
		AttachmentID: attachmentID,
		SessionID:    sessionID,
		Role:         role,
		Content:      content,
		ContentType:  decision.ContentType,
		Salience:     decision.Salience,
	}

	id, err := p.store.InsertMemoryEntry(entry)
	if err != nil {
		return nil, fmt.Errorf("insert memory entry: %w", err)
	}
	entry.ID = id

	if !decision.ShouldEmbed {
		logging.MemoryPipelineDebug("entry %d skipped embedding (salience=%.2f below threshold)", id, decision.Salience)
		return entry, nil
	}

	if err := p.store.StoreVector(ctx, decision.Head, "memory_entry", id, content, false); err != nil {
		logging.Get(logging.CategoryMemoryPipeline).Warn("embedding failed for entry %d: %v (entry persisted, recall falls back to recent-window)", id, err)
		return entry, nil
	}

	if err := p.store.MarkMemoryEmbedded(id); err != nil {
		logging.Get(logging.CategoryMemoryPipeline).Warn("failed to mark entry %d embedded: %v", id, err)
	}
	entry.Embedded = true

	logging.MemoryPipeline("entry %d embedded into head=%s salience=%.2f", id, decision.Head, decision.Salience)
	return entry, nil
}
