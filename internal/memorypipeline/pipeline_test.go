package memorypipeline

import (
	"context"
	"testing"

	"memengine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipelineStore struct {
	entries    []domain.MemoryEntry
	embedded   map[int64]bool
	vectorsFor map[int64]string
	failEmbed  bool
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{embedded: make(map[int64]bool), vectorsFor: make(map[int64]string)}
}

func (f *fakePipelineStore) InsertMemoryEntry(e *domain.MemoryEntry) (int64, error) {
	id := int64(len(f.entries)) + 1
	e.ID = id
	f.entries = append(f.entries, *e)
	return id, nil
}

func (f *fakePipelineStore) MarkMemoryEmbedded(id int64) error {
	f.embedded[id] = true
	return nil
}

func (f *fakePipelineStore) StoreVector(ctx context.Context, head, ownerKind string, ownerID int64, content string, isQuery bool) error {
	if f.failEmbed {
		return assert.AnError
	}
	f.vectorsFor[ownerID] = head
	return nil
}

func TestHeuristicAnalyzer_ShortMessageSkipsEmbedding(t *testing.T) {
	a := NewHeuristicAnalyzer()
	d := a.Analyze(context.Background(), "user", "ok")
	assert.False(t, d.ShouldEmbed)
}

func TestHeuristicAnalyzer_CodeBearingMessageRoutesToCodeHead(t *testing.T) {
	a := NewHeuristicAnalyzer()
	d := a.Analyze(context.Background(), "assistant", "```go\nfunc main() {}\n```\nthis rewrites the entrypoint to call the new router instead of the old one")
	assert.Equal(t, "code", d.Head)
	assert.True(t, d.ShouldEmbed)
}

func TestPipeline_IngestSkipsEmbeddingBelowThreshold(t *testing.T) {
	store := newFakePipelineStore()
	p := New(store, nil)

	entry, err := p.Ingest(context.Background(), 1, "sess-1", "user", "ok")
	require.NoError(t, err)
	assert.False(t, entry.Embedded)
	assert.Empty(t, store.vectorsFor)
}

func TestPipeline_IngestEmbedsSalientEntry(t *testing.T) {
	store := newFakePipelineStore()
	p := New(store, nil)

	long := "I would like to walk through the refactor of the recall engine in detail, starting with how we aggregate recent and semantic results concurrently and then merge them with the documented ordering guarantees."
	entry, err := p.Ingest(context.Background(), 1, "sess-1", "user", long)
	require.NoError(t, err)
	assert.True(t, entry.Embedded)
	assert.True(t, store.embedded[entry.ID])
	assert.NotEmpty(t, store.vectorsFor[entry.ID])
}

func TestPipeline_IngestSurvivesEmbeddingFailure(t *testing.T) {
	store := newFakePipelineStore()
	store.failEmbed = true
	p := New(store, nil)

	long := "This is a sufficiently long message with enough words to clear the default salience threshold for embedding purposes in this test case."
	entry, err := p.Ingest(context.Background(), 1, "sess-1", "user", long)
	require.NoError(t, err)
	assert.False(t, entry.Embedded, "entry is persisted relationally even when embedding fails")
}
