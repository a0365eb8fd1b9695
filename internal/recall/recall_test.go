package recall

import (
	"context"
	"testing"
	"time"

	"memengine/internal/domain"
	"memengine/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecallStore struct {
	recent   []*domain.MemoryEntry
	entries  map[int64]*domain.MemoryEntry
	semantic []storage.VectorEntry
}

func (f *fakeRecallStore) RecentMemoryEntries(sessionID string, n int) ([]*domain.MemoryEntry, error) {
	var out []*domain.MemoryEntry
	for _, e := range f.recent {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeRecallStore) SearchVector(ctx context.Context, head, query string, k int) ([]storage.VectorEntry, error) {
	if len(f.semantic) > k {
		return f.semantic[:k], nil
	}
	return f.semantic, nil
}

func (f *fakeRecallStore) MemoryEntryByID(id int64) (*domain.MemoryEntry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, assert.AnError
	}
	return e, nil
}

func TestRecallContext_RecentIsNewestFirst(t *testing.T) {
	base := time.Now()
	store := &fakeRecallStore{
		recent: []*domain.MemoryEntry{
			{ID: 3, SessionID: "s1", CreatedAt: base},
			{ID: 2, SessionID: "s1", CreatedAt: base.Add(-1 * time.Minute)},
			{ID: 1, SessionID: "s1", CreatedAt: base.Add(-2 * time.Minute)},
		},
		entries: map[int64]*domain.MemoryEntry{},
	}
	// store's RecentMemoryEntries already returns newest-first in the real
	// implementation; the fake mirrors that ordering contract directly.

	e := New(store, nil, nil)
	ctx, err := e.RecallContext(context.Background(), Query{SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, ctx.Recent, 3)
	assert.Equal(t, int64(3), ctx.Recent[0].ID)
	assert.Equal(t, int64(1), ctx.Recent[2].ID)
}

func TestRecallContext_SemanticFiltersBySessionAndOrdersBySimilarity(t *testing.T) {
	store := &fakeRecallStore{
		entries: map[int64]*domain.MemoryEntry{
			10: {ID: 10, SessionID: "s1", Content: "match-a"},
			11: {ID: 11, SessionID: "other-session", Content: "wrong-session"},
			12: {ID: 12, SessionID: "s1", Content: "match-b"},
		},
		semantic: []storage.VectorEntry{
			{OwnerKind: "memory_entry", OwnerID: 11, Similarity: 0.9},
			{OwnerKind: "memory_entry", OwnerID: 10, Similarity: 0.8},
			{OwnerKind: "memory_entry", OwnerID: 12, Similarity: 0.8},
		},
	}

	e := New(store, nil, nil)
	ctx, err := e.RecallContext(context.Background(), Query{SessionID: "s1", SemanticK: 5})
	require.NoError(t, err)
	require.Len(t, ctx.Semantic, 2)
	assert.Equal(t, int64(12), ctx.Semantic[0].ID, "tie broken by owner id descending")
	assert.Equal(t, int64(10), ctx.Semantic[1].ID)
}

type fakeOracle struct {
	bundle *CodeIntelBundle
}

func (f *fakeOracle) Enrich(ctx context.Context, query, projectID, currentFile, errorMessage string) (*CodeIntelBundle, error) {
	return f.bundle, nil
}

func TestRecallContext_NilOracleLeavesCodeIntelligenceNil(t *testing.T) {
	store := &fakeRecallStore{entries: map[int64]*domain.MemoryEntry{}}
	e := New(store, nil, nil)
	ctx, err := e.RecallContext(context.Background(), Query{SessionID: "s1"})
	require.NoError(t, err)
	assert.Nil(t, ctx.CodeIntelligence)
}

func TestRecallContext_WiredOracleEnriches(t *testing.T) {
	store := &fakeRecallStore{entries: map[int64]*domain.MemoryEntry{}}
	oracle := &fakeOracle{bundle: &CodeIntelBundle{RelatedFiles: []string{"main.go"}}}
	e := New(store, oracle, nil)
	ctx, err := e.RecallContext(context.Background(), Query{SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, ctx.CodeIntelligence)
	assert.Equal(t, []string{"main.go"}, ctx.CodeIntelligence.RelatedFiles)
}
