package promptcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHashContent(t *testing.T) {
	h1 := HashContent("hello world")
	h2 := HashContent("hello world")
	h3 := HashContent("hello world!")

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}

func TestCacheWarmCheck(t *testing.T) {
	state := NewSessionCacheState("test-session", "abc123", 1200)
	assert.True(t, state.IsCacheLikelyWarm())
	assert.True(t, state.IsCacheWarmWithTTL(600*time.Second))
}

func TestStaticPrefixChangeDetection(t *testing.T) {
	state := NewSessionCacheState("test-session", "original-hash", 1200)
	assert.False(t, state.StaticPrefixChanged("original-hash"))
	assert.True(t, state.StaticPrefixChanged("different-hash"))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, int64(3), EstimateTokens("hello world"))
	assert.Equal(t, int64(1), EstimateTokens("a"))
	assert.Equal(t, int64(0), EstimateTokens(""))
}

func TestContextHashesMatching(t *testing.T) {
	hashes := ContextHashes{FileContents: map[string]FileContentHash{
		"src/main.go": {Path: "src/main.go", ContentHash: "file-hash"},
	}}
	hashes.ProjectContext = "proj-hash"

	assert.True(t, hashes.SectionMatches(SectionProject, "proj-hash"))
	assert.False(t, hashes.SectionMatches(SectionProject, "wrong-hash"))
	assert.False(t, hashes.SectionMatches(SectionMemory, "anything"))

	assert.True(t, hashes.FileMatches("src/main.go", "file-hash"))
	assert.False(t, hashes.FileMatches("src/main.go", "wrong-hash"))
	assert.False(t, hashes.FileMatches("src/other.go", "file-hash"))
}

func TestUpdateAfterCall_AccumulatesCacheHitRate(t *testing.T) {
	state := NewSessionCacheState("s1", "hash", 1000)
	assert.Equal(t, 0.0, state.CacheHitRate())

	state.UpdateAfterCall(ContextHashes{}, 500, 1000)
	assert.Equal(t, 0.5, state.CacheHitRate())

	state.UpdateAfterCall(ContextHashes{}, 500, 1000)
	assert.Equal(t, 0.5, state.CacheHitRate())
	assert.Equal(t, int64(2), state.TotalRequests)
	assert.Equal(t, int64(2000), state.TotalPromptTokens)
}

func TestUpdateAfterCall_DynamicSectionsCountTowardDenominator(t *testing.T) {
	// A session whose dynamic sections dwarf the static prefix must not
	// have its hit rate computed against the static prefix alone.
	state := NewSessionCacheState("s1", "hash", 100)
	state.UpdateAfterCall(ContextHashes{}, 900, 1000)
	assert.Equal(t, 0.9, state.CacheHitRate())
}
