package promptcache

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_WarmSameContext_SecondCallCachesAndShrinks(t *testing.T) {
	state := NewSessionCacheState("s1", "", 0)
	state.LastCallAt = time.Now().Add(-10 * time.Second)

	static := "persona + tools + guidelines"
	sections := Sections{
		Project:    "project context: a Go service that indexes attached repositories, tracks conversation memory, and assembles cache-friendly prompts",
		Memory:     "rolling_summary: Working on a Rust project",
		Guidelines: "be concise; prefer small focused diffs; explain trade-offs briefly; never invent APIs that do not exist",
	}

	assembler := NewAssembler(0)

	first := assembler.Assemble(state, static, sections, "user: hi")
	assert.Equal(t, 0, first.CachedSections)
	state.StaticPrefixHash = HashContent(static)
	state.UpdateAfterCall(first.Hashes, 0, first.PromptTokens)

	second := assembler.Assemble(state, static, sections, "user: hi")
	require.GreaterOrEqual(t, second.CachedSections, 1)
	assert.Contains(t, second.Prompt, "unchanged from previous context")
	assert.Less(t, len(second.Prompt), len(first.Prompt))
}

func TestAssemble_ChangedMemorySection_NotMarkedCached(t *testing.T) {
	state := NewSessionCacheState("s1", "", 0)

	static := "persona + tools + guidelines"
	first := Sections{Memory: "Working on a Rust project", Project: "p", Guidelines: "g"}
	assembler := NewAssembler(0)

	r1 := assembler.Assemble(state, static, first, "")
	state.StaticPrefixHash = HashContent(static)
	state.UpdateAfterCall(r1.Hashes, 0, r1.PromptTokens)

	second := Sections{Memory: "COMPLETELY DIFFERENT", Project: "p", Guidelines: "g"}
	r2 := assembler.Assemble(state, static, second, "")

	assert.NotContains(t, r2.Prompt, "[MEMORY: unchanged")
	assert.Contains(t, r2.Prompt, "COMPLETELY DIFFERENT")
}

func TestAssemble_ColdByTTL_EmitsNoMarkers(t *testing.T) {
	state := NewSessionCacheState("s1", "", 0)
	static := "persona"
	sections := Sections{Project: "p", Memory: "m", Guidelines: "g"}
	assembler := NewAssembler(1 * time.Minute)

	r1 := assembler.Assemble(state, static, sections, "")
	state.StaticPrefixHash = HashContent(static)
	state.UpdateAfterCall(r1.Hashes, 0, r1.PromptTokens)

	state.LastCallAt = time.Now().Add(-10 * time.Minute)
	r2 := assembler.Assemble(state, static, sections, "")

	assert.Equal(t, 0, r2.CachedSections)
	assert.False(t, strings.Contains(r2.Prompt, "unchanged from previous context"))
}

func TestAssemble_ChangedStaticPrefix_ForcesFullEmission(t *testing.T) {
	state := NewSessionCacheState("s1", "", 0)
	sections := Sections{Project: "p", Memory: "m", Guidelines: "g"}
	assembler := NewAssembler(0)

	r1 := assembler.Assemble(state, "static-v1", sections, "")
	state.StaticPrefixHash = HashContent("static-v1")
	state.UpdateAfterCall(r1.Hashes, 0, r1.PromptTokens)

	r2 := assembler.Assemble(state, "static-v2", sections, "")
	assert.Equal(t, 0, r2.CachedSections)
	for _, s := range r2.SectionStates {
		assert.Equal(t, StaleByStaticPrefix, s)
	}
}

func TestAssemble_FileContentBlocksCachePerPath(t *testing.T) {
	state := NewSessionCacheState("s1", "", 0)
	static := "static"
	sections := Sections{
		FileContents: map[string]string{"a.go": "package a", "b.go": "package b"},
		FileOrder:    []string{"a.go", "b.go"},
	}
	assembler := NewAssembler(0)

	r1 := assembler.Assemble(state, static, sections, "")
	state.StaticPrefixHash = HashContent(static)
	state.UpdateAfterCall(r1.Hashes, 0, r1.PromptTokens)

	sections.FileContents["b.go"] = "package b changed"
	r2 := assembler.Assemble(state, static, sections, "")

	assert.Equal(t, Cached, r2.SectionStates["file_content:a.go"])
	assert.NotEqual(t, Cached, r2.SectionStates["file_content:b.go"])
}
