package promptcache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"memengine/internal/logging"
)

// Section names, fixed dynamic-section order, and the marker's section
// label, per the contractual prompt layout.
const (
	SectionProject          = "project"
	SectionMemory           = "memory"
	SectionCodeIntelligence = "code_intelligence"
	SectionFile             = "file"
	SectionGuidelines       = "guidelines"
)

var sectionLabels = map[string]string{
	SectionProject:          "PROJECT",
	SectionMemory:           "MEMORY",
	SectionCodeIntelligence: "CODE_INTELLIGENCE",
	SectionFile:             "FILE",
	SectionGuidelines:       "GUIDELINES",
}

// markerFor renders the bit-exact cached-section marker for label.
func markerFor(label string) string {
	return fmt.Sprintf("[%s: unchanged from previous context]", label)
}

// SectionState is the closed set of reasons a section is emitted in full or
// replaced by a marker.
type SectionState int

const (
	FreshOrMissing SectionState = iota
	StaleByContent
	StaleByTTL
	StaleByStaticPrefix
	Cached
)

func (s SectionState) String() string {
	switch s {
	case FreshOrMissing:
		return "FreshOrMissing"
	case StaleByContent:
		return "StaleByContent"
	case StaleByTTL:
		return "StaleByTTL"
	case StaleByStaticPrefix:
		return "StaleByStaticPrefix"
	case Cached:
		return "Cached"
	default:
		return "Unknown"
	}
}

// Sections is the canonical textual form of each dynamic section plus
// zero-or-more per-path file-content blocks, computed fresh for this turn.
type Sections struct {
	Project          string
	Memory           string
	CodeIntelligence string
	File             string
	Guidelines       string
	// FileContents maps path -> canonical content for that file block, in
	// the order they should appear (iterate FileOrder, not range over this
	// map, since map iteration order is not stable).
	FileContents map[string]string
	FileOrder    []string
}

// Assembled is the result of one assembly pass.
type Assembled struct {
	Prompt         string
	CachedSections int
	SectionStates  map[string]SectionState
	Hashes         ContextHashes
	// PromptTokens is EstimateTokens(Prompt): the actual size of what was
	// sent this turn, markers included. Pass this to the session state's
	// UpdateAfterCall so CacheHitRate's denominator reflects every dynamic
	// section, not just the static prefix.
	PromptTokens int64
}

// Assembler shapes outgoing prompts around a SessionCacheState so that
// unchanged sections collapse to a short marker instead of their full text.
type Assembler struct {
	ttl time.Duration
}

// NewAssembler constructs an Assembler. A zero ttl defaults to
// DefaultCacheWarmWindow.
func NewAssembler(ttl time.Duration) *Assembler {
	if ttl <= 0 {
		ttl = DefaultCacheWarmWindow
	}
	return &Assembler{ttl: ttl}
}

// Assemble builds the prompt body for one turn: static prefix, then the
// fixed-order dynamic sections (each full or marker), then turnTail. state
// is read but never mutated here; the caller persists the returned Hashes
// into state via UpdateAfterCall once the LLM call completes.
func (a *Assembler) Assemble(state *SessionCacheState, staticPrefix string, sections Sections, turnTail string) Assembled {
	staticHash := HashContent(staticPrefix)
	staticPrefixChanged := state.StaticPrefixChanged(staticHash)
	warm := state.IsCacheWarmWithTTL(a.ttl)

	var b strings.Builder
	b.WriteString(staticPrefix)
	b.WriteString("\n\n")

	result := Assembled{
		SectionStates: make(map[string]SectionState),
		Hashes:        ContextHashes{FileContents: make(map[string]FileContentHash)},
	}

	emit := func(section, canonical, storedHash string) {
		hash := HashContent(canonical)
		state := classify(warm, staticPrefixChanged, storedHash, hash)
		result.SectionStates[section] = state

		if state == Cached {
			b.WriteString(markerFor(sectionLabels[section]))
			result.CachedSections++
		} else {
			b.WriteString(canonical)
		}
		b.WriteString("\n")
		setHash(&result.Hashes, section, hash)
	}

	emit(SectionProject, sections.Project, state.ContextHashes.ProjectContext)
	emit(SectionMemory, sections.Memory, state.ContextHashes.MemoryContext)
	emit(SectionCodeIntelligence, sections.CodeIntelligence, state.ContextHashes.CodeIntelligence)
	emit(SectionFile, sections.File, state.ContextHashes.FileContext)
	emit(SectionGuidelines, sections.Guidelines, state.ContextHashes.GuidelinesHash)

	order := sections.FileOrder
	if order == nil {
		order = sortedKeys(sections.FileContents)
	}
	for _, path := range order {
		content := sections.FileContents[path]
		hash := HashContent(content)
		var storedHash string
		if fc, ok := state.ContextHashes.FileContents[path]; ok {
			storedHash = fc.ContentHash
		}
		secState := classify(warm, staticPrefixChanged, storedHash, hash)
		result.SectionStates["file_content:"+path] = secState

		if secState == Cached {
			b.WriteString(markerFor("FILE_CONTENT:" + path))
			result.CachedSections++
		} else {
			b.WriteString(content)
		}
		b.WriteString("\n")

		result.Hashes.FileContents[path] = FileContentHash{
			Path:          path,
			ContentHash:   hash,
			TokenEstimate: EstimateTokens(content),
		}
	}

	b.WriteString(turnTail)
	result.Prompt = b.String()
	result.PromptTokens = EstimateTokens(result.Prompt)

	logging.PromptCacheDebug("assembled prompt for session %s: cached_sections=%d warm=%v static_changed=%v",
		state.SessionID, result.CachedSections, warm, staticPrefixChanged)

	return result
}

// classify implements the per-section state machine exactly: static-prefix
// change forces full emission for every section regardless of content
// equality; otherwise a missing prior hash, a content mismatch, or an
// expired TTL each force full emission; only a warm, equal, unchanged-prefix
// section is Cached.
func classify(warm, staticPrefixChanged bool, storedHash, newHash string) SectionState {
	if staticPrefixChanged {
		return StaleByStaticPrefix
	}
	if storedHash == "" {
		return FreshOrMissing
	}
	if !warm {
		return StaleByTTL
	}
	if storedHash != newHash {
		return StaleByContent
	}
	return Cached
}

func setHash(h *ContextHashes, section, hash string) {
	switch section {
	case SectionProject:
		h.ProjectContext = hash
	case SectionMemory:
		h.MemoryContext = hash
	case SectionCodeIntelligence:
		h.CodeIntelligence = hash
	case SectionFile:
		h.FileContext = hash
	case SectionGuidelines:
		h.GuidelinesHash = hash
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
