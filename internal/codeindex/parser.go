// Package codeindex implements the tree-sitter-backed code parsing,
// filesystem watching, and hash-idempotent sync that keep RepositoryFile
// and CodeElement rows current with an attachment's working tree.
package codeindex

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"memengine/internal/domain"
	"memengine/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// ParseResult is everything one file's parse produces: the symbol list plus
// its imports and the call edges observed inside its functions/methods.
// FileID is left zero; the caller (SyncTask) stamps it in once the
// RepositoryFile row is known.
type ParseResult struct {
	Elements  []domain.CodeElement
	Imports   []domain.Import
	CallEdges []domain.CallEdge
}

// Parser extracts CodeElements, imports, and call edges from one language's
// source text.
type Parser interface {
	// Parse extracts elements from content. path is used only for error
	// messages and module-name derivation; the caller owns associating
	// results with a RepositoryFile.
	Parse(ctx context.Context, path string, content []byte) (ParseResult, error)
	// SupportedExtensions lists the file extensions this parser handles,
	// each with a leading dot.
	SupportedExtensions() []string
	// Language is the short identifier used in logs and metadata.
	Language() string
}

// treeSitterParser wraps one *sitter.Parser configured with a language
// grammar and a fixed set of node-type -> CodeElement.Kind mappings.
type treeSitterParser struct {
	lang         *sitter.Language
	langName     string
	extensions   []string
	kindByNode   map[string]string // tree-sitter node type -> domain.CodeElement.Kind
	nameField    string            // child field name holding the declared identifier
	callNodeType string            // tree-sitter node type representing a function call
	branchNodes  map[string]struct{}
}

func (p *treeSitterParser) Language() string              { return p.langName }
func (p *treeSitterParser) SupportedExtensions() []string { return p.extensions }

func (p *treeSitterParser) Parse(ctx context.Context, path string, content []byte) (ParseResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(p.lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return ParseResult{}, fmt.Errorf("%s: parse %s: %w", p.langName, path, err)
	}
	defer tree.Close()

	module := modulePrefix(p.langName, path, content)

	var result ParseResult
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if kind, ok := p.kindByNode[n.Type()]; ok {
			name := identifierFor(n, content, p.nameField)
			if name != "" {
				sig := signatureLine(n, content)
				el := domain.CodeElement{
					Kind:            kind,
					Name:            name,
					QualifiedName:   qualifiedName(p.langName, module, kind, name, sig),
					Visibility:      visibilityOf(p.langName, name, sig),
					Signature:       sig,
					StartLine:       int(n.StartPoint().Row) + 1,
					EndLine:         int(n.EndPoint().Row) + 1,
					ComplexityScore: 1 + countBranches(n, p.branchNodes),
					Docstring:       docstringFor(p.langName, n, content),
				}
				result.Elements = append(result.Elements, el)

				if p.callNodeType != "" && (kind == "function" || kind == "method") {
					collectCalls(n, content, p.callNodeType, el.QualifiedName, &result.CallEdges)
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	result.Imports = extractImports(p.langName, string(content))

	logging.CodeIndexDebug("%s: parsed %s, %d elements, %d imports, %d calls",
		p.langName, path, len(result.Elements), len(result.Imports), len(result.CallEdges))
	return result, nil
}

func identifierFor(n *sitter.Node, content []byte, field string) string {
	if field != "" {
		if child := n.ChildByFieldName(field); child != nil {
			return child.Content(content)
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "identifier" || c.Type() == "type_identifier" || c.Type() == "property_identifier" {
			return c.Content(content)
		}
	}
	return ""
}

func signatureLine(n *sitter.Node, content []byte) string {
	start := n.StartByte()
	line := content[start:]
	if idx := strings.IndexByte(string(line), '\n'); idx >= 0 {
		return strings.TrimSpace(string(line[:idx]))
	}
	end := n.EndByte()
	if int(end) > len(content) {
		end = uint32(len(content))
	}
	return strings.TrimSpace(string(content[start:end]))
}

// countBranches walks n's subtree counting nodes whose type is a
// branch-introducing construct for the language, giving a cyclomatic-style
// complexity estimate (1 + branch count). This is a heuristic over the
// parse tree, not a true control-flow-graph computation.
func countBranches(n *sitter.Node, branchNodes map[string]struct{}) int {
	if n == nil || len(branchNodes) == 0 {
		return 0
	}
	count := 0
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if _, ok := branchNodes[n.Type()]; ok {
			count++
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walk(n.Child(i))
	}
	return count
}

// collectCalls walks fn's subtree for call nodes and appends one CallEdge
// per call, named by caller (the enclosing function/method's qualified
// name, already resolved by the caller) and callee. Callee resolution is by
// name only, not cross-file symbol resolution, matching the teacher
// Cartographer's simplified SelectorExpr/Ident handling.
func collectCalls(fn *sitter.Node, content []byte, callNodeType, callerName string, out *[]domain.CallEdge) {
	var walk func(*sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == callNodeType && n.ChildCount() > 0 {
			callee := strings.TrimSpace(n.Child(0).Content(content))
			if callee != "" {
				*out = append(*out, domain.CallEdge{CallerName: callerName, CalleeName: callee})
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	for i := 0; i < int(fn.ChildCount()); i++ {
		walk(fn.Child(i))
	}
}

// modulePrefix derives the qualifying prefix prepended to element names:
// the declared package name for Go, the file's base name (without
// extension) for every other language, mirroring the teacher Cartographer's
// "pkgName.symbol" id scheme where a real package/module system exists and
// falling back to the file-scoped equivalent elsewhere.
func modulePrefix(lang, path string, content []byte) string {
	if lang == "go" {
		if m := goPackageRe.FindSubmatch(content); m != nil {
			return string(m[1])
		}
	}
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

var goPackageRe = regexp.MustCompile(`(?m)^\s*package\s+([A-Za-z_][A-Za-z0-9_]*)`)
var goReceiverRe = regexp.MustCompile(`^func\s*\(\s*\w+\s+\*?([A-Za-z_][A-Za-z0-9_]*)\s*\)\s+([A-Za-z_][A-Za-z0-9_]*)`)

// qualifiedName builds the element's qualified_name: for a Go method, the
// receiver type parsed out of the signature (mirroring the teacher
// Cartographer's "pkg.Receiver.Method" id), otherwise module.name.
func qualifiedName(lang, module, kind, name, signature string) string {
	if lang == "go" && kind == "method" {
		if m := goReceiverRe.FindStringSubmatch(signature); m != nil {
			return fmt.Sprintf("%s.%s.%s", module, m[1], m[2])
		}
	}
	if module == "" {
		return name
	}
	return module + "." + name
}

// visibilityOf classifies an element as public or private using each
// language's own convention: capitalization for Go (matching
// ast.IsExported), an explicit "pub" keyword for Rust, and a leading
// underscore elsewhere (Python/JS/TS convention).
func visibilityOf(lang, name, signature string) domain.ElementVisibility {
	switch lang {
	case "go":
		if name != "" && strings.ToUpper(name[:1]) == name[:1] {
			return domain.VisibilityPublic
		}
		return domain.VisibilityPrivate
	case "rust":
		if strings.HasPrefix(strings.TrimSpace(signature), "pub ") || strings.Contains(signature, " pub ") {
			return domain.VisibilityPublic
		}
		return domain.VisibilityPrivate
	default:
		if strings.HasPrefix(name, "_") {
			return domain.VisibilityPrivate
		}
		return domain.VisibilityPublic
	}
}

// docstringFor returns a Python function/class's docstring when its body's
// first statement is a bare string literal. Other languages don't get a
// reliable, grammar-independent docstring signal from a flat node walk, so
// they leave Docstring empty rather than guess.
func docstringFor(lang string, n *sitter.Node, content []byte) string {
	if lang != "python" {
		return ""
	}
	body := n.ChildByFieldName("body")
	if body == nil || body.ChildCount() == 0 {
		return ""
	}
	first := body.Child(0)
	if first.Type() != "expression_statement" || first.ChildCount() == 0 {
		return ""
	}
	expr := first.Child(0)
	if expr.Type() != "string" {
		return ""
	}
	return strings.Trim(expr.Content(content), "\"'")
}

var (
	goImportBlockRe = regexp.MustCompile(`(?s)import\s*\(([^)]*)\)`)
	goImportLineRe  = regexp.MustCompile(`import\s+(?:\w+\s+)?"([^"]+)"`)
	goQuotedPathRe  = regexp.MustCompile(`"([^"]+)"`)
	pyImportRe      = regexp.MustCompile(`(?m)^\s*(?:import|from)\s+([\w\.]+)`)
	jsImportRe      = regexp.MustCompile(`(?:import\s+(?:[^'"]*?\s+from\s+)?['"]([^'"]+)['"]|require\(\s*['"]([^'"]+)['"]\s*\))`)
	rustUseRe       = regexp.MustCompile(`(?m)^\s*use\s+([\w:]+)`)
)

// extractImports scans raw source text for import/use/require statements.
// This is a line/regex scan rather than a tree-sitter grammar walk (the
// grammars' import-node shapes differ enough per language that a single
// generic field lookup can't cover all five), matching the same scanning
// idiom the sandbox verifier's import allowlist check already uses.
func extractImports(lang, content string) []domain.Import {
	var paths []string
	switch lang {
	case "go":
		for _, block := range goImportBlockRe.FindAllStringSubmatch(content, -1) {
			for _, m := range goQuotedPathRe.FindAllStringSubmatch(block[1], -1) {
				paths = append(paths, m[1])
			}
		}
		withoutBlocks := goImportBlockRe.ReplaceAllString(content, "")
		for _, m := range goImportLineRe.FindAllStringSubmatch(withoutBlocks, -1) {
			paths = append(paths, m[1])
		}
	case "python":
		for _, m := range pyImportRe.FindAllStringSubmatch(content, -1) {
			paths = append(paths, m[1])
		}
	case "javascript", "typescript":
		for _, m := range jsImportRe.FindAllStringSubmatch(content, -1) {
			if m[1] != "" {
				paths = append(paths, m[1])
			} else if m[2] != "" {
				paths = append(paths, m[2])
			}
		}
	case "rust":
		for _, m := range rustUseRe.FindAllStringSubmatch(content, -1) {
			paths = append(paths, m[1])
		}
	}

	out := make([]domain.Import, 0, len(paths))
	for _, p := range paths {
		out = append(out, domain.Import{Path: p, IsExternal: isExternalImport(lang, p)})
	}
	return out
}

// isExternalImport classifies an import path as external (third-party or
// standard-library) versus internal (same-repository). Go and Rust import
// syntax carries no project-relative form analogous to JS/TS/Python's
// leading "./" (Rust's closest equivalent is crate/self/super-rooted
// paths), so the heuristic is necessarily per-language.
func isExternalImport(lang, path string) bool {
	switch lang {
	case "python":
		return !strings.HasPrefix(path, ".")
	case "javascript", "typescript":
		return !(strings.HasPrefix(path, ".") || strings.HasPrefix(path, "/"))
	case "rust":
		return !(strings.HasPrefix(path, "crate") || strings.HasPrefix(path, "self") || strings.HasPrefix(path, "super"))
	default: // go
		return true
	}
}

// NewGoParser returns a tree-sitter parser for Go source.
func NewGoParser() Parser {
	return &treeSitterParser{
		lang:     golang.GetLanguage(),
		langName: "go",
		extensions: []string{".go"},
		kindByNode: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
			"const_declaration":    "const",
		},
		nameField:    "name",
		callNodeType: "call_expression",
		branchNodes: map[string]struct{}{
			"if_statement": {}, "for_statement": {}, "expression_switch_statement": {},
			"type_switch_statement": {}, "select_statement": {}, "communication_case": {},
			"expression_case": {}, "default_case": {},
		},
	}
}

// NewPythonParser returns a tree-sitter parser for Python source.
func NewPythonParser() Parser {
	return &treeSitterParser{
		lang:       python.GetLanguage(),
		langName:   "python",
		extensions: []string{".py"},
		kindByNode: map[string]string{
			"function_definition": "function",
			"class_definition":    "type",
		},
		nameField:    "name",
		callNodeType: "call",
		branchNodes: map[string]struct{}{
			"if_statement": {}, "for_statement": {}, "while_statement": {},
			"except_clause": {}, "elif_clause": {}, "boolean_operator": {},
		},
	}
}

// NewRustParser returns a tree-sitter parser for Rust source.
func NewRustParser() Parser {
	return &treeSitterParser{
		lang:       rust.GetLanguage(),
		langName:   "rust",
		extensions: []string{".rs"},
		kindByNode: map[string]string{
			"function_item": "function",
			"struct_item":   "type",
			"enum_item":     "type",
			"impl_item":     "impl",
			"trait_item":    "trait",
		},
		nameField:    "name",
		callNodeType: "call_expression",
		branchNodes: map[string]struct{}{
			"if_expression": {}, "match_arm": {}, "while_expression": {}, "loop_expression": {},
			"for_expression": {},
		},
	}
}

// NewTypeScriptParser returns a tree-sitter parser for TypeScript/TSX source.
func NewTypeScriptParser() Parser {
	return &treeSitterParser{
		lang:       typescript.GetLanguage(),
		langName:   "typescript",
		extensions: []string{".ts", ".tsx"},
		kindByNode: map[string]string{
			"function_declaration":  "function",
			"method_definition":     "method",
			"class_declaration":     "type",
			"interface_declaration": "type",
		},
		nameField:    "name",
		callNodeType: "call_expression",
		branchNodes: map[string]struct{}{
			"if_statement": {}, "for_statement": {}, "while_statement": {}, "switch_case": {},
			"catch_clause": {}, "ternary_expression": {},
		},
	}
}

// NewJavaScriptParser returns a tree-sitter parser for JavaScript/JSX source.
func NewJavaScriptParser() Parser {
	return &treeSitterParser{
		lang:       javascript.GetLanguage(),
		langName:   "javascript",
		extensions: []string{".js", ".jsx"},
		kindByNode: map[string]string{
			"function_declaration": "function",
			"method_definition":    "method",
			"class_declaration":    "type",
		},
		nameField:    "name",
		callNodeType: "call_expression",
		branchNodes: map[string]struct{}{
			"if_statement": {}, "for_statement": {}, "while_statement": {}, "switch_case": {},
			"catch_clause": {}, "ternary_expression": {},
		},
	}
}

// ParserFactory routes a file path to the registered Parser for its
// extension, mirroring the teacher's extension-keyed registry.
type ParserFactory struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewParserFactory returns a factory pre-registered with the five languages
// this module's SPEC_FULL scope names.
func NewParserFactory() *ParserFactory {
	f := &ParserFactory{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		NewGoParser(), NewPythonParser(), NewRustParser(),
		NewTypeScriptParser(), NewJavaScriptParser(),
	} {
		f.Register(p)
	}
	return f
}

// Register adds p for each of its supported extensions, replacing any
// parser already registered for that extension.
func (f *ParserFactory) Register(p Parser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ext := range p.SupportedExtensions() {
		f.parsers[normalizeExtension(ext)] = p
	}
}

// ForPath returns the parser registered for path's extension, or nil.
func (f *ParserFactory) ForPath(path string) Parser {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.parsers[normalizeExtension(filepath.Ext(path))]
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return ext
}

// DetectLanguage maps a file extension to the language identifier used
// throughout this package, independent of whether a Parser is registered
// for it (useful for RepositoryFile.Language on unsupported extensions).
func DetectLanguage(path string) string {
	switch normalizeExtension(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".ts", ".tsx":
		return "typescript"
	case ".js", ".jsx":
		return "javascript"
	default:
		return ""
	}
}
