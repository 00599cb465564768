// Package treesitter implements AST-based source parsing for the
// languages the knowledge graph understands natively. It extracts
// symbols, imports, exports, call sites, and symbol-aligned chunks.
package treesitter

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultMaxChunkSize caps chunk content length in characters.
const DefaultMaxChunkSize = 8000

// Parser is the tree-sitter backed parsing strategy.
type Parser struct {
	maxChunkSize int
}

// New creates a new tree-sitter parser.
func New(cfg provider.ParserConfig) *Parser {
	max := cfg.MaxChunkSize
	if max == 0 {
		max = DefaultMaxChunkSize
	}
	return &Parser{maxChunkSize: max}
}

// Name returns the strategy name.
func (p *Parser) Name() string {
	return "treesitter"
}

// Supports reports whether the language has a grammar wired in.
func (p *Parser) Supports(language string) bool {
	return getLanguage(language) != nil
}

func getLanguage(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript", "jsx":
		return javascript.GetLanguage()
	case "typescript":
		return typescript.GetLanguage()
	case "tsx":
		return tsx.GetLanguage()
	default:
		return nil
	}
}

// ParseSource parses the file and extracts the full per-file graph
// payload: symbols with qualified names, imports, exports, call sites,
// and one chunk per extracted symbol.
func (p *Parser) ParseSource(path string, content []byte, language string) (*types.ParsedFile, error) {
	lang := getLanguage(language)
	if lang == nil {
		return nil, fmt.Errorf("%w: unsupported language %q", types.ErrParse, language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", types.ErrParse, path, err)
	}
	defer tree.Close()

	pf := &types.ParsedFile{
		Path:        path,
		Language:    language,
		Hash:        types.HashBytes(content),
		Size:        int64(len(content)),
		LinesOfCode: countCodeLines(content),
	}

	ex := &extractor{
		path:     path,
		language: language,
		src:      content,
		file:     pf,
		maxChunk: p.maxChunkSize,
	}
	ex.walk(tree.RootNode(), nil)

	// Files with no extractable symbols (scripts, config-heavy code)
	// still get a leading chunk so they are searchable.
	if len(pf.Chunks) == 0 && len(content) > 0 {
		endLine := countLines(content)
		body := string(content)
		if len(body) > p.maxChunkSize {
			body = body[:p.maxChunkSize]
		}
		pf.Chunks = append(pf.Chunks, &types.Chunk{
			ID:        types.ChunkID(path, 1, endLine),
			FilePath:  path,
			Language:  language,
			Content:   body,
			StartLine: 1,
			EndLine:   endLine,
			Hash:      types.HashBytes([]byte(body)),
		})
	}

	return pf, nil
}

// extractor carries per-file state through the AST walk.
type extractor struct {
	path     string
	language string
	src      []byte
	file     *types.ParsedFile
	maxChunk int
}

// walk visits the tree top-down. scope is the chain of enclosing
// named symbols (class, function) used to build qualified names.
func (e *extractor) walk(n *sitter.Node, scope []string) {
	if n == nil {
		return
	}

	switch e.language {
	case "go":
		e.walkGo(n, scope)
	case "python":
		e.walkPython(n, scope)
	default:
		e.walkJS(n, scope)
	}
}

func (e *extractor) walkChildren(n *sitter.Node, scope []string) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		e.walk(n.NamedChild(i), scope)
	}
}

// addSymbol records a symbol, its call sites, and its chunk.
func (e *extractor) addSymbol(n *sitter.Node, scope []string, name string, kind types.SymbolKind, signature, docstring, visibility string, isAsync bool) *types.ParsedSymbol {
	if name == "" {
		return nil
	}
	start := int(n.StartPoint().Row) + 1
	end := int(n.EndPoint().Row) + 1

	sym := &types.ParsedSymbol{
		Name:          name,
		QualifiedName: types.QualifiedName(e.path, strings.Join(scope, "."), name),
		Kind:          kind,
		StartLine:     start,
		EndLine:       end,
		Signature:     signature,
		Docstring:     docstring,
		Visibility:    visibility,
		IsAsync:       isAsync,
		Complexity:    e.complexity(n),
	}
	sym.Calls = e.extractCalls(n)
	e.file.Symbols = append(e.file.Symbols, sym)

	body := e.text(n)
	if len(body) > e.maxChunk {
		body = body[:e.maxChunk]
	}
	e.file.Chunks = append(e.file.Chunks, &types.Chunk{
		ID:            types.ChunkID(e.path, start, end),
		FilePath:      e.path,
		Language:      e.language,
		Content:       body,
		StartLine:     start,
		EndLine:       end,
		SymbolContext: sym.QualifiedName,
		Hash:          types.HashBytes([]byte(body)),
	})
	return sym
}

// ---- node helpers ----

func (e *extractor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(e.src)
}

func childByField(n *sitter.Node, field string) *sitter.Node {
	return n.ChildByFieldName(field)
}

func findChildByType(n *sitter.Node, nodeType string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == nodeType {
			return c
		}
	}
	return nil
}

func hasChildToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == token {
			return true
		}
	}
	return false
}

// signature returns the source up to, but excluding, the body node.
func (e *extractor) signature(n *sitter.Node, body *sitter.Node) string {
	full := e.text(n)
	if body != nil {
		offset := int(body.StartByte() - n.StartByte())
		if offset > 0 && offset <= len(full) {
			full = full[:offset]
		}
	}
	if idx := strings.IndexByte(full, '\n'); idx >= 0 && body == nil {
		full = full[:idx]
	}
	return strings.TrimSpace(full)
}

// precedingComment collects the contiguous comment block directly
// above the node, which is the doc comment convention in every
// supported language except python.
func (e *extractor) precedingComment(n *sitter.Node) string {
	var parts []string
	prev := n.PrevNamedSibling()
	expectedRow := int(n.StartPoint().Row) - 1
	for prev != nil && prev.Type() == "comment" && int(prev.EndPoint().Row) >= expectedRow-1 {
		parts = append([]string{e.text(prev)}, parts...)
		expectedRow = int(prev.StartPoint().Row)
		prev = prev.PrevNamedSibling()
	}
	return cleanComment(strings.Join(parts, "\n"))
}

func cleanComment(c string) string {
	lines := strings.Split(c, "\n")
	for i, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "///")
		l = strings.TrimPrefix(l, "//")
		l = strings.TrimPrefix(l, "/*")
		l = strings.TrimSuffix(l, "*/")
		l = strings.TrimPrefix(strings.TrimSpace(l), "* ")
		l = strings.TrimPrefix(l, "#")
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// complexity is a cyclomatic approximation: 1 + branch points.
func (e *extractor) complexity(n *sitter.Node) int {
	count := 1
	var visit func(*sitter.Node)
	visit = func(c *sitter.Node) {
		switch c.Type() {
		case "if_statement", "for_statement", "while_statement",
			"for_in_statement", "do_statement",
			"case_clause", "communication_case", "expression_case",
			"elif_clause", "except_clause", "catch_clause",
			"conditional_expression", "ternary_expression",
			"binary_expression", "boolean_operator":
			if c.Type() == "binary_expression" {
				op := e.text(childByField(c, "operator"))
				if op != "&&" && op != "||" {
					break
				}
			}
			count++
		}
		for i := 0; i < int(c.NamedChildCount()); i++ {
			visit(c.NamedChild(i))
		}
	}
	visit(n)
	return count
}

func countCodeLines(src []byte) int {
	n := 0
	for _, l := range strings.Split(string(src), "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

func countLines(src []byte) int {
	return strings.Count(string(src), "\n") + 1
}

// Ensure Parser implements ParserStrategy.
var _ provider.ParserStrategy = (*Parser)(nil)
