// Package simple implements a line-based fallback parser strategy.
// It produces embedding chunks only; symbol extraction requires the
// treesitter strategy.
package simple

import (
	"path/filepath"
	"strings"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Default values
const (
	DefaultMaxChunkSize = 8000 // chars
	MinChunkSize        = 100  // minimum chars to create a chunk
)

// Parser implements a blank-line and size based splitting strategy.
type Parser struct {
	maxChunkSize int
}

// New creates a new simple parser.
func New(cfg provider.ParserConfig) *Parser {
	max := cfg.MaxChunkSize
	if max == 0 {
		max = DefaultMaxChunkSize
	}
	return &Parser{maxChunkSize: max}
}

// Name returns the strategy name.
func (p *Parser) Name() string {
	return "simple"
}

// Supports reports true for any recognized text language.
func (p *Parser) Supports(language string) bool {
	return language != ""
}

// ParseSource splits the file into paragraph-ish chunks. No symbols,
// imports, or exports are extracted.
func (p *Parser) ParseSource(path string, content []byte, language string) (*types.ParsedFile, error) {
	text := string(content)
	lines := strings.Split(text, "\n")

	pf := &types.ParsedFile{
		Path:        path,
		Language:    language,
		Hash:        types.HashBytes(content),
		Size:        int64(len(content)),
		LinesOfCode: countCodeLines(lines),
	}

	var cur []string
	var curChars int
	startLine := 1

	flush := func(endLine int) {
		if len(cur) == 0 || curChars < MinChunkSize {
			return
		}
		body := strings.Join(cur, "\n")
		pf.Chunks = append(pf.Chunks, &types.Chunk{
			ID:        types.ChunkID(path, startLine, endLine),
			FilePath:  path,
			Language:  language,
			Content:   body,
			StartLine: startLine,
			EndLine:   endLine,
			Hash:      types.HashBytes([]byte(body)),
		})
	}

	for i, line := range lines {
		lineNum := i + 1

		split := false
		if strings.TrimSpace(line) == "" && curChars > MinChunkSize {
			split = true
		}
		if curChars+len(line) > p.maxChunkSize && curChars > 0 {
			split = true
		}

		if split {
			flush(lineNum - 1)
			cur = nil
			curChars = 0
			startLine = lineNum
		}

		cur = append(cur, line)
		curChars += len(line) + 1
	}
	flush(len(lines))

	// Small file: one chunk for the whole thing.
	if len(pf.Chunks) == 0 && strings.TrimSpace(text) != "" {
		body := text
		if len(body) > p.maxChunkSize {
			body = body[:p.maxChunkSize]
		}
		pf.Chunks = append(pf.Chunks, &types.Chunk{
			ID:        types.ChunkID(path, 1, len(lines)),
			FilePath:  path,
			Language:  language,
			Content:   body,
			StartLine: 1,
			EndLine:   len(lines),
			Hash:      types.HashBytes([]byte(body)),
		})
	}

	return pf, nil
}

func countCodeLines(lines []string) int {
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

// DetectLanguage maps a file path to a language identifier.
// Returns "" for unrecognized extensions.
func DetectLanguage(path string) string {
	base := strings.ToLower(filepath.Base(path))
	if base == "dockerfile" {
		return "dockerfile"
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "jsx"
	case ".ts":
		return "typescript"
	case ".tsx":
		return "tsx"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c", ".h":
		return "c"
	case ".cpp", ".cc", ".cxx", ".hpp":
		return "cpp"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".cs":
		return "csharp"
	case ".kt", ".kts":
		return "kotlin"
	case ".swift":
		return "swift"
	case ".scala":
		return "scala"
	case ".lua":
		return "lua"
	case ".sh", ".bash":
		return "bash"
	case ".sql":
		return "sql"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".json":
		return "json"
	case ".proto":
		return "protobuf"
	case ".md", ".markdown":
		return "markdown"
	default:
		return ""
	}
}

// IsDocument reports whether the path belongs to the document pipeline.
func IsDocument(path string) bool {
	return DetectLanguage(path) == "markdown"
}

// Ensure Parser implements ParserStrategy.
var _ provider.ParserStrategy = (*Parser)(nil)
