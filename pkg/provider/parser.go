package provider

import "github.com/controlVector/cv-git/pkg/types"

// ParserStrategy turns file bytes into structured parse records.
// Implementations must be safe for concurrent use by sync workers.
type ParserStrategy interface {
	// Name returns the strategy name (e.g., "treesitter", "simple").
	Name() string

	// Supports reports whether the strategy can parse the language.
	Supports(language string) bool

	// ParseSource parses a source file into symbols, imports, exports,
	// call sites, and embedding chunks. Lexical errors do not fail the
	// parse; partial symbols are kept with complexity 1.
	ParseSource(path string, content []byte, language string) (*types.ParsedFile, error)
}

// DocumentParser parses markdown into frontmatter, headings, links,
// and H2-bounded sections.
type DocumentParser interface {
	Name() string
	ParseDocument(path string, content []byte) (*types.ParsedDocument, error)
}

// ParserConfig contains parsing configuration.
type ParserConfig struct {
	Strategy     string // treesitter, simple
	MaxChunkSize int    // max characters per chunk
}
