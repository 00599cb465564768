// Package types contains shared data types used across the cv-git project.
package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Graph Node Types
// =============================================================================

// FileNode represents a source or document file in the knowledge graph.
type FileNode struct {
	Path         string    `json:"path"` // Repo-relative, unique key
	Language     string    `json:"language"`
	GitHash      string    `json:"git_hash"`
	Size         int64     `json:"size"`
	LinesOfCode  int       `json:"lines_of_code"`
	Complexity   int       `json:"complexity"`
	LastModified time.Time `json:"last_modified"`
}

// SymbolKind represents the kind of a code symbol.
type SymbolKind string

const (
	SymbolKindFunction  SymbolKind = "function"
	SymbolKindMethod    SymbolKind = "method"
	SymbolKindClass     SymbolKind = "class"
	SymbolKindInterface SymbolKind = "interface"
	SymbolKindType      SymbolKind = "type"
	SymbolKindVariable  SymbolKind = "variable"
	SymbolKindConstant  SymbolKind = "constant"
	SymbolKindEnum      SymbolKind = "enum"
	SymbolKindStruct    SymbolKind = "struct"
)

// SymbolNode represents a code symbol in the knowledge graph.
type SymbolNode struct {
	QualifiedName string     `json:"qualified_name"` // Unique key: <file>:<scope-chain>:<name>
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	File          string     `json:"file"` // Path of the defining file
	StartLine     int        `json:"start_line"`
	EndLine       int        `json:"end_line"`
	Signature     string     `json:"signature"`
	Docstring     string     `json:"docstring,omitempty"`
	Visibility    string     `json:"visibility"` // public, private
	IsAsync       bool       `json:"is_async"`
	IsStatic      bool       `json:"is_static"`
	Complexity    int        `json:"complexity"`
	VectorIDs     []string   `json:"vector_ids,omitempty"` // Ordered; [0] is the legacy vector_id
}

// QualifiedName builds the deterministic repo-unique symbol key.
// Scope is the enclosing symbol name chain, empty for top-level symbols.
func QualifiedName(file, scope, name string) string {
	if scope == "" {
		return file + ":" + name
	}
	return file + ":" + scope + ":" + name
}

// ModuleType classifies a module node.
type ModuleType string

const (
	ModuleTypePackage   ModuleType = "package"
	ModuleTypeNamespace ModuleType = "namespace"
	ModuleTypeDirectory ModuleType = "directory"
)

// ModuleNode represents a directory-level grouping of files.
// Rebuilt during sync; never referenced by authored data.
type ModuleNode struct {
	Path        string     `json:"path"` // Directory path, unique key
	Name        string     `json:"name"`
	Type        ModuleType `json:"type"`
	FileCount   int        `json:"file_count"`
	SymbolCount int        `json:"symbol_count"`
}

// CommitNode represents a git commit. Created from the git log, never mutated.
type CommitNode struct {
	SHA          string    `json:"sha"` // Unique key
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	FilesChanged int       `json:"files_changed"`
	Insertions   int       `json:"insertions"`
	Deletions    int       `json:"deletions"`
}

// DocumentType classifies a markdown document.
type DocumentType string

const (
	DocTypeReadme    DocumentType = "readme"
	DocTypeChangelog DocumentType = "changelog"
	DocTypeADR       DocumentType = "adr"
	DocTypeGuide     DocumentType = "guide"
	DocTypeSpec      DocumentType = "spec"
	DocTypeGeneric   DocumentType = "document"
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	DocStatusDraft      DocumentStatus = "draft"
	DocStatusActive     DocumentStatus = "active"
	DocStatusArchived   DocumentStatus = "archived"
	DocStatusDeprecated DocumentStatus = "deprecated"
)

// DocumentNode represents a markdown document in the knowledge graph.
type DocumentNode struct {
	Path         string         `json:"path"` // Unique key
	Title        string         `json:"title"`
	DocumentType DocumentType   `json:"document_type"`
	Status       DocumentStatus `json:"status"`
	GitHash      string         `json:"git_hash"`
	SectionCount int            `json:"section_count"`
	LastModified time.Time      `json:"last_modified"`
}

// SessionKnowledgeNode records what an agent session learned in one turn.
// Nodes of the same session form a chain via FOLLOWS edges.
type SessionKnowledgeNode struct {
	SessionID         string    `json:"session_id"`
	TurnNumber        int       `json:"turn_number"`
	Summary           string    `json:"summary"`
	Concern           string    `json:"concern,omitempty"`
	FilesTouched      []string  `json:"files_touched,omitempty"`
	SymbolsReferenced []string  `json:"symbols_referenced,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Key returns the composite node key.
func (n *SessionKnowledgeNode) Key() string {
	return fmt.Sprintf("%s:%d", n.SessionID, n.TurnNumber)
}

// =============================================================================
// Graph Edge Types
// =============================================================================

// EdgeType is a relationship label in the knowledge graph.
type EdgeType string

const (
	EdgeImports  EdgeType = "IMPORTS"  // File -> File
	EdgeDefines  EdgeType = "DEFINES"  // File -> Symbol
	EdgeCalls    EdgeType = "CALLS"    // Symbol -> Symbol
	EdgeInherits EdgeType = "INHERITS" // Symbol -> Symbol
	EdgeModifies EdgeType = "MODIFIES" // Commit -> File
	EdgeTouches  EdgeType = "TOUCHES"  // Commit -> Symbol
	EdgeAbout    EdgeType = "ABOUT"    // SessionKnowledge -> File|Symbol
	EdgeFollows  EdgeType = "FOLLOWS"  // SessionKnowledge -> SessionKnowledge
)

// Edge is a typed relationship between two node keys.
// Properties are flat scalar values and are merged on upsert.
type Edge struct {
	Type       EdgeType       `json:"type"`
	FromKey    string         `json:"from"`
	ToKey      string         `json:"to"`
	Properties map[string]any `json:"properties,omitempty"`
}

// =============================================================================
// Parser Output
// =============================================================================

// ImportType classifies how an import binds names.
type ImportType string

const (
	ImportDefault    ImportType = "default"
	ImportNamed      ImportType = "named"
	ImportNamespace  ImportType = "namespace"
	ImportSideEffect ImportType = "side-effect"
)

// Import is a single import statement extracted from a source file.
type Import struct {
	Source          string     `json:"source"` // Raw import string as written
	ImportedSymbols []string   `json:"imported_symbols,omitempty"`
	Alias           string     `json:"alias,omitempty"`
	Type            ImportType `json:"type"`
	Line            int        `json:"line"`
	IsExternal      bool       `json:"is_external"`
}

// Export is a named or default export of a source file.
type Export struct {
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Line      int    `json:"line"`
}

// CallSite is a call expression found inside a symbol body.
type CallSite struct {
	CalleeName    string `json:"callee_name"`
	Line          int    `json:"line"` // First occurrence
	IsConditional bool   `json:"is_conditional"` // Inside a branch, loop, or try/catch
	Count         int    `json:"count"` // Occurrences collapsed into this site
}

// ParsedSymbol is a symbol as produced by the parser, before graph upsert.
type ParsedSymbol struct {
	QualifiedName string     `json:"qualified_name"`
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	StartLine     int        `json:"start_line"`
	EndLine       int        `json:"end_line"`
	Signature     string     `json:"signature"`
	Docstring     string     `json:"docstring,omitempty"`
	Visibility    string     `json:"visibility"`
	IsAsync       bool       `json:"is_async"`
	IsStatic      bool       `json:"is_static"`
	Complexity    int        `json:"complexity"`
	Calls         []CallSite `json:"calls,omitempty"`
	Inherits      []string   `json:"inherits,omitempty"` // Base type names (extends/implements)
}

// Chunk is a line range of a file that is independently embedded.
type Chunk struct {
	ID            string `json:"id"` // <file>:<startLine>:<endLine>
	FilePath      string `json:"file_path"`
	Language      string `json:"language"`
	Content       string `json:"content"`
	SymbolContext string `json:"symbol_context,omitempty"` // Qualified name of enclosing symbol, if any
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	Hash          string `json:"hash"` // SHA256 of content
}

// ChunkID builds the stable chunk identifier.
func ChunkID(file string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%d:%d", file, startLine, endLine)
}

// ParsedFile is the parser's output for one source file.
type ParsedFile struct {
	Path        string          `json:"path"`
	Language    string          `json:"language"`
	Hash        string          `json:"hash"`
	Size        int64           `json:"size"`
	LinesOfCode int             `json:"lines_of_code"`
	Symbols     []*ParsedSymbol `json:"symbols"`
	Imports     []*Import       `json:"imports"`
	Exports     []*Export       `json:"exports"`
	Chunks      []*Chunk        `json:"chunks"`
}

// Complexity aggregates symbol complexities for the file node.
func (f *ParsedFile) Complexity() int {
	total := 0
	for _, s := range f.Symbols {
		total += s.Complexity
	}
	if total == 0 {
		total = 1
	}
	return total
}

// Heading is a markdown heading with its line anchor.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
	Slug  string `json:"slug"`
	Line  int    `json:"line"`
}

// Link is a markdown link classified by target.
type Link struct {
	Text       string `json:"text"`
	Target     string `json:"target"`
	Line       int    `json:"line"`
	IsExternal bool   `json:"is_external"`
	IsCodeRef  bool   `json:"is_code_ref"` // Target points at a source file
}

// DocumentSection is a chunkable slice of a document, split at H2 boundaries.
type DocumentSection struct {
	Title     string   `json:"title"`
	Slug      string   `json:"slug"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Chunks    []*Chunk `json:"chunks"`
}

// Frontmatter holds the parsed YAML frontmatter of a markdown document.
// Keys the parser does not recognize are preserved in CustomFields.
type Frontmatter struct {
	Title        string         `json:"title,omitempty"`
	DocumentType string         `json:"document_type,omitempty"`
	Status       string         `json:"status,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// ParsedDocument is the parser's output for one markdown file.
type ParsedDocument struct {
	Path         string             `json:"path"`
	Hash         string             `json:"hash"`
	Size         int64              `json:"size"`
	Title        string             `json:"title"`
	DocumentType DocumentType       `json:"document_type"`
	Status       DocumentStatus     `json:"status"`
	Frontmatter  *Frontmatter       `json:"frontmatter,omitempty"`
	Headings     []Heading          `json:"headings"`
	Links        []Link             `json:"links"`
	Sections     []*DocumentSection `json:"sections"`
}

// Chunks flattens all section chunks for vector upsert.
func (d *ParsedDocument) Chunks() []*Chunk {
	var out []*Chunk
	for _, s := range d.Sections {
		out = append(out, s.Chunks...)
	}
	return out
}

// =============================================================================
// Delta Sync
// =============================================================================

// SyncMode selects how much work a sync tick does.
type SyncMode string

const (
	SyncFull        SyncMode = "full"        // Ignore the ledger, reprocess everything
	SyncIncremental SyncMode = "incremental" // Four-way delta against the ledger
	SyncForce       SyncMode = "force"       // Incremental walk but recompute embeddings
)

// FileClass splits tracked paths into parser pipelines.
type FileClass string

const (
	FileClassCode     FileClass = "code"
	FileClassDocument FileClass = "document"
)

// LedgerEntry is one row of the delta-sync file ledger.
type LedgerEntry struct {
	ContentHash  string    `json:"content_hash"`
	Size         int64     `json:"size"`
	Type         FileClass `json:"type"`
	LastSyncedAt time.Time `json:"last_synced_at"`
}

// SyncError records a per-file failure that did not abort the tick.
type SyncError struct {
	Path    string `json:"path"`
	Op      string `json:"op"` // parse, graph, vector, embed
	Message string `json:"message"`
}

// SyncStats is the result of one sync tick.
type SyncStats struct {
	Mode            SyncMode      `json:"mode"`
	Added           []string      `json:"added,omitempty"`
	Modified        []string      `json:"modified,omitempty"`
	Deleted         []string      `json:"deleted,omitempty"`
	Unchanged       int           `json:"unchanged"`
	SymbolsUpserted int           `json:"symbols_upserted"`
	ChunksEmbedded  int           `json:"chunks_embedded"`
	CacheHits       int           `json:"cache_hits"`
	UnresolvedCalls int           `json:"unresolved_calls"`
	CommitsImported int           `json:"commits_imported"`
	Errors          []SyncError   `json:"errors,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// =============================================================================
// Vector Store
// =============================================================================

// Collection names the five logical vector collections per repo.
type Collection string

const (
	CollectionCodeChunks     Collection = "code_chunks"
	CollectionDocstrings     Collection = "docstrings"
	CollectionCommits        Collection = "commits"
	CollectionDocumentChunks Collection = "document_chunks"
	CollectionSummaries      Collection = "summaries"
)

// AllCollections lists every per-repo collection.
var AllCollections = []Collection{
	CollectionCodeChunks, CollectionDocstrings, CollectionCommits,
	CollectionDocumentChunks, CollectionSummaries,
}

// CollectionName applies the per-repo isolation rule <repoId>_<kind>.
func CollectionName(repoID string, kind Collection) string {
	if repoID == "" {
		return string(kind)
	}
	return repoID + "_" + string(kind)
}

// VectorPoint is one stored vector with its payload.
// Payload always mirrors the id under "_id" for scan-recovery.
type VectorPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// VectorHit is one search result, sorted by cosine similarity descending.
type VectorHit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload,omitempty"`
}

// =============================================================================
// Hierarchical Summaries
// =============================================================================

// Summary levels. Level 0 is a raw chunk and is never stored as a summary.
const (
	LevelSymbol    = 1
	LevelFile      = 2
	LevelDirectory = 3
	LevelRepo      = 4
)

// SummaryID builds the stable id "L<level>:<path-or-qualified-name>".
func SummaryID(level int, key string) string {
	return fmt.Sprintf("L%d:%s", level, key)
}

// HierarchicalSummary is one node of the summary pyramid.
type HierarchicalSummary struct {
	ID          string   `json:"id"`
	Level       int      `json:"level"`
	Parent      string   `json:"parent,omitempty"`
	Children    []string `json:"children,omitempty"`
	Summary     string   `json:"summary"`
	Keywords    []string `json:"keywords,omitempty"`
	ContentHash string   `json:"content_hash"`
}

// =============================================================================
// Context Manifold
// =============================================================================

// Dimension names the nine manifold dimensions.
type Dimension string

const (
	DimStructural   Dimension = "structural"
	DimSemantic     Dimension = "semantic"
	DimTemporal     Dimension = "temporal"
	DimRequirements Dimension = "requirements"
	DimSummary      Dimension = "summary"
	DimNavigational Dimension = "navigational"
	DimSession      Dimension = "session"
	DimIntent       Dimension = "intent"
	DimImpact       Dimension = "impact"
)

// AllDimensions in assembly order.
var AllDimensions = []Dimension{
	DimStructural, DimSemantic, DimTemporal, DimRequirements, DimSummary,
	DimNavigational, DimSession, DimIntent, DimImpact,
}

// DimensionSignal is one dimension's answer to one query.
type DimensionSignal struct {
	Dimension Dimension `json:"dimension"`
	Score     float64   `json:"score"`  // 0..1 relevance
	Budget    int       `json:"budget"` // Allocated bytes
	Refs      []string  `json:"refs,omitempty"`
	Fragment  string    `json:"fragment,omitempty"`
	Available bool      `json:"available"`
}

// ContextFormat selects the rendering of assembled context.
type ContextFormat string

const (
	FormatXML      ContextFormat = "xml"
	FormatMarkdown ContextFormat = "markdown"
	FormatJSON     ContextFormat = "json"
)

// ContextResult is the assembled answer to a context query.
type ContextResult struct {
	Query          string            `json:"query"`
	Content        string            `json:"content"`
	Format         ContextFormat     `json:"format"`
	DimensionsUsed []Dimension       `json:"dimensions_used"`
	Signals        []DimensionSignal `json:"signals,omitempty"`
	Fallback       bool              `json:"fallback"`
	BudgetBytes    int               `json:"budget_bytes"`
	UsedBytes      int               `json:"used_bytes"`
}

// =============================================================================
// Traversal
// =============================================================================

// Depth levels of a traversal position.
const (
	DepthRepo   = 0
	DepthModule = 1
	DepthFile   = 2
	DepthSymbol = 3
)

// Direction is a navigation move.
type Direction string

const (
	DirIn      Direction = "in"
	DirOut     Direction = "out"
	DirLateral Direction = "lateral"
	DirJump    Direction = "jump"
	DirStay    Direction = "stay"
)

// Position is a location in the codebase hierarchy.
type Position struct {
	Module    string    `json:"module,omitempty"`
	File      string    `json:"file,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Depth     int       `json:"depth"`
	Timestamp time.Time `json:"timestamp"`
}

// TraversalSession carries a position and its history.
type TraversalSession struct {
	ID           string     `json:"id"`
	Position     Position   `json:"position"`
	History      []Position `json:"history"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
}

// TraversalContext is the context payload of a traversal result.
type TraversalContext struct {
	Summary string   `json:"summary,omitempty"`
	Code    string   `json:"code,omitempty"`
	Files   []string `json:"files,omitempty"`
	Symbols []string `json:"symbols,omitempty"`
	Callers []string `json:"callers,omitempty"`
	Callees []string `json:"callees,omitempty"`
	Imports []string `json:"imports,omitempty"`
	Related []string `json:"related,omitempty"`
}

// TraversalContextResult is the full answer to a traversal move.
type TraversalContextResult struct {
	SessionID string           `json:"session_id"`
	Position  Position         `json:"position"`
	Context   TraversalContext `json:"context"`
	Hints     []string         `json:"hints,omitempty"`
}

// =============================================================================
// Authored Metadata
// =============================================================================

// AuthoredKind distinguishes the authored entry payloads.
type AuthoredKind string

const (
	AuthoredDocumentMeta AuthoredKind = "document_meta"
	AuthoredRelationship AuthoredKind = "relationship"
	AuthoredAnnotation   AuthoredKind = "annotation"
)

// AuthoredEntry is human-created metadata that survives full resync.
type AuthoredEntry struct {
	ID        string         `json:"id"`
	Kind      AuthoredKind   `json:"kind"`
	Path      string         `json:"path,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	CreatedBy string         `json:"created_by,omitempty"`
	GitCommit string         `json:"git_commit,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// =============================================================================
// Helpers
// =============================================================================

// HashBytes returns the hex sha256 of content.
func HashBytes(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// Slugify converts heading text to a stable anchor slug.
func Slugify(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
