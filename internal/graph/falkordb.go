// Package graph implements the knowledge graph store on FalkorDB.
// FalkorDB speaks the Redis protocol, so the client is go-redis issuing
// GRAPH.QUERY commands against the per-repo graph key.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultURL is the local FalkorDB endpoint.
const DefaultURL = "redis://localhost:6379"

// Store implements provider.GraphStore against FalkorDB.
type Store struct {
	client    *redis.Client
	graphName string
}

// New creates a new FalkorDB store. The graph name is cv_<repoId>
// unless an explicit database override is configured.
func New(cfg provider.GraphConfig) (*Store, error) {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: graph url %q: %v", types.ErrInvalidConfig, url, err)
	}

	name := cfg.Database
	if name == "" {
		if cfg.RepoID != "" {
			name = "cv_" + cfg.RepoID
		} else {
			name = "cv_default"
		}
	}

	return &Store{
		client:    redis.NewClient(opts),
		graphName: name,
	}, nil
}

// Name returns the backend name.
func (s *Store) Name() string {
	return "falkordb"
}

// GraphName returns the per-repo graph key.
func (s *Store) GraphName() string {
	return s.graphName
}

// indexSpecs are created on connect. FalkorDB errors on duplicate
// index creation; those errors are swallowed.
var indexSpecs = []struct{ label, property string }{
	{"File", "path"},
	{"File", "language"},
	{"File", "git_hash"},
	{"Symbol", "qualified_name"},
	{"Symbol", "name"},
	{"Symbol", "file"},
	{"Symbol", "kind"},
	{"Module", "path"},
	{"Module", "name"},
	{"Commit", "sha"},
	{"Commit", "author"},
	{"Commit", "timestamp"},
	{"Document", "path"},
	{"SessionKnowledge", "key"},
}

// Connect verifies the connection and ensures schema indexes.
func (s *Store) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrGraphUnavailable, err)
	}
	for _, idx := range indexSpecs {
		q := fmt.Sprintf("CREATE INDEX FOR (n:%s) ON (n.%s)", idx.label, idx.property)
		if _, err := s.rawQuery(ctx, q); err != nil {
			if strings.Contains(err.Error(), "already indexed") ||
				strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("create index %s.%s: %w", idx.label, idx.property, err)
		}
	}
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// =============================================================================
// Upserts
// =============================================================================

// UpsertFile merges a File node keyed on path.
func (s *Store) UpsertFile(ctx context.Context, n *types.FileNode) error {
	q := fmt.Sprintf(`MERGE (f:File {path: %s}) SET f.language = %s, f.git_hash = %s, f.size = %d, f.lines_of_code = %d, f.complexity = %d, f.last_modified = %s`,
		quote(n.Path), quote(n.Language), quote(n.GitHash),
		n.Size, n.LinesOfCode, n.Complexity, quote(formatTime(n.LastModified)))
	_, err := s.rawQuery(ctx, q)
	return err
}

// UpsertSymbol merges a Symbol node keyed on qualified name.
func (s *Store) UpsertSymbol(ctx context.Context, n *types.SymbolNode) error {
	q := fmt.Sprintf(`MERGE (s:Symbol {qualified_name: %s}) SET s.name = %s, s.kind = %s, s.file = %s, s.start_line = %d, s.end_line = %d, s.signature = %s, s.docstring = %s, s.visibility = %s, s.is_async = %t, s.is_static = %t, s.complexity = %d, s.vector_ids = %s`,
		quote(n.QualifiedName), quote(n.Name), quote(string(n.Kind)), quote(n.File),
		n.StartLine, n.EndLine, quote(n.Signature), quote(n.Docstring),
		quote(n.Visibility), n.IsAsync, n.IsStatic, n.Complexity, quoteList(n.VectorIDs))
	_, err := s.rawQuery(ctx, q)
	return err
}

// UpsertModule merges a Module node keyed on directory path.
func (s *Store) UpsertModule(ctx context.Context, n *types.ModuleNode) error {
	q := fmt.Sprintf(`MERGE (m:Module {path: %s}) SET m.name = %s, m.type = %s, m.file_count = %d, m.symbol_count = %d`,
		quote(n.Path), quote(n.Name), quote(string(n.Type)), n.FileCount, n.SymbolCount)
	_, err := s.rawQuery(ctx, q)
	return err
}

// UpsertCommit merges a Commit node keyed on SHA.
func (s *Store) UpsertCommit(ctx context.Context, n *types.CommitNode) error {
	q := fmt.Sprintf(`MERGE (c:Commit {sha: %s}) SET c.message = %s, c.author = %s, c.timestamp = %s, c.files_changed = %d, c.insertions = %d, c.deletions = %d`,
		quote(n.SHA), quote(n.Message), quote(n.Author), quote(formatTime(n.Timestamp)),
		n.FilesChanged, n.Insertions, n.Deletions)
	_, err := s.rawQuery(ctx, q)
	return err
}

// UpsertDocument merges a Document node keyed on path.
func (s *Store) UpsertDocument(ctx context.Context, n *types.DocumentNode) error {
	q := fmt.Sprintf(`MERGE (d:Document {path: %s}) SET d.title = %s, d.document_type = %s, d.status = %s, d.git_hash = %s, d.section_count = %d, d.last_modified = %s`,
		quote(n.Path), quote(n.Title), quote(string(n.DocumentType)), quote(string(n.Status)),
		quote(n.GitHash), n.SectionCount, quote(formatTime(n.LastModified)))
	_, err := s.rawQuery(ctx, q)
	return err
}

// UpsertSessionKnowledge merges a SessionKnowledge node keyed on
// "<sessionId>:<turn>".
func (s *Store) UpsertSessionKnowledge(ctx context.Context, n *types.SessionKnowledgeNode) error {
	q := fmt.Sprintf(`MERGE (k:SessionKnowledge {key: %s}) SET k.session_id = %s, k.turn_number = %d, k.summary = %s, k.concern = %s, k.files_touched = %s, k.symbols_referenced = %s, k.timestamp = %s`,
		quote(n.Key()), quote(n.SessionID), n.TurnNumber, quote(n.Summary), quote(n.Concern),
		quoteList(n.FilesTouched), quoteList(n.SymbolsReferenced), quote(formatTime(n.Timestamp)))
	_, err := s.rawQuery(ctx, q)
	return err
}

// =============================================================================
// Edges
// =============================================================================

// edgeEndpoints maps each edge type to its endpoint labels and key
// properties. An empty label matches any node by key property.
var edgeEndpoints = map[types.EdgeType]struct {
	fromLabel, fromKey string
	toLabel, toKey     string
}{
	types.EdgeImports:  {"File", "path", "File", "path"},
	types.EdgeDefines:  {"File", "path", "Symbol", "qualified_name"},
	types.EdgeCalls:    {"Symbol", "qualified_name", "Symbol", "qualified_name"},
	types.EdgeInherits: {"Symbol", "qualified_name", "Symbol", "qualified_name"},
	types.EdgeModifies: {"Commit", "sha", "File", "path"},
	types.EdgeTouches:  {"Commit", "sha", "Symbol", "qualified_name"},
	types.EdgeAbout:    {"SessionKnowledge", "key", "", ""},
	types.EdgeFollows:  {"SessionKnowledge", "key", "SessionKnowledge", "key"},
}

// CreateEdge merges a typed relationship. Both endpoints must already
// exist; a missing endpoint makes the merge a silent no-op, which is
// how unresolved references stay out of the graph.
func (s *Store) CreateEdge(ctx context.Context, e *types.Edge) error {
	spec, ok := edgeEndpoints[e.Type]
	if !ok {
		return fmt.Errorf("%w: unknown edge type %q", types.ErrValidation, e.Type)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a:%s {%s: %s}) ", spec.fromLabel, spec.fromKey, quote(e.FromKey))
	if spec.toLabel != "" {
		fmt.Fprintf(&b, "MATCH (b:%s {%s: %s}) ", spec.toLabel, spec.toKey, quote(e.ToKey))
	} else {
		// ABOUT targets either a File or a Symbol.
		fmt.Fprintf(&b, "MATCH (b) WHERE b.path = %s OR b.qualified_name = %s ", quote(e.ToKey), quote(e.ToKey))
	}
	fmt.Fprintf(&b, "MERGE (a)-[r:%s]->(b)", e.Type)

	if len(e.Properties) > 0 {
		var sets []string
		for k, v := range e.Properties {
			sets = append(sets, fmt.Sprintf("r.%s = %s", k, formatValue(v)))
		}
		b.WriteString(" SET " + strings.Join(sets, ", "))
	}

	_, err := s.rawQuery(ctx, b.String())
	return err
}

// =============================================================================
// Deletes
// =============================================================================

// inboundProps lists every relationship property sync writes, so a
// captured edge replays verbatim through CreateEdge.
const inboundProps = `r.line, r.is_conditional, r.call_count, r.source, r.type`

// InboundEdges captures relationships arriving at a file or its
// symbols from nodes outside the file. DeleteFile severs these, and a
// caller in an untouched file would otherwise lose its edge until that
// file itself changes; sync replays the captured set after the file's
// nodes are rebuilt.
func (s *Store) InboundEdges(ctx context.Context, path string) ([]*types.Edge, error) {
	q := fmt.Sprintf(`MATCH (n)-[r]->(t) WHERE (t.path = %s OR t.file = %s) AND coalesce(n.file, '') <> %s AND coalesce(n.path, '') <> %s RETURN type(r), coalesce(n.qualified_name, n.path, n.sha, n.key, ''), coalesce(t.qualified_name, t.path, ''), %s`,
		quote(path), quote(path), quote(path), quote(path), inboundProps)
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Edge, 0, len(rep.rows))
	for _, row := range rep.rows {
		e := &types.Edge{
			Type:    types.EdgeType(asString(at(row, 0))),
			FromKey: asString(at(row, 1)),
			ToKey:   asString(at(row, 2)),
		}
		if e.FromKey == "" || e.ToKey == "" {
			continue
		}
		props := map[string]any{}
		if v := at(row, 3); v != nil {
			props["line"] = asInt(v)
		}
		if v := at(row, 4); v != nil {
			props["is_conditional"] = asBool(v)
		}
		if v := at(row, 5); v != nil {
			props["call_count"] = asInt(v)
		}
		if v := at(row, 6); v != nil {
			props["source"] = asString(v)
		}
		if v := at(row, 7); v != nil {
			props["type"] = asString(v)
		}
		if len(props) > 0 {
			e.Properties = props
		}
		out = append(out, e)
	}
	return out, nil
}

// DeleteFile detach-deletes a File node and every Symbol it defines.
func (s *Store) DeleteFile(ctx context.Context, path string) error {
	q := fmt.Sprintf(`MATCH (f:File {path: %s}) OPTIONAL MATCH (f)-[:DEFINES]->(s:Symbol) DETACH DELETE f, s`, quote(path))
	_, err := s.rawQuery(ctx, q)
	return err
}

// DeleteDocument detach-deletes a Document node.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	q := fmt.Sprintf(`MATCH (d:Document {path: %s}) DETACH DELETE d`, quote(path))
	_, err := s.rawQuery(ctx, q)
	return err
}

// derivedLabels are rebuilt by sync. SessionKnowledge is authored and
// survives Clear.
var derivedLabels = []string{"File", "Symbol", "Module", "Commit", "Document"}

// Clear removes all derived nodes and their edges, preserving
// authored session knowledge.
func (s *Store) Clear(ctx context.Context) error {
	for _, label := range derivedLabels {
		q := fmt.Sprintf(`MATCH (n:%s) DETACH DELETE n`, label)
		if _, err := s.rawQuery(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Escaping
// =============================================================================

// quote escapes a string for inline inclusion in a Cypher query.
// FalkorDB has no server-side parameter binding over GRAPH.QUERY, so
// every string crosses this function.
func quote(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", ``, "\x00", ``)
	return "'" + r.Replace(v) + "'"
}

func quoteList(vs []string) string {
	if len(vs) == 0 {
		return "[]"
	}
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = quote(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return quote(t)
	case bool:
		return fmt.Sprintf("%t", t)
	case int, int32, int64:
		return fmt.Sprintf("%d", t)
	case float32, float64:
		return fmt.Sprintf("%v", t)
	case time.Time:
		return quote(formatTime(t))
	case []string:
		return quoteList(t)
	case nil:
		return "null"
	default:
		return quote(fmt.Sprint(t))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// Ensure Store implements GraphStore.
var _ provider.GraphStore = (*Store)(nil)
