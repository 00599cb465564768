package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/controlVector/cv-git/pkg/types"
)

// reply is a parsed GRAPH.QUERY response: column names plus rows of
// scalar values. Queries in this package always RETURN scalars, never
// whole nodes, which keeps the wire format uniform.
type reply struct {
	columns []string
	rows    [][]any
}

// rawQuery executes one Cypher statement against the repo graph.
func (s *Store) rawQuery(ctx context.Context, cypher string) (*reply, error) {
	res, err := s.client.Do(ctx, "GRAPH.QUERY", s.graphName, cypher).Result()
	if err != nil {
		if isConnErr(err) {
			return nil, fmt.Errorf("%w: %v", types.ErrGraphUnavailable, err)
		}
		return nil, fmt.Errorf("graph query: %w", err)
	}
	return parseReply(res)
}

func isConnErr(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "closed")
}

// parseReply unpacks the three-element GRAPH.QUERY response:
// header, result rows, and execution statistics.
func parseReply(res any) (*reply, error) {
	outer, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected graph reply type %T", res)
	}
	r := &reply{}
	if len(outer) < 2 {
		// Write-only queries return just statistics.
		return r, nil
	}

	if header, ok := outer[0].([]any); ok {
		for _, h := range header {
			r.columns = append(r.columns, asString(h))
		}
	}
	if data, ok := outer[1].([]any); ok {
		for _, row := range data {
			if cells, ok := row.([]any); ok {
				r.rows = append(r.rows, cells)
			}
		}
	}
	return r, nil
}

// Query is the ad-hoc escape hatch. Parameters are inlined with
// client-side escaping before execution.
func (s *Store) Query(ctx context.Context, expr string, params map[string]any) ([]map[string]any, error) {
	for k, v := range params {
		expr = strings.ReplaceAll(expr, "$"+k, formatValue(v))
	}
	rep, err := s.rawQuery(ctx, expr)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rep.rows))
	for _, row := range rep.rows {
		m := make(map[string]any, len(row))
		for i, cell := range row {
			name := fmt.Sprintf("col%d", i)
			if i < len(rep.columns) {
				name = rep.columns[i]
			}
			m[name] = cell
		}
		out = append(out, m)
	}
	return out, nil
}

// =============================================================================
// Typed reads
// =============================================================================

const fileReturn = `f.path, f.language, f.git_hash, f.size, f.lines_of_code, f.complexity, f.last_modified`

// GetFile looks up one File node by path.
func (s *Store) GetFile(ctx context.Context, path string) (*types.FileNode, error) {
	q := fmt.Sprintf(`MATCH (f:File {path: %s}) RETURN %s`, quote(path), fileReturn)
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rep.rows) == 0 {
		return nil, fmt.Errorf("%w: file %s", types.ErrNotFound, path)
	}
	return scanFile(rep.rows[0]), nil
}

func scanFile(row []any) *types.FileNode {
	return &types.FileNode{
		Path:         asString(at(row, 0)),
		Language:     asString(at(row, 1)),
		GitHash:      asString(at(row, 2)),
		Size:         int64(asInt(at(row, 3))),
		LinesOfCode:  asInt(at(row, 4)),
		Complexity:   asInt(at(row, 5)),
		LastModified: parseTime(asString(at(row, 6))),
	}
}

const symbolReturn = `s.qualified_name, s.name, s.kind, s.file, s.start_line, s.end_line, s.signature, s.docstring, s.visibility, s.is_async, s.is_static, s.complexity, s.vector_ids`

// GetSymbol looks up one Symbol node by qualified name.
func (s *Store) GetSymbol(ctx context.Context, qualifiedName string) (*types.SymbolNode, error) {
	q := fmt.Sprintf(`MATCH (s:Symbol {qualified_name: %s}) RETURN %s`, quote(qualifiedName), symbolReturn)
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rep.rows) == 0 {
		return nil, fmt.Errorf("%w: symbol %s", types.ErrNotFound, qualifiedName)
	}
	return scanSymbol(rep.rows[0]), nil
}

func scanSymbol(row []any) *types.SymbolNode {
	return &types.SymbolNode{
		QualifiedName: asString(at(row, 0)),
		Name:          asString(at(row, 1)),
		Kind:          types.SymbolKind(asString(at(row, 2))),
		File:          asString(at(row, 3)),
		StartLine:     asInt(at(row, 4)),
		EndLine:       asInt(at(row, 5)),
		Signature:     asString(at(row, 6)),
		Docstring:     asString(at(row, 7)),
		Visibility:    asString(at(row, 8)),
		IsAsync:       asBool(at(row, 9)),
		IsStatic:      asBool(at(row, 10)),
		Complexity:    asInt(at(row, 11)),
		VectorIDs:     asStrings(at(row, 12)),
	}
}

// GetCommit looks up one Commit node by SHA.
func (s *Store) GetCommit(ctx context.Context, sha string) (*types.CommitNode, error) {
	q := fmt.Sprintf(`MATCH (c:Commit {sha: %s}) RETURN c.sha, c.message, c.author, c.timestamp, c.files_changed, c.insertions, c.deletions`, quote(sha))
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rep.rows) == 0 {
		return nil, fmt.Errorf("%w: commit %s", types.ErrNotFound, sha)
	}
	row := rep.rows[0]
	return &types.CommitNode{
		SHA:          asString(at(row, 0)),
		Message:      asString(at(row, 1)),
		Author:       asString(at(row, 2)),
		Timestamp:    parseTime(asString(at(row, 3))),
		FilesChanged: asInt(at(row, 4)),
		Insertions:   asInt(at(row, 5)),
		Deletions:    asInt(at(row, 6)),
	}, nil
}

// GetDocument looks up one Document node by path.
func (s *Store) GetDocument(ctx context.Context, path string) (*types.DocumentNode, error) {
	q := fmt.Sprintf(`MATCH (d:Document {path: %s}) RETURN d.path, d.title, d.document_type, d.status, d.git_hash, d.section_count, d.last_modified`, quote(path))
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(rep.rows) == 0 {
		return nil, fmt.Errorf("%w: document %s", types.ErrNotFound, path)
	}
	row := rep.rows[0]
	return &types.DocumentNode{
		Path:         asString(at(row, 0)),
		Title:        asString(at(row, 1)),
		DocumentType: types.DocumentType(asString(at(row, 2))),
		Status:       types.DocumentStatus(asString(at(row, 3))),
		GitHash:      asString(at(row, 4)),
		SectionCount: asInt(at(row, 5)),
		LastModified: parseTime(asString(at(row, 6))),
	}, nil
}

// SymbolsInFile returns the symbols a file defines, ordered by line.
func (s *Store) SymbolsInFile(ctx context.Context, path string) ([]*types.SymbolNode, error) {
	q := fmt.Sprintf(`MATCH (:File {path: %s})-[:DEFINES]->(s:Symbol) RETURN %s ORDER BY s.start_line`, quote(path), symbolReturn)
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.SymbolNode, 0, len(rep.rows))
	for _, row := range rep.rows {
		out = append(out, scanSymbol(row))
	}
	return out, nil
}

// Callers returns symbols with a CALLS edge into the given symbol.
func (s *Store) Callers(ctx context.Context, qualifiedName string, limit int) ([]*types.SymbolNode, error) {
	q := fmt.Sprintf(`MATCH (s:Symbol)-[:CALLS]->(:Symbol {qualified_name: %s}) RETURN %s LIMIT %d`,
		quote(qualifiedName), symbolReturn, limitOr(limit, 50))
	return s.symbolQuery(ctx, q)
}

// Callees returns symbols the given symbol calls.
func (s *Store) Callees(ctx context.Context, qualifiedName string, limit int) ([]*types.SymbolNode, error) {
	q := fmt.Sprintf(`MATCH (:Symbol {qualified_name: %s})-[:CALLS]->(s:Symbol) RETURN %s LIMIT %d`,
		quote(qualifiedName), symbolReturn, limitOr(limit, 50))
	return s.symbolQuery(ctx, q)
}

func (s *Store) symbolQuery(ctx context.Context, q string) ([]*types.SymbolNode, error) {
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.SymbolNode, 0, len(rep.rows))
	for _, row := range rep.rows {
		out = append(out, scanSymbol(row))
	}
	return out, nil
}

// FindPath runs a breadth-first search over CALLS and IMPORTS edges.
// The search is client-side so depth bounding and cycle handling stay
// predictable regardless of backend version.
func (s *Store) FindPath(ctx context.Context, fromKey, toKey string, maxDepth int) (*types.GraphPath, error) {
	if maxDepth <= 0 {
		maxDepth = 5
	}
	if fromKey == toKey {
		return &types.GraphPath{Nodes: []string{fromKey}, Length: 0}, nil
	}

	visited := map[string]bool{fromKey: true}
	frontier := []*pathStep{{key: fromKey}}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []*pathStep
		for _, cur := range frontier {
			neighbors, err := s.neighbors(ctx, cur.key)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.key] {
					continue
				}
				visited[n.key] = true
				st := &pathStep{key: n.key, prev: cur, label: n.label}
				if n.key == toKey {
					return buildPath(st), nil
				}
				next = append(next, st)
			}
		}
		frontier = next
	}
	return nil, fmt.Errorf("%w: no path from %s to %s within depth %d", types.ErrNotFound, fromKey, toKey, maxDepth)
}

type neighbor struct {
	key   string
	label string
}

// neighbors returns outgoing CALLS/IMPORTS targets of a node keyed by
// path or qualified name.
func (s *Store) neighbors(ctx context.Context, key string) ([]neighbor, error) {
	q := fmt.Sprintf(`MATCH (a)-[r:CALLS|IMPORTS]->(b) WHERE a.qualified_name = %s OR a.path = %s RETURN type(r), b.qualified_name, b.path`,
		quote(key), quote(key))
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]neighbor, 0, len(rep.rows))
	for _, row := range rep.rows {
		k := asString(at(row, 1))
		if k == "" {
			k = asString(at(row, 2))
		}
		if k != "" {
			out = append(out, neighbor{key: k, label: asString(at(row, 0))})
		}
	}
	return out, nil
}

type pathStep struct {
	key   string
	prev  *pathStep
	label string
}

func buildPath(last *pathStep) *types.GraphPath {
	var nodes, edges []string
	for s := last; s != nil; s = s.prev {
		nodes = append([]string{s.key}, nodes...)
		if s.label != "" {
			edges = append([]string{s.label}, edges...)
		}
	}
	return &types.GraphPath{Nodes: nodes, Edges: edges, Length: len(edges)}
}

// Hubs returns high-degree symbols on CALLS edges.
func (s *Store) Hubs(ctx context.Context, threshold, limit int) ([]*types.HubSymbol, error) {
	q := fmt.Sprintf(`MATCH (s:Symbol) OPTIONAL MATCH (s)<-[i:CALLS]-() WITH s, count(i) AS indeg OPTIONAL MATCH (s)-[o:CALLS]->() WITH s, indeg, count(o) AS outdeg WHERE indeg + outdeg >= %d RETURN s.qualified_name, s.name, s.file, indeg, outdeg ORDER BY indeg + outdeg DESC LIMIT %d`,
		threshold, limitOr(limit, 20))
	rep, err := s.rawQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]*types.HubSymbol, 0, len(rep.rows))
	for _, row := range rep.rows {
		out = append(out, &types.HubSymbol{
			QualifiedName: asString(at(row, 0)),
			Name:          asString(at(row, 1)),
			File:          asString(at(row, 2)),
			InDegree:      asInt(at(row, 3)),
			OutDegree:     asInt(at(row, 4)),
		})
	}
	return out, nil
}

// GetStats returns node and edge counts by label.
func (s *Store) GetStats(ctx context.Context) (*types.GraphStats, error) {
	stats := &types.GraphStats{
		Nodes: map[string]int{},
		Edges: map[string]int{},
	}

	rep, err := s.rawQuery(ctx, `MATCH (n) RETURN labels(n)[0], count(n)`)
	if err != nil {
		return nil, err
	}
	for _, row := range rep.rows {
		stats.Nodes[asString(at(row, 0))] = asInt(at(row, 1))
	}

	rep, err = s.rawQuery(ctx, `MATCH ()-[r]->() RETURN type(r), count(r)`)
	if err != nil {
		return nil, err
	}
	for _, row := range rep.rows {
		stats.Edges[asString(at(row, 0))] = asInt(at(row, 1))
	}
	return stats, nil
}

// =============================================================================
// Scalar coercion
// =============================================================================

func at(row []any, i int) any {
	if i < len(row) {
		return row[i]
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int64:
		return t != 0
	case string:
		return t == "true" || t == "1"
	default:
		return false
	}
}

func asStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}
