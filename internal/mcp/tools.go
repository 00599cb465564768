package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/controlVector/cv-git/internal/authored"
	"github.com/controlVector/cv-git/internal/search"
	"github.com/controlVector/cv-git/internal/traverse"
	"github.com/controlVector/cv-git/pkg/types"
)

func (s *Server) handleSearchCode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := req.GetInt("limit", 10)
	scope := req.GetString("scope", "code")
	filter := search.Filter{
		Language: req.GetString("language", ""),
		File:     req.GetString("file", ""),
	}

	var hits []*types.VectorHit
	var err error
	switch scope {
	case "code":
		hits, err = s.searcher.SearchCode(ctx, query, limit, filter)
	case "docstrings":
		hits, err = s.searcher.SearchDocstrings(ctx, query, limit, filter)
	case "documents":
		hits, err = s.searcher.SearchDocuments(ctx, query, limit)
	case "commits":
		hits, err = s.searcher.SearchCommits(ctx, query, limit)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown scope %q (want code, docstrings, documents, commits)", scope)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	results := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		entry := map[string]any{"id": h.ID, "score": h.Score}
		for _, key := range []string{"file", "symbol", "start_line", "end_line", "language", "title", "content"} {
			if v, ok := h.Payload[key]; ok {
				entry[key] = v
			}
		}
		results = append(results, entry)
	}
	return jsonResult(map[string]any{"scope": scope, "count": len(results), "results": results}), nil
}

func (s *Server) handleGetContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	budget := req.GetInt("budget", 0)
	format := types.ContextFormat(req.GetString("format", string(types.FormatMarkdown)))

	result, err := s.manifold.Assemble(ctx, query, budget, nil, format)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("context assembly failed: %v", err)), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	mode := types.SyncMode(req.GetString("mode", string(types.SyncIncremental)))
	switch mode {
	case types.SyncFull, types.SyncIncremental, types.SyncForce:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q (want full, incremental, force)", mode)), nil
	}

	stats, err := s.syncer.Sync(ctx, mode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}

	out := map[string]any{"sync": stats}
	if req.GetBool("summarize", false) {
		sumStats, err := s.summarizer.Run(ctx)
		if err != nil {
			out["summarize_error"] = err.Error()
		} else {
			out["summaries"] = sumStats
		}
	}
	if s.manifold != nil {
		if _, err := s.manifold.Refresh(ctx); err != nil {
			s.logger.Warn("manifold refresh after sync failed", "error", err)
		}
	}
	return jsonResult(out), nil
}

// mutatingClause rejects write cypher in the escape hatch.
var mutatingClause = regexp.MustCompile(`(?i)\b(CREATE|MERGE|DELETE|DETACH|SET|REMOVE|DROP)\b`)

func (s *Server) handleGraphQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	if mutatingClause.MatchString(query) {
		return mcp.NewToolResultError("graph_query is read-only; mutating clauses are not allowed"), nil
	}
	if !regexp.MustCompile(`(?i)\bLIMIT\b`).MatchString(query) {
		query = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(query), ";"), req.GetInt("limit", 50))
	}

	rows, err := s.graph.Query(ctx, query, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return jsonResult(map[string]any{"count": len(rows), "rows": rows}), nil
}

func (s *Server) handleFindPath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from := req.GetString("from", "")
	to := req.GetString("to", "")
	if from == "" || to == "" {
		return mcp.NewToolResultError("from and to are required"), nil
	}
	maxDepth := req.GetInt("max_depth", 6)

	path, err := s.graph.FindPath(ctx, from, to, maxDepth)
	if err != nil {
		if search.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("no path from %q to %q within %d hops", from, to, maxDepth)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("path search failed: %v", err)), nil
	}
	return jsonResult(path), nil
}

func (s *Server) handleTraverse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	direction := types.Direction(req.GetString("direction", ""))
	switch direction {
	case types.DirIn, types.DirOut, types.DirLateral, types.DirJump, types.DirStay:
	default:
		return mcp.NewToolResultError("direction must be one of in, out, lateral, jump, stay"), nil
	}

	result, err := s.traverser.Navigate(ctx, traverse.Move{
		SessionID: req.GetString("session_id", ""),
		Direction: direction,
		Target:    req.GetString("target", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("traversal failed: %v", err)), nil
	}
	return jsonResult(result), nil
}

func (s *Server) handleExplainSymbol(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("symbol", "")
	if name == "" {
		return mcp.NewToolResultError("symbol is required"), nil
	}

	explanation, err := s.searcher.ExplainSymbol(ctx, name)
	if err != nil {
		if search.IsNotFound(err) {
			return mcp.NewToolResultError(fmt.Sprintf("symbol %q not found", name)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("explain failed: %v", err)), nil
	}
	return jsonResult(explanation), nil
}

func (s *Server) handleListDimensions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if req.GetBool("refresh", false) {
		if _, err := s.manifold.Refresh(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %v", err)), nil
		}
	}
	states, err := s.manifold.ListDimensions()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if states == nil {
		return jsonResult(map[string]any{"initialized": false, "dimensions": []any{}}), nil
	}
	return jsonResult(map[string]any{"initialized": true, "dimensions": states}), nil
}

func (s *Server) handleDocsIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	content := req.GetString("content", "")
	if name == "" || content == "" {
		return mcp.NewToolResultError("name and content are required"), nil
	}

	rec, err := s.docs.Ingest(ctx, name, req.GetString("source", ""), []byte(content))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) handleDocsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"documents": s.docs.List()}), nil
}

func (s *Server) handleAuthoredRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind := types.AuthoredKind(req.GetString("kind", ""))
	switch kind {
	case types.AuthoredDocumentMeta, types.AuthoredRelationship, types.AuthoredAnnotation:
	default:
		return mcp.NewToolResultError("kind must be one of document_meta, relationship, annotation"), nil
	}

	entry := &types.AuthoredEntry{
		Kind:      kind,
		Path:      req.GetString("path", ""),
		CreatedBy: req.GetString("created_by", ""),
	}
	if args := req.GetArguments(); args != nil {
		if payload, ok := args["payload"].(map[string]any); ok {
			entry.Payload = payload
		}
	}
	if err := s.authored.Append(entry); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("record failed: %v", err)), nil
	}
	return jsonResult(entry), nil
}

func (s *Server) handleAuthoredExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.authored.Export()), nil
}

func (s *Server) handleAuthoredImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := req.GetString("bundle", "")
	if raw == "" {
		return mcp.NewToolResultError("bundle is required"), nil
	}
	var bundle authored.Bundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid bundle JSON: %v", err)), nil
	}
	stats, err := s.authored.Import(&bundle)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("import failed: %v", err)), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.statusSnapshot(ctx)), nil
}

// statusSnapshot is shared by the status tool and the cv://status
// resource. Partial failures are reported inline, not fatal.
func (s *Server) statusSnapshot(ctx context.Context) map[string]any {
	out := map[string]any{
		"repo_id": s.repoID,
		"root":    s.paths.Root,
	}

	if stats, err := s.graph.GetStats(ctx); err != nil {
		out["graph_error"] = err.Error()
	} else {
		out["graph"] = stats
	}

	collections := map[string]int{}
	for _, kind := range types.AllCollections {
		coll := types.CollectionName(s.repoID, kind)
		if n, err := s.vector.Count(ctx, coll); err == nil {
			collections[string(kind)] = n
		}
	}
	out["vector"] = collections

	out["ledger_files"] = s.syncer.LedgerSize()
	if s.cache != nil {
		out["cache"] = s.cache.Stats()
	}
	out["active_sessions"] = s.traverser.ActiveSessions()
	out["authored_entries"] = s.authored.Len()
	out["ingested_documents"] = len(s.docs.List())
	return out
}
