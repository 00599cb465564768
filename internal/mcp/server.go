// Package mcp exposes the code-intelligence layer as MCP tools over
// stdio.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/controlVector/cv-git/internal/authored"
	"github.com/controlVector/cv-git/internal/config"
	"github.com/controlVector/cv-git/internal/docs"
	"github.com/controlVector/cv-git/internal/embedcache"
	"github.com/controlVector/cv-git/internal/manifold"
	"github.com/controlVector/cv-git/internal/repo"
	"github.com/controlVector/cv-git/internal/search"
	"github.com/controlVector/cv-git/internal/summarize"
	"github.com/controlVector/cv-git/internal/syncer"
	"github.com/controlVector/cv-git/internal/traverse"
	"github.com/controlVector/cv-git/pkg/provider"
)

// Server wires every service behind the tool surface.
type Server struct {
	mcpServer *server.MCPServer

	config     *config.Config
	paths      repo.Paths
	repoID     string
	graph      provider.GraphStore
	vector     provider.VectorStore
	searcher   *search.Service
	syncer     *syncer.Syncer
	summarizer *summarize.Summarizer
	traverser  *traverse.Engine
	manifold   *manifold.Manifold
	docs       *docs.Service
	authored   *authored.Log
	cache      *embedcache.Cache
	logger     *slog.Logger
}

// Config contains server dependencies.
type Config struct {
	Config     *config.Config
	Paths      repo.Paths
	RepoID     string
	Graph      provider.GraphStore
	Vector     provider.VectorStore
	Searcher   *search.Service
	Syncer     *syncer.Syncer
	Summarizer *summarize.Summarizer
	Traverser  *traverse.Engine
	Manifold   *manifold.Manifold
	Docs       *docs.Service
	Authored   *authored.Log
	Cache      *embedcache.Cache
	Logger     *slog.Logger
}

// New creates the MCP server and registers tools and resources.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:     cfg.Config,
		paths:      cfg.Paths,
		repoID:     cfg.RepoID,
		graph:      cfg.Graph,
		vector:     cfg.Vector,
		searcher:   cfg.Searcher,
		syncer:     cfg.Syncer,
		summarizer: cfg.Summarizer,
		traverser:  cfg.Traverser,
		manifold:   cfg.Manifold,
		docs:       cfg.Docs,
		authored:   cfg.Authored,
		cache:      cfg.Cache,
		logger:     logger.With("component", "mcp"),
	}

	mcpServer := server.NewMCPServer(
		"cv-git",
		"0.1.0",
		server.WithLogging(),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools(mcpServer)
	s.registerResources(mcpServer)
	s.mcpServer = mcpServer
	return s, nil
}

// registerTools registers the tool surface.
func (s *Server) registerTools(mcpServer *server.MCPServer) {
	// search_code - semantic search over code and related collections
	mcpServer.AddTool(mcp.NewTool("search_code",
		mcp.WithDescription("Search the repository using semantic similarity"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 10)")),
		mcp.WithString("scope", mcp.Description("Collection: code, docstrings, documents, commits (default code)")),
		mcp.WithString("language", mcp.Description("Filter by language")),
		mcp.WithString("file", mcp.Description("Filter by file path")),
	), s.instrument("search_code", s.handleSearchCode))

	// get_context - manifold-assembled context for a query
	mcpServer.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Assemble multi-dimensional context for a natural-language query"),
		mcp.WithString("query", mcp.Required(), mcp.Description("What you want context about")),
		mcp.WithNumber("budget", mcp.Description("Byte budget for the assembled context")),
		mcp.WithString("format", mcp.Description("Output format: markdown, xml, json (default markdown)")),
	), s.instrument("get_context", s.handleGetContext))

	// sync - run a sync tick
	mcpServer.AddTool(mcp.NewTool("sync",
		mcp.WithDescription("Synchronize the knowledge graph and vector index with the working tree"),
		mcp.WithString("mode", mcp.Description("Sync mode: full, incremental, force (default incremental)")),
		mcp.WithBoolean("summarize", mcp.Description("Regenerate hierarchical summaries after sync")),
	), s.instrument("sync", s.handleSync))

	// graph_query - read-only cypher escape hatch
	mcpServer.AddTool(mcp.NewTool("graph_query",
		mcp.WithDescription("Run a read-only graph query (Cypher). Mutating clauses are rejected"),
		mcp.WithString("query", mcp.Required(), mcp.Description("Cypher query, MATCH/RETURN only")),
		mcp.WithNumber("limit", mcp.Description("Row cap applied when the query has no LIMIT (default 50)")),
	), s.instrument("graph_query", s.handleGraphQuery))

	// find_path - shortest CALLS/IMPORTS path
	mcpServer.AddTool(mcp.NewTool("find_path",
		mcp.WithDescription("Find the shortest call/import path between two symbols or files"),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source qualified name or file path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target qualified name or file path")),
		mcp.WithNumber("max_depth", mcp.Description("Maximum path length (default 6)")),
	), s.instrument("find_path", s.handleFindPath))

	// traverse - move through the codebase hierarchy
	mcpServer.AddTool(mcp.NewTool("traverse",
		mcp.WithDescription("Navigate the codebase hierarchy with a persistent session"),
		mcp.WithString("direction", mcp.Required(), mcp.Description("Move: in, out, lateral, jump, stay")),
		mcp.WithString("target", mcp.Description("Target module, file, or symbol (required for in/lateral/jump)")),
		mcp.WithString("session_id", mcp.Description("Traversal session to continue (new one when omitted)")),
	), s.instrument("traverse", s.handleTraverse))

	// explain_symbol - symbol with call neighborhood and summary
	mcpServer.AddTool(mcp.NewTool("explain_symbol",
		mcp.WithDescription("Explain a symbol: definition, summary, callers, callees"),
		mcp.WithString("symbol", mcp.Required(), mcp.Description("Qualified name or bare name (must be unambiguous)")),
	), s.instrument("explain_symbol", s.handleExplainSymbol))

	// list_dimensions - manifold dimension states
	mcpServer.AddTool(mcp.NewTool("list_dimensions",
		mcp.WithDescription("List the context manifold's dimension states"),
		mcp.WithBoolean("refresh", mcp.Description("Recompute dimension state before listing")),
	), s.instrument("list_dimensions", s.handleListDimensions))

	// record_session_knowledge - persist what a session learned
	mcpServer.AddTool(mcp.NewTool("record_session_knowledge",
		mcp.WithDescription("Record what this agent session learned, linked to the files and symbols involved"),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Agent session identifier")),
		mcp.WithString("summary", mcp.Required(), mcp.Description("What was learned or decided")),
		mcp.WithString("concern", mcp.Description("Topic or concern label")),
		mcp.WithArray("files_touched", mcp.Description("Repo-relative file paths involved")),
		mcp.WithArray("symbols_referenced", mcp.Description("Qualified symbol names involved")),
	), s.instrument("record_session_knowledge", s.handleRecordSessionKnowledge))

	// docs_ingest - bring an external document into the index
	mcpServer.AddTool(mcp.NewTool("docs_ingest",
		mcp.WithDescription("Ingest an external document (spec, ticket, design note) into the document index"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Document name")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("source", mcp.Description("Origin URL or path")),
	), s.instrument("docs_ingest", s.handleDocsIngest))

	// docs_list - registry of ingested documents
	mcpServer.AddTool(mcp.NewTool("docs_list",
		mcp.WithDescription("List ingested documents"),
	), s.instrument("docs_list", s.handleDocsList))

	// authored_record - write durable human-authored metadata
	mcpServer.AddTool(mcp.NewTool("authored_record",
		mcp.WithDescription("Record durable authored metadata (document_meta, relationship, annotation) that survives resync"),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entry kind: document_meta, relationship, annotation")),
		mcp.WithString("path", mcp.Description("File or document path the entry is about")),
		mcp.WithObject("payload", mcp.Description("Type-specific payload")),
		mcp.WithString("created_by", mcp.Description("Author identifier")),
	), s.instrument("authored_record", s.handleAuthoredRecord))

	// authored_export - portable bundle of all authored metadata
	mcpServer.AddTool(mcp.NewTool("authored_export",
		mcp.WithDescription("Export all authored metadata as a portable bundle"),
	), s.instrument("authored_export", s.handleAuthoredExport))

	// authored_import - merge a bundle
	mcpServer.AddTool(mcp.NewTool("authored_import",
		mcp.WithDescription("Import an authored metadata bundle; newer entries win"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle JSON from authored_export")),
	), s.instrument("authored_import", s.handleAuthoredImport))

	// status - stores, ledger, cache, sessions
	mcpServer.AddTool(mcp.NewTool("status",
		mcp.WithDescription("Get graph, vector, ledger, and session status"),
	), s.instrument("status", s.handleStatus))
}

// instrument logs each call with its duration and outcome.
func (s *Server) instrument(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := h(ctx, req)
		attrs := []any{"tool", name, "duration", time.Since(start)}
		switch {
		case err != nil:
			s.logger.Error("tool call failed", append(attrs, "error", err)...)
		case res != nil && res.IsError:
			s.logger.Warn("tool call rejected", attrs...)
		default:
			s.logger.Info("tool call", attrs...)
		}
		return res, err
	}
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(data))
}
