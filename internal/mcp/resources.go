package mcp

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/controlVector/cv-git/pkg/types"
)

// registerResources exposes read-only views of repository state.
func (s *Server) registerResources(mcpServer *server.MCPServer) {
	mcpServer.AddResource(mcp.NewResource(
		"cv://context/auto",
		"Automatic context",
		mcp.WithResourceDescription("Manifold context assembled from the current branch and working tree, no explicit query"),
		mcp.WithMIMEType("text/markdown"),
	), s.readAutoContext)

	mcpServer.AddResource(mcp.NewResource(
		"cv://graph/summary",
		"Graph summary",
		mcp.WithResourceDescription("Node and edge counts of the knowledge graph"),
		mcp.WithMIMEType("application/json"),
	), s.readGraphSummary)

	mcpServer.AddResource(mcp.NewResource(
		"cv://status",
		"System status",
		mcp.WithResourceDescription("Graph, vector, ledger, cache, and session status"),
		mcp.WithMIMEType("application/json"),
	), s.readStatus)
}

// readAutoContext derives a query from the branch name and recent
// activity, then assembles context for it.
func (s *Server) readAutoContext(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	query := s.autoQuery()
	result, err := s.manifold.Assemble(ctx, query, 0, nil, types.FormatMarkdown)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      req.Params.URI,
		MIMEType: "text/markdown",
		Text:     result.Content,
	}}, nil
}

// autoQuery falls back to a generic overview query when the branch
// carries no intent.
func (s *Server) autoQuery() string {
	branch, _ := currentBranchName(s.paths.Root)
	if branch != "" && branch != "main" && branch != "master" && branch != "HEAD" {
		return "current work on " + strings.NewReplacer("/", " ", "-", " ", "_", " ").Replace(branch)
	}
	return "codebase overview"
}

func currentBranchName(root string) (string, error) {
	out, err := exec.Command("git", "-C", root, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func (s *Server) readGraphSummary(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	stats, err := s.graph.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      req.Params.URI,
		MIMEType: "application/json",
		Text:     string(data),
	}}, nil
}

func (s *Server) readStatus(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(s.statusSnapshot(ctx), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{mcp.TextResourceContents{
		URI:      req.Params.URI,
		MIMEType: "application/json",
		Text:     string(data),
	}}, nil
}
