package provider

import (
	"context"

	"github.com/controlVector/cv-git/pkg/types"
)

// GraphStore is a typed client over a labeled property graph.
// All upserts have MERGE semantics keyed on the node's unique key;
// upserting twice with identical properties leaves the graph unchanged.
type GraphStore interface {
	// Name returns the backend name (e.g., "falkordb").
	Name() string

	// Connect opens the shared connection and ensures schema indexes.
	// Index creation is idempotent.
	Connect(ctx context.Context) error

	// Typed upserts.
	UpsertFile(ctx context.Context, n *types.FileNode) error
	UpsertSymbol(ctx context.Context, n *types.SymbolNode) error
	UpsertModule(ctx context.Context, n *types.ModuleNode) error
	UpsertCommit(ctx context.Context, n *types.CommitNode) error
	UpsertDocument(ctx context.Context, n *types.DocumentNode) error
	UpsertSessionKnowledge(ctx context.Context, n *types.SessionKnowledgeNode) error

	// CreateEdge merges a typed relationship keyed on both endpoints and
	// the edge label. Idempotent.
	CreateEdge(ctx context.Context, e *types.Edge) error

	// Point lookups by unique key.
	GetFile(ctx context.Context, path string) (*types.FileNode, error)
	GetSymbol(ctx context.Context, qualifiedName string) (*types.SymbolNode, error)
	GetCommit(ctx context.Context, sha string) (*types.CommitNode, error)
	GetDocument(ctx context.Context, path string) (*types.DocumentNode, error)

	// SymbolsInFile returns symbols defined by a file, ordered by start line.
	SymbolsInFile(ctx context.Context, path string) ([]*types.SymbolNode, error)

	// Callers and Callees walk CALLS edges around a symbol.
	Callers(ctx context.Context, qualifiedName string, limit int) ([]*types.SymbolNode, error)
	Callees(ctx context.Context, qualifiedName string, limit int) ([]*types.SymbolNode, error)

	// FindPath returns a shortest CALLS/IMPORTS path between two keys,
	// bounded by maxDepth. FindPath(a, a) returns the single-node path.
	FindPath(ctx context.Context, fromKey, toKey string, maxDepth int) (*types.GraphPath, error)

	// Hubs returns symbols whose CALLS in-degree + out-degree exceeds the
	// threshold, ordered by degree descending.
	Hubs(ctx context.Context, threshold, limit int) ([]*types.HubSymbol, error)

	// InboundEdges returns relationships arriving at a file or its
	// symbols from nodes outside the file, with their properties.
	// Callers capture these before DeleteFile and replay them through
	// CreateEdge once the file's nodes are rebuilt.
	InboundEdges(ctx context.Context, path string) ([]*types.Edge, error)

	// DeleteFile detach-deletes a File node, its Symbols, and all edges
	// touching them. Dangling edges are forbidden.
	DeleteFile(ctx context.Context, path string) error

	// DeleteDocument detach-deletes a Document node.
	DeleteDocument(ctx context.Context, path string) error

	// Query is the escape hatch for ad-hoc traversals. Parameters are
	// substituted with client-side escaping; never route tool-call
	// arguments through it.
	Query(ctx context.Context, expr string, params map[string]any) ([]map[string]any, error)

	// GetStats returns node and edge counts by label.
	GetStats(ctx context.Context) (*types.GraphStats, error)

	// Clear removes all derived nodes and edges for the repo.
	Clear(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// GraphConfig contains graph store configuration.
type GraphConfig struct {
	URL      string // redis://host:port
	Database string // Explicit graph name override; empty = cv_<repoId>
	RepoID   string // Isolation key from .cv/manifest.json
}
