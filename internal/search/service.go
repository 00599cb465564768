// Package search implements semantic code search and symbol
// explanation over the vector collections and the knowledge graph.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/controlVector/cv-git/internal/summarize"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultLimit is the result count when the caller does not specify one.
const DefaultLimit = 10

// Service answers search and explain queries.
type Service struct {
	graph      provider.GraphStore
	vector     provider.VectorStore
	embedder   provider.EmbeddingProvider
	summarizer *summarize.Summarizer
	repoID     string
	logger     *slog.Logger
}

// New creates a search service.
func New(graph provider.GraphStore, vector provider.VectorStore, embedder provider.EmbeddingProvider, summarizer *summarize.Summarizer, repoID string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		graph:      graph,
		vector:     vector,
		embedder:   embedder,
		summarizer: summarizer,
		repoID:     repoID,
		logger:     logger.With("component", "search"),
	}
}

// Filter narrows a search to exact payload matches.
type Filter struct {
	Language string
	File     string
}

func (f Filter) payload() map[string]any {
	m := map[string]any{}
	if f.Language != "" {
		m["language"] = f.Language
	}
	if f.File != "" {
		m["file"] = f.File
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// SearchCode searches the code chunk collection.
func (s *Service) SearchCode(ctx context.Context, query string, k int, filter Filter) ([]*types.VectorHit, error) {
	return s.search(ctx, types.CollectionCodeChunks, query, k, filter.payload())
}

// SearchDocstrings searches symbol documentation.
func (s *Service) SearchDocstrings(ctx context.Context, query string, k int, filter Filter) ([]*types.VectorHit, error) {
	return s.search(ctx, types.CollectionDocstrings, query, k, filter.payload())
}

// SearchDocuments searches markdown document chunks.
func (s *Service) SearchDocuments(ctx context.Context, query string, k int) ([]*types.VectorHit, error) {
	return s.search(ctx, types.CollectionDocumentChunks, query, k, nil)
}

// SearchCommits searches commit messages.
func (s *Service) SearchCommits(ctx context.Context, query string, k int) ([]*types.VectorHit, error) {
	return s.search(ctx, types.CollectionCommits, query, k, nil)
}

// SearchSummaries drills the summary pyramid top-down between two
// levels, returning hits keyed by level.
func (s *Service) SearchSummaries(ctx context.Context, query string, startLevel, endLevel, k int) (map[int][]*types.VectorHit, error) {
	return s.summarizer.SearchHierarchical(ctx, query, startLevel, endLevel, k)
}

func (s *Service) search(ctx context.Context, kind types.Collection, query string, k int, filter map[string]any) ([]*types.VectorHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrValidation)
	}
	if k <= 0 {
		k = DefaultLimit
	}
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	coll := types.CollectionName(s.repoID, kind)
	return s.vector.Search(ctx, coll, vectors[0], k, filter)
}

// Explanation is the assembled answer for one symbol.
type Explanation struct {
	Symbol  *types.SymbolNode   `json:"symbol"`
	Summary string              `json:"summary,omitempty"`
	Callers []*types.SymbolNode `json:"callers,omitempty"`
	Callees []*types.SymbolNode `json:"callees,omitempty"`
}

// ExplainSymbol resolves a symbol by qualified name, or by bare name
// when unambiguous, and assembles its call neighborhood and summary.
func (s *Service) ExplainSymbol(ctx context.Context, name string) (*Explanation, error) {
	sym, err := s.resolve(ctx, name)
	if err != nil {
		return nil, err
	}

	ex := &Explanation{Symbol: sym}

	if s.summarizer != nil {
		if sum, err := s.summarizer.GetSummary(ctx, types.SummaryID(types.LevelSymbol, sym.QualifiedName)); err == nil {
			ex.Summary = sum.Summary
		}
	}

	if ex.Callers, err = s.graph.Callers(ctx, sym.QualifiedName, 20); err != nil {
		return nil, err
	}
	if ex.Callees, err = s.graph.Callees(ctx, sym.QualifiedName, 20); err != nil {
		return nil, err
	}
	return ex, nil
}

// resolve accepts "<file>:<scope>:<name>" or a bare symbol name.
func (s *Service) resolve(ctx context.Context, name string) (*types.SymbolNode, error) {
	if strings.Contains(name, ":") {
		return s.graph.GetSymbol(ctx, name)
	}

	rows, err := s.graph.Query(ctx,
		`MATCH (s:Symbol {name: $name}) RETURN s.qualified_name LIMIT 5`,
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("%w: symbol %q", types.ErrNotFound, name)
	case 1:
		qn, _ := rows[0]["s.qualified_name"].(string)
		return s.graph.GetSymbol(ctx, qn)
	default:
		var names []string
		for _, row := range rows {
			if qn, _ := row["s.qualified_name"].(string); qn != "" {
				names = append(names, qn)
			}
		}
		return nil, fmt.Errorf("%w: symbol %q is ambiguous, candidates: %s",
			types.ErrValidation, name, strings.Join(names, ", "))
	}
}

// IsNotFound reports whether an error is a missing-entity error.
func IsNotFound(err error) bool {
	return errors.Is(err, types.ErrNotFound)
}
