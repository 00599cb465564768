package traverse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// queryGraph stubs the graph with a fixed symbol table; only the
// lookups resolveSymbol issues are answered.
type queryGraph struct {
	symbols []*types.SymbolNode
}

func (g *queryGraph) Name() string                  { return "stub" }
func (g *queryGraph) Connect(context.Context) error { return nil }
func (g *queryGraph) Close() error                  { return nil }
func (g *queryGraph) Clear(context.Context) error   { return nil }

func (g *queryGraph) UpsertFile(context.Context, *types.FileNode) error       { return nil }
func (g *queryGraph) UpsertSymbol(context.Context, *types.SymbolNode) error   { return nil }
func (g *queryGraph) UpsertModule(context.Context, *types.ModuleNode) error   { return nil }
func (g *queryGraph) UpsertCommit(context.Context, *types.CommitNode) error   { return nil }
func (g *queryGraph) UpsertDocument(context.Context, *types.DocumentNode) error { return nil }
func (g *queryGraph) UpsertSessionKnowledge(context.Context, *types.SessionKnowledgeNode) error {
	return nil
}
func (g *queryGraph) CreateEdge(context.Context, *types.Edge) error { return nil }

func (g *queryGraph) GetFile(context.Context, string) (*types.FileNode, error) {
	return nil, types.ErrNotFound
}
func (g *queryGraph) GetSymbol(_ context.Context, qn string) (*types.SymbolNode, error) {
	for _, s := range g.symbols {
		if s.QualifiedName == qn {
			return s, nil
		}
	}
	return nil, types.ErrNotFound
}
func (g *queryGraph) GetCommit(context.Context, string) (*types.CommitNode, error) {
	return nil, types.ErrNotFound
}
func (g *queryGraph) GetDocument(context.Context, string) (*types.DocumentNode, error) {
	return nil, types.ErrNotFound
}

func (g *queryGraph) SymbolsInFile(context.Context, string) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *queryGraph) Callers(context.Context, string, int) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *queryGraph) Callees(context.Context, string, int) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *queryGraph) FindPath(context.Context, string, string, int) (*types.GraphPath, error) {
	return nil, types.ErrNotFound
}
func (g *queryGraph) Hubs(context.Context, int, int) ([]*types.HubSymbol, error) { return nil, nil }

func (g *queryGraph) InboundEdges(context.Context, string) ([]*types.Edge, error) { return nil, nil }
func (g *queryGraph) DeleteFile(context.Context, string) error                    { return nil }
func (g *queryGraph) DeleteDocument(context.Context, string) error                { return nil }

func (g *queryGraph) Query(_ context.Context, _ string, params map[string]any) ([]map[string]any, error) {
	name, _ := params["name"].(string)
	file, hasFile := params["file"].(string)

	var rows []map[string]any
	for _, s := range g.symbols {
		if s.Name != name {
			continue
		}
		if hasFile && s.File != file {
			continue
		}
		rows = append(rows, map[string]any{"s.qualified_name": s.QualifiedName})
	}
	if hasFile && len(rows) > 1 {
		rows = rows[:1]
	}
	if !hasFile && len(rows) > 2 {
		rows = rows[:2]
	}
	return rows, nil
}

func (g *queryGraph) GetStats(context.Context) (*types.GraphStats, error) {
	return &types.GraphStats{}, nil
}

var _ provider.GraphStore = (*queryGraph)(nil)

func newResolveEngine(t *testing.T, g *queryGraph) *Engine {
	t.Helper()
	return New(Options{
		Graph:      g,
		Root:       t.TempDir(),
		SessionDir: filepath.Join(t.TempDir(), "sessions"),
		Lifetime:   time.Hour,
	})
}

// Entering a symbol by its bare name from file depth must land on the
// qualified name, scoped to the current file.
func TestApplyInResolvesBareSymbol(t *testing.T) {
	g := &queryGraph{symbols: []*types.SymbolNode{
		{QualifiedName: "src/a.ts:f", Name: "f", File: "src/a.ts"},
		{QualifiedName: "src/b.ts:f", Name: "f", File: "src/b.ts"},
	}}
	e := newResolveEngine(t, g)
	ctx := context.Background()

	pos := types.Position{Module: "src", File: "src/a.ts", Depth: types.DepthFile}
	got, err := e.apply(ctx, pos, Move{Direction: types.DirIn, Target: "f"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Depth != types.DepthSymbol || got.Symbol != "src/a.ts:f" {
		t.Fatalf("after in: %+v", got)
	}
	if got.File != "src/a.ts" {
		t.Errorf("file changed: %+v", got)
	}
}

func TestApplyInResolvesUniqueNameRepoWide(t *testing.T) {
	g := &queryGraph{symbols: []*types.SymbolNode{
		{QualifiedName: "src/b.ts:g", Name: "g", File: "src/b.ts"},
	}}
	e := newResolveEngine(t, g)

	pos := types.Position{Module: "src", File: "src/a.ts", Depth: types.DepthFile}
	got, err := e.apply(context.Background(), pos, Move{Direction: types.DirIn, Target: "g"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != "src/b.ts:g" {
		t.Errorf("resolved = %q, want src/b.ts:g", got.Symbol)
	}
}

func TestApplyInAmbiguousBareName(t *testing.T) {
	g := &queryGraph{symbols: []*types.SymbolNode{
		{QualifiedName: "src/a.ts:f", Name: "f", File: "src/a.ts"},
		{QualifiedName: "src/b.ts:f", Name: "f", File: "src/b.ts"},
	}}
	e := newResolveEngine(t, g)

	// Neither candidate lives in the current file, so the bare name is
	// ambiguous and the move must fail with a validation error.
	pos := types.Position{Module: "src", File: "src/c.ts", Depth: types.DepthFile}
	_, err := e.apply(context.Background(), pos, Move{Direction: types.DirIn, Target: "f"})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestApplyInUnknownBareName(t *testing.T) {
	e := newResolveEngine(t, &queryGraph{})

	pos := types.Position{Module: "src", File: "src/a.ts", Depth: types.DepthFile}
	_, err := e.apply(context.Background(), pos, Move{Direction: types.DirIn, Target: "nope"})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyLateralResolvesBareSymbol(t *testing.T) {
	g := &queryGraph{symbols: []*types.SymbolNode{
		{QualifiedName: "src/a.ts:f", Name: "f", File: "src/a.ts"},
		{QualifiedName: "src/a.ts:h", Name: "h", File: "src/a.ts"},
	}}
	e := newResolveEngine(t, g)

	pos := types.Position{Module: "src", File: "src/a.ts", Symbol: "src/a.ts:f", Depth: types.DepthSymbol}
	got, err := e.apply(context.Background(), pos, Move{Direction: types.DirLateral, Target: "h"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Symbol != "src/a.ts:h" || got.File != "src/a.ts" {
		t.Fatalf("after lateral: %+v", got)
	}
}
