package syncer

import (
	"context"
	"fmt"
	"testing"

	"github.com/controlVector/cv-git/builtin/parser/simple"
	"github.com/controlVector/cv-git/internal/config"
	"github.com/controlVector/cv-git/internal/repo"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// fakeGraph records operations in order so tests can assert the
// capture/delete/upsert/replay sequence of a file update.
type fakeGraph struct {
	ops     []string
	inbound []*types.Edge
	edges   []*types.Edge
}

func (g *fakeGraph) Name() string                    { return "fake" }
func (g *fakeGraph) Connect(context.Context) error   { return nil }
func (g *fakeGraph) Close() error                    { return nil }
func (g *fakeGraph) Clear(context.Context) error     { return nil }

func (g *fakeGraph) UpsertFile(_ context.Context, n *types.FileNode) error {
	g.ops = append(g.ops, "upsert_file:"+n.Path)
	return nil
}

func (g *fakeGraph) UpsertSymbol(_ context.Context, n *types.SymbolNode) error {
	g.ops = append(g.ops, "upsert_symbol:"+n.QualifiedName)
	return nil
}

func (g *fakeGraph) UpsertModule(context.Context, *types.ModuleNode) error   { return nil }
func (g *fakeGraph) UpsertCommit(context.Context, *types.CommitNode) error   { return nil }
func (g *fakeGraph) UpsertDocument(context.Context, *types.DocumentNode) error { return nil }
func (g *fakeGraph) UpsertSessionKnowledge(context.Context, *types.SessionKnowledgeNode) error {
	return nil
}

func (g *fakeGraph) CreateEdge(_ context.Context, e *types.Edge) error {
	g.ops = append(g.ops, fmt.Sprintf("edge:%s:%s->%s", e.Type, e.FromKey, e.ToKey))
	g.edges = append(g.edges, e)
	return nil
}

func (g *fakeGraph) GetFile(context.Context, string) (*types.FileNode, error) {
	return nil, types.ErrNotFound
}
func (g *fakeGraph) GetSymbol(context.Context, string) (*types.SymbolNode, error) {
	return nil, types.ErrNotFound
}
func (g *fakeGraph) GetCommit(context.Context, string) (*types.CommitNode, error) {
	return nil, types.ErrNotFound
}
func (g *fakeGraph) GetDocument(context.Context, string) (*types.DocumentNode, error) {
	return nil, types.ErrNotFound
}

func (g *fakeGraph) SymbolsInFile(context.Context, string) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *fakeGraph) Callers(context.Context, string, int) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *fakeGraph) Callees(context.Context, string, int) ([]*types.SymbolNode, error) {
	return nil, nil
}
func (g *fakeGraph) FindPath(context.Context, string, string, int) (*types.GraphPath, error) {
	return nil, types.ErrNotFound
}
func (g *fakeGraph) Hubs(context.Context, int, int) ([]*types.HubSymbol, error) { return nil, nil }

func (g *fakeGraph) InboundEdges(_ context.Context, path string) ([]*types.Edge, error) {
	g.ops = append(g.ops, "inbound:"+path)
	return g.inbound, nil
}

func (g *fakeGraph) DeleteFile(_ context.Context, path string) error {
	g.ops = append(g.ops, "delete_file:"+path)
	return nil
}

func (g *fakeGraph) DeleteDocument(_ context.Context, path string) error {
	g.ops = append(g.ops, "delete_document:"+path)
	return nil
}

func (g *fakeGraph) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return nil, nil
}
func (g *fakeGraph) GetStats(context.Context) (*types.GraphStats, error) {
	return &types.GraphStats{}, nil
}

var _ provider.GraphStore = (*fakeGraph)(nil)

type fakeVector struct{}

func (fakeVector) Name() string                                          { return "fake" }
func (fakeVector) Init(context.Context, []string, int) error             { return nil }
func (fakeVector) Upsert(context.Context, string, []*types.VectorPoint) error { return nil }
func (fakeVector) Search(context.Context, string, []float32, int, map[string]any) ([]*types.VectorHit, error) {
	return nil, nil
}
func (fakeVector) Scroll(context.Context, string, map[string]any, int) ([]*types.VectorPoint, error) {
	return nil, nil
}
func (fakeVector) DeletePoints(context.Context, string, []string) error { return nil }
func (fakeVector) Count(context.Context, string) (int, error)           { return 0, nil }
func (fakeVector) Close() error                                         { return nil }

var _ provider.VectorStore = fakeVector{}

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string  { return "fake" }
func (fakeEmbedder) Model() string { return "fake-model" }
func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
func (fakeEmbedder) Dimensions() int                   { return 4 }
func (fakeEmbedder) MaxBatchSize() int                 { return 32 }
func (fakeEmbedder) Available(context.Context) error   { return nil }
func (fakeEmbedder) Close() error                      { return nil }

var _ provider.EmbeddingProvider = fakeEmbedder{}

func opIndex(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}

// Updating a callee's file must not lose CALLS edges from files that
// were not part of the tick: the delete severs them, so they are
// captured first and replayed once the symbols are back.
func TestProcessCodeReplaysInboundEdges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.py", "def g():\n    return 1\n")

	g := &fakeGraph{inbound: []*types.Edge{
		{
			Type:       types.EdgeCalls,
			FromKey:    "a.py::f",
			ToKey:      "b.py::g",
			Properties: map[string]any{"line": 3, "is_conditional": false},
		},
		{Type: types.EdgeImports, FromKey: "a.py", ToKey: "b.py"},
	}}

	s := New(Options{
		Config:   config.DefaultConfig(),
		Paths:    repo.NewPaths(root),
		RepoID:   "testrepo",
		Graph:    g,
		Vector:   fakeVector{},
		Embedder: fakeEmbedder{},
		Fallback: simple.New(provider.ParserConfig{}),
	})

	content := []byte("def g():\n    return 1\n")
	res, err := s.processCode(context.Background(), "b.py", content)
	if err != nil {
		t.Fatalf("processCode: %v", err)
	}
	if res.parseErr != nil {
		t.Fatalf("parse error: %v", res.parseErr)
	}

	capture := opIndex(g.ops, "inbound:b.py")
	del := opIndex(g.ops, "delete_file:b.py")
	call := opIndex(g.ops, "edge:CALLS:a.py::f->b.py::g")
	imp := opIndex(g.ops, "edge:IMPORTS:a.py->b.py")

	if capture == -1 || del == -1 {
		t.Fatalf("missing capture or delete in ops: %v", g.ops)
	}
	if capture > del {
		t.Errorf("inbound capture must precede the delete: %v", g.ops)
	}
	if call == -1 || imp == -1 {
		t.Fatalf("captured edges were not replayed: %v", g.ops)
	}
	if call < del || imp < del {
		t.Errorf("replay must follow the delete: %v", g.ops)
	}

	for _, e := range g.edges {
		if e.Type == types.EdgeCalls && e.FromKey == "a.py::f" {
			if e.Properties["line"] != 3 {
				t.Errorf("replayed edge lost its properties: %v", e.Properties)
			}
		}
	}
}
