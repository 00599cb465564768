// Package manifold assembles context for a natural-language query by
// drawing ranked signals from nine dimensions of repository state and
// packaging them under a byte budget.
package manifold

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/controlVector/cv-git/internal/search"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

const (
	// DefaultBudget is the assembled-context byte budget when the
	// caller does not set one.
	DefaultBudget = 16000

	// minFragmentBytes is the floor below which a dimension's
	// allocation is not worth a fragment at all.
	minFragmentBytes = 200
)

// DefaultWeights are the base per-dimension weights before query
// scoring adjusts the split.
var DefaultWeights = map[types.Dimension]float64{
	types.DimSemantic:     0.25,
	types.DimStructural:   0.20,
	types.DimSummary:      0.15,
	types.DimSession:      0.10,
	types.DimTemporal:     0.10,
	types.DimNavigational: 0.05,
	types.DimRequirements: 0.05,
	types.DimIntent:       0.05,
	types.DimImpact:       0.05,
}

// RequirementsSource is an optional external PRD backend. When nil the
// requirements dimension reports unavailable.
type RequirementsSource interface {
	Count(ctx context.Context) (int, error)
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// SessionCounter reports active traversal sessions. Decoupled from the
// traversal engine so the manifold does not import it.
type SessionCounter func() int

// Manifold holds the stores the dimensions draw from.
type Manifold struct {
	graph        provider.GraphStore
	vector       provider.VectorStore
	embedder     provider.EmbeddingProvider
	searcher     *search.Service
	requirements RequirementsSource
	sessions     SessionCounter

	repoID    string
	root      string
	statePath string
	logger    *slog.Logger
}

// Options configures a Manifold.
type Options struct {
	Graph        provider.GraphStore
	Vector       provider.VectorStore
	Embedder     provider.EmbeddingProvider
	Searcher     *search.Service
	Requirements RequirementsSource
	Sessions     SessionCounter
	RepoID       string
	Root         string
	StatePath    string
	Logger       *slog.Logger
}

func New(opts Options) *Manifold {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = func() int { return 0 }
	}
	return &Manifold{
		graph:        opts.Graph,
		vector:       opts.Vector,
		embedder:     opts.Embedder,
		searcher:     opts.Searcher,
		requirements: opts.Requirements,
		sessions:     sessions,
		repoID:       opts.RepoID,
		root:         opts.Root,
		statePath:    opts.StatePath,
		logger:       logger.With("component", "manifold"),
	}
}

// Assemble answers a query from the nine dimensions. Missing state is
// not an error: assembly falls back to pure semantic search and flags
// the result.
func (m *Manifold) Assemble(ctx context.Context, query string, budget int, weights map[types.Dimension]float64, format types.ContextFormat) (*types.ContextResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", types.ErrValidation)
	}
	if budget <= 0 {
		budget = DefaultBudget
	}
	if format == "" {
		format = types.FormatMarkdown
	}

	st, err := LoadState(m.statePath)
	if err != nil {
		m.logger.Warn("manifold state unreadable", "error", err)
		st = nil
	}
	if st == nil {
		return m.fallback(ctx, query, budget, format)
	}

	merged := mergeWeights(weights)
	env := m.environment(ctx, query, st)

	signals := make([]types.DimensionSignal, 0, len(types.AllDimensions))
	for _, dim := range types.AllDimensions {
		sig := types.DimensionSignal{Dimension: dim}
		ds := st.Dimensions[dim]
		if ds == nil || !ds.Available {
			signals = append(signals, sig)
			continue
		}
		sig.Available = true
		sig.Score = m.score(dim, env, ds)
		signals = append(signals, sig)
	}

	allocate(signals, merged, budget)

	var used []types.Dimension
	usedBytes := 0
	for i := range signals {
		sig := &signals[i]
		if !sig.Available || sig.Budget < minFragmentBytes {
			sig.Budget = 0
			continue
		}
		if err := m.collect(ctx, sig, env, st.Dimensions[sig.Dimension]); err != nil {
			m.logger.Warn("dimension collect failed", "dimension", sig.Dimension, "error", err)
			sig.Available = false
			sig.Fragment = ""
			continue
		}
		if sig.Fragment == "" {
			continue
		}
		used = append(used, sig.Dimension)
		usedBytes += len(sig.Fragment)
	}

	if len(used) == 0 {
		return m.fallback(ctx, query, budget, format)
	}

	content := render(query, signals, format)
	return &types.ContextResult{
		Query:          query,
		Content:        content,
		Format:         format,
		DimensionsUsed: used,
		Signals:        signals,
		BudgetBytes:    budget,
		UsedBytes:      usedBytes,
	}, nil
}

// environment caches per-query facts several dimensions share.
type queryEnv struct {
	query     string
	terms     []string
	tree      *WorkingTree
	branch    string
	semHits   []*types.VectorHit
	semErr    error
	hubMatch  bool
	hubRefs   []string
	intentHit bool
}

func (m *Manifold) environment(ctx context.Context, query string, st *State) *queryEnv {
	env := &queryEnv{query: query, terms: queryTerms(query)}

	env.tree, _ = workingTree(m.root)
	env.branch, _ = currentBranch(m.root)

	if m.searcher != nil {
		env.semHits, env.semErr = m.searcher.SearchCode(ctx, query, 8, search.Filter{})
	}

	if ds := st.Dimensions[types.DimStructural]; ds != nil {
		env.hubRefs = ds.Refs
		for _, ref := range ds.Refs {
			if matchesTerms(strings.ToLower(ref), env.terms) {
				env.hubMatch = true
				break
			}
		}
	}

	for _, term := range branchIntent(env.branch) {
		for _, qt := range env.terms {
			if term == qt {
				env.intentHit = true
			}
		}
	}
	return env
}

// score computes a 0..1 relevance for one dimension against the query.
func (m *Manifold) score(dim types.Dimension, env *queryEnv, ds *DimensionState) float64 {
	switch dim {
	case types.DimSemantic:
		if env.semErr != nil || len(env.semHits) == 0 {
			return 0.3
		}
		return clamp01(float64(env.semHits[0].Score))

	case types.DimStructural:
		if env.hubMatch {
			return 1.0
		}
		if ds.Counts["nodes"] > 0 {
			return 0.6
		}
		return 0

	case types.DimSummary:
		if ds.Counts["summaries"] > 0 {
			return 0.8
		}
		return 0

	case types.DimTemporal:
		if ds.Counts["recent_commits"] > 0 {
			return 0.6
		}
		return 0

	case types.DimNavigational:
		n := m.sessions()
		if n == 0 {
			return 0
		}
		return clamp01(0.4 + float64(n)*0.2)

	case types.DimSession:
		if env.tree != nil && env.tree.Dirty() {
			return 1.0
		}
		return 0

	case types.DimIntent:
		if env.intentHit {
			return 1.0
		}
		if env.branch != "" && env.branch != "main" && env.branch != "master" {
			return 0.4
		}
		return 0.1

	case types.DimImpact:
		if env.tree != nil && len(env.tree.Modified)+len(env.tree.Staged) > 0 {
			return 0.9
		}
		return 0

	case types.DimRequirements:
		if m.requirements == nil {
			return 0
		}
		return 0.5
	}
	return 0
}

// allocate splits the byte budget proportional to weight × score.
func allocate(signals []types.DimensionSignal, weights map[types.Dimension]float64, budget int) {
	total := 0.0
	for _, sig := range signals {
		if sig.Available {
			total += weights[sig.Dimension] * sig.Score
		}
	}
	if total == 0 {
		return
	}
	for i := range signals {
		sig := &signals[i]
		if !sig.Available {
			continue
		}
		share := weights[sig.Dimension] * sig.Score / total
		sig.Budget = int(share * float64(budget))
	}
}

// fallback is pure semantic search, used when the state file is
// missing or no dimension produced anything.
func (m *Manifold) fallback(ctx context.Context, query string, budget int, format types.ContextFormat) (*types.ContextResult, error) {
	sig := types.DimensionSignal{Dimension: types.DimSemantic, Score: 1.0, Budget: budget, Available: true}

	hits, err := m.searcher.SearchCode(ctx, query, 10, search.Filter{})
	if err != nil {
		return nil, err
	}
	sig.Fragment = renderHits(hits, budget)
	for _, h := range hits {
		sig.Refs = append(sig.Refs, h.ID)
	}

	signals := []types.DimensionSignal{sig}
	return &types.ContextResult{
		Query:          query,
		Content:        render(query, signals, format),
		Format:         format,
		DimensionsUsed: []types.Dimension{types.DimSemantic},
		Signals:        signals,
		Fallback:       true,
		BudgetBytes:    budget,
		UsedBytes:      len(sig.Fragment),
	}, nil
}

// ListDimensions returns the persisted per-dimension states in
// assembly order, for inspection tooling.
func (m *Manifold) ListDimensions() ([]*DimensionState, error) {
	st, err := LoadState(m.statePath)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, nil
	}
	out := make([]*DimensionState, 0, len(types.AllDimensions))
	for _, dim := range types.AllDimensions {
		if ds := st.Dimensions[dim]; ds != nil {
			out = append(out, ds)
		}
	}
	return out, nil
}

// mergeWeights overlays caller weights on the defaults.
func mergeWeights(overrides map[types.Dimension]float64) map[types.Dimension]float64 {
	merged := make(map[types.Dimension]float64, len(DefaultWeights))
	for dim, w := range DefaultWeights {
		merged[dim] = w
	}
	for dim, w := range overrides {
		if w >= 0 {
			merged[dim] = w
		}
	}
	return merged
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	sort.Strings(terms)
	return terms
}

func matchesTerms(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
