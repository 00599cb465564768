package manifold

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/controlVector/cv-git/pkg/types"
)

// collect fills a signal's fragment and refs within its byte budget.
func (m *Manifold) collect(ctx context.Context, sig *types.DimensionSignal, env *queryEnv, ds *DimensionState) error {
	var b strings.Builder

	switch sig.Dimension {
	case types.DimSemantic:
		if env.semErr != nil {
			return env.semErr
		}
		sig.Fragment = renderHits(env.semHits, sig.Budget)
		for _, h := range env.semHits {
			sig.Refs = append(sig.Refs, h.ID)
		}
		return nil

	case types.DimStructural:
		fmt.Fprintf(&b, "Graph: %d nodes, %d edges.\n", ds.Counts["nodes"], ds.Counts["edges"])
		if len(env.hubRefs) > 0 {
			b.WriteString("Hub symbols:\n")
			for _, ref := range env.hubRefs {
				fmt.Fprintf(&b, "- %s\n", ref)
				sig.Refs = append(sig.Refs, ref)
			}
		}

	case types.DimSummary:
		hits, err := m.searcher.SearchSummaries(ctx, env.query, 3, 2, 3)
		if err != nil {
			return err
		}
		for level := 3; level >= 2; level-- {
			for _, h := range hits[level] {
				content, _ := h.Payload["content"].(string)
				if content == "" {
					continue
				}
				fmt.Fprintf(&b, "[L%d %s] %s\n", level, h.ID, content)
				sig.Refs = append(sig.Refs, h.ID)
			}
		}

	case types.DimTemporal:
		commits, err := m.recentCommits(ctx, 10)
		if err != nil {
			return err
		}
		for _, c := range commits {
			fmt.Fprintf(&b, "- %s %s (%s)\n", c.SHA[:min(8, len(c.SHA))], firstLine(c.Message), c.Author)
			sig.Refs = append(sig.Refs, c.SHA)
		}
		if hot := m.hotFiles(ctx, 5); len(hot) > 0 {
			b.WriteString("Hot files: " + strings.Join(hot, ", ") + "\n")
		}

	case types.DimNavigational:
		fmt.Fprintf(&b, "Active traversal sessions: %d\n", m.sessions())

	case types.DimSession:
		if env.tree == nil {
			return nil
		}
		writeFileList(&b, "Modified", env.tree.Modified)
		writeFileList(&b, "Staged", env.tree.Staged)
		writeFileList(&b, "Untracked", env.tree.Untracked)
		sig.Refs = append(sig.Refs, env.tree.Modified...)
		sig.Refs = append(sig.Refs, env.tree.Staged...)

	case types.DimIntent:
		fmt.Fprintf(&b, "Branch: %s\n", env.branch)
		if terms := branchIntent(env.branch); len(terms) > 0 {
			fmt.Fprintf(&b, "Branch intent terms: %s\n", strings.Join(terms, ", "))
		}
		if len(ds.Counts) > 0 {
			parts := make([]string, 0, len(ds.Counts))
			for kind, n := range ds.Counts {
				parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
			}
			fmt.Fprintf(&b, "Recent commit types: %s\n", strings.Join(parts, " "))
		}

	case types.DimImpact:
		if env.tree == nil {
			return nil
		}
		changed := append(append([]string{}, env.tree.Modified...), env.tree.Staged...)
		fanOut := 0
		for _, path := range changed {
			symbols, err := m.graph.SymbolsInFile(ctx, path)
			if err != nil {
				continue
			}
			for _, sym := range symbols {
				callers, err := m.graph.Callers(ctx, sym.QualifiedName, 20)
				if err != nil {
					continue
				}
				if len(callers) > 0 {
					fmt.Fprintf(&b, "- %s: %d caller(s)\n", sym.QualifiedName, len(callers))
					sig.Refs = append(sig.Refs, sym.QualifiedName)
					fanOut += len(callers)
				}
			}
		}
		fmt.Fprintf(&b, "Changed files: %d, total caller fan-out: %d, risk: %s\n",
			len(changed), fanOut, riskBucket(fanOut))

	case types.DimRequirements:
		if m.requirements == nil {
			return nil
		}
		refs, err := m.requirements.Search(ctx, env.query, 5)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			fmt.Fprintf(&b, "- %s\n", ref)
			sig.Refs = append(sig.Refs, ref)
		}
	}

	sig.Fragment = truncate(b.String(), sig.Budget)
	return nil
}

// recentCommits queries the graph for the newest commits by author date.
func (m *Manifold) recentCommits(ctx context.Context, limit int) ([]*types.CommitNode, error) {
	rows, err := m.graph.Query(ctx,
		"MATCH (c:Commit) RETURN c.sha, c.message, c.author, c.timestamp ORDER BY c.timestamp DESC LIMIT $limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil, err
	}
	out := make([]*types.CommitNode, 0, len(rows))
	for _, row := range rows {
		sha, _ := row["c.sha"].(string)
		if sha == "" {
			continue
		}
		msg, _ := row["c.message"].(string)
		author, _ := row["c.author"].(string)
		node := &types.CommitNode{SHA: sha, Message: msg, Author: author}
		if raw, _ := row["c.timestamp"].(string); raw != "" {
			node.Timestamp, _ = time.Parse(time.RFC3339, raw)
		}
		out = append(out, node)
	}
	return out, nil
}

// hotFiles ranks files by how many commits touch them.
func (m *Manifold) hotFiles(ctx context.Context, limit int) []string {
	rows, err := m.graph.Query(ctx,
		"MATCH (c:Commit)-[:MODIFIES]->(f:File) RETURN f.path, count(c) AS n ORDER BY n DESC LIMIT $limit",
		map[string]any{"limit": limit})
	if err != nil {
		return nil
	}
	var out []string
	for _, row := range rows {
		if path, _ := row["f.path"].(string); path != "" {
			out = append(out, path)
		}
	}
	return out
}

// riskBucket maps caller fan-out onto a coarse risk label.
func riskBucket(fanOut int) string {
	switch {
	case fanOut < 5:
		return "low"
	case fanOut < 20:
		return "medium"
	default:
		return "high"
	}
}

func writeFileList(b *strings.Builder, label string, paths []string) {
	if len(paths) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, p := range paths {
		fmt.Fprintf(b, "- %s\n", p)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
