// Package summarize builds the L1..L4 summary pyramid: symbol, file,
// directory, repo. Summaries are stored as vector points in the
// per-repo summaries collection and regenerated bottom-up only when
// their input content hash changes.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// maxL1Input caps the body excerpt fed to the model for one symbol.
const maxL1Input = 3000

// Summarizer generates and stores hierarchical summaries.
type Summarizer struct {
	graph    provider.GraphStore
	vector   provider.VectorStore
	embedder provider.EmbeddingProvider
	ai       provider.AIProvider
	repoID   string
	root     string
	snapshot string
	maxTok   int
	logger   *slog.Logger
}

// Options bundles the summarizer collaborators.
type Options struct {
	Graph        provider.GraphStore
	Vector       provider.VectorStore
	Embedder     provider.EmbeddingProvider
	AI           provider.AIProvider
	RepoID       string
	Root         string
	SnapshotPath string // .cv/codebase-summary.json
	MaxTokens    int
	Logger       *slog.Logger
}

// New creates a Summarizer.
func New(opts Options) *Summarizer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 256
	}
	return &Summarizer{
		graph:    opts.Graph,
		vector:   opts.Vector,
		embedder: opts.Embedder,
		ai:       opts.AI,
		repoID:   opts.RepoID,
		root:     opts.Root,
		snapshot: opts.SnapshotPath,
		maxTok:   maxTok,
		logger:   logger.With("component", "summarize"),
	}
}

// Stats reports one summarization pass.
type Stats struct {
	Generated int           `json:"generated"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// summarizableKinds get L1 summaries.
var summarizableKinds = map[types.SymbolKind]bool{
	types.SymbolKindFunction:  true,
	types.SymbolKindMethod:    true,
	types.SymbolKindClass:     true,
	types.SymbolKindInterface: true,
}

// Run regenerates the pyramid bottom-up. Levels whose input hash is
// unchanged are skipped, so an incremental sync only re-summarizes
// what it touched.
func (s *Summarizer) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	rows, err := s.graph.Query(ctx, `MATCH (f:File) RETURN f.path ORDER BY f.path`, nil)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, row := range rows {
		if p, _ := row["f.path"].(string); p != "" {
			files = append(files, p)
		}
	}

	fileSummaries := map[string]string{} // path -> L2 text
	dirChildren := map[string][]string{} // dir -> L2 ids

	for _, path := range files {
		if ctx.Err() != nil {
			return stats, fmt.Errorf("%w: summarize", types.ErrCancelled)
		}
		l2Text, err := s.summarizeFile(ctx, path, stats)
		if err != nil {
			s.logger.Warn("file summary failed", "file", path, "error", err)
			continue
		}
		fileSummaries[path] = l2Text
		dir := filepath.ToSlash(filepath.Dir(path))
		dirChildren[dir] = append(dirChildren[dir], types.SummaryID(types.LevelFile, path))
	}

	// L3 per directory.
	dirs := make([]string, 0, len(dirChildren))
	for d := range dirChildren {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	var l3IDs []string
	var l3Texts []string
	for _, dir := range dirs {
		var parts []string
		for _, path := range files {
			if filepath.ToSlash(filepath.Dir(path)) == dir {
				parts = append(parts, fmt.Sprintf("%s: %s", filepath.Base(path), fileSummaries[path]))
			}
		}
		text, err := s.generate(ctx, &types.HierarchicalSummary{
			ID:       types.SummaryID(types.LevelDirectory, dir),
			Level:    types.LevelDirectory,
			Parent:   types.SummaryID(types.LevelRepo, "repo"),
			Children: dirChildren[dir],
		}, fmt.Sprintf("Summarize the purpose of the directory %q from its file summaries:\n\n%s", dir, strings.Join(parts, "\n")), stats)
		if err != nil {
			s.logger.Warn("directory summary failed", "dir", dir, "error", err)
			continue
		}
		l3IDs = append(l3IDs, types.SummaryID(types.LevelDirectory, dir))
		l3Texts = append(l3Texts, fmt.Sprintf("%s: %s", dir, text))
	}

	// L4 repo snapshot.
	repoSummary, err := s.generate(ctx, &types.HierarchicalSummary{
		ID:       types.SummaryID(types.LevelRepo, "repo"),
		Level:    types.LevelRepo,
		Children: l3IDs,
	}, "Summarize this codebase from its directory summaries. Describe what the system does and how it is organized:\n\n"+strings.Join(l3Texts, "\n"), stats)
	if err != nil {
		return stats, err
	}
	if err := s.writeSnapshot(repoSummary, l3IDs); err != nil {
		s.logger.Warn("snapshot write failed", "error", err)
	}

	stats.Duration = time.Since(start)
	s.logger.Info("summarization complete",
		"generated", stats.Generated, "skipped", stats.Skipped, "duration", stats.Duration)
	return stats, nil
}

// summarizeFile builds the L1 summaries of a file's symbols and then
// its L2 summary. Returns the L2 text.
func (s *Summarizer) summarizeFile(ctx context.Context, path string, stats *Stats) (string, error) {
	symbols, err := s.graph.SymbolsInFile(ctx, path)
	if err != nil {
		return "", err
	}

	source, _ := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(path)))
	lines := strings.Split(string(source), "\n")

	l2ID := types.SummaryID(types.LevelFile, path)
	var l1IDs []string
	var l1Parts []string

	for _, sym := range symbols {
		if !summarizableKinds[sym.Kind] {
			continue
		}
		input := sym.Signature
		if sym.Docstring != "" {
			input += "\n" + sym.Docstring
		}
		input += "\n" + excerpt(lines, sym.StartLine, sym.EndLine, maxL1Input)

		id := types.SummaryID(types.LevelSymbol, sym.QualifiedName)
		text, err := s.generate(ctx, &types.HierarchicalSummary{
			ID:     id,
			Level:  types.LevelSymbol,
			Parent: l2ID,
		}, fmt.Sprintf("Summarize in one or two sentences what this %s does:\n\n%s", sym.Kind, input), stats)
		if err != nil {
			return "", err
		}
		l1IDs = append(l1IDs, id)
		l1Parts = append(l1Parts, fmt.Sprintf("%s: %s", sym.Name, text))
	}

	imports, err := s.graph.Query(ctx,
		`MATCH (:File {path: $path})-[r:IMPORTS]->(t:File) RETURN t.path`,
		map[string]any{"path": path})
	if err != nil {
		return "", err
	}
	var importList []string
	for _, row := range imports {
		if p, _ := row["t.path"].(string); p != "" {
			importList = append(importList, p)
		}
	}

	input := fmt.Sprintf("File %s.\nImports: %s\nSymbols:\n%s",
		path, strings.Join(importList, ", "), strings.Join(l1Parts, "\n"))
	return s.generate(ctx, &types.HierarchicalSummary{
		ID:       l2ID,
		Level:    types.LevelFile,
		Parent:   types.SummaryID(types.LevelDirectory, filepath.ToSlash(filepath.Dir(path))),
		Children: l1IDs,
	}, "Summarize the role of this file in one or two sentences:\n\n"+input, stats)
}

// generate produces, embeds, and stores one summary node, skipping
// regeneration when the input hash matches the stored point.
func (s *Summarizer) generate(ctx context.Context, node *types.HierarchicalSummary, prompt string, stats *Stats) (string, error) {
	node.ContentHash = types.HashBytes([]byte(prompt))

	if existing, err := s.GetSummary(ctx, node.ID); err == nil && existing.ContentHash == node.ContentHash {
		stats.Skipped++
		return existing.Summary, nil
	}

	text, err := s.ai.Complete(ctx, prompt, s.maxTok)
	if err != nil || strings.TrimSpace(text) == "" {
		// Extractive fallback keeps the pyramid complete when the
		// model is down.
		text = extractive(prompt)
	}
	node.Summary = strings.TrimSpace(text)
	node.Keywords = keywords(node.Summary, 5)

	vectors, err := s.embedder.Embed(ctx, []string{node.Summary})
	if err != nil {
		return "", err
	}

	point := &types.VectorPoint{
		ID:     node.ID,
		Vector: vectors[0],
		Payload: map[string]any{
			"level":    node.Level,
			"parent":   node.Parent,
			"children": node.Children,
			"content":  node.Summary,
			"keywords": node.Keywords,
			"hash":     node.ContentHash,
		},
	}
	coll := types.CollectionName(s.repoID, types.CollectionSummaries)
	if err := s.vector.Upsert(ctx, coll, []*types.VectorPoint{point}); err != nil {
		return "", err
	}
	stats.Generated++
	return node.Summary, nil
}

// keywordStop are words too common to characterize a summary.
var keywordStop = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "from": true, "its": true, "are": true, "was": true,
	"has": true, "have": true, "can": true, "which": true, "into": true,
	"when": true, "where": true, "then": true, "than": true, "also": true,
	"each": true, "all": true, "one": true, "not": true, "but": true,
	"per": true, "via": true, "any": true, "how": true, "what": true,
}

// keywords picks the most frequent meaningful words of a summary, in
// descending frequency with first appearance breaking ties.
func keywords(text string, max int) []string {
	counts := map[string]int{}
	first := map[string]int{}
	pos := 0
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		w := strings.Trim(raw, ".,;:!?()[]{}\"'`")
		if len(w) < 3 || keywordStop[w] {
			continue
		}
		if _, ok := counts[w]; !ok {
			first[w] = pos
			pos++
		}
		counts[w]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return first[words[i]] < first[words[j]]
	})
	if len(words) > max {
		words = words[:max]
	}
	return words
}

// extractive is the no-model fallback: the first non-instruction line
// of the input, clipped.
func extractive(prompt string) string {
	if idx := strings.Index(prompt, "\n\n"); idx >= 0 {
		prompt = prompt[idx+2:]
	}
	line := strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0])
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}

func excerpt(lines []string, start, end, maxChars int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	body := strings.Join(lines[start-1:end], "\n")
	if len(body) > maxChars {
		body = body[:maxChars]
	}
	return body
}

type snapshotFormat struct {
	Summary     string    `json:"summary"`
	Directories []string  `json:"directories"`
	GeneratedAt time.Time `json:"generated_at"`
}

func (s *Summarizer) writeSnapshot(summary string, l3IDs []string) error {
	data, err := json.MarshalIndent(snapshotFormat{
		Summary:     summary,
		Directories: l3IDs,
		GeneratedAt: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.snapshot), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.snapshot, data, 0o644)
}
