package traverse

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/controlVector/cv-git/pkg/types"
)

// maxCodeBytes bounds the inline code block in a traversal context.
// Lists are truncated before code; the summary always survives.
const maxCodeBytes = 6000

// assemble builds the context payload for a position, plus navigation
// hints for the next move.
func (e *Engine) assemble(ctx context.Context, pos types.Position) (*types.TraversalContext, []string, error) {
	switch pos.Depth {
	case types.DepthSymbol:
		return e.symbolContext(ctx, pos)
	case types.DepthFile:
		return e.fileContext(ctx, pos)
	case types.DepthModule:
		return e.moduleContext(ctx, pos)
	default:
		return e.repoContext(ctx)
	}
}

func (e *Engine) symbolContext(ctx context.Context, pos types.Position) (*types.TraversalContext, []string, error) {
	tc := &types.TraversalContext{}

	sym, err := e.graph.GetSymbol(ctx, pos.Symbol)
	if err != nil {
		return nil, nil, err
	}

	tc.Summary = e.summaryOf(ctx, types.SummaryID(types.LevelSymbol, sym.QualifiedName))
	if tc.Summary == "" {
		tc.Summary = sym.Signature
	}
	tc.Code = e.readRange(sym.File, sym.StartLine, sym.EndLine)

	callers, err := e.graph.Callers(ctx, sym.QualifiedName, 10)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range callers {
		tc.Callers = append(tc.Callers, c.QualifiedName)
	}
	callees, err := e.graph.Callees(ctx, sym.QualifiedName, 10)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range callees {
		tc.Callees = append(tc.Callees, c.QualifiedName)
	}

	hints := []string{fmt.Sprintf("out: back to file %s", sym.File)}
	if len(tc.Callees) > 0 {
		hints = append(hints, fmt.Sprintf("jump: follow call to %s", tc.Callees[0]))
	}
	if len(tc.Callers) > 0 {
		hints = append(hints, fmt.Sprintf("jump: inspect caller %s", tc.Callers[0]))
	}
	return tc, hints, nil
}

func (e *Engine) fileContext(ctx context.Context, pos types.Position) (*types.TraversalContext, []string, error) {
	tc := &types.TraversalContext{}

	tc.Summary = e.summaryOf(ctx, types.SummaryID(types.LevelFile, pos.File))

	symbols, err := e.graph.SymbolsInFile(ctx, pos.File)
	if err != nil {
		return nil, nil, err
	}
	for _, sym := range symbols {
		tc.Symbols = append(tc.Symbols, sym.QualifiedName)
	}

	rows, err := e.graph.Query(ctx,
		`MATCH (:File {path: $path})-[:IMPORTS]->(t:File) RETURN t.path`,
		map[string]any{"path": pos.File})
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if p, _ := row["t.path"].(string); p != "" {
			tc.Imports = append(tc.Imports, p)
		}
	}

	// Importers of this file are the laterally interesting neighbors.
	rows, err = e.graph.Query(ctx,
		`MATCH (s:File)-[:IMPORTS]->(:File {path: $path}) RETURN s.path LIMIT 10`,
		map[string]any{"path": pos.File})
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if p, _ := row["s.path"].(string); p != "" {
			tc.Related = append(tc.Related, p)
		}
	}

	if tc.Summary == "" && len(symbols) == 0 {
		tc.Code = e.readRange(pos.File, 1, 80)
	}

	hints := []string{fmt.Sprintf("out: back to module %s", pos.Module)}
	if len(tc.Symbols) > 0 {
		hints = append(hints, fmt.Sprintf("in: enter symbol %s", tc.Symbols[0]))
	}
	return tc, hints, nil
}

func (e *Engine) moduleContext(ctx context.Context, pos types.Position) (*types.TraversalContext, []string, error) {
	tc := &types.TraversalContext{}
	tc.Summary = e.summaryOf(ctx, types.SummaryID(types.LevelDirectory, pos.Module))

	rows, err := e.graph.Query(ctx,
		`MATCH (f:File) RETURN f.path ORDER BY f.path`, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		p, _ := row["f.path"].(string)
		if p != "" && filepath.ToSlash(filepath.Dir(p)) == pos.Module {
			tc.Files = append(tc.Files, p)
		}
	}

	hints := []string{"out: back to repo overview"}
	if len(tc.Files) > 0 {
		hints = append(hints, fmt.Sprintf("in: enter file %s", tc.Files[0]))
	}
	return tc, hints, nil
}

func (e *Engine) repoContext(ctx context.Context) (*types.TraversalContext, []string, error) {
	tc := &types.TraversalContext{}
	tc.Summary = e.summaryOf(ctx, types.SummaryID(types.LevelRepo, "repo"))

	rows, err := e.graph.Query(ctx,
		`MATCH (m:Module) RETURN m.path ORDER BY m.path LIMIT 50`, nil)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		if p, _ := row["m.path"].(string); p != "" {
			tc.Files = append(tc.Files, p)
		}
	}

	hints := []string{}
	if len(tc.Files) > 0 {
		hints = append(hints, fmt.Sprintf("in: enter module %s", tc.Files[0]))
	}
	return tc, hints, nil
}

func (e *Engine) summaryOf(ctx context.Context, id string) string {
	if e.summarizer == nil {
		return ""
	}
	sum, err := e.summarizer.GetSummary(ctx, id)
	if err != nil {
		return ""
	}
	return sum.Summary
}

func (e *Engine) readRange(rel string, start, end int) string {
	data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(rel)))
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
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
	if len(body) > maxCodeBytes {
		body = body[:maxCodeBytes]
	}
	return body
}
