package syncer

import (
	"context"
	"path"
	"strings"
	"sync"

	"github.com/controlVector/cv-git/internal/ledger"
	"github.com/controlVector/cv-git/pkg/types"
)

// symbolIndex accumulates the parse output of one tick so cross-file
// edges can be linked after every touched file's symbols are upserted.
type symbolIndex struct {
	mu    sync.Mutex
	files map[string]*types.ParsedFile
}

func newSymbolIndex() *symbolIndex {
	return &symbolIndex{files: map[string]*types.ParsedFile{}}
}

func (idx *symbolIndex) addFile(rel string, parsed *types.ParsedFile) {
	if parsed == nil {
		return
	}
	idx.mu.Lock()
	idx.files[rel] = parsed
	idx.mu.Unlock()
}

// linkEdges resolves CALLS, INHERITS, and IMPORTS edges for every file
// parsed this tick. Callee names resolve against the whole graph, so a
// call into an untouched file still links. Returns the number of call
// sites that could not be resolved to a known symbol; those are
// dropped rather than linked to phantom nodes.
func (s *Syncer) linkEdges(ctx context.Context, idx *symbolIndex, led *ledger.Ledger) (int, error) {
	if len(idx.files) == 0 {
		return 0, nil
	}

	byName, err := s.loadNameIndex(ctx)
	if err != nil {
		return 0, err
	}
	fileSet := map[string]bool{}
	for _, p := range led.Paths() {
		fileSet[p] = true
	}

	unresolved := 0
	for rel, parsed := range idx.files {
		for _, sym := range parsed.Symbols {
			for _, call := range sym.Calls {
				target := resolveName(byName, call.CalleeName, rel)
				if target == "" {
					unresolved++
					continue
				}
				if target == sym.QualifiedName {
					continue // direct recursion is not an edge worth storing
				}
				count := call.Count
				if count == 0 {
					count = 1
				}
				if err := s.graph.CreateEdge(ctx, &types.Edge{
					Type:    types.EdgeCalls,
					FromKey: sym.QualifiedName,
					ToKey:   target,
					Properties: map[string]any{
						"line":           call.Line,
						"is_conditional": call.IsConditional,
						"call_count":     count,
					},
				}); err != nil {
					return unresolved, err
				}
			}

			for _, base := range sym.Inherits {
				target := resolveName(byName, lastSegment(base), rel)
				if target == "" {
					continue
				}
				if err := s.graph.CreateEdge(ctx, &types.Edge{
					Type:    types.EdgeInherits,
					FromKey: sym.QualifiedName,
					ToKey:   target,
				}); err != nil {
					return unresolved, err
				}
			}
		}

		for _, imp := range parsed.Imports {
			for _, target := range resolveImport(rel, imp, parsed.Language, fileSet) {
				if err := s.graph.CreateEdge(ctx, &types.Edge{
					Type:    types.EdgeImports,
					FromKey: rel,
					ToKey:   target,
					Properties: map[string]any{
						"source": imp.Source,
						"type":   string(imp.Type),
					},
				}); err != nil {
					return unresolved, err
				}
			}
		}
	}
	return unresolved, nil
}

// loadNameIndex builds name -> candidate symbols from the graph.
func (s *Syncer) loadNameIndex(ctx context.Context) (map[string][]symbolRef, error) {
	rows, err := s.graph.Query(ctx,
		`MATCH (s:Symbol) RETURN s.name, s.qualified_name, s.file`, nil)
	if err != nil {
		return nil, err
	}
	byName := map[string][]symbolRef{}
	for _, row := range rows {
		name, _ := row["s.name"].(string)
		qn, _ := row["s.qualified_name"].(string)
		file, _ := row["s.file"].(string)
		if name == "" || qn == "" {
			continue
		}
		byName[name] = append(byName[name], symbolRef{qualified: qn, file: file})
	}
	return byName, nil
}

type symbolRef struct {
	qualified string
	file      string
}

// resolveName picks the target symbol for a bare callee name.
// Same-file definitions win; otherwise the name must be unambiguous
// repo-wide, or the call stays unresolved.
func resolveName(byName map[string][]symbolRef, name, fromFile string) string {
	candidates := byName[name]
	if len(candidates) == 0 {
		return ""
	}
	for _, c := range candidates {
		if c.file == fromFile {
			return c.qualified
		}
	}
	if len(candidates) == 1 {
		return candidates[0].qualified
	}
	return ""
}

func lastSegment(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// resolveImport maps an import statement onto repo files, returning
// zero targets for external packages.
func resolveImport(fromFile string, imp *types.Import, language string, fileSet map[string]bool) []string {
	switch language {
	case "javascript", "jsx", "typescript", "tsx":
		return resolveJSImport(fromFile, imp.Source, fileSet)
	case "python":
		return resolvePyImport(fromFile, imp.Source, fileSet)
	case "go":
		return resolveGoImport(imp.Source, fileSet)
	default:
		return nil
	}
}

func resolveJSImport(fromFile, source string, fileSet map[string]bool) []string {
	if !strings.HasPrefix(source, ".") {
		return nil
	}
	base := path.Join(path.Dir(fromFile), source)
	candidates := []string{
		base,
		base + ".ts", base + ".tsx", base + ".js", base + ".jsx", base + ".mjs",
		base + "/index.ts", base + "/index.tsx", base + "/index.js", base + "/index.jsx",
	}
	for _, c := range candidates {
		if fileSet[c] {
			return []string{c}
		}
	}
	return nil
}

func resolvePyImport(fromFile, source string, fileSet map[string]bool) []string {
	var base string
	if strings.HasPrefix(source, ".") {
		// Relative import: each leading dot climbs one package level.
		dots := 0
		for dots < len(source) && source[dots] == '.' {
			dots++
		}
		dir := path.Dir(fromFile)
		for i := 1; i < dots; i++ {
			dir = path.Dir(dir)
		}
		base = path.Join(dir, strings.ReplaceAll(source[dots:], ".", "/"))
	} else {
		base = strings.ReplaceAll(source, ".", "/")
	}
	for _, c := range []string{base + ".py", base + "/__init__.py"} {
		if fileSet[c] {
			return []string{c}
		}
	}
	return nil
}

// resolveGoImport matches an import path suffix against repo
// directories and links to every file in the imported package.
func resolveGoImport(source string, fileSet map[string]bool) []string {
	dirs := map[string][]string{}
	for f := range fileSet {
		if strings.HasSuffix(f, ".go") {
			dirs[path.Dir(f)] = append(dirs[path.Dir(f)], f)
		}
	}

	var best string
	for dir := range dirs {
		if dir == "." {
			continue
		}
		if source == dir || strings.HasSuffix(source, "/"+dir) {
			if len(dir) > len(best) {
				best = dir
			}
		}
	}
	if best == "" {
		return nil
	}
	return dirs[best]
}
