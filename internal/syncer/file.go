package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/controlVector/cv-git/builtin/parser/simple"
	"github.com/controlVector/cv-git/internal/ledger"
	"github.com/controlVector/cv-git/pkg/types"
)

// pathResult is the outcome of processing one changed path.
type pathResult struct {
	parsed   *types.ParsedFile // nil for documents
	symbols  int
	chunks   int
	parseErr error
}

// processPath parses one path and reconciles graph and vector state.
// Within a path the order is parse, stale-state delete, graph upsert,
// vector upsert.
func (s *Syncer) processPath(ctx context.Context, rel string, d *delta) (*pathResult, error) {
	content, err := os.ReadFile(filepath.Join(s.paths.Root, filepath.FromSlash(rel)))
	if err != nil {
		return &pathResult{parseErr: err}, nil
	}

	if d.classes[rel] == types.FileClassDocument {
		return s.processDocument(ctx, rel, content)
	}
	return s.processCode(ctx, rel, content)
}

func (s *Syncer) processCode(ctx context.Context, rel string, content []byte) (*pathResult, error) {
	lang := simple.DetectLanguage(rel)

	strategy := s.parser
	if strategy == nil || !strategy.Supports(lang) {
		strategy = s.fallback
	}

	parsed, err := strategy.ParseSource(rel, content, lang)
	if err != nil {
		if errors.Is(err, types.ErrParse) && strategy != s.fallback && s.fallback != nil {
			parsed, err = s.fallback.ParseSource(rel, content, lang)
		}
		if err != nil {
			return &pathResult{parseErr: err}, nil
		}
	}

	// Stale graph symbols and vector points go before new state lands.
	// Inbound edges are captured first: the detach delete severs edges
	// from files not touched this tick, and linkEdges only revisits the
	// call sites of files parsed now.
	inbound, err := s.graph.InboundEdges(ctx, rel)
	if err != nil {
		return nil, err
	}
	if err := s.graph.DeleteFile(ctx, rel); err != nil {
		return nil, err
	}
	if err := s.deleteVectorsForFile(ctx, rel, types.FileClassCode); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.graph.UpsertFile(ctx, &types.FileNode{
		Path:         rel,
		Language:     parsed.Language,
		GitHash:      parsed.Hash,
		Size:         parsed.Size,
		LinesOfCode:  parsed.LinesOfCode,
		Complexity:   parsed.Complexity(),
		LastModified: now,
	}); err != nil {
		return nil, err
	}

	for _, sym := range parsed.Symbols {
		node := &types.SymbolNode{
			QualifiedName: sym.QualifiedName,
			Name:          sym.Name,
			Kind:          sym.Kind,
			File:          rel,
			StartLine:     sym.StartLine,
			EndLine:       sym.EndLine,
			Signature:     sym.Signature,
			Docstring:     sym.Docstring,
			Visibility:    sym.Visibility,
			IsAsync:       sym.IsAsync,
			IsStatic:      sym.IsStatic,
			Complexity:    sym.Complexity,
			VectorIDs:     symbolVectorIDs(rel, sym),
		}
		if err := s.graph.UpsertSymbol(ctx, node); err != nil {
			return nil, err
		}
		if err := s.graph.CreateEdge(ctx, &types.Edge{
			Type:    types.EdgeDefines,
			FromKey: rel,
			ToKey:   sym.QualifiedName,
		}); err != nil {
			return nil, err
		}
	}

	// Replay captured inbound edges. CreateEdge silently drops any
	// whose target symbol no longer exists after the edit.
	for _, e := range inbound {
		if err := s.graph.CreateEdge(ctx, e); err != nil {
			return nil, err
		}
	}

	chunks, err := s.upsertCodeVectors(ctx, rel, parsed)
	if err != nil {
		return nil, err
	}

	return &pathResult{parsed: parsed, symbols: len(parsed.Symbols), chunks: chunks}, nil
}

// symbolVectorIDs lists the vector point ids a symbol owns. The first
// entry is the symbol's own chunk, kept first for compatibility with
// single-id consumers.
func symbolVectorIDs(rel string, sym *types.ParsedSymbol) []string {
	ids := []string{types.ChunkID(rel, sym.StartLine, sym.EndLine)}
	if sym.Docstring != "" {
		ids = append(ids, "doc:"+sym.QualifiedName)
	}
	return ids
}

// upsertCodeVectors embeds chunks and docstrings and writes them into
// the per-repo collections.
func (s *Syncer) upsertCodeVectors(ctx context.Context, rel string, parsed *types.ParsedFile) (int, error) {
	var points []*types.VectorPoint
	var texts []string

	for _, ch := range parsed.Chunks {
		points = append(points, &types.VectorPoint{
			ID: ch.ID,
			Payload: map[string]any{
				"file":       ch.FilePath,
				"language":   ch.Language,
				"start_line": ch.StartLine,
				"end_line":   ch.EndLine,
				"symbol":     ch.SymbolContext,
				"hash":       ch.Hash,
				"content":    ch.Content,
			},
		})
		texts = append(texts, ch.Content)
	}

	var docPoints []*types.VectorPoint
	var docTexts []string
	for _, sym := range parsed.Symbols {
		if sym.Docstring == "" {
			continue
		}
		docPoints = append(docPoints, &types.VectorPoint{
			ID: "doc:" + sym.QualifiedName,
			Payload: map[string]any{
				"file":    rel,
				"symbol":  sym.QualifiedName,
				"kind":    string(sym.Kind),
				"content": sym.Docstring,
			},
		})
		docTexts = append(docTexts, sym.Signature+"\n"+sym.Docstring)
	}

	embedded := 0
	if len(points) > 0 {
		vectors, err := s.embed(ctx, texts)
		if err != nil {
			return 0, err
		}
		for i := range points {
			points[i].Vector = vectors[i]
		}
		coll := types.CollectionName(s.repoID, types.CollectionCodeChunks)
		if err := s.vector.Upsert(ctx, coll, points); err != nil {
			return 0, err
		}
		embedded += len(points)
	}
	if len(docPoints) > 0 {
		vectors, err := s.embed(ctx, docTexts)
		if err != nil {
			return 0, err
		}
		for i := range docPoints {
			docPoints[i].Vector = vectors[i]
		}
		coll := types.CollectionName(s.repoID, types.CollectionDocstrings)
		if err := s.vector.Upsert(ctx, coll, docPoints); err != nil {
			return 0, err
		}
		embedded += len(docPoints)
	}
	return embedded, nil
}

func (s *Syncer) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if s.cfg.Limits.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Limits.EmbedTimeout*time.Duration(1+len(texts)/32))
		defer cancel()
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		// One retry; embedding servers shed load under batch pressure.
		vectors, err = s.embedder.Embed(ctx, texts)
	}
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", types.ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (s *Syncer) processDocument(ctx context.Context, rel string, content []byte) (*pathResult, error) {
	doc, err := s.docs.ParseDocument(rel, content)
	if err != nil {
		return &pathResult{parseErr: err}, nil
	}

	if err := s.graph.DeleteDocument(ctx, rel); err != nil {
		return nil, err
	}
	if err := s.deleteVectorsForFile(ctx, rel, types.FileClassDocument); err != nil {
		return nil, err
	}

	if err := s.graph.UpsertDocument(ctx, &types.DocumentNode{
		Path:         rel,
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		Status:       doc.Status,
		GitHash:      doc.Hash,
		SectionCount: len(doc.Sections),
		LastModified: time.Now().UTC(),
	}); err != nil {
		return nil, err
	}

	chunks := doc.Chunks()
	if len(chunks) == 0 {
		return &pathResult{}, nil
	}

	points := make([]*types.VectorPoint, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, ch := range chunks {
		points = append(points, &types.VectorPoint{
			ID: ch.ID,
			Payload: map[string]any{
				"file":       ch.FilePath,
				"title":      doc.Title,
				"doc_type":   string(doc.DocumentType),
				"start_line": ch.StartLine,
				"end_line":   ch.EndLine,
				"hash":       ch.Hash,
				"content":    ch.Content,
			},
		})
		texts = append(texts, ch.Content)
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}
	coll := types.CollectionName(s.repoID, types.CollectionDocumentChunks)
	if err := s.vector.Upsert(ctx, coll, points); err != nil {
		return nil, err
	}
	return &pathResult{chunks: len(points)}, nil
}

// deletePath removes all graph and vector state for a path that left
// the working tree.
func (s *Syncer) deletePath(ctx context.Context, prev *types.LedgerEntry, rel string) error {
	class := types.FileClassCode
	if prev != nil {
		class = prev.Type
	}
	if class == types.FileClassDocument {
		if err := s.graph.DeleteDocument(ctx, rel); err != nil {
			return err
		}
	} else {
		if err := s.graph.DeleteFile(ctx, rel); err != nil {
			return err
		}
	}
	return s.deleteVectorsForFile(ctx, rel, class)
}

// deleteVectorsForFile removes every point whose payload file matches.
func (s *Syncer) deleteVectorsForFile(ctx context.Context, rel string, class types.FileClass) error {
	collections := []types.Collection{types.CollectionCodeChunks, types.CollectionDocstrings}
	if class == types.FileClassDocument {
		collections = []types.Collection{types.CollectionDocumentChunks}
	}
	for _, kind := range collections {
		coll := types.CollectionName(s.repoID, kind)
		points, err := s.vector.Scroll(ctx, coll, map[string]any{"file": rel}, 10000)
		if err != nil {
			return err
		}
		if len(points) == 0 {
			continue
		}
		ids := make([]string, 0, len(points))
		for _, p := range points {
			ids = append(ids, p.ID)
		}
		if err := s.vector.DeletePoints(ctx, coll, ids); err != nil {
			return err
		}
	}
	return nil
}

// rebuildModules recomputes directory-level Module nodes from the
// graph's current file/symbol counts.
func (s *Syncer) rebuildModules(ctx context.Context, led *ledger.Ledger) error {
	rows, err := s.graph.Query(ctx,
		`MATCH (f:File) OPTIONAL MATCH (f)-[:DEFINES]->(s:Symbol) RETURN f.path, count(s)`, nil)
	if err != nil {
		return err
	}

	type agg struct{ files, symbols int }
	dirs := map[string]*agg{}
	for _, row := range rows {
		path, _ := row["f.path"].(string)
		if path == "" {
			continue
		}
		dir := filepath.ToSlash(filepath.Dir(path))
		if dirs[dir] == nil {
			dirs[dir] = &agg{}
		}
		dirs[dir].files++
		dirs[dir].symbols += toInt(row["count(s)"])
	}

	keys := make([]string, 0, len(dirs))
	for dir := range dirs {
		keys = append(keys, dir)
	}
	sort.Strings(keys)

	for _, dir := range keys {
		a := dirs[dir]
		name := filepath.Base(dir)
		if dir == "." {
			name = "root"
		}
		if err := s.graph.UpsertModule(ctx, &types.ModuleNode{
			Path:        dir,
			Name:        name,
			Type:        types.ModuleTypeDirectory,
			FileCount:   a.files,
			SymbolCount: a.symbols,
		}); err != nil {
			return err
		}
	}
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int64:
		return int(t)
	case int:
		return t
	case float64:
		return int(t)
	case string:
		n := 0
		fmt.Sscanf(t, "%d", &n)
		return n
	default:
		return 0
	}
}

