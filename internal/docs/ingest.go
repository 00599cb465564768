// Package docs ingests external documents — specs, tickets, design
// notes that live outside the working tree — stores their content
// under the repo state directory, and indexes them alongside in-tree
// markdown.
package docs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Record is one registry entry in ingestion.jsonl. Replays resolve by
// latest updated_at per id, same discipline as the authored log.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Source      string    `json:"source,omitempty"` // origin URL or path
	Path        string    `json:"path"`             // storage path relative to repo root
	ContentHash string    `json:"content_hash"`
	Size        int64     `json:"size"`
	Title       string    `json:"title,omitempty"`
	DocType     string    `json:"doc_type,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Deleted     bool      `json:"deleted,omitempty"`
}

// Service owns the ingestion registry and the stored document content.
type Service struct {
	root         string // repo root
	registryPath string
	documentsDir string
	repoID       string

	parser   provider.DocumentParser
	graph    provider.GraphStore
	vector   provider.VectorStore
	embedder provider.EmbeddingProvider
	logger   *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
}

// Options configures a Service.
type Options struct {
	Root         string
	RegistryPath string
	DocumentsDir string
	RepoID       string
	Parser       provider.DocumentParser
	Graph        provider.GraphStore
	Vector       provider.VectorStore
	Embedder     provider.EmbeddingProvider
	Logger       *slog.Logger
}

// Open loads the registry and returns a ready service.
func Open(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		root:         opts.Root,
		registryPath: opts.RegistryPath,
		documentsDir: opts.DocumentsDir,
		repoID:       opts.RepoID,
		parser:       opts.Parser,
		graph:        opts.Graph,
		vector:       opts.Vector,
		embedder:     opts.Embedder,
		logger:       logger.With("component", "docs"),
		records:      make(map[string]*Record),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load() error {
	f, err := os.Open(s.registryPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.ID == "" {
			continue
		}
		prev := s.records[rec.ID]
		if prev == nil || rec.UpdatedAt.After(prev.UpdatedAt) {
			s.records[rec.ID] = &rec
		}
	}
	return scanner.Err()
}

func (s *Service) appendRecord(rec *Record) error {
	if err := os.MkdirAll(filepath.Dir(s.registryPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.registryPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	s.records[rec.ID] = rec
	return f.Sync()
}

// Ingest stores a document's content, registers it, and indexes it
// into the graph and vector stores. Re-ingesting the same name with
// identical content is a no-op.
func (s *Service) Ingest(ctx context.Context, name, source string, content []byte) (*Record, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: document name required", types.ErrValidation)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty document content", types.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := types.Slugify(name)
	hash := types.HashBytes(content)
	now := time.Now().UTC()

	if prev := s.records[id]; prev != nil && !prev.Deleted && prev.ContentHash == hash {
		return prev, nil
	}

	storeName := id + ".md"
	storePath := filepath.Join(s.documentsDir, storeName)
	if err := os.MkdirAll(s.documentsDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(storePath, content, 0o644); err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(s.root, storePath)
	if err != nil {
		rel = storePath
	}
	rel = filepath.ToSlash(rel)

	rec := &Record{
		ID:          id,
		Name:        name,
		Source:      source,
		Path:        rel,
		ContentHash: hash,
		Size:        int64(len(content)),
		IngestedAt:  now,
		UpdatedAt:   now,
	}
	if prev := s.records[id]; prev != nil {
		rec.IngestedAt = prev.IngestedAt
	}

	doc, err := s.index(ctx, rel, content)
	if err != nil {
		return nil, err
	}
	rec.Title = doc.Title
	rec.DocType = string(doc.DocumentType)

	if err := s.appendRecord(rec); err != nil {
		return nil, err
	}
	s.logger.Info("document ingested", "id", id, "title", rec.Title, "chunks", len(doc.Chunks()))
	return rec, nil
}

// index parses the stored content and reconciles graph and vector
// state, mirroring what sync does for in-tree markdown.
func (s *Service) index(ctx context.Context, rel string, content []byte) (*types.ParsedDocument, error) {
	doc, err := s.parser.ParseDocument(rel, content)
	if err != nil {
		return nil, err
	}

	if err := s.graph.DeleteDocument(ctx, rel); err != nil {
		return nil, err
	}
	coll := types.CollectionName(s.repoID, types.CollectionDocumentChunks)
	if stale, err := s.vector.Scroll(ctx, coll, map[string]any{"file": rel}, 10000); err == nil && len(stale) > 0 {
		ids := make([]string, 0, len(stale))
		for _, p := range stale {
			ids = append(ids, p.ID)
		}
		if err := s.vector.DeletePoints(ctx, coll, ids); err != nil {
			return nil, err
		}
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
		return doc, nil
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
				"ingested":   true,
			},
		})
		texts = append(texts, ch.Content)
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range points {
		points[i].Vector = vectors[i]
	}
	if err := s.vector.Upsert(ctx, coll, points); err != nil {
		return nil, err
	}
	return doc, nil
}

// Remove deletes an ingested document's indexed state and content and
// tombstones its registry entry.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[id]
	if rec == nil || rec.Deleted {
		return fmt.Errorf("%w: document %q", types.ErrNotFound, id)
	}

	if err := s.graph.DeleteDocument(ctx, rec.Path); err != nil {
		return err
	}
	coll := types.CollectionName(s.repoID, types.CollectionDocumentChunks)
	if stale, err := s.vector.Scroll(ctx, coll, map[string]any{"file": rec.Path}, 10000); err == nil && len(stale) > 0 {
		ids := make([]string, 0, len(stale))
		for _, p := range stale {
			ids = append(ids, p.ID)
		}
		if err := s.vector.DeletePoints(ctx, coll, ids); err != nil {
			return err
		}
	}
	os.Remove(filepath.Join(s.root, filepath.FromSlash(rec.Path)))

	tomb := *rec
	tomb.Deleted = true
	tomb.UpdatedAt = time.Now().UTC()
	return s.appendRecord(&tomb)
}

// List returns live registry entries, newest first.
func (s *Service) List() []*Record {
	s.mu.Lock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.Deleted {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Reindex re-parses and re-embeds every stored document, for use
// after a graph clear or an embedding model change.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	indexed := 0
	for _, rec := range s.List() {
		content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rec.Path)))
		if err != nil {
			s.logger.Warn("stored document unreadable", "id", rec.ID, "error", err)
			continue
		}
		if _, err := s.index(ctx, rec.Path, content); err != nil {
			return indexed, err
		}
		indexed++
	}
	return indexed, nil
}
