// Package syncer implements the delta-sync pipeline: walk the working
// tree, diff it against the file ledger, and reconcile the knowledge
// graph and vector collections with what changed.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/controlVector/cv-git/builtin/parser/simple"
	"github.com/controlVector/cv-git/internal/config"
	"github.com/controlVector/cv-git/internal/ledger"
	"github.com/controlVector/cv-git/internal/repo"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Syncer drives sync ticks for one repository.
type Syncer struct {
	cfg      *config.Config
	paths    repo.Paths
	repoID   string
	graph    provider.GraphStore
	vector   provider.VectorStore
	embedder provider.EmbeddingProvider
	parser   provider.ParserStrategy
	fallback provider.ParserStrategy
	docs     provider.DocumentParser
	logger   *slog.Logger

	mu sync.Mutex // guards stats and the ledger during a tick
}

// Options bundles the collaborators a Syncer needs.
type Options struct {
	Config    *config.Config
	Paths     repo.Paths
	RepoID    string
	Graph     provider.GraphStore
	Vector    provider.VectorStore
	Embedder  provider.EmbeddingProvider
	Parser    provider.ParserStrategy
	Fallback  provider.ParserStrategy
	DocParser provider.DocumentParser
	Logger    *slog.Logger
}

// New creates a Syncer.
func New(opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		cfg:      opts.Config,
		paths:    opts.Paths,
		repoID:   opts.RepoID,
		graph:    opts.Graph,
		vector:   opts.Vector,
		embedder: opts.Embedder,
		parser:   opts.Parser,
		fallback: opts.Fallback,
		docs:     opts.DocParser,
		logger:   logger.With("component", "syncer"),
	}
}

// delta is the four-way classification of one tick.
type delta struct {
	added     []string
	modified  []string
	deleted   []string
	unchanged int
	classes   map[string]types.FileClass
	hashes    map[string]string
	sizes     map[string]int64
}

// Sync runs one tick. Per-file parse errors are recorded and skipped;
// backend failures abort with a recoverable error and leave the ledger
// untouched.
func (s *Syncer) Sync(ctx context.Context, mode types.SyncMode) (*types.SyncStats, error) {
	start := time.Now()
	stats := &types.SyncStats{Mode: mode}

	if s.cfg.Limits.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Limits.SyncTimeout)
		defer cancel()
	}

	led, err := ledger.Load(s.paths.FileLedger())
	if err != nil {
		return nil, err
	}
	if mode == types.SyncFull {
		led.Clear()
	}

	d, err := s.computeDelta(ctx, led, mode)
	if err != nil {
		return nil, err
	}
	stats.Added = d.added
	stats.Modified = d.modified
	stats.Deleted = d.deleted
	stats.Unchanged = d.unchanged

	s.logger.Info("delta computed",
		"mode", mode,
		"added", len(d.added),
		"modified", len(d.modified),
		"deleted", len(d.deleted),
		"unchanged", d.unchanged)

	// Deletes first: a path renamed in one tick appears as delete+add,
	// and the delete must land before the add touches the stores.
	for _, path := range d.deleted {
		if err := s.deletePath(ctx, led.Get(path), path); err != nil {
			return nil, err
		}
		led.Delete(path)
	}

	// Parse and upsert changed paths on a bounded worker pool. Paths
	// are independent once deletes are done.
	work := append(append([]string{}, d.added...), d.modified...)
	symbolIndex := newSymbolIndex()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, path := range work {
		path := path
		g.Go(func() error {
			res, err := s.processPath(gctx, path, d)
			if err != nil {
				// Backend failures abort the tick.
				return err
			}
			s.mu.Lock()
			if res.parseErr != nil {
				stats.Errors = append(stats.Errors, types.SyncError{
					Path: path, Op: "parse", Message: res.parseErr.Error(),
				})
			} else {
				stats.SymbolsUpserted += res.symbols
				stats.ChunksEmbedded += res.chunks
				symbolIndex.addFile(path, res.parsed)
				led.Set(path, &types.LedgerEntry{
					ContentHash:  d.hashes[path],
					Size:         d.sizes[path],
					Type:         d.classes[path],
					LastSyncedAt: time.Now().UTC(),
				})
			}
			s.mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: sync tick", types.ErrTimeout)
		}
		return nil, err
	}

	// Cross-file edges need every touched file's symbols in place.
	unresolved, err := s.linkEdges(ctx, symbolIndex, led)
	if err != nil {
		return nil, err
	}
	stats.UnresolvedCalls = unresolved

	if err := s.rebuildModules(ctx, led); err != nil {
		return nil, err
	}

	if s.cfg.Sync.ImportGitHistory {
		imported, err := s.importGitHistory(ctx)
		if err != nil {
			s.logger.Warn("git history import failed", "error", err)
		}
		stats.CommitsImported = imported
	}

	if err := led.Save(); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(start)
	s.logger.Info("sync complete",
		"symbols", stats.SymbolsUpserted,
		"chunks", stats.ChunksEmbedded,
		"unresolved_calls", stats.UnresolvedCalls,
		"errors", len(stats.Errors),
		"duration", stats.Duration)
	return stats, nil
}

// LedgerSize reports how many paths the persisted ledger tracks.
func (s *Syncer) LedgerSize() int {
	led, err := ledger.Load(s.paths.FileLedger())
	if err != nil {
		return 0
	}
	return led.Len()
}

func (s *Syncer) workers() int {
	if s.cfg.Limits.Workers > 0 {
		return s.cfg.Limits.Workers
	}
	return runtime.NumCPU()
}

// computeDelta walks the tree and classifies every tracked path.
func (s *Syncer) computeDelta(ctx context.Context, led *ledger.Ledger, mode types.SyncMode) (*delta, error) {
	d := &delta{
		classes: map[string]types.FileClass{},
		hashes:  map[string]string{},
		sizes:   map[string]int64{},
	}

	seen := map[string]bool{}
	err := filepath.WalkDir(s.paths.Root, func(abs string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(s.paths.Root, abs)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if entry.Name() == ".git" || entry.Name() == ".cv" || s.excluded(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if s.excluded(rel) {
			return nil
		}

		class, ok := s.classify(rel)
		if !ok {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.cfg.Limits.MaxFileSize {
			return nil
		}

		content, err := os.ReadFile(abs)
		if err != nil {
			return nil
		}
		if isBinary(content) {
			return nil
		}

		hash := types.HashBytes(content)
		seen[rel] = true
		d.classes[rel] = class
		d.hashes[rel] = hash
		d.sizes[rel] = info.Size()

		prev := led.Get(rel)
		switch {
		case prev == nil:
			d.added = append(d.added, rel)
		case prev.ContentHash != hash || mode == types.SyncForce:
			// Force mode reprocesses unchanged paths too.
			d.modified = append(d.modified, rel)
		default:
			d.unchanged++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, path := range led.Paths() {
		if !seen[path] {
			d.deleted = append(d.deleted, path)
		}
	}
	sort.Strings(d.added)
	sort.Strings(d.modified)
	sort.Strings(d.deleted)
	return d, nil
}

// classify decides which pipeline a path belongs to, or neither.
func (s *Syncer) classify(rel string) (types.FileClass, bool) {
	if s.cfg.Docs.Enabled && simple.IsDocument(rel) {
		for _, pat := range s.cfg.Docs.ExcludePatterns {
			if matchGlob(pat, rel) {
				return "", false
			}
		}
		return types.FileClassDocument, true
	}

	lang := simple.DetectLanguage(rel)
	if lang == "" || lang == "markdown" {
		return "", false
	}
	if len(s.cfg.Sync.IncludeLanguages) > 0 {
		ok := false
		for _, l := range s.cfg.Sync.IncludeLanguages {
			if l == lang {
				ok = true
				break
			}
		}
		if !ok {
			return "", false
		}
	}
	return types.FileClassCode, true
}

func (s *Syncer) excluded(rel string) bool {
	for _, pat := range s.cfg.Sync.ExcludePatterns {
		if matchGlob(pat, rel) {
			return true
		}
	}
	return false
}

// isBinary samples the leading bytes for NUL.
func isBinary(content []byte) bool {
	sample := content
	if len(sample) > 8000 {
		sample = sample[:8000]
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}

// matchGlob matches gitignore-style patterns with ** support against
// slash-separated relative paths.
func matchGlob(pattern, path string) bool {
	return globToMatcher(pattern).MatchString(path)
}

var (
	globCacheMu sync.Mutex
	globCache   = map[string]*globMatcher{}
)

func globToMatcher(pattern string) *globMatcher {
	globCacheMu.Lock()
	defer globCacheMu.Unlock()
	if m, ok := globCache[pattern]; ok {
		return m
	}
	m := compileGlob(pattern)
	globCache[pattern] = m
	return m
}

type globMatcher struct {
	segments []string
}

func compileGlob(pattern string) *globMatcher {
	return &globMatcher{segments: strings.Split(strings.Trim(pattern, "/"), "/")}
}

// MatchString implements a small subset of gitignore semantics:
// "**" matches any number of path segments, "*" matches within one.
func (g *globMatcher) MatchString(path string) bool {
	return matchSegments(g.segments, strings.Split(strings.Trim(path, "/"), "/"))
}

func matchSegments(pat, parts []string) bool {
	if len(pat) == 0 {
		return len(parts) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(parts); i++ {
			if matchSegments(pat[1:], parts[i:]) {
				return true
			}
		}
		return false
	}
	if len(parts) == 0 {
		return false
	}
	ok, _ := filepath.Match(pat[0], parts[0])
	if !ok {
		return false
	}
	return matchSegments(pat[1:], parts[1:])
}
