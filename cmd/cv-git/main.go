// cv-git is an AI-native code-intelligence layer: a knowledge graph
// and vector index beside a git repository, exposed to agents as MCP
// tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/controlVector/cv-git/builtin"
	"github.com/controlVector/cv-git/builtin/parser/markdown"
	"github.com/controlVector/cv-git/internal/authored"
	"github.com/controlVector/cv-git/internal/config"
	"github.com/controlVector/cv-git/internal/docs"
	"github.com/controlVector/cv-git/internal/embedcache"
	"github.com/controlVector/cv-git/internal/graph"
	"github.com/controlVector/cv-git/internal/infra"
	"github.com/controlVector/cv-git/internal/manifold"
	"github.com/controlVector/cv-git/internal/mcp"
	"github.com/controlVector/cv-git/internal/repo"
	"github.com/controlVector/cv-git/internal/search"
	"github.com/controlVector/cv-git/internal/summarize"
	"github.com/controlVector/cv-git/internal/syncer"
	"github.com/controlVector/cv-git/internal/traverse"
	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

var (
	version  = "0.1.0"
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cv-git",
	Short: "AI-native code intelligence beside your git repository",
	Long: `cv-git maintains a knowledge graph and a vector index derived from a
git working tree, and serves them to AI agents as MCP tools over stdio.

It provides:
- Delta sync of files, symbols, and call/import edges into a graph store
- Semantic search over code, docstrings, commits, and documents
- Hierarchical summaries (symbol, file, directory, repo)
- A nine-dimension context manifold for query-driven context assembly
- Codebase traversal sessions and durable session knowledge`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cv-git %s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Initialize the .cv state directory and configuration",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureInfra, _ := cmd.Flags().GetBool("infra")
		runInit(argPath(args), ensureInfra)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync [path]",
	Short: "Synchronize the graph and vector index with the working tree",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		summaries, _ := cmd.Flags().GetBool("summarize")
		runSync(argPath(args), mode, summaries)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show graph, vector, and ledger status",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatus(argPath(args))
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [path]",
	Short: "Start the MCP server on stdio",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runServe(argPath(args))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch the working tree and sync on changes",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runWatch(argPath(args))
	},
}

var infraCmd = &cobra.Command{
	Use:   "infra",
	Short: "Manage the backing services (FalkorDB, Qdrant, Ollama)",
}

var infraUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Ensure all backends are running and healthy",
	Run: func(cmd *cobra.Command, args []string) {
		runInfraUp()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	initCmd.Flags().Bool("infra", false, "also start the backing services via docker")
	syncCmd.Flags().StringP("mode", "m", "incremental", "sync mode (full, incremental, force)")
	syncCmd.Flags().Bool("summarize", false, "regenerate hierarchical summaries after sync")

	infraCmd.AddCommand(infraUpCmd)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(infraCmd)
}

func argPath(args []string) string {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func setupLogging() {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	// Stdout carries the MCP protocol; logs must go to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// app bundles every wired service for one repository.
type app struct {
	cfg    *config.Config
	paths  repo.Paths
	repoID string

	graph    *graph.Store
	vector   provider.VectorStore
	embedder provider.EmbeddingProvider
	cache    *embedcache.Cache
	ai       provider.AIProvider

	syncer     *syncer.Syncer
	searcher   *search.Service
	summarizer *summarize.Summarizer
	traverser  *traverse.Engine
	manifold   *manifold.Manifold
	docs       *docs.Service
	authored   *authored.Log
}

func (a *app) close() {
	if a.graph != nil {
		a.graph.Close()
	}
	if a.vector != nil {
		a.vector.Close()
	}
	if a.embedder != nil {
		a.embedder.Close()
	}
}

// buildApp loads config, connects backends, and wires every service.
func buildApp(ctx context.Context, root string) (*app, error) {
	paths := repo.NewPaths(root)
	if err := repo.EnsureLayout(paths); err != nil {
		return nil, err
	}
	manifest, err := repo.EnsureManifest(paths)
	if err != nil {
		return nil, err
	}
	repoID := manifest.Repository.ID

	cfg, warnings, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		slog.Warn(w)
	}

	builtin.RegisterDefaults()

	a := &app{cfg: cfg, paths: paths, repoID: repoID}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	a.graph, err = graph.New(provider.GraphConfig{
		URL:      cfg.Graph.URL,
		Database: cfg.Graph.Database,
		RepoID:   repoID,
	})
	if err != nil {
		return nil, err
	}
	if err = a.graph.Connect(ctx); err != nil {
		return nil, err
	}

	a.vector, err = provider.DefaultRegistry.CreateVectorStore(cfg.Vector.Provider, provider.VectorStoreConfig{
		Provider: cfg.Vector.Provider,
		URL:      cfg.Vector.URL,
		Path:     filepath.Join(paths.CV, "vectors.db"),
	})
	if err != nil {
		return nil, err
	}
	collections := make([]string, 0, len(types.AllCollections))
	for _, kind := range types.AllCollections {
		collections = append(collections, types.CollectionName(repoID, kind))
	}
	if err = a.vector.Init(ctx, collections, cfg.Embedding.Dimensions); err != nil {
		return nil, err
	}

	rawEmbedder, err := provider.DefaultRegistry.CreateEmbedding(cfg.Embedding.Provider, provider.EmbeddingConfig{
		Provider:   cfg.Embedding.Provider,
		Model:      cfg.Embedding.Model,
		Endpoint:   cfg.Embedding.URL,
		APIKey:     cfg.Embedding.APIKey,
		BatchSize:  cfg.Embedding.BatchSize,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	a.cache, err = embedcache.Open(paths.EmbeddingCache(), cfg.Limits.CacheMaxBytes)
	if err != nil {
		return nil, err
	}
	a.embedder = embedcache.Wrap(rawEmbedder, a.cache)

	a.ai, err = provider.DefaultRegistry.CreateAI(cfg.AI.Provider, provider.AIConfig{
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		APIKey:      cfg.AI.APIKey,
		Endpoint:    cfg.Embedding.URL,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
	})
	if err != nil {
		return nil, err
	}

	parserCfg := provider.ParserConfig{Strategy: "treesitter"}
	tsParser, err := provider.DefaultRegistry.CreateParser("treesitter", parserCfg)
	if err != nil {
		return nil, err
	}
	fallbackParser, err := provider.DefaultRegistry.CreateParser("simple", provider.ParserConfig{Strategy: "simple"})
	if err != nil {
		return nil, err
	}
	docParser := markdown.New(provider.ParserConfig{})

	a.syncer = syncer.New(syncer.Options{
		Config:    cfg,
		Paths:     paths,
		RepoID:    repoID,
		Graph:     a.graph,
		Vector:    a.vector,
		Embedder:  a.embedder,
		Parser:    tsParser,
		Fallback:  fallbackParser,
		DocParser: docParser,
	})

	a.summarizer = summarize.New(summarize.Options{
		Graph:        a.graph,
		Vector:       a.vector,
		Embedder:     a.embedder,
		AI:           a.ai,
		RepoID:       repoID,
		Root:         root,
		SnapshotPath: paths.RepoSummary(),
		MaxTokens:    cfg.AI.MaxTokens,
	})

	a.searcher = search.New(a.graph, a.vector, a.embedder, a.summarizer, repoID, slog.Default())

	a.traverser = traverse.New(traverse.Options{
		Graph:      a.graph,
		Summarizer: a.summarizer,
		Root:       root,
		SessionDir: paths.Sessions(),
		Lifetime:   cfg.Limits.SessionLifetime,
	})

	a.manifold = manifold.New(manifold.Options{
		Graph:     a.graph,
		Vector:    a.vector,
		Embedder:  a.embedder,
		Searcher:  a.searcher,
		Sessions:  a.traverser.ActiveSessions,
		RepoID:    repoID,
		Root:      root,
		StatePath: paths.ManifoldState(),
	})

	a.docs, err = docs.Open(docs.Options{
		Root:         root,
		RegistryPath: paths.IngestionLog(),
		DocumentsDir: paths.Documents(),
		RepoID:       repoID,
		Parser:       docParser,
		Graph:        a.graph,
		Vector:       a.vector,
		Embedder:     a.embedder,
	})
	if err != nil {
		return nil, err
	}

	a.authored, err = authored.Open(paths.AuthoredLog())
	if err != nil {
		return nil, err
	}
	return a, nil
}

func runInit(root string, ensureInfra bool) {
	ctx := context.Background()

	if ensureInfra {
		runInfraUp()
	}

	paths := repo.NewPaths(root)
	if err := repo.EnsureLayout(paths); err != nil {
		fatal("layout", err)
	}
	manifest, err := repo.EnsureManifest(paths)
	if err != nil {
		fatal("manifest", err)
	}

	if _, statErr := os.Stat(config.ConfigPath(root)); os.IsNotExist(statErr) {
		if err := config.Save(root, config.DefaultConfig()); err != nil {
			fatal("config", err)
		}
		fmt.Printf("wrote %s\n", config.ConfigPath(root))
	}
	fmt.Printf("initialized repo %s (id %s)\n", root, manifest.Repository.ID)

	a, err := buildApp(ctx, root)
	if err != nil {
		slog.Warn("backends not reachable yet; run 'cv-git infra up' and 'cv-git sync'", "error", err)
		return
	}
	defer a.close()
	fmt.Println("backends reachable; run 'cv-git sync' to build the index")
}

func runSync(root, modeStr string, summaries bool) {
	mode := types.SyncMode(modeStr)
	switch mode {
	case types.SyncFull, types.SyncIncremental, types.SyncForce:
	default:
		fatal("sync", fmt.Errorf("unknown mode %q", modeStr))
	}

	ctx := signalContext()
	a, err := buildApp(ctx, root)
	if err != nil {
		fatal("startup", err)
	}
	defer a.close()

	stats, err := a.syncer.Sync(ctx, mode)
	if err != nil {
		fatal("sync", err)
	}
	printJSON(stats)

	if summaries {
		sumStats, err := a.summarizer.Run(ctx)
		if err != nil {
			fatal("summarize", err)
		}
		printJSON(sumStats)
	}
	if _, err := a.manifold.Refresh(ctx); err != nil {
		slog.Warn("manifold refresh failed", "error", err)
	}
}

func runStatus(root string) {
	ctx := signalContext()
	a, err := buildApp(ctx, root)
	if err != nil {
		fatal("startup", err)
	}
	defer a.close()

	out := map[string]any{
		"repo_id": a.repoID,
		"root":    root,
	}
	if stats, err := a.graph.GetStats(ctx); err != nil {
		out["graph_error"] = err.Error()
	} else {
		out["graph"] = stats
	}
	vec := map[string]int{}
	for _, kind := range types.AllCollections {
		if n, err := a.vector.Count(ctx, types.CollectionName(a.repoID, kind)); err == nil {
			vec[string(kind)] = n
		}
	}
	out["vector"] = vec
	out["ledger_files"] = a.syncer.LedgerSize()
	out["cache"] = a.cache.Stats()
	out["active_sessions"] = a.traverser.ActiveSessions()
	printJSON(out)
}

func runServe(root string) {
	ctx := signalContext()
	a, err := buildApp(ctx, root)
	if err != nil {
		fatal("startup", err)
	}
	defer a.close()

	if a.cfg.Sync.AutoSync {
		go func() {
			if _, err := a.syncer.Sync(ctx, types.SyncIncremental); err != nil {
				slog.Warn("startup sync failed", "error", err)
			}
		}()
	}

	srv, err := mcp.New(mcp.Config{
		Config:     a.cfg,
		Paths:      a.paths,
		RepoID:     a.repoID,
		Graph:      a.graph,
		Vector:     a.vector,
		Searcher:   a.searcher,
		Syncer:     a.syncer,
		Summarizer: a.summarizer,
		Traverser:  a.traverser,
		Manifold:   a.manifold,
		Docs:       a.docs,
		Authored:   a.authored,
		Cache:      a.cache,
	})
	if err != nil {
		fatal("server", err)
	}

	slog.Info("serving MCP on stdio", "repo", a.repoID)
	if err := srv.ServeStdio(); err != nil {
		fatal("serve", err)
	}
}

func runWatch(root string) {
	ctx := signalContext()
	a, err := buildApp(ctx, root)
	if err != nil {
		fatal("startup", err)
	}
	defer a.close()

	if _, err := a.syncer.Sync(ctx, types.SyncIncremental); err != nil {
		fatal("initial sync", err)
	}
	slog.Info("watching for changes", "root", root)
	if err := a.syncer.Watch(ctx); err != nil && ctx.Err() == nil {
		fatal("watch", err)
	}
}

func runInfraUp() {
	ctx := signalContext()
	sup := infra.New(infra.Options{})
	if !sup.Available(ctx) {
		fatal("infra", fmt.Errorf("docker is not available"))
	}

	for _, backend := range []infra.Backend{infra.FalkorDB(), infra.Qdrant(), infra.Ollama()} {
		url, err := sup.Ensure(ctx, backend)
		if err != nil {
			fatal(backend.Name, err)
		}
		fmt.Printf("%s: %s\n", backend.Name, url)

		if backend.Name == "ollama" {
			cfg := config.DefaultConfig()
			lastStatus := ""
			err := infra.EnsureModel(ctx, url, cfg.Embedding.Model, func(status string, completed, total int64) {
				if status != lastStatus {
					slog.Info("model pull", "model", cfg.Embedding.Model, "status", status)
					lastStatus = status
				}
			})
			if err != nil {
				fatal("model pull", err)
			}
		}
	}
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		// A second signal force-exits.
		<-sigChan
		os.Exit(1)
	}()
	return ctx
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode", err)
	}
	fmt.Println(string(data))
}

func fatal(what string, err error) {
	slog.Error(what+" failed", "error", err)
	// Give the handler a beat to flush.
	time.Sleep(10 * time.Millisecond)
	os.Exit(1)
}
