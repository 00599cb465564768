package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, warnings, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 1 {
		t.Errorf("warnings = %v, want missing-config note", warnings)
	}
	if cfg.Graph.URL != "redis://localhost:6379" {
		t.Errorf("graph url = %q", cfg.Graph.URL)
	}
	if cfg.Vector.Provider != "qdrant" || cfg.Embedding.Model != "nomic-embed-text" {
		t.Errorf("vector %q embedding %q", cfg.Vector.Provider, cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("dimensions = %d", cfg.Embedding.Dimensions)
	}
	if cfg.Limits.MaxFileSize != 1<<20 {
		t.Errorf("max file size = %d", cfg.Limits.MaxFileSize)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("default config invalid: %v", errs)
	}
}

func TestLoadPartialConfigFile(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(CVDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	partial := `{"embedding": {"model": "mxbai-embed-large", "dimensions": 1024}}`
	if err := os.WriteFile(ConfigPath(root), []byte(partial), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, warnings, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}
	if cfg.Embedding.Model != "mxbai-embed-large" || cfg.Embedding.Dimensions != 1024 {
		t.Errorf("embedding = %+v", cfg.Embedding)
	}
	// Untouched sections keep their defaults.
	if cfg.Embedding.Provider != "ollama" {
		t.Errorf("provider = %q, want default ollama", cfg.Embedding.Provider)
	}
	if cfg.Graph.URL != "redis://localhost:6379" {
		t.Errorf("graph url = %q, want default", cfg.Graph.URL)
	}
	if cfg.Limits.SyncTimeout != 5*time.Minute {
		t.Errorf("sync timeout = %v, want default", cfg.Limits.SyncTimeout)
	}
}

func TestLoadMalformedConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(CVDir(root), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(root), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(root); err == nil {
		t.Error("malformed config should fail to load")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CV_FALKORDB_URL", "redis://falkor:7000")
	t.Setenv("QDRANT_URL", "http://qdrant:9333")
	t.Setenv("CV_MAX_FILE_SIZE", "2048")
	t.Setenv("CV_DEBUG", "1")

	cfg, _, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Graph.URL != "redis://falkor:7000" {
		t.Errorf("graph url = %q", cfg.Graph.URL)
	}
	if cfg.Vector.URL != "http://qdrant:9333" {
		t.Errorf("vector url = %q (legacy env ignored)", cfg.Vector.URL)
	}
	if cfg.Limits.MaxFileSize != 2048 {
		t.Errorf("max file size = %d", cfg.Limits.MaxFileSize)
	}
	if !cfg.Logging.Debug || cfg.Logging.Level != "debug" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestEnvPrefixedWinsOverLegacy(t *testing.T) {
	t.Setenv("CV_OLLAMA_URL", "http://a:1")
	t.Setenv("OLLAMA_URL", "http://b:2")

	cfg, _, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.URL != "http://a:1" {
		t.Errorf("embedding url = %q, want prefixed variant", cfg.Embedding.URL)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	root := t.TempDir()
	cfg := DefaultConfig()
	cfg.Embedding.Model = "custom-model"
	cfg.Sync.AutoSync = true

	if err := Save(root, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, ".cv", "config.json")); err != nil {
		t.Fatal(err)
	}

	got, _, err := Load(root)
	if err != nil {
		t.Fatal(err)
	}
	if got.Embedding.Model != "custom-model" {
		t.Errorf("model = %q", got.Embedding.Model)
	}
	if !got.Sync.AutoSync {
		t.Error("autoSync lost in roundtrip")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vector.Provider = "pinecone"
	cfg.Embedding.Provider = "cohere"
	cfg.Embedding.Dimensions = 0
	cfg.Logging.Level = "verbose"

	errs := Validate(cfg)
	if len(errs) != 4 {
		t.Errorf("Validate = %v, want 4 errors", errs)
	}
}
