// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration persisted at .cv/config.json.
type Config struct {
	Version   int             `mapstructure:"version" json:"version"`
	Graph     GraphConfig     `mapstructure:"graph" json:"graph"`
	Vector    VectorConfig    `mapstructure:"vector" json:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`
	AI        AIConfig        `mapstructure:"ai" json:"ai"`
	Sync      SyncConfig      `mapstructure:"sync" json:"sync"`
	Docs      DocsConfig      `mapstructure:"docs" json:"docs"`
	Limits    LimitsConfig    `mapstructure:"limits" json:"limits"`
	Logging   LoggingConfig   `mapstructure:"logging" json:"logging"`
}

// GraphConfig contains graph backend configuration.
type GraphConfig struct {
	URL      string `mapstructure:"url" json:"url"`
	Database string `mapstructure:"database" json:"database"` // Override; empty = cv_<repoId>
}

// VectorConfig contains vector backend configuration.
type VectorConfig struct {
	Provider    string            `mapstructure:"provider" json:"provider"` // qdrant, sqlitevec
	URL         string            `mapstructure:"url" json:"url"`
	Collections CollectionsConfig `mapstructure:"collections" json:"collections"`
}

// CollectionsConfig names the logical collections. Defaults are the
// canonical names; per-repo prefixes are applied at runtime.
type CollectionsConfig struct {
	CodeChunks     string `mapstructure:"codeChunks" json:"codeChunks"`
	Docstrings     string `mapstructure:"docstrings" json:"docstrings"`
	Commits        string `mapstructure:"commits" json:"commits"`
	DocumentChunks string `mapstructure:"documentChunks" json:"documentChunks"`
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider" json:"provider"` // ollama, openai
	Model      string `mapstructure:"model" json:"model"`
	URL        string `mapstructure:"url" json:"url"`
	APIKey     string `mapstructure:"apiKey" json:"apiKey,omitempty"`
	Dimensions int    `mapstructure:"dimensions" json:"dimensions"`
	BatchSize  int    `mapstructure:"batchSize" json:"batchSize"`
}

// AIConfig contains the summary/completion provider configuration.
type AIConfig struct {
	Provider    string  `mapstructure:"provider" json:"provider"`
	Model       string  `mapstructure:"model" json:"model"`
	APIKey      string  `mapstructure:"apiKey" json:"apiKey,omitempty"`
	MaxTokens   int     `mapstructure:"maxTokens" json:"maxTokens"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
}

// SyncConfig contains delta-sync configuration.
type SyncConfig struct {
	AutoSync         bool     `mapstructure:"autoSync" json:"autoSync"`
	ExcludePatterns  []string `mapstructure:"excludePatterns" json:"excludePatterns"`
	IncludeLanguages []string `mapstructure:"includeLanguages" json:"includeLanguages"`
	DebounceMillis   int      `mapstructure:"debounceMillis" json:"debounceMillis"`
	ImportGitHistory bool     `mapstructure:"importGitHistory" json:"importGitHistory"`
}

// DocsConfig contains document pipeline configuration.
type DocsConfig struct {
	Enabled         bool     `mapstructure:"enabled" json:"enabled"`
	Patterns        []string `mapstructure:"patterns" json:"patterns"`
	ExcludePatterns []string `mapstructure:"excludePatterns" json:"excludePatterns"`
	ChunkByHeading  bool     `mapstructure:"chunkByHeading" json:"chunkByHeading"`
	InferTypes      bool     `mapstructure:"inferTypes" json:"inferTypes"`
}

// LimitsConfig contains resource limits and timeouts.
type LimitsConfig struct {
	MaxFileSize     int64         `mapstructure:"maxFileSize" json:"maxFileSize"` // bytes
	Workers         int           `mapstructure:"workers" json:"workers"`         // 0 = NumCPU
	SyncTimeout     time.Duration `mapstructure:"syncTimeout" json:"syncTimeout"`
	EmbedTimeout    time.Duration `mapstructure:"embedTimeout" json:"embedTimeout"`
	HealthTimeout   time.Duration `mapstructure:"healthTimeout" json:"healthTimeout"`
	CacheMaxBytes   int64         `mapstructure:"cacheMaxBytes" json:"cacheMaxBytes"`
	SessionLifetime time.Duration `mapstructure:"sessionLifetime" json:"sessionLifetime"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level" json:"level"` // debug, info, warn, error
	Debug bool   `mapstructure:"debug" json:"debug"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Graph: GraphConfig{
			URL: "redis://localhost:6379",
		},
		Vector: VectorConfig{
			Provider: "qdrant",
			URL:      "http://localhost:6333",
			Collections: CollectionsConfig{
				CodeChunks:     "code_chunks",
				Docstrings:     "docstrings",
				Commits:        "commits",
				DocumentChunks: "document_chunks",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			URL:        "http://localhost:11434",
			Dimensions: 768,
			BatchSize:  32,
		},
		AI: AIConfig{
			Provider:    "ollama",
			Model:       "llama3.1",
			MaxTokens:   512,
			Temperature: 0.2,
		},
		Sync: SyncConfig{
			AutoSync: false,
			ExcludePatterns: []string{
				"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/.cv/**",
				"**/dist/**", "**/build/**", "**/target/**",
				"**/*.min.js", "**/*.min.css", "**/*.generated.*",
				"**/package-lock.json", "**/go.sum", "**/Cargo.lock",
			},
			IncludeLanguages: nil, // nil = all supported
			DebounceMillis:   2000,
			ImportGitHistory: true,
		},
		Docs: DocsConfig{
			Enabled:        true,
			Patterns:       []string{"**/*.md", "**/*.markdown"},
			ChunkByHeading: true,
			InferTypes:     true,
		},
		Limits: LimitsConfig{
			MaxFileSize:     1 << 20, // 1 MiB
			Workers:         0,
			SyncTimeout:     5 * time.Minute,
			EmbedTimeout:    30 * time.Second,
			HealthTimeout:   15 * time.Second,
			CacheMaxBytes:   256 << 20,
			SessionLifetime: time.Hour,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CVDir returns the path to the .cv directory.
func CVDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".cv")
}

// ConfigPath returns the path to config.json.
func ConfigPath(projectRoot string) string {
	return filepath.Join(CVDir(projectRoot), "config.json")
}

// Load loads configuration from .cv/config.json, applies environment
// overrides, and falls back to defaults. Precedence: env > config > default.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	warnings := []string{}

	configPath := ConfigPath(projectRoot)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		warnings = append(warnings, "no config file found, using defaults")
	} else {
		v := viper.New()
		v.SetConfigFile(configPath)
		v.SetConfigType("json")

		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, warnings, nil
}

// applyEnvOverrides applies CV_* environment variables, falling back to
// the legacy unprefixed variants.
func applyEnvOverrides(cfg *Config) {
	if v := envFirst("CV_FALKORDB_URL", "FALKORDB_URL"); v != "" {
		cfg.Graph.URL = v
	}
	if v := envFirst("CV_QDRANT_URL", "QDRANT_URL"); v != "" {
		cfg.Vector.URL = v
	}
	if v := envFirst("CV_OLLAMA_URL", "OLLAMA_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("CV_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.Limits.MaxFileSize = n
		}
	}
	if v := os.Getenv("CV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CV_DEBUG"); v == "1" || v == "true" {
		cfg.Logging.Debug = true
		cfg.Logging.Level = "debug"
	}
}

func envFirst(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// applyDefaults fills zero values left by a partial config file.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Graph.URL == "" {
		cfg.Graph.URL = def.Graph.URL
	}
	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = def.Vector.Provider
	}
	if cfg.Vector.URL == "" {
		cfg.Vector.URL = def.Vector.URL
	}
	if cfg.Vector.Collections.CodeChunks == "" {
		cfg.Vector.Collections = def.Vector.Collections
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.URL == "" {
		cfg.Embedding.URL = def.Embedding.URL
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = def.Embedding.Dimensions
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = def.Embedding.BatchSize
	}
	if cfg.AI.Provider == "" {
		cfg.AI = def.AI
	}
	if cfg.Sync.DebounceMillis == 0 {
		cfg.Sync.DebounceMillis = def.Sync.DebounceMillis
	}
	if cfg.Limits.MaxFileSize == 0 {
		cfg.Limits.MaxFileSize = def.Limits.MaxFileSize
	}
	if cfg.Limits.SyncTimeout == 0 {
		cfg.Limits.SyncTimeout = def.Limits.SyncTimeout
	}
	if cfg.Limits.EmbedTimeout == 0 {
		cfg.Limits.EmbedTimeout = def.Limits.EmbedTimeout
	}
	if cfg.Limits.HealthTimeout == 0 {
		cfg.Limits.HealthTimeout = def.Limits.HealthTimeout
	}
	if cfg.Limits.CacheMaxBytes == 0 {
		cfg.Limits.CacheMaxBytes = def.Limits.CacheMaxBytes
	}
	if cfg.Limits.SessionLifetime == 0 {
		cfg.Limits.SessionLifetime = def.Limits.SessionLifetime
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
}

// Save writes configuration to .cv/config.json.
func Save(projectRoot string, cfg *Config) error {
	cvDir := CVDir(projectRoot)
	if err := os.MkdirAll(cvDir, 0o755); err != nil {
		return fmt.Errorf("failed to create .cv dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(ConfigPath(projectRoot))
	v.SetConfigType("json")

	v.Set("version", cfg.Version)
	v.Set("graph", cfg.Graph)
	v.Set("vector", cfg.Vector)
	v.Set("embedding", cfg.Embedding)
	v.Set("ai", cfg.AI)
	v.Set("sync", cfg.Sync)
	v.Set("docs", cfg.Docs)
	v.Set("limits", cfg.Limits)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	validVectorProviders := map[string]bool{"qdrant": true, "sqlitevec": true}
	if !validVectorProviders[cfg.Vector.Provider] {
		errs = append(errs, fmt.Errorf("invalid vector provider: %s", cfg.Vector.Provider))
	}

	validEmbeddingProviders := map[string]bool{"ollama": true, "openai": true}
	if !validEmbeddingProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("invalid embedding provider: %s", cfg.Embedding.Provider))
	}

	if cfg.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Embedding.Dimensions))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid log level: %s", cfg.Logging.Level))
	}

	return errs
}
