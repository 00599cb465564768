// Package provider defines interfaces for pluggable components.
package provider

import "context"

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Name returns the provider name (e.g., "ollama", "openai").
	Name() string

	// Model returns the model identifier used for cache keying.
	Model() string

	// Embed generates embeddings for the given texts, preserving order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions.
	Dimensions() int

	// MaxBatchSize returns the maximum batch size.
	MaxBatchSize() int

	// Available checks connectivity and model presence.
	Available(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider   string // ollama, openai
	Model      string
	Endpoint   string
	APIKey     string
	BatchSize  int
	Dimensions int // 0 = auto-detect from first embedding
}
