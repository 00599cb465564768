// Package openai implements an embedding provider backed by the
// OpenAI embeddings API, used when no local Ollama is available.
package openai

import (
	"context"
	"fmt"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Default values
const (
	DefaultModel     = "text-embedding-3-small"
	DefaultBatchSize = 100
)

var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// Provider implements provider.EmbeddingProvider using OpenAI.
type Provider struct {
	client     *goopenai.Client
	model      string
	batchSize  int
	dimensions int
}

// New creates a new OpenAI embedding provider.
func New(cfg provider.EmbeddingConfig) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai embedding provider requires an API key", types.ErrInvalidConfig)
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	p := &Provider{
		client:     goopenai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		dimensions: cfg.Dimensions,
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.dimensions == 0 {
		p.dimensions = modelDimensions[p.model]
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Model returns the model identifier used for cache keying.
func (p *Provider) Model() string {
	return p.model
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// MaxBatchSize returns the maximum batch size.
func (p *Provider) MaxBatchSize() int {
	return p.batchSize
}

// Embed generates embeddings for the given texts, preserving order.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(p.model),
			Input: texts[start:end],
		})
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %v", types.ErrEmbeddingFailed, err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts", types.ErrEmbeddingFailed, len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}

	if p.dimensions == 0 && len(out) > 0 {
		p.dimensions = len(out[0])
	}
	return out, nil
}

// Available checks API connectivity with a minimal request.
func (p *Provider) Available(ctx context.Context) error {
	_, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(p.model),
		Input: []string{"ping"},
	})
	if err != nil {
		return fmt.Errorf("openai unavailable: %w", err)
	}
	return nil
}

// Close releases resources.
func (p *Provider) Close() error {
	return nil
}

// Ensure Provider implements EmbeddingProvider.
var _ provider.EmbeddingProvider = (*Provider)(nil)
