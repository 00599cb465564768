// Package ollama implements an embedding provider backed by a local
// Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// Default values
const (
	DefaultEndpoint  = "http://localhost:11434"
	DefaultModel     = "nomic-embed-text"
	DefaultBatchSize = 32
	DefaultTimeout   = 120 * time.Second
)

// knownDimensions maps common embedding models to their output size so
// a cold start does not need a probe request.
var knownDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"snowflake-arctic-embed": 1024,
	"bge-m3":                 1024,
}

// Provider implements provider.EmbeddingProvider using Ollama.
type Provider struct {
	endpoint   string
	model      string
	batchSize  int
	dimensions int
	client     *http.Client
}

// New creates a new Ollama embedding provider.
func New(cfg provider.EmbeddingConfig) (*Provider, error) {
	p := &Provider{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		batchSize:  cfg.BatchSize,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: DefaultTimeout},
	}
	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.batchSize <= 0 {
		p.batchSize = DefaultBatchSize
	}
	if p.dimensions == 0 {
		base := p.model
		if idx := strings.IndexByte(base, ':'); idx > 0 {
			base = base[:idx]
		}
		p.dimensions = knownDimensions[base]
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
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

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
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
		batch, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}

	if p.dimensions == 0 && len(out) > 0 {
		p.dimensions = len(out[0])
	}
	return out, nil
}

func (p *Provider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", types.ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request: %v", types.ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", types.ErrEmbeddingFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: ollama returned %d: %s", types.ErrEmbeddingFailed, resp.StatusCode, truncate(string(data), 200))
	}

	var er embedResponse
	if err := json.Unmarshal(data, &er); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", types.ErrEmbeddingFailed, err)
	}
	if er.Error != "" {
		return nil, fmt.Errorf("%w: %s", types.ErrEmbeddingFailed, er.Error)
	}
	if len(er.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", types.ErrEmbeddingFailed, len(er.Embeddings), len(texts))
	}
	return er.Embeddings, nil
}

// Available checks server connectivity and model presence.
func (p *Provider) Available(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", p.endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned %d", resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("decode tags: %w", err)
	}
	for _, m := range tags.Models {
		if m.Name == p.model || strings.TrimSuffix(m.Name, ":latest") == p.model {
			return nil
		}
	}
	return fmt.Errorf("model %q not pulled (run: ollama pull %s)", p.model, p.model)
}

// Close releases resources.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Ensure Provider implements EmbeddingProvider.
var _ provider.EmbeddingProvider = (*Provider)(nil)
