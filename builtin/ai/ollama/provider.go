// Package ollama implements a completion provider backed by a local
// Ollama server, used by the summarizer.
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
)

// Default values
const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "qwen2.5-coder:7b"
	DefaultTimeout  = 300 * time.Second
)

// Provider implements provider.AIProvider using Ollama's generate API.
type Provider struct {
	endpoint    string
	model       string
	temperature float32
	client      *http.Client
}

// New creates a new Ollama completion provider.
func New(cfg provider.AIConfig) (*Provider, error) {
	p := &Provider{
		endpoint:    strings.TrimSuffix(cfg.Endpoint, "/"),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: DefaultTimeout},
	}
	if p.endpoint == "" {
		p.endpoint = DefaultEndpoint
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	return p, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ollama"
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Complete generates a completion for the prompt.
func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	opts := map[string]any{}
	if maxTokens > 0 {
		opts["num_predict"] = maxTokens
	}
	if p.temperature > 0 {
		opts["temperature"] = p.temperature
	}

	body, err := json.Marshal(generateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(data))
	}

	var gr generateResponse
	if err := json.Unmarshal(data, &gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if gr.Error != "" {
		return "", fmt.Errorf("ollama: %s", gr.Error)
	}
	return strings.TrimSpace(gr.Response), nil
}

// Ensure Provider implements AIProvider.
var _ provider.AIProvider = (*Provider)(nil)
