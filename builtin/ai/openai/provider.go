// Package openai implements a completion provider backed by the
// OpenAI chat API.
package openai

import (
	"context"
	"fmt"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/controlVector/cv-git/pkg/provider"
	"github.com/controlVector/cv-git/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Provider implements provider.AIProvider using OpenAI.
type Provider struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

// New creates a new OpenAI completion provider.
func New(cfg provider.AIConfig) (*Provider, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai ai provider requires an API key", types.ErrInvalidConfig)
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{
		client:      goopenai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "openai"
}

// Complete generates a completion for the prompt.
func (p *Provider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxTokens = maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Ensure Provider implements AIProvider.
var _ provider.AIProvider = (*Provider)(nil)
