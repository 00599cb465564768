package provider

import "context"

// AIProvider turns a prompt into text. It is the only seam through which
// the summarizer talks to a language model; the core never sees provider
// SDK types.
type AIProvider interface {
	// Name returns the provider name.
	Name() string

	// Complete generates a completion for the prompt.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// AIConfig contains AI provider configuration.
type AIConfig struct {
	Provider    string // openai, ollama
	Model       string
	APIKey      string
	Endpoint    string
	MaxTokens   int
	Temperature float32
}
