package provider

import (
	"fmt"
	"sync"
)

// EmbeddingFactory creates an EmbeddingProvider from configuration.
type EmbeddingFactory func(config EmbeddingConfig) (EmbeddingProvider, error)

// VectorStoreFactory creates a VectorStore from configuration.
type VectorStoreFactory func(config VectorStoreConfig) (VectorStore, error)

// ParserFactory creates a ParserStrategy from configuration.
type ParserFactory func(config ParserConfig) (ParserStrategy, error)

// AIFactory creates an AIProvider from configuration.
type AIFactory func(config AIConfig) (AIProvider, error)

// Registry holds factories for all provider types.
type Registry struct {
	mu sync.RWMutex

	embeddingFactories   map[string]EmbeddingFactory
	vectorStoreFactories map[string]VectorStoreFactory
	parserFactories      map[string]ParserFactory
	aiFactories          map[string]AIFactory
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		embeddingFactories:   make(map[string]EmbeddingFactory),
		vectorStoreFactories: make(map[string]VectorStoreFactory),
		parserFactories:      make(map[string]ParserFactory),
		aiFactories:          make(map[string]AIFactory),
	}
}

// RegisterEmbedding registers an embedding provider factory.
func (r *Registry) RegisterEmbedding(name string, factory EmbeddingFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddingFactories[name] = factory
}

// RegisterVectorStore registers a vector store factory.
func (r *Registry) RegisterVectorStore(name string, factory VectorStoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vectorStoreFactories[name] = factory
}

// RegisterParser registers a parser strategy factory.
func (r *Registry) RegisterParser(name string, factory ParserFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parserFactories[name] = factory
}

// RegisterAI registers an AI provider factory.
func (r *Registry) RegisterAI(name string, factory AIFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aiFactories[name] = factory
}

// CreateEmbedding creates an embedding provider by name.
func (r *Registry) CreateEmbedding(name string, config EmbeddingConfig) (EmbeddingProvider, error) {
	r.mu.RLock()
	factory, ok := r.embeddingFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s (available: %v)", name, r.ListEmbeddings())
	}
	return factory(config)
}

// CreateVectorStore creates a vector store by name.
func (r *Registry) CreateVectorStore(name string, config VectorStoreConfig) (VectorStore, error) {
	r.mu.RLock()
	factory, ok := r.vectorStoreFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown vector store: %s (available: %v)", name, r.ListVectorStores())
	}
	return factory(config)
}

// CreateParser creates a parser strategy by name.
func (r *Registry) CreateParser(name string, config ParserConfig) (ParserStrategy, error) {
	r.mu.RLock()
	factory, ok := r.parserFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown parser strategy: %s (available: %v)", name, r.ListParsers())
	}
	return factory(config)
}

// CreateAI creates an AI provider by name.
func (r *Registry) CreateAI(name string, config AIConfig) (AIProvider, error) {
	r.mu.RLock()
	factory, ok := r.aiFactories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown AI provider: %s", name)
	}
	return factory(config)
}

// ListEmbeddings returns registered embedding provider names.
func (r *Registry) ListEmbeddings() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.embeddingFactories)
}

// ListVectorStores returns registered vector store names.
func (r *Registry) ListVectorStores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.vectorStoreFactories)
}

// ListParsers returns registered parser strategy names.
func (r *Registry) ListParsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return keys(r.parserFactories)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// DefaultRegistry is the process-wide registry populated by builtin.Register.
var DefaultRegistry = NewRegistry()
