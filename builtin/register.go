// Package builtin registers every built-in provider implementation
// with a registry. Importing this package and calling Register is the
// only wiring the binaries need.
package builtin

import (
	aiollama "github.com/controlVector/cv-git/builtin/ai/ollama"
	aiopenai "github.com/controlVector/cv-git/builtin/ai/openai"
	embollama "github.com/controlVector/cv-git/builtin/embedding/ollama"
	embopenai "github.com/controlVector/cv-git/builtin/embedding/openai"
	"github.com/controlVector/cv-git/builtin/parser/simple"
	"github.com/controlVector/cv-git/builtin/parser/treesitter"
	"github.com/controlVector/cv-git/builtin/vectorstore/qdrant"
	"github.com/controlVector/cv-git/builtin/vectorstore/sqlitevec"
	"github.com/controlVector/cv-git/pkg/provider"
)

// Register adds all built-in providers to the registry.
func Register(r *provider.Registry) {
	r.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return embollama.New(cfg)
	})
	r.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return embopenai.New(cfg)
	})

	r.RegisterVectorStore("qdrant", func(cfg provider.VectorStoreConfig) (provider.VectorStore, error) {
		return qdrant.New(cfg)
	})
	r.RegisterVectorStore("sqlitevec", func(cfg provider.VectorStoreConfig) (provider.VectorStore, error) {
		return sqlitevec.New(cfg)
	})

	r.RegisterParser("treesitter", func(cfg provider.ParserConfig) (provider.ParserStrategy, error) {
		return treesitter.New(cfg), nil
	})
	r.RegisterParser("simple", func(cfg provider.ParserConfig) (provider.ParserStrategy, error) {
		return simple.New(cfg), nil
	})

	r.RegisterAI("ollama", func(cfg provider.AIConfig) (provider.AIProvider, error) {
		return aiollama.New(cfg)
	})
	r.RegisterAI("openai", func(cfg provider.AIConfig) (provider.AIProvider, error) {
		return aiopenai.New(cfg)
	})
}

// RegisterDefaults populates provider.DefaultRegistry.
func RegisterDefaults() {
	Register(provider.DefaultRegistry)
}
