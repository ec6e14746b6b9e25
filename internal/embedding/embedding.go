// Package embedding turns text into vectors. The Ollama and OpenAI
// providers call out to an embedding API; the TF-IDF and mock providers run
// locally and exist so the store keeps working without a model server.
package embedding

import (
	"context"
	"fmt"
)

// Embedder generates vector embeddings for text. Implementations return
// vectors of a fixed width; the store records that width at open time and
// mismatched vectors simply never match.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderTFIDF  = "tfidf"
	ProviderMock   = "mock"
)

// Config selects and parameterizes a provider.
type Config struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Dimensions int    `yaml:"dimensions"`
}

// DefaultConfig is a local Ollama with the standard small embedding model.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderOllama,
		BaseURL:    "http://localhost:11434",
		Model:      "nomic-embed-text",
		Dimensions: 768,
	}
}

// New builds the configured embedder. The TF-IDF provider needs a corpus
// and is constructed directly via NewTFIDF instead.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllama(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case ProviderMock:
		return NewMock(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// batchOneByOne implements EmbedBatch for providers without a batch API.
func batchOneByOne(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("embed batch item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}
