package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	Provider   string
	Model      string
	BaseURL    string // Ollama server or OpenAI-compatible API URL
	APIKey     string
	Timeout    time.Duration // per call
	RateLimit  float64       // calls per second, 0 disables limiting
	BatchSize  int           // texts per upstream request
	MaxRetries int
}

// Embedder maps text to vectors. One Embedder must be used for both the
// documents of an index and the queries run against it.
type Embedder struct {
	config   EmbedderConfig
	embedder embeddings.Embedder
	limiter  *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}
	if config.Model == "" {
		switch config.Provider {
		case ProviderOpenAI:
			config.Model = "text-embedding-3-small"
		default:
			config.Model = "nomic-embed-text:latest"
		}
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if err := checkProvider(config.Provider, config.APIKey); err != nil {
		return nil, err
	}

	var client embeddings.EmbedderClient
	switch config.Provider {
	case ProviderOllama:
		if config.BaseURL == "" {
			config.BaseURL = DefaultOllamaURL
		}
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		client = llm
	case ProviderOpenAI:
		client = newOpenAIClient(config.APIKey, config.BaseURL, config.Model, config.MaxRetries, config.Timeout)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Embedder{
		config:   config,
		embedder: emb,
		limiter:  limiter,
	}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	return vecs, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return vec, nil
}

// ModelName identifies the provider and model that produced the vectors.
func (e *Embedder) ModelName() string {
	return e.config.Provider + "/" + e.config.Model
}
