package rag

import (
	"context"
	"fmt"

	"github.com/xhad/docqa/pkg/config"
	"github.com/xhad/docqa/pkg/extractor"
	"github.com/xhad/docqa/pkg/index"
	"github.com/xhad/docqa/pkg/llm"
	"github.com/xhad/docqa/pkg/processor"
	"github.com/xhad/docqa/pkg/reasoner"
	"github.com/xhad/docqa/pkg/retriever"
	"github.com/xhad/docqa/pkg/store"
	"github.com/xhad/docqa/pkg/workers"
)

// NewFromConfig constructs every component from cfg. The returned Service
// owns the cache; call Close when done.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, error) {
	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
		Strategy:     workers.New(cfg.Processor.Workers, 0),
	})
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		Timeout:   cfg.Embedder.Timeout,
		RateLimit: cfg.Embedder.RateLimit,
		BatchSize: cfg.Embedder.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Timeout:     cfg.LLM.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat engine: %w", err)
	}

	cache, err := store.Open(ctx, store.StoreConfig{
		Backend:    cfg.Cache.Backend,
		Dir:        cfg.Cache.Dir,
		Path:       cfg.Cache.Path,
		ConnString: cfg.Cache.DatabaseURL,
		TableName:  cfg.Cache.TableName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	deps := Deps{
		Extractor: extractor.NewWithConfig(extractor.ExtractorConfig{
			Timeout:   cfg.Fetcher.Timeout,
			RateLimit: cfg.Fetcher.RateLimit,
			MaxBytes:  cfg.Fetcher.MaxBytes,
		}),
		Processor: proc,
		Builder: index.NewBuilder(embedder, index.BuilderConfig{
			BatchSize: cfg.Embedder.BatchSize,
			Workers:   cfg.Embedder.Workers,
		}),
		Cache:     cache,
		Retriever: retriever.New(embedder, cfg.Reasoner.TopK),
		Reasoner:  reasoner.NewWithConfig(chat, reasoner.ReasonerConfig{Instructions: cfg.Reasoner.Instructions}),
	}

	return NewService(deps, ServiceConfig{
		BatchSize:   cfg.Reasoner.BatchSize,
		TopK:        cfg.Reasoner.TopK,
		Concurrency: cfg.Reasoner.Concurrency,
	}), nil
}

// Close releases the cache.
func (s *Service) Close() error {
	if s.deps.Cache == nil {
		return nil
	}
	return s.deps.Cache.Close()
}
