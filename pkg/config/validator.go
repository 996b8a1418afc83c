package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, message string) {
		errors = append(errors, ValidationError{Field: field, Message: message})
	}

	// Validate Server config
	if c.Server.Addr == "" {
		add("server.addr", "listen address is required")
	}

	// Validate Fetcher config
	if c.Fetcher.Timeout <= 0 {
		add("fetcher.timeout", "timeout must be positive")
	}
	if c.Fetcher.RateLimit < 0 {
		add("fetcher.rate_limit", "rate_limit cannot be negative")
	}
	if c.Fetcher.MaxBytes < 1 {
		add("fetcher.max_bytes", "max_bytes must be positive")
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}
	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		add("processor.chunk_overlap", "chunk_overlap must be non-negative and less than chunk_size")
	}
	if c.Processor.Workers < 1 {
		add("processor.workers", "workers must be positive")
	}

	// Validate Embedder config
	validateProvider("embedder", c.Embedder.Provider, c.Embedder.BaseURL, c.Embedder.APIKey, add)
	if c.Embedder.BatchSize < 1 {
		add("embedder.batch_size", "batch_size must be positive")
	}
	if c.Embedder.Workers < 1 {
		add("embedder.workers", "workers must be positive")
	}
	if c.Embedder.RateLimit < 0 {
		add("embedder.rate_limit", "rate_limit cannot be negative")
	}

	// Validate LLM config
	validateProvider("llm", c.LLM.Provider, c.LLM.BaseURL, c.LLM.APIKey, add)
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		add("llm.max_tokens", "max_tokens must be between 1 and 32768")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}

	// Validate Reasoner config
	if c.Reasoner.BatchSize < 1 {
		add("reasoner.batch_size", "batch_size must be positive")
	}
	if c.Reasoner.TopK < 1 {
		add("reasoner.top_k", "top_k must be positive")
	}
	if c.Reasoner.Concurrency < 1 {
		add("reasoner.concurrency", "concurrency must be positive")
	}

	// Validate Cache config
	switch c.Cache.Backend {
	case "file":
		if c.Cache.Dir == "" {
			add("cache.dir", "dir is required for the file backend")
		}
	case "sqlite":
		if c.Cache.Path == "" {
			add("cache.path", "path is required for the sqlite backend")
		}
	case "postgres":
		if c.Cache.DatabaseURL == "" {
			add("cache.database_url", "database_url is required for the postgres backend")
		} else if u, err := url.Parse(c.Cache.DatabaseURL); err != nil || u.Scheme == "" {
			add("cache.database_url", "invalid database URL")
		}
	default:
		add("cache.backend", fmt.Sprintf("unknown backend %q (want file, sqlite or postgres)", c.Cache.Backend))
	}

	return errors
}

func validateProvider(section, provider, baseURL, apiKey string, add func(field, message string)) {
	switch provider {
	case "ollama":
		if baseURL == "" {
			add(section+".base_url", "Ollama base URL is required")
		} else if !validURL(baseURL) {
			add(section+".base_url", "invalid Ollama base URL")
		}
	case "openai":
		if apiKey == "" {
			add(section+".api_key", "api_key is required for the openai provider")
		}
		if baseURL != "" && !validURL(baseURL) {
			add(section+".base_url", "invalid base URL")
		}
	default:
		add(section+".provider", fmt.Sprintf("unknown provider %q (want ollama or openai)", provider))
	}
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
