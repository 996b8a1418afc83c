package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr         string        `yaml:"addr"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Fetcher struct {
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
		MaxBytes  int64         `yaml:"max_bytes"`
	} `yaml:"fetcher"`

	Processor struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
		Workers      int `yaml:"workers"`
	} `yaml:"processor"`

	Embedder struct {
		Provider  string        `yaml:"provider"`
		BaseURL   string        `yaml:"base_url"`
		Model     string        `yaml:"model"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout"`
		RateLimit float64       `yaml:"rate_limit"`
		BatchSize int           `yaml:"batch_size"`
		Workers   int           `yaml:"workers"`
	} `yaml:"embedder"`

	LLM struct {
		Provider    string        `yaml:"provider"`
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		APIKey      string        `yaml:"api_key"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Reasoner struct {
		BatchSize    int    `yaml:"batch_size"`
		TopK         int    `yaml:"top_k"`
		Concurrency  int    `yaml:"concurrency"`
		Instructions string `yaml:"instructions"`
	} `yaml:"reasoner"`

	Cache struct {
		Backend     string `yaml:"backend"`
		Dir         string `yaml:"dir"`
		Path        string `yaml:"path"`
		DatabaseURL string `yaml:"database_url"`
		TableName   string `yaml:"table_name"`
	} `yaml:"cache"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/docqa/config.yaml"),
			"/etc/docqa/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 10 * time.Minute
	}

	if config.Fetcher.Timeout == 0 {
		config.Fetcher.Timeout = 60 * time.Second
	}
	if config.Fetcher.MaxBytes == 0 {
		config.Fetcher.MaxBytes = 50 << 20
	}

	// An explicit overlap of 0 is valid, so the overlap default only
	// applies together with the size default.
	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 200
		if config.Processor.ChunkOverlap == 0 {
			config.Processor.ChunkOverlap = 50
		}
	}
	if config.Processor.Workers == 0 {
		config.Processor.Workers = 4
	}

	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.Model == "" {
		if config.Embedder.Provider == "openai" {
			config.Embedder.Model = "text-embedding-3-small"
		} else {
			config.Embedder.Model = "nomic-embed-text:latest"
		}
	}
	if config.Embedder.BaseURL == "" && config.Embedder.Provider == "ollama" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.Timeout == 0 {
		config.Embedder.Timeout = 60 * time.Second
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 32
	}
	if config.Embedder.Workers == 0 {
		config.Embedder.Workers = 4
	}

	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4o-mini"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 120 * time.Second
	}

	if config.Reasoner.BatchSize == 0 {
		config.Reasoner.BatchSize = 5
	}
	if config.Reasoner.TopK == 0 {
		config.Reasoner.TopK = 4
	}
	if config.Reasoner.Concurrency == 0 {
		config.Reasoner.Concurrency = 1
	}

	if config.Cache.Backend == "" {
		config.Cache.Backend = "file"
	}
	if config.Cache.Dir == "" {
		config.Cache.Dir = "docqa_cache"
	}
	if config.Cache.Path == "" {
		config.Cache.Path = filepath.Join(config.Cache.Dir, "cache.db")
	}
	if config.Cache.TableName == "" {
		config.Cache.TableName = "docqa_index"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		if config.LLM.Provider == "" || config.LLM.Provider == "ollama" {
			config.LLM.BaseURL = baseURL
		}
		if config.Embedder.Provider == "" || config.Embedder.Provider == "ollama" {
			config.Embedder.BaseURL = baseURL
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Cache.DatabaseURL = dbURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.LLM.APIKey == "" {
			config.LLM.APIKey = key
		}
		if config.Embedder.APIKey == "" {
			config.Embedder.APIKey = key
		}
	}
	if addr := os.Getenv("DOCQA_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
}
