package types

import (
	"context"
)

// Core interfaces

// Embedder maps text to fixed-length vectors. The same model configuration
// must be used when building an index and when querying it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
