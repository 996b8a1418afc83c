package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/docqa/internal/models"
	"github.com/xhad/docqa/pkg/workers"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// ErrInvalidChunkConfig is returned for a window size below one or an
// overlap outside [0, size).
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

type ProcessorConfig struct {
	ChunkSize    int // words per chunk
	ChunkOverlap int // words shared by neighbouring chunks
	// Strategy decides how window ranges are scheduled. Defaults to
	// workers.Sequential.
	Strategy workers.Strategy
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if err := validate(config.ChunkSize, config.ChunkOverlap); err != nil {
		return nil, err
	}
	if config.Strategy == nil {
		config.Strategy = workers.Sequential{}
	}

	return &Processor{config: config}, nil
}

// Chunk splits text into word windows using the default size and overlap.
func Chunk(text string) []models.Chunk {
	p, _ := NewWithConfig(ProcessorConfig{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap})
	chunks, _ := p.Chunk(context.Background(), text)
	return chunks
}

// Chunk tokenizes text on whitespace and returns overlapping windows of
// ChunkSize words. Window i starts at word i*(ChunkSize-ChunkOverlap); the
// last window is the first one that reaches the end of the text.
func (p *Processor) Chunk(ctx context.Context, text string) ([]models.Chunk, error) {
	words := strings.Fields(text)
	n := windowCount(len(words), p.config.ChunkSize, p.config.ChunkOverlap)
	if n == 0 {
		return nil, nil
	}

	chunks := make([]models.Chunk, n)
	err := p.config.Strategy.Run(ctx, n, func(_ context.Context, lo, hi int) error {
		for i := lo; i < hi; i++ {
			chunks[i] = p.window(words, i)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to chunk text: %w", err)
	}

	return chunks, nil
}

func (p *Processor) window(words []string, i int) models.Chunk {
	stride := p.config.ChunkSize - p.config.ChunkOverlap
	start := i * stride
	end := min(start+p.config.ChunkSize, len(words))
	return models.Chunk{
		Position: i,
		Content:  strings.Join(words[start:end], " "),
	}
}

// windowCount is 0 for no words, 1 when everything fits in one window and
// ceil((n-overlap)/stride) otherwise.
func windowCount(n, size, overlap int) int {
	if n == 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	stride := size - overlap
	return (n - overlap + stride - 1) / stride
}

func validate(size, overlap int) error {
	if size < 1 {
		return fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidChunkConfig, overlap, size)
	}
	return nil
}
