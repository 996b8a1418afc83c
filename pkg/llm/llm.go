// Package llm connects to the embedding and generation services. Ollama is
// reached through langchaingo, OpenAI-compatible APIs through openai-go.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	DefaultOllamaURL = "http://localhost:11434"
)

// ErrMissingCredential is returned when a provider that needs an API key
// has none configured.
var ErrMissingCredential = errors.New("missing API credential")

// ErrUnknownProvider is returned for provider names other than ollama and
// openai.
var ErrUnknownProvider = errors.New("unknown model provider")

func checkProvider(provider, apiKey string) error {
	switch provider {
	case ProviderOllama:
		return nil
	case ProviderOpenAI:
		if apiKey == "" {
			return fmt.Errorf("openai provider: %w", ErrMissingCredential)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// openaiBaseURL makes sure the base URL ends in a slash so request paths
// resolve below it.
func openaiBaseURL(u string) string {
	if u == "" {
		return ""
	}
	return strings.TrimRight(u, "/") + "/"
}
