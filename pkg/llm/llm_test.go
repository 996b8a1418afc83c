package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docqa/internal/types"
	"github.com/xhad/docqa/pkg/llm"
)

var (
	_ types.Embedder  = (*llm.Embedder)(nil)
	_ types.Generator = (*llm.ChatEngine)(nil)
)

// fakeOpenAI serves the two OpenAI endpoints the package uses.
func fakeOpenAI(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var embedCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		embedCalls.Add(1)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, len(req.Input))
		for i, text := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(len(text)), 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": reply},
			}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &embedCalls
}

func TestEmbedder_OpenAI(t *testing.T) {
	srv, calls := fakeOpenAI(t, "")

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  llm.ProviderOpenAI,
		Model:     "text-embedding-3-small",
		BaseURL:   srv.URL,
		APIKey:    "test-key",
		BatchSize: 2,
	})
	require.NoError(t, err)

	vecs, err := emb.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 1}, {2, 1}, {3, 1}}, vecs)
	assert.Equal(t, int32(2), calls.Load())

	vec, err := emb.EmbedQuery(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, vec)

	assert.Equal(t, "openai/text-embedding-3-small", emb.ModelName())
}

func TestChatEngine_OpenAI(t *testing.T) {
	srv, _ := fakeOpenAI(t, `{"answers": ["thirty days"]}`)

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:    llm.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		BaseURL:     srv.URL,
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	reply, err := engine.Generate(context.Background(), "What is the grace period?")
	require.NoError(t, err)
	assert.Equal(t, `{"answers": ["thirty days"]}`, reply)
}

func TestChatEngine_OpenAIServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{
		Provider: llm.ProviderOpenAI,
		BaseURL:  srv.URL,
		APIKey:   "wrong",
	})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), "hello")
	assert.Error(t, err)
}

func TestMissingCredential(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: llm.ProviderOpenAI})
	assert.ErrorIs(t, err, llm.ErrMissingCredential)

	_, err = llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: llm.ProviderOpenAI})
	assert.ErrorIs(t, err, llm.ErrMissingCredential)
}

func TestUnknownProvider(t *testing.T) {
	_, err := llm.NewWithConfig(llm.ChatConfig{Provider: "gemini"})
	assert.ErrorIs(t, err, llm.ErrUnknownProvider)
}

func TestNewWithConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  llm.ChatConfig
		wantErr bool
	}{
		{"defaults", llm.ChatConfig{}, false},
		{"ollama with model", llm.ChatConfig{Model: "llama3", Temperature: 0.5, BaseURL: "http://localhost:1234"}, false},
		{"temperature too high", llm.ChatConfig{Temperature: 3}, true},
		{"negative temperature", llm.ChatConfig{Temperature: -0.1}, true},
		{"negative max tokens", llm.ChatConfig{MaxTokens: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := llm.NewWithConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, engine)
		})
	}
}

func TestOllama_UnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	engine, err := llm.NewWithConfig(llm.ChatConfig{BaseURL: url})
	require.NoError(t, err)
	_, err = engine.Generate(context.Background(), "hello")
	assert.Error(t, err)

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: url})
	require.NoError(t, err)
	_, err = emb.EmbedQuery(context.Background(), "hello")
	assert.Error(t, err)
	assert.Equal(t, "ollama/nomic-embed-text:latest", emb.ModelName())
}
