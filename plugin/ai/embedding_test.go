package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *EmbeddingConfig
		expectError bool
	}{
		{
			name:        "SiliconFlow config",
			cfg:         &EmbeddingConfig{Provider: "siliconflow", Model: "BAAI/bge-m3", APIKey: "k", BaseURL: "https://api.siliconflow.cn/v1"},
			expectError: false,
		},
		{
			name:        "OpenAI config",
			cfg:         &EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", APIKey: "k", HighFidelity: true},
			expectError: false,
		},
		{
			name:        "Unsupported provider",
			cfg:         &EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewEmbeddingService(tt.cfg)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cfg.HighFidelity, svc.HighFidelity())
		})
	}
}

// embeddingServer answers /embeddings with one vector per input, listed in reverse order.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, item{Object: "embedding", Embedding: []float32{float32(len(req.Input[i])), 1}, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "test-embed",
		})
	}))
}

func TestEmbeddingService_EncodeBatchKeepsInputOrder(t *testing.T) {
	srv := embeddingServer(t)
	defer srv.Close()

	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "test-embed", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	vectors, err := svc.EncodeBatch(context.Background(), []string{"a", "bbb", "cc"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[1][0])
	assert.Equal(t, float32(2), vectors[2][0])

	single, err := svc.Encode(context.Background(), "four")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, single)
}

func TestEmbeddingService_EmptyInput(t *testing.T) {
	svc, err := NewEmbeddingService(&EmbeddingConfig{Provider: "openai", Model: "m", APIKey: "k"})
	require.NoError(t, err)

	_, err = svc.EncodeBatch(context.Background(), nil)
	require.Error(t, err)
}
