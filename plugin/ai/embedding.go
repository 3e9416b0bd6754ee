package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingService is the vector embedding service interface.
type EmbeddingService interface {
	// Encode generates vector for a single text.
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch generates vectors for multiple texts, in input order.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension (0 when the model default is used).
	Dimensions() int

	// HighFidelity reports whether the model is trusted for paraphrase detection.
	HighFidelity() bool
}

type embeddingService struct {
	client       *openai.Client
	model        string
	dimensions   int
	highFidelity bool
}

// NewEmbeddingService creates a new EmbeddingService.
func NewEmbeddingService(cfg *EmbeddingConfig) (EmbeddingService, error) {
	var clientConfig openai.ClientConfig

	switch cfg.Provider {
	case "siliconflow", "openai":
		// SiliconFlow is compatible with OpenAI API
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	return &embeddingService{
		client:       openai.NewClientWithConfig(clientConfig),
		model:        cfg.Model,
		dimensions:   cfg.Dimensions,
		highFidelity: cfg.HighFidelity,
	}, nil
}

func (s *embeddingService) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *embeddingService) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(s.model),
		Dimensions: s.dimensions,
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return items out of order; Index is authoritative.
	vectors := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		vectors[idx] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	return vectors, nil
}

func (s *embeddingService) Dimensions() int {
	return s.dimensions
}

func (s *embeddingService) HighFidelity() bool {
	return s.highFidelity
}
