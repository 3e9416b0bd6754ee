package ai

import (
	"errors"

	"github.com/hrygo/calroute/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // siliconflow, openai
	Model      string // text-embedding-3-small
	Dimensions int    // 0 keeps the model default
	APIKey     string
	BaseURL    string
	// HighFidelity marks models trusted to separate paraphrases reliably.
	// The router only lets semantic signals override the LLM when this is set.
	HighFidelity bool
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string // openai, deepseek, siliconflow, anthropic
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 512
	Temperature float32 // default: 0.1
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}

	if !cfg.Enabled {
		return cfg
	}

	// Embedding configuration
	cfg.Embedding = EmbeddingConfig{
		Provider:     p.AIEmbeddingProvider,
		Model:        p.AIEmbeddingModel,
		HighFidelity: p.AIEmbeddingHighFidelity,
	}

	switch p.AIEmbeddingProvider {
	case "siliconflow":
		cfg.Embedding.APIKey = p.AISiliconFlowAPIKey
		cfg.Embedding.BaseURL = p.AISiliconFlowBaseURL
	case "openai":
		cfg.Embedding.APIKey = p.AIOpenAIAPIKey
		cfg.Embedding.BaseURL = p.AIOpenAIBaseURL
	}

	// Classification wants short, near-deterministic answers.
	cfg.LLM = LLMConfig{
		Provider:    p.AILLMProvider,
		Model:       p.AILLMModel,
		MaxTokens:   512,
		Temperature: 0.1,
	}

	switch p.AILLMProvider {
	case "deepseek":
		cfg.LLM.APIKey = p.AIDeepSeekAPIKey
		cfg.LLM.BaseURL = p.AIDeepSeekBaseURL
	case "openai":
		cfg.LLM.APIKey = p.AIOpenAIAPIKey
		cfg.LLM.BaseURL = p.AIOpenAIBaseURL
	case "siliconflow":
		cfg.LLM.APIKey = p.AISiliconFlowAPIKey
		cfg.LLM.BaseURL = p.AISiliconFlowBaseURL
	case "anthropic":
		cfg.LLM.APIKey = p.AIAnthropicAPIKey
	}

	return cfg
}

// HasEmbedding reports whether an embedding backend is configured.
func (c *Config) HasEmbedding() bool {
	return c.Enabled && c.Embedding.Provider != "" && c.Embedding.APIKey != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.LLM.Provider == "" {
		return errors.New("LLM provider is required")
	}

	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}

	// Embeddings are optional: without them the semantic signal is skipped.
	if c.Embedding.Provider != "" && c.Embedding.Provider != "openai" && c.Embedding.Provider != "siliconflow" {
		return errors.New("unsupported embedding provider: " + c.Embedding.Provider)
	}

	return nil
}
