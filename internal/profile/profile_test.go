package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"CALROUTE_MODE",
	"CALROUTE_DATA",
	"CALROUTE_DSN",
	"CALROUTE_DRIVER",
	"CALROUTE_TIMEZONE",
	"CALROUTE_AI_ENABLED",
	"CALROUTE_AI_LLM_PROVIDER",
	"CALROUTE_AI_LLM_MODEL",
	"CALROUTE_AI_OPENAI_API_KEY",
	"CALROUTE_AI_OPENAI_BASE_URL",
	"CALROUTE_AI_DEEPSEEK_API_KEY",
	"CALROUTE_AI_DEEPSEEK_BASE_URL",
	"CALROUTE_AI_SILICONFLOW_API_KEY",
	"CALROUTE_AI_SILICONFLOW_BASE_URL",
	"CALROUTE_AI_ANTHROPIC_API_KEY",
	"CALROUTE_AI_EMBEDDING_PROVIDER",
	"CALROUTE_AI_EMBEDDING_MODEL",
	"CALROUTE_AI_EMBEDDING_HIGH_FIDELITY",
	"CALROUTE_ROUTER_SELF_VALIDATION",
	"CALROUTE_ROUTER_LLM_RPS",
	"CALROUTE_ROUTER_CATALOGUE",
	"CALROUTE_ROUTER_RULES",
}

// clearEnv blanks every CALROUTE_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
}

func TestProfileDefaults(t *testing.T) {
	clearEnv(t)

	p := &Profile{}
	p.FromEnv()

	tests := []struct {
		name     string
		expected any
		actual   any
	}{
		{"Mode", "dev", p.Mode},
		{"Driver", "sqlite", p.Driver},
		{"Timezone", "Local", p.Timezone},
		{"AIEnabled", false, p.AIEnabled},
		{"AILLMProvider", "openai", p.AILLMProvider},
		{"AILLMModel", "gpt-4o-mini", p.AILLMModel},
		{"AIOpenAIBaseURL", "https://api.openai.com/v1", p.AIOpenAIBaseURL},
		{"AIDeepSeekBaseURL", "https://api.deepseek.com", p.AIDeepSeekBaseURL},
		{"AISiliconFlowBaseURL", "https://api.siliconflow.cn/v1", p.AISiliconFlowBaseURL},
		{"AIEmbeddingProvider", "openai", p.AIEmbeddingProvider},
		{"AIEmbeddingModel", "text-embedding-3-small", p.AIEmbeddingModel},
		{"RouterSelfValidation", true, p.RouterSelfValidation},
		{"RouterLLMRPS", 5.0, p.RouterLLMRPS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.actual)
		})
	}
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) any
		expected any
	}{
		{
			name:     "AI enabled",
			envVar:   "CALROUTE_AI_ENABLED",
			envValue: "true",
			field:    func(p *Profile) any { return p.AIEnabled },
			expected: true,
		},
		{
			name:     "LLM provider",
			envVar:   "CALROUTE_AI_LLM_PROVIDER",
			envValue: "anthropic",
			field:    func(p *Profile) any { return p.AILLMProvider },
			expected: "anthropic",
		},
		{
			name:     "Anthropic key",
			envVar:   "CALROUTE_AI_ANTHROPIC_API_KEY",
			envValue: "sk-ant",
			field:    func(p *Profile) any { return p.AIAnthropicAPIKey },
			expected: "sk-ant",
		},
		{
			name:     "custom OpenAI base URL",
			envVar:   "CALROUTE_AI_OPENAI_BASE_URL",
			envValue: "https://proxy.internal/v1",
			field:    func(p *Profile) any { return p.AIOpenAIBaseURL },
			expected: "https://proxy.internal/v1",
		},
		{
			name:     "high fidelity embeddings",
			envVar:   "CALROUTE_AI_EMBEDDING_HIGH_FIDELITY",
			envValue: "1",
			field:    func(p *Profile) any { return p.AIEmbeddingHighFidelity },
			expected: true,
		},
		{
			name:     "self validation disabled",
			envVar:   "CALROUTE_ROUTER_SELF_VALIDATION",
			envValue: "false",
			field:    func(p *Profile) any { return p.RouterSelfValidation },
			expected: false,
		},
		{
			name:     "LLM rate",
			envVar:   "CALROUTE_ROUTER_LLM_RPS",
			envValue: "0.5",
			field:    func(p *Profile) any { return p.RouterLLMRPS },
			expected: 0.5,
		},
		{
			name:     "malformed bool keeps default",
			envVar:   "CALROUTE_AI_ENABLED",
			envValue: "yes please",
			field:    func(p *Profile) any { return p.AIEnabled },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.envVar, tt.envValue)

			p := &Profile{}
			p.FromEnv()
			assert.Equal(t, tt.expected, tt.field(p))
		})
	}
}

func TestIsAIEnabled(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(*Profile)
		expected bool
	}{
		{
			name:     "disabled",
			setup:    func(p *Profile) { p.AIEnabled = false; p.AILLMProvider = "openai"; p.AIOpenAIAPIKey = "k" },
			expected: false,
		},
		{
			name:     "enabled without key",
			setup:    func(p *Profile) { p.AIEnabled = true; p.AILLMProvider = "openai" },
			expected: false,
		},
		{
			name:     "enabled with OpenAI key",
			setup:    func(p *Profile) { p.AIEnabled = true; p.AILLMProvider = "openai"; p.AIOpenAIAPIKey = "k" },
			expected: true,
		},
		{
			name:     "key for a different provider",
			setup:    func(p *Profile) { p.AIEnabled = true; p.AILLMProvider = "deepseek"; p.AIOpenAIAPIKey = "k" },
			expected: false,
		},
		{
			name:     "enabled with Anthropic key",
			setup:    func(p *Profile) { p.AIEnabled = true; p.AILLMProvider = "anthropic"; p.AIAnthropicAPIKey = "k" },
			expected: true,
		},
		{
			name:     "unknown provider",
			setup:    func(p *Profile) { p.AIEnabled = true; p.AILLMProvider = "ollama" },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{}
			tt.setup(p)
			assert.Equal(t, tt.expected, p.IsAIEnabled())
		})
	}
}

func TestValidate(t *testing.T) {
	t.Run("fills DSN from data dir", func(t *testing.T) {
		dir := t.TempDir()
		p := &Profile{Mode: "dev", Data: dir}
		require.NoError(t, p.Validate())
		assert.Equal(t, "sqlite", p.Driver)
		assert.Equal(t, filepath.Join(dir, "calroute_dev.db"), p.DSN)
	})

	t.Run("unknown mode falls back to demo", func(t *testing.T) {
		p := &Profile{Mode: "staging", Data: t.TempDir()}
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: filepath.Join(t.TempDir(), "nope")}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unable to access data folder")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Timezone: "Mars/Olympus"}
		require.Error(t, p.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Data: t.TempDir(), Driver: "mysql"}
		require.Error(t, p.Validate())
	})
}

func TestLocation(t *testing.T) {
	p := &Profile{Timezone: "America/New_York"}
	assert.Equal(t, "America/New_York", p.Location().String())

	p = &Profile{Timezone: "Local"}
	assert.Equal(t, time.Local, p.Location())

	p = &Profile{Timezone: "not/a-zone"}
	assert.Equal(t, time.Local, p.Location())
}
