package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/hrygo/calroute/internal/profile"
)

// Config is the CLI configuration. Precedence: CALROUTE_* env, then the config
// file, then the profile defaults.
type Config struct {
	Mode     string `mapstructure:"mode"`
	Data     string `mapstructure:"data"`
	DSN      string `mapstructure:"dsn"`
	Driver   string `mapstructure:"driver"`
	Timezone string `mapstructure:"timezone"`

	Log      LogConfig      `mapstructure:"log"`
	AI       AIConfig       `mapstructure:"ai"`
	Router   RouterConfig   `mapstructure:"router"`
	Calendar CalendarConfig `mapstructure:"calendar"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type AIConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	LLMProvider           string `mapstructure:"llm_provider"`
	LLMModel              string `mapstructure:"llm_model"`
	OpenAIAPIKey          string `mapstructure:"openai_api_key"`
	OpenAIBaseURL         string `mapstructure:"openai_base_url"`
	DeepSeekAPIKey        string `mapstructure:"deepseek_api_key"`
	DeepSeekBaseURL       string `mapstructure:"deepseek_base_url"`
	SiliconFlowAPIKey     string `mapstructure:"siliconflow_api_key"`
	SiliconFlowBaseURL    string `mapstructure:"siliconflow_base_url"`
	AnthropicAPIKey       string `mapstructure:"anthropic_api_key"`
	EmbeddingProvider     string `mapstructure:"embedding_provider"`
	EmbeddingModel        string `mapstructure:"embedding_model"`
	EmbeddingHighFidelity bool   `mapstructure:"embedding_high_fidelity"`
}

type RouterConfig struct {
	SelfValidation bool    `mapstructure:"self_validation"`
	LLMRPS         float64 `mapstructure:"llm_rps"`
	Catalogue      string  `mapstructure:"catalogue"`
	Rules          string  `mapstructure:"rules"`
}

type CalendarConfig struct {
	// WorkingHoursStart and WorkingHoursEnd bound suggested slots. Equal values disable the band.
	WorkingHoursStart int `mapstructure:"working_hours_start"`
	WorkingHoursEnd   int `mapstructure:"working_hours_end"`
	// Contacts maps display names to addresses for attendee resolution.
	Contacts map[string]string `mapstructure:"contacts"`
}

// LoadConfig reads configPath, or calroute.yaml from the working directory
// and $HOME/.calroute when configPath is empty. A missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	defaults := &profile.Profile{}
	defaults.FromEnv()

	v := viper.New()
	setDefaults(v, defaults)

	v.SetEnvPrefix("CALROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("calroute")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.calroute")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, p *profile.Profile) {
	v.SetDefault("mode", p.Mode)
	v.SetDefault("data", p.Data)
	v.SetDefault("dsn", p.DSN)
	v.SetDefault("driver", p.Driver)
	v.SetDefault("timezone", p.Timezone)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ai.enabled", p.AIEnabled)
	v.SetDefault("ai.llm_provider", p.AILLMProvider)
	v.SetDefault("ai.llm_model", p.AILLMModel)
	v.SetDefault("ai.openai_api_key", p.AIOpenAIAPIKey)
	v.SetDefault("ai.openai_base_url", p.AIOpenAIBaseURL)
	v.SetDefault("ai.deepseek_api_key", p.AIDeepSeekAPIKey)
	v.SetDefault("ai.deepseek_base_url", p.AIDeepSeekBaseURL)
	v.SetDefault("ai.siliconflow_api_key", p.AISiliconFlowAPIKey)
	v.SetDefault("ai.siliconflow_base_url", p.AISiliconFlowBaseURL)
	v.SetDefault("ai.anthropic_api_key", p.AIAnthropicAPIKey)
	v.SetDefault("ai.embedding_provider", p.AIEmbeddingProvider)
	v.SetDefault("ai.embedding_model", p.AIEmbeddingModel)
	v.SetDefault("ai.embedding_high_fidelity", p.AIEmbeddingHighFidelity)

	v.SetDefault("router.self_validation", p.RouterSelfValidation)
	v.SetDefault("router.llm_rps", p.RouterLLMRPS)
	v.SetDefault("router.catalogue", p.RouterCataloguePath)
	v.SetDefault("router.rules", p.RouterRulesPath)

	v.SetDefault("calendar.working_hours_start", 8)
	v.SetDefault("calendar.working_hours_end", 22)
	v.SetDefault("calendar.contacts", map[string]string{})
}

// Profile converts the configuration into a validated profile.
func (c *Config) Profile(version string) (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:     c.Mode,
		Data:     c.Data,
		DSN:      c.DSN,
		Driver:   c.Driver,
		Version:  version,
		Timezone: c.Timezone,

		AIEnabled:               c.AI.Enabled,
		AILLMProvider:           c.AI.LLMProvider,
		AILLMModel:              c.AI.LLMModel,
		AIOpenAIAPIKey:          c.AI.OpenAIAPIKey,
		AIOpenAIBaseURL:         c.AI.OpenAIBaseURL,
		AIDeepSeekAPIKey:        c.AI.DeepSeekAPIKey,
		AIDeepSeekBaseURL:       c.AI.DeepSeekBaseURL,
		AISiliconFlowAPIKey:     c.AI.SiliconFlowAPIKey,
		AISiliconFlowBaseURL:    c.AI.SiliconFlowBaseURL,
		AIAnthropicAPIKey:       c.AI.AnthropicAPIKey,
		AIEmbeddingProvider:     c.AI.EmbeddingProvider,
		AIEmbeddingModel:        c.AI.EmbeddingModel,
		AIEmbeddingHighFidelity: c.AI.EmbeddingHighFidelity,

		RouterSelfValidation: c.Router.SelfValidation,
		RouterLLMRPS:         c.Router.LLMRPS,
		RouterCataloguePath:  c.Router.Catalogue,
		RouterRulesPath:      c.Router.Rules,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// NewLogger builds the process logger from the log section.
func (c LogConfig) NewLogger(out io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", c.Level)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", c.Format)
	}
}
