package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the engine and its CLI.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where calroute stores its own data
	DSN string
	// Driver is the database driver (only sqlite)
	Driver string
	// Version is the current version of the engine
	Version string
	// Timezone is the IANA name of the user's timezone (default: Local)
	Timezone string

	// AI Configuration
	AIEnabled               bool   // CALROUTE_AI_ENABLED
	AILLMProvider           string // CALROUTE_AI_LLM_PROVIDER (default: openai)
	AILLMModel              string // CALROUTE_AI_LLM_MODEL (default: gpt-4o-mini)
	AIOpenAIAPIKey          string // CALROUTE_AI_OPENAI_API_KEY
	AIOpenAIBaseURL         string // CALROUTE_AI_OPENAI_BASE_URL (default: https://api.openai.com/v1)
	AIDeepSeekAPIKey        string // CALROUTE_AI_DEEPSEEK_API_KEY
	AIDeepSeekBaseURL       string // CALROUTE_AI_DEEPSEEK_BASE_URL (default: https://api.deepseek.com)
	AISiliconFlowAPIKey     string // CALROUTE_AI_SILICONFLOW_API_KEY
	AISiliconFlowBaseURL    string // CALROUTE_AI_SILICONFLOW_BASE_URL (default: https://api.siliconflow.cn/v1)
	AIAnthropicAPIKey       string // CALROUTE_AI_ANTHROPIC_API_KEY
	AIEmbeddingProvider     string // CALROUTE_AI_EMBEDDING_PROVIDER (default: openai)
	AIEmbeddingModel        string // CALROUTE_AI_EMBEDDING_MODEL (default: text-embedding-3-small)
	AIEmbeddingHighFidelity bool   // CALROUTE_AI_EMBEDDING_HIGH_FIDELITY

	// Router configuration
	RouterSelfValidation bool    // CALROUTE_ROUTER_SELF_VALIDATION (default: true)
	RouterLLMRPS         float64 // CALROUTE_ROUTER_LLM_RPS (default: 5)
	RouterCataloguePath  string  // CALROUTE_ROUTER_CATALOGUE (YAML phrase catalogue)
	RouterRulesPath      string  // CALROUTE_ROUTER_RULES (YAML CEL rules)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if AI is enabled and the selected LLM provider has credentials.
func (p *Profile) IsAIEnabled() bool {
	if !p.AIEnabled {
		return false
	}
	switch p.AILLMProvider {
	case "openai":
		return p.AIOpenAIAPIKey != ""
	case "deepseek":
		return p.AIDeepSeekAPIKey != ""
	case "siliconflow":
		return p.AISiliconFlowAPIKey != ""
	case "anthropic":
		return p.AIAnthropicAPIKey != ""
	}
	return false
}

// Location returns the configured timezone, falling back to time.Local.
func (p *Profile) Location() *time.Location {
	if p.Timezone == "" || p.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from CALROUTE_* environment variables.
// Fields already set (e.g. by flags) are kept when the variable is empty.
func (p *Profile) FromEnv() {
	getEnvWithDefault := func(key, current, defaultValue string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		if current != "" {
			return current
		}
		return defaultValue
	}

	getBoolEnv := func(key string, defaultValue bool) bool {
		val := os.Getenv(key)
		if val == "" {
			return defaultValue
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return defaultValue
		}
		return b
	}

	p.Mode = getEnvWithDefault("CALROUTE_MODE", p.Mode, "dev")
	p.Data = getEnvWithDefault("CALROUTE_DATA", p.Data, ".")
	p.DSN = getEnvWithDefault("CALROUTE_DSN", p.DSN, "")
	p.Driver = getEnvWithDefault("CALROUTE_DRIVER", p.Driver, "sqlite")
	p.Timezone = getEnvWithDefault("CALROUTE_TIMEZONE", p.Timezone, "Local")

	p.AIEnabled = getBoolEnv("CALROUTE_AI_ENABLED", p.AIEnabled)
	p.AILLMProvider = getEnvWithDefault("CALROUTE_AI_LLM_PROVIDER", p.AILLMProvider, "openai")
	p.AILLMModel = getEnvWithDefault("CALROUTE_AI_LLM_MODEL", p.AILLMModel, "gpt-4o-mini")
	p.AIOpenAIAPIKey = getEnvOrDefault("CALROUTE_AI_OPENAI_API_KEY", p.AIOpenAIAPIKey)
	p.AIOpenAIBaseURL = getEnvWithDefault("CALROUTE_AI_OPENAI_BASE_URL", p.AIOpenAIBaseURL, "https://api.openai.com/v1")
	p.AIDeepSeekAPIKey = getEnvOrDefault("CALROUTE_AI_DEEPSEEK_API_KEY", p.AIDeepSeekAPIKey)
	p.AIDeepSeekBaseURL = getEnvWithDefault("CALROUTE_AI_DEEPSEEK_BASE_URL", p.AIDeepSeekBaseURL, "https://api.deepseek.com")
	p.AISiliconFlowAPIKey = getEnvOrDefault("CALROUTE_AI_SILICONFLOW_API_KEY", p.AISiliconFlowAPIKey)
	p.AISiliconFlowBaseURL = getEnvWithDefault("CALROUTE_AI_SILICONFLOW_BASE_URL", p.AISiliconFlowBaseURL, "https://api.siliconflow.cn/v1")
	p.AIAnthropicAPIKey = getEnvOrDefault("CALROUTE_AI_ANTHROPIC_API_KEY", p.AIAnthropicAPIKey)
	p.AIEmbeddingProvider = getEnvWithDefault("CALROUTE_AI_EMBEDDING_PROVIDER", p.AIEmbeddingProvider, "openai")
	p.AIEmbeddingModel = getEnvWithDefault("CALROUTE_AI_EMBEDDING_MODEL", p.AIEmbeddingModel, "text-embedding-3-small")
	p.AIEmbeddingHighFidelity = getBoolEnv("CALROUTE_AI_EMBEDDING_HIGH_FIDELITY", p.AIEmbeddingHighFidelity)

	p.RouterSelfValidation = getBoolEnv("CALROUTE_ROUTER_SELF_VALIDATION", true)
	p.RouterLLMRPS = 5
	if val := os.Getenv("CALROUTE_ROUTER_LLM_RPS"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil {
			p.RouterLLMRPS = rps
		}
	}
	p.RouterCataloguePath = getEnvOrDefault("CALROUTE_ROUTER_CATALOGUE", p.RouterCataloguePath)
	p.RouterRulesPath = getEnvOrDefault("CALROUTE_ROUTER_RULES", p.RouterRulesPath)
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}
	if p.Driver != "sqlite" {
		return errors.Errorf("unsupported driver %q: only sqlite is supported", p.Driver)
	}

	if p.Timezone != "" && p.Timezone != "Local" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return errors.Wrapf(err, "invalid timezone %q", p.Timezone)
		}
	}

	if p.RouterLLMRPS < 0 {
		return errors.Errorf("router LLM rate must not be negative, got %v", p.RouterLLMRPS)
	}

	if p.Data == "" {
		p.Data = "."
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}

	p.Data = dataDir
	if p.DSN == "" {
		dbFile := fmt.Sprintf("calroute_%s.db", p.Mode)
		p.DSN = filepath.Join(dataDir, dbFile)
	}

	return nil
}
