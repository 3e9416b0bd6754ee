package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// LLMService is the LLM service interface.
type LLMService interface {
	// Chat performs synchronous chat and returns the assistant text.
	Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error)
}

// JSONSchema implements json.Marshaler for OpenAI's JSON Schema format.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Description          string                 `json:"description,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	return json.Marshal((*alias)(s))
}

type chatOptions struct {
	maxTokens   int
	temperature *float32
	schemaName  string
	schema      *JSONSchema
}

// ChatOption customizes a single Chat call.
type ChatOption func(*chatOptions)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) ChatOption {
	return func(o *chatOptions) { o.maxTokens = n }
}

// WithTemperature overrides the configured temperature.
func WithTemperature(t float32) ChatOption {
	return func(o *chatOptions) { o.temperature = &t }
}

// WithJSONSchema asks the backend for a JSON object. OpenAI enforces the
// schema strictly; OpenAI-compatible providers fall back to plain JSON mode
// and Anthropic relies on the prompt.
func WithJSONSchema(name string, schema *JSONSchema) ChatOption {
	return func(o *chatOptions) {
		o.schemaName = name
		o.schema = schema
	}
}

// NewLLMService creates a new LLMService.
func NewLLMService(cfg *LLMConfig) (LLMService, error) {
	if cfg.Model == "" {
		return nil, errors.New("LLM model is required")
	}

	switch cfg.Provider {
	case "openai", "deepseek", "siliconflow":
		// DeepSeek and SiliconFlow are compatible with OpenAI API
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
		return &openAIService{
			client:       openai.NewClientWithConfig(clientConfig),
			model:        cfg.Model,
			maxTokens:    cfg.MaxTokens,
			temperature:  cfg.Temperature,
			strictSchema: cfg.Provider == "openai",
		}, nil

	case "anthropic":
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return &anthropicService{
			client:    anthropic.NewClient(opts...),
			model:     cfg.Model,
			maxTokens: cfg.MaxTokens,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

func resolveOptions(opts []ChatOption) chatOptions {
	var o chatOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type openAIService struct {
	client       *openai.Client
	model        string
	maxTokens    int
	temperature  float32
	strictSchema bool
}

func (s *openAIService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := resolveOptions(opts)

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		Messages:    convertOpenAIMessages(messages),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
	if o.maxTokens > 0 {
		req.MaxTokens = o.maxTokens
	}
	if o.temperature != nil {
		req.Temperature = *o.temperature
	}
	if o.schema != nil {
		if s.strictSchema {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
				JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
					Name:   o.schemaName,
					Strict: true,
					Schema: o.schema,
				},
			}
		} else {
			req.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case "system":
			role = openai.ChatMessageRoleSystem
		case "assistant":
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}

type anthropicService struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

func (s *anthropicService) Chat(ctx context.Context, messages []Message, opts ...ChatOption) (string, error) {
	o := resolveOptions(opts)

	maxTokens := s.maxTokens
	if o.maxTokens > 0 {
		maxTokens = o.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: int64(maxTokens),
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if len(params.Messages) == 0 {
		return "", errors.New("no user message provided")
	}

	resp, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response")
	}
	return sb.String(), nil
}
