package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/corpusqa/corpusqa/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible generator.
type OpenAIConfig struct {
	// APIKey authenticates requests.
	APIKey string

	// BaseURL overrides the endpoint for OpenAI-compatible servers
	// (vLLM, llama.cpp, LM Studio). Empty means api.openai.com.
	BaseURL string

	// Model is the chat model to use.
	Model string

	// Timeout bounds one generation call.
	Timeout time.Duration

	// MaxTokens caps the generated answer length.
	MaxTokens int

	// Temperature controls sampling randomness.
	Temperature float32
}

// OpenAIGenerator answers questions through the OpenAI chat API or any
// compatible endpoint.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	maxTok  int
	temp    float32
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator for an OpenAI-compatible API.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		maxTok:  cfg.MaxTokens,
		temp:    cfg.Temperature,
	}
}

// Generate returns the model's answer. Failures are fatal: there is no
// degraded path for a missing answer.
func (g *OpenAIGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTok,
		Temperature: g.temp,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", errors.GenerationError("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.GenerationError("chat completion returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// ModelName returns the model identifier.
func (g *OpenAIGenerator) ModelName() string {
	return g.model
}

// Available probes the models endpoint.
func (g *OpenAIGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := g.client.ListModels(ctx)
	return err == nil
}
