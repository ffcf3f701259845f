package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corpusqa/corpusqa/internal/errors"
)

// OllamaConfig configures the local Ollama generator.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string

	// Model is the chat model to use.
	Model string

	// Timeout bounds one generation call.
	Timeout time.Duration
}

// OllamaGenerator answers questions through Ollama's /api/chat endpoint.
type OllamaGenerator struct {
	http    *http.Client
	host    string
	model   string
	timeout time.Duration
}

var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates a generator backed by a local Ollama server.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OllamaGenerator{
		http:    &http.Client{},
		host:    cfg.Host,
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

// Generate returns the model's answer.
func (g *OllamaGenerator) Generate(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(ollamaChatRequest{
		Model: g.model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Stream:  false,
		Options: map[string]any{"temperature": DefaultTemperature},
	})
	if err != nil {
		return "", errors.GenerationError("marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", errors.GenerationError("build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return "", errors.GenerationError("chat request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", errors.GenerationError(
			fmt.Sprintf("chat failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.GenerationError("decode chat response", err)
	}
	return out.Message.Content, nil
}

// ModelName returns the model identifier.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// Available probes the Ollama server.
func (g *OllamaGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.host+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
