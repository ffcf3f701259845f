// Package config loads and validates service configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. Config file (corpusqa.yaml, or the path given explicitly)
//  3. Environment variables (CORPUSQA_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default config file looked up in the working
// directory when no explicit path is given.
const ConfigFileName = "corpusqa.yaml"

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" json:"server"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	// RequestTimeout bounds a single query end to end (e.g. "90s").
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// StorageConfig selects and configures the retrieval backend.
type StorageConfig struct {
	// Backend is "local" (SQLite + in-process indexes) or "postgres".
	Backend string `yaml:"backend" json:"backend"`
	// DataDir holds the local backend's files. Ignored for postgres.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// PostgresDSN is the pgx connection string. Ignored for local.
	PostgresDSN string `yaml:"postgres_dsn" json:"postgres_dsn"`
}

// SearchConfig configures the retrieval pipeline parameters.
type SearchConfig struct {
	// RRFConstant is the fusion smoothing parameter k. Default: 60.
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`
	// CandidateCap truncates each retrieval list before fusion.
	CandidateCap int `yaml:"candidate_cap" json:"candidate_cap"`
	// RerankCandidates is how many fused results go to the reranker.
	RerankCandidates int `yaml:"rerank_candidates" json:"rerank_candidates"`
	// TopK is the default result count returned to callers.
	TopK int `yaml:"top_k" json:"top_k"`
	// MinQueryLength rejects shorter queries before retrieval.
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`
	// LexicalTimeout and VectorTimeout bound the parallel legs.
	LexicalTimeout string `yaml:"lexical_timeout" json:"lexical_timeout"`
	VectorTimeout  string `yaml:"vector_timeout" json:"vector_timeout"`
}

// EmbeddingsConfig configures the query embedding provider.
type EmbeddingsConfig struct {
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
}

// RerankConfig configures the cross-encoder rerank service.
type RerankConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
	Timeout string `yaml:"timeout" json:"timeout"`
	// MaxFailures opens the circuit breaker after this many
	// consecutive failures.
	MaxFailures int `yaml:"max_failures" json:"max_failures"`
}

// GenerationConfig configures the answer generation backend.
type GenerationConfig struct {
	// Provider is "openai" (OpenAI-compatible chat API) or "ollama".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// BaseURL overrides the provider endpoint. For "openai" this
	// allows any OpenAI-compatible server (vLLM, LM Studio).
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey may also come from CORPUSQA_GENERATION_API_KEY.
	APIKey    string `yaml:"api_key" json:"api_key"`
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
	Timeout   string `yaml:"timeout" json:"timeout"`
}

// TelemetryConfig configures query metrics collection.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	FlushInterval string `yaml:"flush_interval" json:"flush_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" json:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format" json:"format"`
	// Path is the log file; empty logs to stderr.
	Path string `yaml:"path" json:"path"`
}

// NewConfig returns the configuration defaults.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: "90s",
		},
		Storage: StorageConfig{
			Backend: "local",
			DataDir: defaultDataDir(),
		},
		Search: SearchConfig{
			RRFConstant:      60,
			CandidateCap:     50,
			RerankCandidates: 20,
			TopK:             10,
			MinQueryLength:   3,
			LexicalTimeout:   "2s",
			VectorTimeout:    "10s",
		},
		Embeddings: EmbeddingsConfig{
			OllamaHost: "http://localhost:11434",
			Model:      "embeddinggemma",
			Dimensions: 768,
			MaxRetries: 3,
			CacheSize:  1000,
		},
		Rerank: RerankConfig{
			Enabled:     true,
			URL:         "http://localhost:8001",
			Timeout:     "5s",
			MaxFailures: 5,
		},
		Generation: GenerationConfig{
			Provider:  "ollama",
			Model:     "qwen3:8b",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 1024,
			Timeout:   "60s",
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			FlushInterval: "60s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "corpusqa")
	}
	return filepath.Join(home, ".corpusqa")
}

// Load builds the effective configuration. path may be empty, in which
// case corpusqa.yaml in the working directory is used if present; a
// missing default file is fine, a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	explicit := path != ""
	if !explicit {
		path = ConfigFileName
	}

	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s not found", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadYAML parses a config file and merges its non-zero values.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c. Booleans with a
// true default (rerank.enabled, telemetry.enabled) are tied to their
// section's presence markers instead, since YAML cannot distinguish
// "absent" from "false" on a bare bool.
func (c *Config) mergeWith(other *Config) {
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.RequestTimeout != "" {
		c.Server.RequestTimeout = other.Server.RequestTimeout
	}

	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.PostgresDSN != "" {
		c.Storage.PostgresDSN = other.Storage.PostgresDSN
	}

	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.CandidateCap != 0 {
		c.Search.CandidateCap = other.Search.CandidateCap
	}
	if other.Search.RerankCandidates != 0 {
		c.Search.RerankCandidates = other.Search.RerankCandidates
	}
	if other.Search.TopK != 0 {
		c.Search.TopK = other.Search.TopK
	}
	if other.Search.MinQueryLength != 0 {
		c.Search.MinQueryLength = other.Search.MinQueryLength
	}
	if other.Search.LexicalTimeout != "" {
		c.Search.LexicalTimeout = other.Search.LexicalTimeout
	}
	if other.Search.VectorTimeout != "" {
		c.Search.VectorTimeout = other.Search.VectorTimeout
	}

	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.MaxRetries != 0 {
		c.Embeddings.MaxRetries = other.Embeddings.MaxRetries
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}

	// A rerank section with any field set carries its enabled flag.
	if other.Rerank.URL != "" || other.Rerank.Timeout != "" || other.Rerank.MaxFailures != 0 {
		c.Rerank.Enabled = other.Rerank.Enabled
	}
	if other.Rerank.URL != "" {
		c.Rerank.URL = other.Rerank.URL
	}
	if other.Rerank.Timeout != "" {
		c.Rerank.Timeout = other.Rerank.Timeout
	}
	if other.Rerank.MaxFailures != 0 {
		c.Rerank.MaxFailures = other.Rerank.MaxFailures
	}

	if other.Generation.Provider != "" {
		c.Generation.Provider = other.Generation.Provider
	}
	if other.Generation.Model != "" {
		c.Generation.Model = other.Generation.Model
	}
	if other.Generation.BaseURL != "" {
		c.Generation.BaseURL = other.Generation.BaseURL
	}
	if other.Generation.APIKey != "" {
		c.Generation.APIKey = other.Generation.APIKey
	}
	if other.Generation.MaxTokens != 0 {
		c.Generation.MaxTokens = other.Generation.MaxTokens
	}
	if other.Generation.Timeout != "" {
		c.Generation.Timeout = other.Generation.Timeout
	}

	if other.Telemetry.FlushInterval != "" {
		c.Telemetry.Enabled = other.Telemetry.Enabled
		c.Telemetry.FlushInterval = other.Telemetry.FlushInterval
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
	if other.Logging.Path != "" {
		c.Logging.Path = other.Logging.Path
	}
}

// applyEnvOverrides applies CORPUSQA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CORPUSQA_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("CORPUSQA_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("CORPUSQA_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("CORPUSQA_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CORPUSQA_POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CORPUSQA_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("CORPUSQA_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Search.TopK = k
		}
	}
	if v := os.Getenv("CORPUSQA_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("CORPUSQA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("CORPUSQA_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CORPUSQA_RERANK_URL"); v != "" {
		c.Rerank.URL = v
	}
	if v := os.Getenv("CORPUSQA_GENERATION_PROVIDER"); v != "" {
		c.Generation.Provider = v
	}
	if v := os.Getenv("CORPUSQA_GENERATION_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("CORPUSQA_GENERATION_BASE_URL"); v != "" {
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("CORPUSQA_GENERATION_API_KEY"); v != "" {
		c.Generation.APIKey = v
	}
	if v := os.Getenv("CORPUSQA_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CORPUSQA_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for values the service cannot run
// with. Duration strings are parsed here so a typo fails at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Storage.Backend) {
	case "local":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("storage.data_dir is required for the local backend")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'local' or 'postgres', got %s", c.Storage.Backend)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("search.rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.CandidateCap <= 0 {
		return fmt.Errorf("search.candidate_cap must be positive, got %d", c.Search.CandidateCap)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.TopK > c.Search.RerankCandidates {
		return fmt.Errorf("search.top_k (%d) must not exceed search.rerank_candidates (%d)",
			c.Search.TopK, c.Search.RerankCandidates)
	}
	if c.Search.MinQueryLength < 1 {
		return fmt.Errorf("search.min_query_length must be at least 1, got %d", c.Search.MinQueryLength)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	validProviders := map[string]bool{"openai": true, "ollama": true}
	if !validProviders[strings.ToLower(c.Generation.Provider)] {
		return fmt.Errorf("generation.provider must be 'openai' or 'ollama', got %s", c.Generation.Provider)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("logging.format must be 'json' or 'text', got %s", c.Logging.Format)
	}

	durations := map[string]string{
		"server.request_timeout":   c.Server.RequestTimeout,
		"search.lexical_timeout":   c.Search.LexicalTimeout,
		"search.vector_timeout":    c.Search.VectorTimeout,
		"rerank.timeout":           c.Rerank.Timeout,
		"generation.timeout":       c.Generation.Timeout,
		"telemetry.flush_interval": c.Telemetry.FlushInterval,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, value)
		}
	}

	return nil
}

// Duration parses a duration config string, falling back to def when
// the string is empty. Validate has already rejected malformed values.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
