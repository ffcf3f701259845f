package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/corpusqa/corpusqa/internal/config"
	"github.com/corpusqa/corpusqa/internal/embed"
	"github.com/corpusqa/corpusqa/internal/llm"
	"github.com/corpusqa/corpusqa/internal/logging"
	"github.com/corpusqa/corpusqa/internal/rerank"
	"github.com/corpusqa/corpusqa/internal/search"
	"github.com/corpusqa/corpusqa/internal/store"
	"github.com/corpusqa/corpusqa/internal/telemetry"
)

// app holds the wired pipeline and everything that needs closing.
type app struct {
	cfg       *config.Config
	engine    *search.Engine
	metrics   *telemetry.QueryMetrics
	embedder  embed.Embedder
	reranker  *rerank.Client
	generator llm.Generator

	closers []func() error
}

// setupLogging configures the default logger from config and the
// global --debug flag. Returns the cleanup function.
func setupLogging(cfg *config.Config, toStderr bool) (func(), error) {
	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		FilePath:      cfg.Logging.Path,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: toStderr,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if debugMode {
		logCfg.Level = "debug"
	}
	return logging.SetupDefault(logCfg)
}

// buildApp wires the full pipeline from configuration. Optional
// upstreams that fail to come up are logged and left out; the engine
// degrades per request.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	chunks, lexical, vector, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	engineCfg := search.EngineConfig{
		RRFConstant:      cfg.Search.RRFConstant,
		CandidateCap:     cfg.Search.CandidateCap,
		RerankCandidates: cfg.Search.RerankCandidates,
		TopK:             cfg.Search.TopK,
		MinQueryLength:   cfg.Search.MinQueryLength,
		LexicalTimeout:   config.Duration(cfg.Search.LexicalTimeout, 2*time.Second),
		VectorTimeout:    config.Duration(cfg.Search.VectorTimeout, 10*time.Second),
		RerankEnabled:    cfg.Rerank.Enabled,
	}

	var opts []search.EngineOption

	if embedder := a.openEmbedder(ctx); embedder != nil {
		opts = append(opts, search.WithVectorSearch(embedder, vector))
	}

	a.reranker = rerank.NewClient(rerank.Config{
		URL:         cfg.Rerank.URL,
		Timeout:     config.Duration(cfg.Rerank.Timeout, rerank.DefaultTimeout),
		MaxFailures: cfg.Rerank.MaxFailures,
	})
	opts = append(opts, search.WithReranker(a.reranker))

	a.generator = a.openGenerator()
	opts = append(opts, search.WithGenerator(a.generator))

	if cfg.Telemetry.Enabled {
		a.metrics = a.openMetrics()
		opts = append(opts, search.WithMetrics(a.metrics))
	}

	engine, err := search.NewEngine(lexical, chunks, engineCfg, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	return a, nil
}

// openStorage opens the configured backend and returns its three
// retrieval capabilities.
func (a *app) openStorage(ctx context.Context) (store.ChunkStore, store.LexicalIndex, store.VectorIndex, error) {
	cfg := a.cfg
	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, cfg.Storage.PostgresDSN, cfg.Embeddings.Dimensions)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		return pg, pg, pg.VectorIndex(), nil
	default:
		local, err := store.OpenLocal(ctx, cfg.Storage.DataDir, cfg.Embeddings.Dimensions)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open local store: %w", err)
		}
		a.closers = append(a.closers, local.Close)
		return local.Chunks, local.Lexical, local.Vector, nil
	}
}

// openEmbedder builds the cached Ollama embedder. A missing embedding
// service is not fatal: queries run lexical-only until it returns.
func (a *app) openEmbedder(ctx context.Context) embed.Embedder {
	cfg := a.cfg
	ollama, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		MaxRetries: cfg.Embeddings.MaxRetries,
	})
	if err != nil {
		slog.Warn("embedding_service_unavailable, starting lexical-only",
			slog.String("error", err.Error()))
		return nil
	}

	a.embedder = embed.NewCachedEmbedder(ollama, cfg.Embeddings.CacheSize)
	a.closers = append(a.closers, a.embedder.Close)
	return a.embedder
}

func (a *app) openGenerator() llm.Generator {
	cfg := a.cfg
	timeout := config.Duration(cfg.Generation.Timeout, llm.DefaultTimeout)

	if cfg.Generation.Provider == "openai" {
		return llm.NewOpenAIGenerator(llm.OpenAIConfig{
			APIKey:    cfg.Generation.APIKey,
			BaseURL:   cfg.Generation.BaseURL,
			Model:     cfg.Generation.Model,
			Timeout:   timeout,
			MaxTokens: cfg.Generation.MaxTokens,
		})
	}
	return llm.NewOllamaGenerator(llm.OllamaConfig{
		Host:    cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: timeout,
	})
}

// openMetrics creates the query metrics collector, persisting daily
// aggregates to metrics.db under the data directory when possible.
func (a *app) openMetrics() *telemetry.QueryMetrics {
	cfg := a.cfg

	var metricsStore telemetry.MetricsStore
	if cfg.Storage.DataDir != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err == nil {
			db, err := sql.Open("sqlite", filepath.Join(cfg.Storage.DataDir, "metrics.db"))
			if err == nil {
				if ms, err := telemetry.NewSQLiteMetricsStore(db); err == nil {
					metricsStore = ms
					a.closers = append(a.closers, ms.Close)
				} else {
					_ = db.Close()
				}
			}
		}
	}
	if metricsStore == nil {
		slog.Warn("metrics_persistence_unavailable, keeping in-memory only")
	}

	metrics := telemetry.NewQueryMetricsWithConfig(metricsStore, telemetry.Config{
		FlushInterval: config.Duration(cfg.Telemetry.FlushInterval, time.Minute),
	})
	a.closers = append(a.closers, metrics.Close)
	return metrics
}

// Close releases everything buildApp opened, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("shutdown_close_failed", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
