package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/corpusqa/corpusqa/internal/embed"
	"github.com/corpusqa/corpusqa/internal/errors"
	"github.com/corpusqa/corpusqa/internal/llm"
	"github.com/corpusqa/corpusqa/internal/rerank"
	"github.com/corpusqa/corpusqa/internal/store"
	"github.com/corpusqa/corpusqa/internal/telemetry"
)

// Engine orchestrates the retrieval and answering pipeline.
type Engine struct {
	lexical   store.LexicalIndex
	vector    store.VectorIndex
	chunks    store.ChunkStore
	embedder  embed.Embedder
	reranker  rerank.Reranker
	generator llm.Generator
	fusion    *RRFFusion
	metrics   *telemetry.QueryMetrics
	config    EngineConfig
}

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = fmt.Errorf("nil dependency")

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithVectorSearch wires the embedder and vector index. Without it the
// engine always takes the lexical-only path.
func WithVectorSearch(embedder embed.Embedder, vector store.VectorIndex) EngineOption {
	return func(e *Engine) {
		e.embedder = embedder
		e.vector = vector
	}
}

// WithReranker wires the cross-encoder reranker. Without it reranking
// is skipped and fused results go straight to the caller.
func WithReranker(r rerank.Reranker) EngineOption {
	return func(e *Engine) {
		e.reranker = r
	}
}

// WithGenerator wires the answer generator. Required for Ask.
func WithGenerator(g llm.Generator) EngineOption {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithMetrics wires a query metrics collector.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates the pipeline engine. The lexical index and chunk
// store are required; everything else degrades gracefully.
func NewEngine(lexical store.LexicalIndex, chunks store.ChunkStore, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if lexical == nil {
		return nil, fmt.Errorf("%w: lexical index is required", ErrNilDependency)
	}
	if chunks == nil {
		return nil, fmt.Errorf("%w: chunk store is required", ErrNilDependency)
	}

	if config.RRFConstant <= 0 {
		config.RRFConstant = DefaultRRFConstant
	}
	if config.CandidateCap <= 0 {
		config.CandidateCap = DefaultCandidateCap
	}
	if config.RerankCandidates <= 0 {
		config.RerankCandidates = 20
	}
	if config.TopK <= 0 {
		config.TopK = 10
	}
	if config.MinQueryLength <= 0 {
		config.MinQueryLength = 3
	}
	if config.LexicalTimeout <= 0 {
		config.LexicalTimeout = 2 * time.Second
	}
	if config.VectorTimeout <= 0 {
		config.VectorTimeout = 10 * time.Second
	}
	if config.RerankDisabledDecay <= 0 {
		config.RerankDisabledDecay = 0.1
	}
	if config.RerankFailedDecay <= 0 {
		config.RerankFailedDecay = 0.05
	}
	if config.Confidence == (ConfidenceConfig{}) {
		config.Confidence = DefaultConfidenceConfig()
	}

	fusion := NewRRFFusionWithK(config.RRFConstant)
	fusion.CandidateCap = config.CandidateCap

	e := &Engine{
		lexical: lexical,
		chunks:  chunks,
		config:  config,
		fusion:  fusion,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// validateQuery rejects queries too short to retrieve on. It runs
// before any upstream call.
func (e *Engine) validateQuery(query string) (string, error) {
	query = store.SanitizeQuery(query)
	if query == "" {
		return "", errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if utf8.RuneCountInString(query) < e.config.MinQueryLength {
		return "", errors.New(errors.ErrCodeQueryTooShort,
			fmt.Sprintf("query must be at least %d characters", e.config.MinQueryLength), nil).
			WithDetail("query", query)
	}
	return query, nil
}

// Search runs the retrieval pipeline: parallel lexical and vector
// search, RRF fusion, and the rerank stage.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*SearchResult, error) {
	start := time.Now()

	sanitized, err := e.validateQuery(query)
	if err != nil {
		return nil, err
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = e.config.TopK
	}

	lexResults, vecResults, vectorOK, err := e.parallelSearch(ctx, sanitized, opts)
	if err != nil {
		return nil, err
	}

	path := telemetry.PathHybrid
	var candidates []*Candidate
	if vectorOK {
		candidates = toCandidates(e.fusion.Fuse(lexResults, vecResults))
	} else {
		path = telemetry.PathLexicalOnly
		candidates = lexicalCandidates(lexResults, e.config.CandidateCap)
	}

	candidates, outcome, err := e.rerankStage(ctx, query, candidates, topK)
	if err != nil {
		return nil, err
	}
	if outcome == telemetry.RerankSkipped && e.reranker == nil {
		path = telemetry.PathDegraded
	}

	if err := e.enrich(ctx, candidates); err != nil {
		return nil, err
	}

	latency := time.Since(start)
	e.recordMetrics(query, path, outcome, len(candidates), latency)

	slog.Debug("search_completed",
		slog.String("path", string(path)),
		slog.String("rerank", string(outcome)),
		slog.Int("results", len(candidates)),
		slog.Duration("latency", latency))

	return &SearchResult{
		Candidates:    candidates,
		Path:          path,
		RerankOutcome: outcome,
		Latency:       latency,
	}, nil
}

// Ask answers a question over the corpus: Search, then answer
// generation over the top candidates, then confidence estimation.
func (e *Engine) Ask(ctx context.Context, question string, opts Options) (*Answer, error) {
	start := time.Now()

	result, err := e.Search(ctx, question, opts)
	if err != nil {
		return nil, err
	}

	if len(result.Candidates) == 0 {
		return &Answer{
			Text:          llm.NotFoundAnswer,
			Confidence:    e.config.Confidence.Floor,
			Sources:       []*Candidate{},
			Path:          result.Path,
			RerankOutcome: result.RerankOutcome,
			Latency:       time.Since(start),
		}, nil
	}

	if e.generator == nil {
		return nil, errors.GenerationError("no generator configured", nil)
	}

	chunks := make([]*store.Chunk, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		if c.Chunk != nil {
			chunks = append(chunks, c.Chunk)
		}
	}

	answer, err := e.generator.Generate(ctx, llm.SystemPrompt, llm.BuildPrompt(question, chunks))
	if err != nil {
		// Fatal: a degraded retrieval still answers, a failed
		// generation does not.
		return nil, err
	}

	confidence := e.config.Confidence.Estimate(answer, result.Candidates)
	if answer == "" {
		answer = llm.NotFoundAnswer
	}

	return &Answer{
		Text:          answer,
		Confidence:    confidence,
		Sources:       result.Candidates,
		Path:          result.Path,
		RerankOutcome: result.RerankOutcome,
		Latency:       time.Since(start),
	}, nil
}

// parallelSearch fans out the lexical and vector searches. The vector
// leg embeds the query first; any failure there degrades to
// lexical-only rather than failing the request.
func (e *Engine) parallelSearch(ctx context.Context, query string, opts Options) (
	lexResults []*store.LexicalResult,
	vecResults []*store.VectorResult,
	vectorOK bool,
	err error,
) {
	filter := store.Filter{ClientID: opts.ClientID}
	limit := e.config.CandidateCap

	g, gctx := errgroup.WithContext(ctx)

	var lexErr, vecErr error

	g.Go(func() error {
		lexCtx, cancel := context.WithTimeout(gctx, e.config.LexicalTimeout)
		defer cancel()
		lexResults, lexErr = e.lexical.Search(lexCtx, query, filter, limit)
		return nil
	})

	vectorConfigured := e.embedder != nil && e.vector != nil
	if vectorConfigured {
		g.Go(func() error {
			vecCtx, cancel := context.WithTimeout(gctx, e.config.VectorTimeout)
			defer cancel()

			embedding, embedErr := e.embedder.Embed(vecCtx, query)
			if embedErr != nil {
				vecErr = embedErr
				return nil
			}
			vecResults, vecErr = e.vector.Search(vecCtx, embedding, filter, limit)
			return nil
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		return nil, nil, false, waitErr
	}

	if vecErr != nil {
		slog.Warn("vector_search_unavailable, degrading to lexical-only",
			slog.String("error", vecErr.Error()))
	}
	vectorOK = vectorConfigured && vecErr == nil

	if lexErr != nil {
		if !vectorOK {
			return nil, nil, false, errors.Wrap(errors.ErrCodeSearchFailed, lexErr)
		}
		// Vector leg carries the request alone.
		slog.Warn("lexical_search_failed, continuing with vector results",
			slog.String("error", lexErr.Error()))
		lexResults = nil
	}

	return lexResults, vecResults, vectorOK, nil
}

// rerankStage applies the cross-encoder with its fallback ladder:
//
//   - reranking disabled by config: synthetic scores 1.0 - i*decay.
//   - reranker not configured: skip, fused order stands (degraded).
//   - rerank call failed after its retry: synthetic scores with the
//     smaller failure decay.
//   - success: reranker order and scores; candidates the reranker did
//     not echo back are dropped.
func (e *Engine) rerankStage(ctx context.Context, query string, candidates []*Candidate, topK int) ([]*Candidate, telemetry.RerankOutcome, error) {
	if !e.config.RerankEnabled {
		return syntheticScores(candidates, topK, e.config.RerankDisabledDecay), telemetry.RerankDisabled, nil
	}
	if e.reranker == nil {
		if len(candidates) > topK {
			candidates = candidates[:topK]
		}
		return candidates, telemetry.RerankSkipped, nil
	}
	if len(candidates) == 0 {
		// Nothing to rerank; the reranker itself is healthy.
		return candidates, telemetry.RerankSkipped, nil
	}

	pool := candidates
	if len(pool) > e.config.RerankCandidates {
		pool = pool[:e.config.RerankCandidates]
	}

	// The cross-encoder scores full text, so enrich the pool first.
	if err := e.enrich(ctx, pool); err != nil {
		return nil, "", err
	}

	docs := make([]rerank.Document, len(pool))
	for i, c := range pool {
		content := ""
		if c.Chunk != nil {
			content = c.Chunk.Text
		}
		docs[i] = rerank.Document{ID: c.ChunkID, Content: content}
	}

	results, err := e.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		slog.Warn("rerank_failed, falling back to fused order",
			slog.String("error", err.Error()))
		return syntheticScores(pool, topK, e.config.RerankFailedDecay), telemetry.RerankFailed, nil
	}

	byID := make(map[string]*Candidate, len(pool))
	for _, c := range pool {
		byID[c.ChunkID] = c
	}

	reranked := make([]*Candidate, 0, len(results))
	for _, r := range results {
		c, ok := byID[r.ID]
		if !ok {
			continue
		}
		c.Score = r.Score
		reranked = append(reranked, c)
	}
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, telemetry.RerankApplied, nil
}

// syntheticScores truncates to topK and assigns descending placeholder
// scores so downstream confidence math stays meaningful.
func syntheticScores(candidates []*Candidate, topK int, step float64) []*Candidate {
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	for i, c := range candidates {
		score := 1.0 - float64(i)*step
		if score < 0 {
			score = 0
		}
		c.Score = score
	}
	return candidates
}

// enrich loads full chunk rows for candidates that lack them.
func (e *Engine) enrich(ctx context.Context, candidates []*Candidate) error {
	var missing []string
	for _, c := range candidates {
		if c.Chunk == nil {
			missing = append(missing, c.ChunkID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	chunks, err := e.chunks.GetChunks(ctx, missing)
	if err != nil {
		return errors.StorageError("load chunks", err)
	}

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ChunkID] = c
	}
	for _, c := range candidates {
		if c.Chunk == nil {
			c.Chunk = byID[c.ChunkID]
		}
	}
	return nil
}

func (e *Engine) recordMetrics(query string, path telemetry.PipelinePath, outcome telemetry.RerankOutcome, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:         query,
		Path:          path,
		RerankOutcome: outcome,
		ResultCount:   resultCount,
		Latency:       latency,
		Timestamp:     time.Now(),
	})
}

// toCandidates converts fused results to pipeline candidates. The RRF
// score doubles as the initial pipeline score.
func toCandidates(fused []*FusedResult) []*Candidate {
	out := make([]*Candidate, len(fused))
	for i, f := range fused {
		out[i] = &Candidate{
			ChunkID:     f.ChunkID,
			Score:       f.Score,
			FusionScore: f.Score,
			LexicalRank: f.LexRank,
			VectorRank:  f.VecRank,
			Ordinal:     f.Ordinal,
		}
	}
	return out
}

// lexicalCandidates converts raw lexical results when the vector leg is
// unavailable. Fusion is skipped entirely on this path.
func lexicalCandidates(lex []*store.LexicalResult, limit int) []*Candidate {
	if len(lex) > limit {
		lex = lex[:limit]
	}
	out := make([]*Candidate, len(lex))
	for i, r := range lex {
		out[i] = &Candidate{
			ChunkID:     r.ChunkID,
			Score:       r.Score,
			LexicalRank: i + 1,
			Ordinal:     r.Ordinal,
		}
	}
	return out
}
