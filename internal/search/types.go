package search

import (
	"time"

	"github.com/corpusqa/corpusqa/internal/store"
	"github.com/corpusqa/corpusqa/internal/telemetry"
)

// EngineConfig holds the tunable pipeline parameters.
type EngineConfig struct {
	// RRFConstant is the RRF smoothing parameter k.
	RRFConstant int

	// CandidateCap truncates each retrieval list before fusion.
	CandidateCap int

	// RerankCandidates is how many fused results go to the reranker.
	RerankCandidates int

	// TopK is the number of final results.
	TopK int

	// MinQueryLength rejects shorter queries before any upstream call.
	MinQueryLength int

	// LexicalTimeout bounds the lexical search call.
	LexicalTimeout time.Duration

	// VectorTimeout bounds the embed plus vector search calls.
	VectorTimeout time.Duration

	// RerankEnabled turns cross-encoder reranking on.
	RerankEnabled bool

	// RerankDisabledDecay is the per-rank drop of the synthetic scores
	// assigned when reranking is disabled by config.
	RerankDisabledDecay float64

	// RerankFailedDecay is the per-rank drop of the synthetic scores
	// assigned when the rerank call fails.
	RerankFailedDecay float64

	// Confidence holds the answer-confidence heuristic terms.
	Confidence ConfidenceConfig
}

// DefaultEngineConfig returns the default pipeline parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RRFConstant:      DefaultRRFConstant,
		CandidateCap:     DefaultCandidateCap,
		RerankCandidates: 20,
		TopK:             10,
		MinQueryLength:   3,
		LexicalTimeout:   2 * time.Second,
		VectorTimeout:    10 * time.Second,
		RerankEnabled:    true,

		RerankDisabledDecay: 0.1,
		RerankFailedDecay:   0.05,
		Confidence:          DefaultConfidenceConfig(),
	}
}

// Options are per-request search parameters.
type Options struct {
	// ClientID restricts results to one tenant. Empty searches all.
	ClientID string

	// TopK overrides the configured result count when positive.
	TopK int
}

// Candidate is one retrieved chunk moving through the pipeline.
type Candidate struct {
	// ChunkID identifies the chunk.
	ChunkID string `json:"chunk_id"`

	// Score is the current pipeline score: fusion score after fusion,
	// reranker (or synthetic) score after the rerank stage.
	Score float64 `json:"score"`

	// FusionScore preserves the RRF score through reranking.
	FusionScore float64 `json:"fusion_score"`

	// LexicalRank is the 1-based position in the lexical list, 0 if absent.
	LexicalRank int `json:"lexical_rank,omitempty"`

	// VectorRank is the 1-based position in the vector list, 0 if absent.
	VectorRank int `json:"vector_rank,omitempty"`

	// Ordinal is the chunk position within its document.
	Ordinal int `json:"ordinal"`

	// Chunk carries full chunk data once enriched.
	Chunk *store.Chunk `json:"-"`
}

// SearchResult is the outcome of the retrieval pipeline.
type SearchResult struct {
	Candidates    []*Candidate            `json:"candidates"`
	Path          telemetry.PipelinePath  `json:"path"`
	RerankOutcome telemetry.RerankOutcome `json:"rerank_outcome"`
	Latency       time.Duration           `json:"latency"`
}

// Answer is the outcome of the full question-answering pipeline.
type Answer struct {
	Text          string                  `json:"answer"`
	Confidence    float64                 `json:"confidence"`
	Sources       []*Candidate            `json:"sources"`
	Path          telemetry.PipelinePath  `json:"path"`
	RerankOutcome telemetry.RerankOutcome `json:"rerank_outcome"`
	Latency       time.Duration           `json:"latency"`
}
