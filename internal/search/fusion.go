// Package search implements the hybrid retrieval pipeline: lexical and
// vector search fused with Reciprocal Rank Fusion, optionally reranked
// by a cross-encoder.
package search

import (
	"sort"

	"github.com/corpusqa/corpusqa/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// DefaultCandidateCap truncates each retrieval list before fusion.
const DefaultCandidateCap = 50

// FusedResult is a single result after RRF fusion.
type FusedResult struct {
	ChunkID     string  // Chunk identifier
	Score       float64 // Combined RRF score
	LexScore    float64 // Original lexical score (preserved)
	LexRank     int     // Position in lexical list (1-indexed, 0 if absent)
	VecScore    float64 // Original vector similarity (preserved)
	VecRank     int     // Position in vector list (1-indexed, 0 if absent)
	Ordinal     int     // Chunk position within its document
	InBothLists bool    // Appeared in both retrieval lists
}

// bestRank returns the lowest rank the document achieved in any list.
func (r *FusedResult) bestRank() int {
	switch {
	case r.LexRank == 0:
		return r.VecRank
	case r.VecRank == 0:
		return r.LexRank
	case r.LexRank < r.VecRank:
		return r.LexRank
	default:
		return r.VecRank
	}
}

// RRFFusion combines lexical and vector results with Reciprocal Rank
// Fusion:
//
//	score(d) = Σ over lists containing d of 1 / (k + rank_i)
//
// A document absent from a list gets no contribution from it. Each input
// list is truncated to CandidateCap entries before fusing.
type RRFFusion struct {
	K            int // smoothing constant (default: 60)
	CandidateCap int // per-list truncation (default: 50)
}

// NewRRFFusion creates an RRF fusion instance with defaults.
func NewRRFFusion() *RRFFusion {
	return NewRRFFusionWithK(DefaultRRFConstant)
}

// NewRRFFusionWithK creates an RRF fusion with a custom k.
// Non-positive k falls back to the default.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k, CandidateCap: DefaultCandidateCap}
}

// Fuse combines lexical and vector results.
//
// Ties are broken by best rank achieved in any list, then ascending
// ordinal, then chunk id. The output is fully deterministic for a given
// pair of inputs.
func (f *RRFFusion) Fuse(lex []*store.LexicalResult, vec []*store.VectorResult) []*FusedResult {
	if len(lex) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	limit := f.CandidateCap
	if limit <= 0 {
		limit = DefaultCandidateCap
	}
	if len(lex) > limit {
		lex = lex[:limit]
	}
	if len(vec) > limit {
		vec = vec[:limit]
	}

	scores := make(map[string]*FusedResult, len(lex)+len(vec))

	for i, r := range lex {
		result := f.getOrCreate(scores, r.ChunkID)
		result.LexScore = r.Score
		result.LexRank = i + 1
		result.Ordinal = r.Ordinal
		result.Score += 1.0 / float64(f.K+i+1)
	}

	for i, r := range vec {
		result := f.getOrCreate(scores, r.ChunkID)
		result.VecScore = r.Score
		result.VecRank = i + 1
		result.Ordinal = r.Ordinal
		result.Score += 1.0 / float64(f.K+i+1)

		if result.LexRank > 0 {
			result.InBothLists = true
		}
	}

	results := make([]*FusedResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	return results
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ChunkID: id}
	m[id] = r
	return r
}

// compare returns true if a ranks before b.
//
// Priority:
//  1. Higher RRF score
//  2. Better (lower) best rank in any list
//  3. Lower ordinal (earlier in the document)
//  4. Lexicographically smaller chunk id
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if ar, br := a.bestRank(), b.bestRank(); ar != br {
		return ar < br
	}
	if a.Ordinal != b.Ordinal {
		return a.Ordinal < b.Ordinal
	}
	return a.ChunkID < b.ChunkID
}
