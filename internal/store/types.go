// Package store provides the retrieval backends: chunk persistence, the
// lexical (keyword) index, and the vector (nearest-neighbor) index.
// Two backend families exist: "postgres" (pgx + pgvector, shared with the
// ingestion pipeline) and "local" (SQLite + Bleve + HNSW, single-node).
package store

import (
	"context"
	"fmt"
	"time"
)

// ChunkType categorizes a chunk by document content. The set is closed and
// assigned by the chunking collaborator at ingestion time.
type ChunkType string

const (
	ChunkTypeContract      ChunkType = "contract"
	ChunkTypeInvoice       ChunkType = "invoice"
	ChunkTypeRisk          ChunkType = "risk"
	ChunkTypeFinancial     ChunkType = "financial"
	ChunkTypePassport      ChunkType = "passport"
	ChunkTypeQuestionnaire ChunkType = "questionnaire"
	ChunkTypeBankStatement ChunkType = "bank_statement"
	ChunkTypeCredit        ChunkType = "credit"
	ChunkTypeEmployment    ChunkType = "employment"
	ChunkTypeProperty      ChunkType = "property"
	ChunkTypeNDFL          ChunkType = "ndfl"
	ChunkTypeGeneral       ChunkType = "general"
)

// DefaultDimensions is the embedding dimensionality enforced at storage time.
// It is fixed per deployment, never varied per query.
const DefaultDimensions = 768

// Chunk is the atomic retrievable unit of text. Chunks are produced by the
// chunking collaborator and are immutable from this service's perspective.
type Chunk struct {
	ChunkID      string    // Unique within a client scope
	DocumentID   string    // Owning document
	ClientID     string    // Opaque tenant key, may be empty
	Ordinal      int       // chunk_index within the document, 0-based
	Text         string    // Chunk body
	Heading      string    // Section heading, may be empty
	HeadingLevel int       // 0 (none) through 6
	ChunkType    ChunkType // Closed set, defaults to "general"
	TokenCount   int
	Embedding    []float32 // nil when the chunk has no embedding
	CreatedAt    time.Time
}

// Filter restricts retrieval to a caller-specified subset of chunks.
// The zero value matches everything.
type Filter struct {
	ClientID string
}

// LexicalResult is a single keyword search hit. Rank is implied by slice
// position (1-based); Ordinal is carried for deterministic tie-breaking.
type LexicalResult struct {
	ChunkID string
	Score   float64 // Relevance statistic, non-negative, higher is better
	Ordinal int
}

// VectorResult is a single nearest-neighbor hit.
type VectorResult struct {
	ChunkID string
	Score   float64 // Cosine similarity mapped to [0,1]
	Ordinal int
}

// ChunkStore provides read access to persisted chunk rows.
type ChunkStore interface {
	// GetChunks fetches chunks by id in a single round trip.
	// Missing ids are silently omitted from the result.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	Close() error
}

// LexicalIndex is the keyword query capability.
type LexicalIndex interface {
	// Search returns up to limit chunks whose text matches the query,
	// ordered by descending relevance, ties broken by ascending ordinal.
	// The query must already be sanitized (SanitizeQuery).
	// An empty result is valid, not an error.
	Search(ctx context.Context, query string, filter Filter, limit int) ([]*LexicalResult, error)

	Close() error
}

// VectorIndex is the nearest-neighbor query capability.
type VectorIndex interface {
	// Search returns up to limit chunks ordered by descending similarity
	// to the query embedding.
	Search(ctx context.Context, embedding []float32, filter Filter, limit int) ([]*VectorResult, error)

	Close() error
}

// DimensionError indicates an embedding of the wrong dimensionality.
type DimensionError struct {
	Expected int
	Got      int
}

func (e DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
