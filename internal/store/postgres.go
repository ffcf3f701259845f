package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore implements ChunkStore, LexicalIndex, and VectorIndex on the
// chunks table written by the chunking collaborator. Lexical search uses
// tsvector ranking; vector search uses pgvector cosine distance. A single
// pool backs all three capabilities.
type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

// NewPostgresStore connects to the shared database.
func NewPostgresStore(ctx context.Context, dsn string, dims int) (*PostgresStore, error) {
	if dims <= 0 {
		dims = DefaultDimensions
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool, dims: dims}, nil
}

// GetChunks implements ChunkStore.
func (p *PostgresStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT chunk_id, document_id, COALESCE(client_id, ''), chunk_index,
		       text, COALESCE(heading, ''), COALESCE(heading_level, 0),
		       COALESCE(chunk_type, 'general'), COALESCE(token_count, 0),
		       embedding, created_at
		FROM chunks
		WHERE chunk_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	chunks := []*Chunk{}
	for rows.Next() {
		var (
			c         Chunk
			chunkType string
			embedding *pgvector.Vector
			createdAt time.Time
		)
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ClientID, &c.Ordinal,
			&c.Text, &c.Heading, &c.HeadingLevel, &chunkType, &c.TokenCount,
			&embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.ChunkType = ChunkType(chunkType)
		c.CreatedAt = createdAt
		if embedding != nil {
			c.Embedding = embedding.Slice()
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}

// Search implements LexicalIndex via tsvector ranking. The query is expected
// to be pre-sanitized; plainto_tsquery treats it as plain terms either way.
// Ties in the rank statistic break by ascending chunk ordinal.
func (p *PostgresStore) Search(ctx context.Context, query string, filter Filter, limit int) ([]*LexicalResult, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []*LexicalResult{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT chunk_id, chunk_index,
		       ts_rank(to_tsvector('simple', COALESCE(heading, '') || ' ' || text), q) AS rank
		FROM chunks, plainto_tsquery('simple', $1) q
		WHERE to_tsvector('simple', COALESCE(heading, '') || ' ' || text) @@ q
		  AND ($2 = '' OR client_id = $2)
		ORDER BY rank DESC, chunk_index ASC
		LIMIT $3`, query, filter.ClientID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	results := []*LexicalResult{}
	for rows.Next() {
		var r LexicalResult
		var rank float32
		if err := rows.Scan(&r.ChunkID, &r.Ordinal, &rank); err != nil {
			return nil, fmt.Errorf("scan lexical row: %w", err)
		}
		r.Score = float64(rank)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// SearchVector implements VectorIndex via pgvector cosine distance.
func (p *PostgresStore) SearchVector(ctx context.Context, embedding []float32, filter Filter, limit int) ([]*VectorResult, error) {
	if len(embedding) != p.dims {
		return nil, DimensionError{Expected: p.dims, Got: len(embedding)}
	}
	if limit <= 0 {
		return []*VectorResult{}, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT chunk_id, chunk_index, 1 - (embedding <=> $1) AS similarity
		FROM chunks
		WHERE embedding IS NOT NULL
		  AND ($2 = '' OR client_id = $2)
		ORDER BY embedding <=> $1
		LIMIT $3`, pgvector.NewVector(embedding), filter.ClientID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := []*VectorResult{}
	for rows.Next() {
		var r VectorResult
		var similarity float64
		if err := rows.Scan(&r.ChunkID, &r.Ordinal, &similarity); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		// Cosine similarity lands in [-1,1]; scores are kept non-negative.
		if similarity < 0 {
			similarity = 0
		}
		r.Score = similarity
		results = append(results, &r)
	}
	return results, rows.Err()
}

// Count implements ChunkStore.
func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Ping verifies database connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// vectorCapability adapts PostgresStore's SearchVector to the VectorIndex
// interface without colliding with the lexical Search method.
type vectorCapability struct {
	store *PostgresStore
}

func (v vectorCapability) Search(ctx context.Context, embedding []float32, filter Filter, limit int) ([]*VectorResult, error) {
	return v.store.SearchVector(ctx, embedding, filter, limit)
}

func (v vectorCapability) Close() error { return nil }

// VectorIndex returns the pool's nearest-neighbor capability.
func (p *PostgresStore) VectorIndex() VectorIndex {
	return vectorCapability{store: p}
}

var (
	_ ChunkStore   = (*PostgresStore)(nil)
	_ LexicalIndex = (*PostgresStore)(nil)
)
