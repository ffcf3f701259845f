package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vecChunk(id, clientID string, ordinal int, embedding []float32) *Chunk {
	return &Chunk{
		ChunkID:   id,
		ClientID:  clientID,
		Ordinal:   ordinal,
		Text:      "chunk " + id,
		ChunkType: ChunkTypeGeneral,
		Embedding: embedding,
	}
}

func TestHNSWSearchNearest(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []*Chunk{
		vecChunk("c1", "client-a", 0, []float32{1, 0, 0}),
		vecChunk("c2", "client-a", 1, []float32{0, 1, 0}),
		vecChunk("c3", "client-a", 2, []float32{0, 0, 1}),
	}))

	results, err := idx.Search(ctx, []float32{0.9, 0.1, 0}, Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWScoreRange(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []*Chunk{
		vecChunk("same", "client-a", 0, []float32{1, 0, 0}),
		vecChunk("opposite", "client-a", 1, []float32{-1, 0, 0}),
	}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
	assert.Equal(t, "same", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestHNSWTenantFilter(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []*Chunk{
		vecChunk("a1", "client-a", 0, []float32{1, 0, 0}),
		vecChunk("b1", "client-b", 0, []float32{0.99, 0.01, 0}),
		vecChunk("b2", "client-b", 1, []float32{0, 1, 0}),
	}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, Filter{ClientID: "client-b"}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "a1", r.ChunkID)
	}
	assert.Equal(t, "b1", results[0].ChunkID)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	err = idx.Add(ctx, []*Chunk{vecChunk("bad", "client-a", 0, []float32{1, 0})})
	require.Error(t, err)
	var dimErr DimensionError
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWSkipsChunksWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []*Chunk{
		vecChunk("c1", "client-a", 0, []float32{1, 0, 0}),
		vecChunk("c2", "client-a", 1, nil),
	}))

	results, err := idx.Search(ctx, []float32{1, 0, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestHNSWReAddReplacesVector(t *testing.T) {
	ctx := context.Background()
	idx, err := NewHNSWIndex(3)
	require.NoError(t, err)

	require.NoError(t, idx.Add(ctx, []*Chunk{vecChunk("c1", "client-a", 0, []float32{1, 0, 0})}))
	require.NoError(t, idx.Add(ctx, []*Chunk{vecChunk("c1", "client-a", 0, []float32{0, 1, 0})}))

	results, err := idx.Search(ctx, []float32{0, 1, 0}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}
