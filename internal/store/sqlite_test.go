package store

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunk(id string, ordinal int, text string) *Chunk {
	emb := make([]float32, DefaultDimensions)
	emb[0] = float32(ordinal + 1)
	return &Chunk{
		ChunkID:      id,
		DocumentID:   "doc-1",
		ClientID:     "client-a",
		Ordinal:      ordinal,
		Text:         text,
		Heading:      "Heading " + id,
		HeadingLevel: 2,
		ChunkType:    ChunkTypeGeneral,
		TokenCount:   len(text) / 4,
		Embedding:    emb,
	}
}

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	chunks := []*Chunk{
		makeChunk("c1", 0, "payment obligations under the contract"),
		makeChunk("c2", 1, "termination clause and notice period"),
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	got, err := s.GetChunks(ctx, []string{"c2", "c1", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[string]*Chunk{}
	for _, c := range got {
		byID[c.ChunkID] = c
	}
	require.Contains(t, byID, "c1")
	require.Contains(t, byID, "c2")
	assert.Equal(t, "termination clause and notice period", byID["c2"].Text)
	assert.Equal(t, 1, byID["c2"].Ordinal)
	assert.Equal(t, "client-a", byID["c2"].ClientID)
	assert.Len(t, byID["c1"].Embedding, DefaultDimensions)
	assert.Equal(t, float32(1), byID["c1"].Embedding[0])
}

func TestSQLiteStoreUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := makeChunk("c1", 0, "original text")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{first}))

	updated := makeChunk("c1", 0, "revised text")
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{updated}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.GetChunks(ctx, []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "revised text", got[0].Text)
}

func TestSQLiteStoreAllChunksBatches(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	var chunks []*Chunk
	for i := 0; i < allChunksBatchSize+10; i++ {
		chunks = append(chunks, makeChunk(chunkIDf(i), i, "body text"))
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	seen := 0
	batches := 0
	err := s.AllChunks(ctx, func(batch []*Chunk) error {
		seen += len(batch)
		batches++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, allChunksBatchSize+10, seen)
	assert.GreaterOrEqual(t, batches, 2)
}

func TestSQLiteStoreNilEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	c := makeChunk("c1", 0, "no embedding yet")
	c.Embedding = nil
	require.NoError(t, s.SaveChunks(ctx, []*Chunk{c}))

	got, err := s.GetChunks(ctx, []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Embedding)
}

func chunkIDf(i int) string {
	return "chunk-" + strconv.Itoa(i)
}
