package search

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusqa/corpusqa/internal/store"
)

func lexList(ids ...string) []*store.LexicalResult {
	out := make([]*store.LexicalResult, len(ids))
	for i, id := range ids {
		out[i] = &store.LexicalResult{ChunkID: id, Score: 10.0 - float64(i), Ordinal: i}
	}
	return out
}

func vecList(ids ...string) []*store.VectorResult {
	out := make([]*store.VectorResult, len(ids))
	for i, id := range ids {
		out[i] = &store.VectorResult{ChunkID: id, Score: 0.99 - 0.01*float64(i), Ordinal: i}
	}
	return out
}

func TestFuseTopOfBothLists(t *testing.T) {
	f := NewRRFFusion()
	fused := f.Fuse(lexList("a", "b"), vecList("a", "c"))

	require.NotEmpty(t, fused)
	assert.Equal(t, "a", fused[0].ChunkID)
	// Rank 1 in both lists: 1/61 + 1/61.
	assert.InDelta(t, 2.0/61.0, fused[0].Score, 1e-9)
	assert.True(t, fused[0].InBothLists)
}

func TestFuseSingleListContribution(t *testing.T) {
	f := NewRRFFusion()
	fused := f.Fuse(lexList("a"), nil)

	require.Len(t, fused, 1)
	// Rank 1 in one list only: absence contributes nothing.
	assert.InDelta(t, 1.0/61.0, fused[0].Score, 1e-9)
	assert.False(t, fused[0].InBothLists)
}

func TestFuseTieBreaking(t *testing.T) {
	// lex: [a, b, c], vec: [b, a, d]. Both a and b score
	// 1/61 + 1/62, so the tie falls to best rank, which is also
	// equal (both hold a rank 1), then ordinal, then chunk id.
	lex := []*store.LexicalResult{
		{ChunkID: "a", Score: 3, Ordinal: 5},
		{ChunkID: "b", Score: 2, Ordinal: 5},
		{ChunkID: "c", Score: 1, Ordinal: 5},
	}
	vec := []*store.VectorResult{
		{ChunkID: "b", Score: 0.9, Ordinal: 5},
		{ChunkID: "a", Score: 0.8, Ordinal: 5},
		{ChunkID: "d", Score: 0.7, Ordinal: 5},
	}

	f := NewRRFFusion()
	fused := f.Fuse(lex, vec)

	require.Len(t, fused, 4)
	assert.InDelta(t, fused[0].Score, fused[1].Score, 1e-12)
	assert.Equal(t, "a", fused[0].ChunkID)
	assert.Equal(t, "b", fused[1].ChunkID)
	assert.Equal(t, "c", fused[2].ChunkID)
	assert.Equal(t, "d", fused[3].ChunkID)
}

func TestFuseOrdinalBreaksEqualRanks(t *testing.T) {
	lex := []*store.LexicalResult{{ChunkID: "late", Score: 1, Ordinal: 9}}
	vec := []*store.VectorResult{{ChunkID: "early", Score: 1, Ordinal: 2}}

	f := NewRRFFusion()
	fused := f.Fuse(lex, vec)

	require.Len(t, fused, 2)
	assert.Equal(t, "early", fused[0].ChunkID)
	assert.Equal(t, "late", fused[1].ChunkID)
}

func TestFuseCandidateCap(t *testing.T) {
	var lex []*store.LexicalResult
	for i := 0; i < 80; i++ {
		lex = append(lex, &store.LexicalResult{
			ChunkID: fmt.Sprintf("chunk-%03d", i),
			Score:   float64(80 - i),
			Ordinal: i,
		})
	}

	f := NewRRFFusion()
	fused := f.Fuse(lex, nil)

	// Each input list is truncated to the candidate cap before fusing.
	assert.Len(t, fused, DefaultCandidateCap)
	assert.Equal(t, "chunk-000", fused[0].ChunkID)
}

func TestFuseCustomK(t *testing.T) {
	f := NewRRFFusionWithK(10)
	fused := f.Fuse(lexList("a"), vecList("a"))

	require.Len(t, fused, 1)
	assert.InDelta(t, 2.0/11.0, fused[0].Score, 1e-9)
}

func TestFuseDeterministic(t *testing.T) {
	lex := lexList("q", "r", "s", "t")
	vec := vecList("t", "s", "r", "q")

	f := NewRRFFusion()
	first := f.Fuse(lex, vec)
	for i := 0; i < 10; i++ {
		again := f.Fuse(lex, vec)
		require.Len(t, again, len(first))
		for j := range first {
			assert.Equal(t, first[j].ChunkID, again[j].ChunkID)
		}
	}
}

func TestFuseEmptyInputs(t *testing.T) {
	f := NewRRFFusion()
	assert.Empty(t, f.Fuse(nil, nil))
}
